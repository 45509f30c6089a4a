package apclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/EgorLis/apbot/internal/logger"
)

const handshakeTimeout = 30 * time.Second

type Client struct {
	url  string
	conn *websocket.Conn

	wmu          sync.Mutex // сериализует запись в websocket
	pingMu       sync.Mutex
	pingStop     chan struct{}
	lastActivity atomic.Int64 // unix nanos последнего успешного приёма

	closed    atomic.Bool
	closeOnce sync.Once
	split     atomic.Bool

	// очередь принятых, но ещё не отданных пакетов; до Split ей пользуется
	// рукопожатие, после — только Receiver
	queue []queued

	// заполняются во время рукопожатия, потом только читаются
	room        RoomInfo
	dataPackage map[string]GameData
}

// ConnectParams — параметры пакета Connect. Пустые UUID и Version
// заполняются автоматически.
type ConnectParams struct {
	Game          string
	Name          string
	Password      string
	ItemsHandling int
	Tags          []string
	SlotData      bool
	UUID          string
	Version       NetworkVersion
}

// Dial устанавливает WebSocket и дожидается RoomInfo.
// Адрес без схемы пробуется как wss://, затем ws://.
func Dial(ctx context.Context, addr string) (*Client, error) {
	ctx, cancel := withHandshakeTimeout(ctx)
	defer cancel()

	var errs []error
	for _, url := range candidateURLs(addr) {
		c := &Client{dataPackage: map[string]GameData{}}
		if err := c.dialAndSetup(ctx, url); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}
		pkt, err := c.await(ctx, func(p ServerPacket) bool {
			_, ok := p.(*RoomInfo)
			return ok
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("%s: waiting for RoomInfo: %w", url, err)
		}
		c.room = *pkt.(*RoomInfo)
		logger.Debugf("[ap] connected to %s, server %s", url, c.room.Version)
		return c, nil
	}
	return nil, errors.Join(errs...)
}

func (c *Client) URL() string { return c.url }

// RoomInfo — данные комнаты, присланные сервером сразу после подключения.
func (c *Client) RoomInfo() RoomInfo { return c.room }

// FetchDataPackage запрашивает data package для игр и ждёт ответа.
func (c *Client) FetchDataPackage(ctx context.Context, games ...string) error {
	ctx, cancel := withHandshakeTimeout(ctx)
	defer cancel()

	if err := c.send(ctx, GetDataPackage{Games: games}); err != nil {
		return err
	}
	pkt, err := c.await(ctx, func(p ServerPacket) bool {
		_, ok := p.(*DataPackage)
		return ok
	})
	if err != nil {
		return fmt.Errorf("waiting for DataPackage: %w", err)
	}
	for name, g := range pkt.(*DataPackage).Data.Games {
		c.dataPackage[name] = g
	}
	return nil
}

// DataPackage — данные игры из ранее полученного data package.
func (c *Client) DataPackage(game string) (GameData, bool) {
	g, ok := c.dataPackage[game]
	return g, ok
}

// Connect авторизует слот. ConnectionRefused превращается в ErrConnectionRefused.
func (c *Client) Connect(ctx context.Context, p ConnectParams) (*Connected, error) {
	ctx, cancel := withHandshakeTimeout(ctx)
	defer cancel()

	if p.UUID == "" {
		p.UUID = uuid.NewString()
	}
	if p.Version == (NetworkVersion{}) {
		p.Version = DefaultVersion
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	err := c.send(ctx, Connect{
		Password:      p.Password,
		Game:          p.Game,
		Name:          p.Name,
		UUID:          p.UUID,
		Version:       p.Version,
		ItemsHandling: p.ItemsHandling,
		Tags:          p.Tags,
		SlotData:      p.SlotData,
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.await(ctx, func(p ServerPacket) bool {
		switch p.(type) {
		case *Connected, *ConnectionRefused:
			return true
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for Connected: %w", err)
	}
	if r, ok := resp.(*ConnectionRefused); ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectionRefused, strings.Join(r.Errors, ", "))
	}
	return resp.(*Connected), nil
}

// Split делит соединение на половины: Sender только пишет, Receiver только
// читает. Каждой половиной должна владеть одна горутина. Повторный вызов — паника.
func (c *Client) Split() (*Sender, *Receiver) {
	if !c.split.CompareAndSwap(false, true) {
		panic("apclient: Split called twice")
	}
	return &Sender{c: c}, &Receiver{c: c}
}

// Close закрывает соединение; блокированный Recv вернёт ErrClosed.
// Повторные вызовы безопасны.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.closeConn()
	})
	return err
}

func (c *Client) IsClosed() bool { return c.closed.Load() }

func (c *Client) send(ctx context.Context, pkts ...ClientPacket) error {
	if len(pkts) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed.Load() {
		return ErrClosed
	}
	data, err := encodeFrame(pkts)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	// запись строго через один мьютекс + write-deadline
	c.wmu.Lock()
	_ = c.conn.SetWriteDeadline(deadline)
	werr := c.conn.WriteMessage(websocket.TextMessage, data)
	c.wmu.Unlock()

	if werr != nil {
		if c.closed.Load() {
			return fmt.Errorf("%w: %v", ErrClosed, werr)
		}
		return werr
	}
	if logger.Verbose() {
		// содержимое не пишем: в Connect лежит пароль
		cmds := make([]string, len(pkts))
		for i, p := range pkts {
			cmds[i] = p.Command()
		}
		logger.Debugf("[ap] -> %s (%d bytes)", strings.Join(cmds, ","), len(data))
	}
	return nil
}

func withHandshakeTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, handshakeTimeout)
}
