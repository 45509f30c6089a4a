package apclient

import (
	"context"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ========================= low-level =========================

const (
	pingEvery    = 15 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 5 * time.Second
	readLimit    = 64 << 20
)

var dialer = &websocket.Dialer{
	HandshakeTimeout: 10 * time.Second,
	// data package целиком может весить мегабайты
	ReadBufferSize:  1 << 16,
	WriteBufferSize: 1 << 14,
}

// candidateURLs: если схема не указана — сначала wss, потом ws
// (archipelago.gg работает по TLS, локальные сервера обычно нет).
func candidateURLs(addr string) []string {
	addr = strings.TrimSpace(addr)
	if strings.Contains(addr, "://") {
		return []string{addr}
	}
	return []string{"wss://" + addr, "ws://" + addr}
}

// dial с установкой pong-handler'а, дедлайнов и запуском пингов
func (c *Client) dialAndSetup(ctx context.Context, url string) error {
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(readLimit)
	c.conn = conn
	c.url = url

	// всегда обновляем отметку активности сразу
	c.touchActivity()
	conn.SetPongHandler(func(string) error {
		c.touchActivity()
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	c.startPing(conn)
	return nil
}

// безопасно закрыть текущее соединение
func (c *Client) closeConn() error {
	c.stopPing()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
		time.Now().Add(500*time.Millisecond))
	return c.conn.Close()
}

func (c *Client) touchActivity() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// SinceLastActivity — сколько прошло с последнего принятого кадра или pong.
func (c *Client) SinceLastActivity() time.Duration {
	n := c.lastActivity.Load()
	if n == 0 {
		return time.Hour
	}
	return time.Since(time.Unix(0, n))
}

func (c *Client) startPing(conn *websocket.Conn) {
	c.stopPing() // на всякий — останавливаем предыдущие
	stop := make(chan struct{})
	c.pingMu.Lock()
	c.pingStop = stop
	c.pingMu.Unlock()

	go func() {
		t := time.NewTicker(pingEvery)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				c.wmu.Lock()
				err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout))
				c.wmu.Unlock()
				if err != nil {
					return
				}
			case <-stop:
				return
			}
		}
	}()
}

func (c *Client) stopPing() {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	if c.pingStop != nil {
		close(c.pingStop)
		c.pingStop = nil
	}
}
