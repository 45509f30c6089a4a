package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/EgorLis/apbot/internal/apclient"
	"github.com/EgorLis/apbot/internal/config"
	"github.com/EgorLis/apbot/internal/goal"
	"github.com/EgorLis/apbot/internal/persist"
	"github.com/EgorLis/apbot/internal/progress"
)

var (
	ErrPlayerNotFound = errors.New("slot not found in the room's player list")
	ErrNoDataPackage  = errors.New("no data package for the game")
	ErrNoSeed         = errors.New("server did not report a seed name")
	ErrAlreadyRunning = errors.New("session already started")
)

const outboxSize = 64

// Identity — кто мы в этой комнате. Заполняется в Bootstrap и дальше не меняется.
type Identity struct {
	SlotName string
	Slot     int
	Team     int
	Seed     string
	Game     string
}

// Outcome — итог прогона. Goal=false при nil-ошибке означает
// «соединение закрылось раньше цели».
type Outcome struct {
	Goal   bool
	Result goal.Result
}

// Session — подключённый и синхронизированный слот, готовый к Run.
type Session struct {
	cfg *config.Config
	id  Identity

	client *apclient.Client
	send   *apclient.Sender
	recv   *apclient.Receiver

	store     *progress.Store
	saver     *persist.Saver
	lock      io.Closer
	policy    Policy
	itemNames map[int64]string

	started   atomic.Bool
	closeOnce sync.Once
}

// Bootstrap подключается, авторизуется, поднимает прогресс сида и делает
// начальную синхронизацию. Любая ошибка здесь фатальна для запуска.
func Bootstrap(ctx context.Context, cfg *config.Config, repo persist.Repository) (*Session, error) {
	policy, err := NewPolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}

	client, err := apclient.Dial(ctx, cfg.ServerAddr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.ServerAddr, err)
	}
	s := &Session{cfg: cfg, client: client, policy: policy}
	ok := false
	defer func() {
		if !ok {
			s.abort()
		}
	}()

	room := client.RoomInfo()
	if room.SeedName == "" {
		return nil, ErrNoSeed
	}
	log.Printf("[session] room %s, seed %s, server %s", client.URL(), room.SeedName, room.Version)

	if err := client.FetchDataPackage(ctx, cfg.Game); err != nil {
		return nil, fmt.Errorf("data package: %w", err)
	}
	conn, err := client.Connect(ctx, apclient.ConnectParams{
		Game:          cfg.Game,
		Name:          cfg.SlotName,
		Password:      cfg.Password,
		ItemsHandling: cfg.ItemsHandling,
		Tags:          cfg.Tags,
	})
	if err != nil {
		return nil, err
	}

	idx := slices.IndexFunc(conn.Players, func(p apclient.NetworkPlayer) bool {
		return p.Name == cfg.SlotName
	})
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrPlayerNotFound, cfg.SlotName)
	}
	me := conn.Players[idx]
	s.id = Identity{
		SlotName: cfg.SlotName,
		Slot:     me.Slot,
		Team:     me.Team,
		Seed:     room.SeedName,
		Game:     cfg.Game,
	}

	data, found := client.DataPackage(cfg.Game)
	if !found {
		return nil, fmt.Errorf("%w %q", ErrNoDataPackage, cfg.Game)
	}
	s.itemNames = make(map[int64]string, len(data.ItemNameToID))
	for name, id := range data.ItemNameToID {
		s.itemNames[id] = name
	}

	key := persist.Key{Seed: s.id.Seed, Slot: s.id.SlotName}
	if locker, canLock := repo.(persist.Locker); canLock {
		if s.lock, err = locker.Lock(key); err != nil {
			return nil, fmt.Errorf("state %s: %w", key, err)
		}
	}

	s.store = persist.LoadOrDefault(repo, key)
	if s.store.SeedName() == "" {
		if err := s.store.Initialize(s.id.Seed, s.id.Team, s.id.Slot, data.LocationNameToID); err != nil {
			return nil, err
		}
		log.Printf("[session] new seed %s: %d locations", s.id.Seed, len(data.LocationNameToID))
	} else if s.store.Team() != s.id.Team || s.store.Slot() != s.id.Slot {
		log.Printf("[session] saved state was team %d slot %d, server says team %d slot %d",
			s.store.Team(), s.store.Slot(), s.id.Team, s.id.Slot)
	}

	resend := s.reconcile(conn)
	s.saver = persist.NewSaver(repo, key)
	if err := s.saver.Persist(s.store); err != nil {
		log.Printf("[persist] %v", err)
	}

	s.send, s.recv = client.Split()
	pkts := []apclient.ClientPacket{
		apclient.Get{Keys: []string{apclient.StatusKey(s.id.Team, s.id.Slot)}},
		apclient.Sync{},
	}
	if len(resend) > 0 {
		log.Printf("[session] resending %d checks the server has not seen", len(resend))
		pkts = append(pkts, apclient.LocationChecks{Locations: resend})
	}
	if err := s.send.Send(ctx, pkts...); err != nil {
		return nil, fmt.Errorf("initial sync: %w", err)
	}

	log.Printf("[session] %s ready: team %d slot %d, %d/%d checked",
		s.id.SlotName, s.id.Team, s.id.Slot, len(s.store.Checked()), len(data.LocationNameToID))
	ok = true
	return s, nil
}

// reconcile вливает отметки сервера в локальный прогресс и возвращает
// локальные отметки, о которых сервер ещё не знает.
func (s *Session) reconcile(conn *apclient.Connected) []int64 {
	if n := s.store.MarkLocationChecked(conn.CheckedLocations...); n > 0 {
		log.Printf("[session] server already had %d checks we did not", n)
	}
	missing := make(map[int64]bool, len(conn.MissingLocations))
	for _, id := range conn.MissingLocations {
		missing[id] = true
	}
	var resend []int64
	for _, id := range s.store.Checked() {
		if missing[id] {
			resend = append(resend, id)
		}
	}
	return resend
}

func (s *Session) Identity() Identity { return s.id }

func (s *Session) Store() *progress.Store { return s.store }

// Run запускает задачу сервера и задачу решений и ждёт обеих.
// Ошибка возвращается только при сбое отправки.
func (s *Session) Run(ctx context.Context) (Outcome, error) {
	if !s.started.CompareAndSwap(false, true) {
		return Outcome{}, ErrAlreadyRunning
	}

	trigger, waiter := goal.New()
	outbox := make(chan apclient.ClientPacket, outboxSize)

	g, gctx := errgroup.WithContext(ctx)
	playCtx, stopPlay := context.WithCancel(gctx)
	defer stopPlay()

	server := &serverTask{
		recv:   s.recv,
		store:  s.store,
		saver:  s.saver,
		outbox: outbox,
		id:     s.id,
		cmds:   &commander{store: s.store, id: s.id, itemNames: s.itemNames},
	}
	player := &playerTask{
		send:     s.send,
		store:    s.store,
		saver:    s.saver,
		policy:   s.policy,
		trigger:  trigger,
		outbox:   outbox,
		interval: s.cfg.Policy.Interval,
		batch:    max(1, s.cfg.Policy.ChecksPerCycle),
	}

	g.Go(func() error {
		// без входящего потока решать нечего
		defer stopPlay()
		return server.Run(gctx)
	})
	g.Go(func() error {
		return player.Run(playCtx)
	})

	var out Outcome
	g.Go(func() error {
		res, err := waiter.Wait(gctx)
		if err != nil {
			return nil
		}
		out = Outcome{Goal: true, Result: res}
		log.Printf("[session] goal reached: %d/%d locations", res.Checked, res.Total)
		if !s.cfg.ExitOnGoal {
			return nil
		}
		t := time.NewTimer(s.cfg.GoalGrace)
		defer t.Stop()
		select {
		case <-t.C:
		case <-gctx.Done():
			return nil
		}
		log.Printf("[session] closing connection")
		_ = s.client.Close()
		return nil
	})

	err := g.Wait()
	return out, err
}

// Close сбрасывает прогресс на диск, закрывает соединение и отпускает
// блокировку состояния. Повторные вызовы безопасны.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if perr := s.saver.Persist(s.store); perr != nil {
			log.Printf("[persist] final flush: %v", perr)
		}
		err = s.client.Close()
		s.unlock()
	})
	return err
}

func (s *Session) abort() {
	_ = s.client.Close()
	s.unlock()
}

func (s *Session) unlock() {
	if s.lock != nil {
		if err := s.lock.Close(); err != nil {
			log.Printf("[persist] unlock: %v", err)
		}
		s.lock = nil
	}
}
