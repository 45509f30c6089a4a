package bot

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/EgorLis/apbot/internal/apclient"
	"github.com/EgorLis/apbot/internal/progress"
)

func newStore(t *testing.T, locations map[string]int64) *progress.Store {
	t.Helper()
	s := progress.New()
	if err := s.Initialize("SEED1", 0, 1, locations); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return s
}

type fakeSender struct {
	mu   sync.Mutex
	sent []apclient.ClientPacket
	err  error
}

func (f *fakeSender) Send(ctx context.Context, pkts ...apclient.ClientPacket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, pkts...)
	return nil
}

func (f *fakeSender) packets(cmd string) []apclient.ClientPacket {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apclient.ClientPacket
	for _, p := range f.sent {
		if p.Command() == cmd {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeSender) statuses(status int) int {
	n := 0
	for _, p := range f.packets("StatusUpdate") {
		if p.(apclient.StatusUpdate).Status == status {
			n++
		}
	}
	return n
}

type countingSaver struct{ n atomic.Int32 }

func (c *countingSaver) Persist(*progress.Store) error {
	c.n.Add(1)
	return nil
}

// eventually повторяет cond до успеха или таймаута.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
