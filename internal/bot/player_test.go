package bot

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/EgorLis/apbot/internal/apclient"
	"github.com/EgorLis/apbot/internal/goal"
)

func newPlayer(t *testing.T, locations map[string]int64, batch int) (*playerTask, *fakeSender, *goal.Waiter) {
	t.Helper()
	trig, w := goal.New()
	snd := &fakeSender{}
	return &playerTask{
		send:     snd,
		store:    newStore(t, locations),
		saver:    &countingSaver{},
		policy:   sequential{percent: 100},
		trigger:  trig,
		outbox:   make(chan apclient.ClientPacket, 4),
		interval: time.Hour,
		batch:    batch,
	}, snd, w
}

func TestCycleFiresGoalOnce(t *testing.T) {
	p, snd, w := newPlayer(t, map[string]int64{"L1": 1, "L2": 2}, 5)
	ctx := context.Background()

	if err := p.cycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if !p.trigger.Fired() {
		t.Fatal("goal not fired")
	}
	// повторные циклы не должны ни паниковать, ни слать GOAL ещё раз
	for i := 0; i < 3; i++ {
		if err := p.cycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	if n := snd.statuses(apclient.ClientGoal); n != 1 {
		t.Fatalf("GOAL sent %d times", n)
	}
	checks := snd.packets("LocationChecks")
	if len(checks) != 1 || !slices.Equal(checks[0].(apclient.LocationChecks).Locations, []int64{1, 2}) {
		t.Fatalf("checks = %v", checks)
	}
	if !p.store.GoalReported() {
		t.Fatal("store does not record the reported goal")
	}
	res, err := w.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if res.Checked != 2 || res.Total != 2 {
		t.Fatalf("result = %+v", res)
	}
}

func TestCycleChecksOneBatchAtATime(t *testing.T) {
	p, snd, _ := newPlayer(t, map[string]int64{"L1": 1, "L2": 2, "L3": 3}, 1)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := p.cycle(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if p.trigger.Fired() {
		t.Fatal("goal fired with a location still missing")
	}
	if got := p.store.Checked(); !slices.Equal(got, []int64{1, 2}) {
		t.Fatalf("checked = %v", got)
	}
	if n := len(snd.packets("LocationChecks")); n != 2 {
		t.Fatalf("LocationChecks sent %d times", n)
	}
	if err := p.cycle(ctx); err != nil {
		t.Fatal(err)
	}
	if !p.trigger.Fired() {
		t.Fatal("goal not fired after the last check")
	}
}

func TestCycleGoalAlreadyReported(t *testing.T) {
	p, snd, w := newPlayer(t, map[string]int64{"L1": 1}, 1)
	p.store.SetGoalReported()

	if err := p.cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(snd.sent) != 0 {
		t.Fatalf("sent %v, want nothing", snd.sent)
	}
}

func TestRunAbandonsOnCancel(t *testing.T) {
	p, snd, w := newPlayer(t, map[string]int64{"L1": 1}, 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	eventually(t, "PLAYING status", func() bool { return snd.statuses(apclient.ClientPlaying) == 1 })
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := w.Wait(context.Background()); !errors.Is(err, goal.ErrAbandoned) {
		t.Fatalf("wait: %v, want ErrAbandoned", err)
	}
}

func TestRunForwardsOutbox(t *testing.T) {
	p, snd, _ := newPlayer(t, map[string]int64{"L1": 1}, 1)
	out := make(chan apclient.ClientPacket, 1)
	p.outbox = out
	out <- apclient.Say{Text: "hi"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	eventually(t, "Say", func() bool { return len(snd.packets("Say")) == 1 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunReportsSendFailure(t *testing.T) {
	p, snd, w := newPlayer(t, map[string]int64{"L1": 1}, 1)
	broken := errors.New("broken pipe")
	snd.err = broken

	err := p.Run(context.Background())
	if !errors.Is(err, broken) {
		t.Fatalf("Run: %v, want broken pipe", err)
	}
	if _, err := w.Wait(context.Background()); !errors.Is(err, goal.ErrAbandoned) {
		t.Fatalf("wait: %v", err)
	}
}

func TestRunTreatsClosedConnectionAsEnd(t *testing.T) {
	p, snd, _ := newPlayer(t, map[string]int64{"L1": 1}, 1)
	snd.err = apclient.ErrClosed
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
