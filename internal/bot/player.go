package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/EgorLis/apbot/internal/apclient"
	"github.com/EgorLis/apbot/internal/goal"
	"github.com/EgorLis/apbot/internal/progress"
)

// playerTask владеет пишущей половиной: раз в interval спрашивает политику,
// отправляет отметки и один раз сообщает о цели.
type playerTask struct {
	send     packetSender
	store    *progress.Store
	saver    persister
	policy   Policy
	trigger  *goal.Trigger
	outbox   <-chan apclient.ClientPacket
	interval time.Duration
	batch    int
}

// Run работает до отмены ctx. Ошибка — только сбой отправки.
// Выход без цели отменяет сигнал (Abandon).
func (t *playerTask) Run(ctx context.Context) error {
	defer t.trigger.Abandon()

	if !t.store.GoalReported() {
		if err := t.send.Send(ctx, apclient.StatusUpdate{Status: apclient.ClientPlaying}); err != nil {
			return t.sendFailed(ctx, "status", err)
		}
	}

	tick := time.NewTicker(t.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case pkt := <-t.outbox:
			if err := t.send.Send(ctx, pkt); err != nil {
				return t.sendFailed(ctx, pkt.Command(), err)
			}
		case <-tick.C:
			if err := t.cycle(ctx); err != nil {
				return t.sendFailed(ctx, "decision", err)
			}
		}
	}
}

// cycle — один шаг решений. После срабатывания сигнала ничего не делает.
func (t *playerTask) cycle(ctx context.Context) error {
	if t.trigger.Fired() {
		return nil
	}
	if t.store.GoalReported() {
		// цель сообщена в прошлом запуске или найдена на сервере
		t.fire(t.store.View())
		return nil
	}

	v := t.store.View()
	if ids := t.policy.Next(v, t.batch); len(ids) > 0 {
		if err := t.send.Send(ctx, apclient.LocationChecks{Locations: ids}); err != nil {
			return err
		}
		t.store.MarkLocationChecked(ids...)
		t.persist()
		log.Printf("[game] checked %s", t.describe(ids))
		v = t.store.View()
	}

	if !t.policy.Goal(v) {
		return nil
	}
	if err := t.send.Send(ctx, apclient.StatusUpdate{Status: apclient.ClientGoal}); err != nil {
		return err
	}
	t.store.SetGoalReported()
	t.persist()
	t.fire(v)
	return nil
}

func (t *playerTask) fire(v progress.View) {
	t.trigger.Fire(goal.Result{Checked: v.CheckedInMap(), Total: v.Total(), At: time.Now()})
	log.Printf("[game] goal: %d/%d", v.CheckedInMap(), v.Total())
}

// sendFailed: отмена ctx и закрытие соединения нами — не ошибка.
func (t *playerTask) sendFailed(ctx context.Context, what string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return nil
	}
	if errors.Is(err, apclient.ErrClosed) {
		log.Printf("[game] connection closed while sending %s", what)
		return nil
	}
	return fmt.Errorf("send %s: %w", what, err)
}

func (t *playerTask) describe(ids []int64) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		if name, ok := t.store.LocationName(id); ok {
			names[i] = name
		} else {
			names[i] = fmt.Sprintf("#%d", id)
		}
	}
	return strings.Join(names, ", ")
}

func (t *playerTask) persist() {
	if err := t.saver.Persist(t.store); err != nil {
		log.Printf("[persist] %v", err)
	}
}
