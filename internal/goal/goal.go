// Package goal реализует одноразовый сигнал «цель достигнута» между задачей
// решений (производитель) и тем, кто ждёт завершения прогона (потребитель).
//
// Сигнал проходит ровно одно из двух состояний: fired (цель достигнута,
// есть значение) или abandoned (производитель завершился без цели, например
// из-за разрыва соединения). Потребитель различает их: Wait вернёт Result
// либо ErrAbandoned. Повторный Fire — ошибка программиста, он паникует.
package goal

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var (
	ErrAbandoned = errors.New("goal: producer finished without reaching the goal")
	ErrConsumed  = errors.New("goal: result already consumed")
)

// Result описывает момент достижения цели.
type Result struct {
	Checked int
	Total   int
	At      time.Time
}

const (
	stateUnfired int32 = iota
	stateFired
	stateAbandoned
)

type Trigger struct {
	ch    chan Result
	state atomic.Int32
}

type Waiter struct {
	ch       <-chan Result
	consumed atomic.Bool
}

func New() (*Trigger, *Waiter) {
	ch := make(chan Result, 1)
	return &Trigger{ch: ch}, &Waiter{ch: ch}
}

// Fire переводит сигнал в fired. Второй вызов (или вызов после Abandon) паникует.
func (t *Trigger) Fire(r Result) {
	if !t.state.CompareAndSwap(stateUnfired, stateFired) {
		panic("goal: Fire on an already settled signal")
	}
	t.ch <- r
	close(t.ch)
}

// Abandon закрывает сигнал без значения. Повторные вызовы и вызов после Fire — no-op,
// поэтому его удобно звать через defer.
func (t *Trigger) Abandon() {
	if t.state.CompareAndSwap(stateUnfired, stateAbandoned) {
		close(t.ch)
	}
}

func (t *Trigger) Fired() bool {
	return t.state.Load() == stateFired
}

// Wait блокируется до Fire, Abandon или отмены ctx. Значение, уже лежащее
// в канале, побеждает одновременную отмену контекста.
func (w *Waiter) Wait(ctx context.Context) (Result, error) {
	if w.consumed.Load() {
		return Result{}, ErrConsumed
	}
	select {
	case r, ok := <-w.ch:
		return w.take(r, ok)
	case <-ctx.Done():
		select {
		case r, ok := <-w.ch:
			return w.take(r, ok)
		default:
			return Result{}, ctx.Err()
		}
	}
}

func (w *Waiter) take(r Result, ok bool) (Result, error) {
	if !ok {
		return Result{}, ErrAbandoned
	}
	w.consumed.Store(true)
	return r, nil
}
