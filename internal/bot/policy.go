package bot

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/EgorLis/apbot/internal/config"
	"github.com/EgorLis/apbot/internal/progress"
)

// Policy решает, какие локации отмечать дальше и достигнута ли цель.
// Вызывается только из задачи решений, поэтому может хранить своё состояние.
type Policy interface {
	// Next возвращает не больше n ещё не отмеченных локаций.
	Next(v progress.View, n int) []int64
	// Goal — предикат завершения.
	Goal(v progress.View) bool
}

func NewPolicy(p config.Policy) (Policy, error) {
	percent := p.GoalPercent
	if percent <= 0 {
		percent = 100
	}
	switch p.Name {
	case "", "sequential":
		return sequential{percent: percent}, nil
	case "random":
		seed := p.Seed
		if seed == 0 {
			seed = rand.Uint64()
		}
		return &random{percent: percent, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}, nil
	default:
		return nil, fmt.Errorf("unknown policy %q", p.Name)
	}
}

// sequential — сначала меньшие id.
type sequential struct {
	percent int
}

func (s sequential) Next(v progress.View, n int) []int64 {
	if n > len(v.Missing) {
		n = len(v.Missing)
	}
	return slices.Clone(v.Missing[:n])
}

func (s sequential) Goal(v progress.View) bool { return goalReached(v, s.percent) }

// random — случайные локации, воспроизводимо при заданном seed.
type random struct {
	percent int
	rng     *rand.Rand
}

func (r *random) Next(v progress.View, n int) []int64 {
	pool := slices.Clone(v.Missing)
	r.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n > len(pool) {
		n = len(pool)
	}
	return pool[:n]
}

func (r *random) Goal(v progress.View) bool { return goalReached(v, r.percent) }

// пустая карта локаций — цель достигнута сразу
func goalReached(v progress.View, percent int) bool {
	return v.CheckedInMap()*100 >= v.Total()*percent
}
