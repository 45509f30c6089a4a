package bot

import (
	"slices"
	"testing"

	"github.com/EgorLis/apbot/internal/config"
	"github.com/EgorLis/apbot/internal/progress"
)

func view(locations map[string]int64, missing ...int64) progress.View {
	return progress.View{Locations: locations, Missing: missing}
}

func TestSequentialPicksLowestMissing(t *testing.T) {
	p, err := NewPolicy(config.Policy{Name: "sequential"})
	if err != nil {
		t.Fatal(err)
	}
	v := view(map[string]int64{"a": 1, "b": 2, "c": 3, "d": 4}, 2, 3, 4)
	if got := p.Next(v, 2); !slices.Equal(got, []int64{2, 3}) {
		t.Fatalf("Next = %v", got)
	}
	if got := p.Next(v, 10); !slices.Equal(got, []int64{2, 3, 4}) {
		t.Fatalf("Next over limit = %v", got)
	}
	if got := p.Next(view(map[string]int64{"a": 1}), 1); len(got) != 0 {
		t.Fatalf("Next with nothing missing = %v", got)
	}
}

func TestRandomIsSeededAndPicksMissing(t *testing.T) {
	cfg := config.Policy{Name: "random", Seed: 42}
	p1, _ := NewPolicy(cfg)
	p2, _ := NewPolicy(cfg)

	locs := map[string]int64{}
	var missing []int64
	for i := int64(1); i <= 20; i++ {
		locs[string(rune('a'+i))] = i
		missing = append(missing, i)
	}
	v := view(locs, missing...)

	a, b := p1.Next(v, 5), p2.Next(v, 5)
	if !slices.Equal(a, b) {
		t.Fatalf("same seed, different picks: %v vs %v", a, b)
	}
	seen := map[int64]bool{}
	for _, id := range a {
		if id < 1 || id > 20 || seen[id] {
			t.Fatalf("bad pick %d in %v", id, a)
		}
		seen[id] = true
	}
}

func TestGoalPredicate(t *testing.T) {
	locs := map[string]int64{"a": 1, "b": 2, "c": 3, "d": 4}
	cases := []struct {
		name    string
		percent int
		v       progress.View
		want    bool
	}{
		{"all checked", 100, view(locs), true},
		{"one missing", 100, view(locs, 4), false},
		{"half at 50%", 50, view(locs, 3, 4), true},
		{"quarter at 50%", 50, view(locs, 2, 3, 4), false},
		{"empty map", 100, view(map[string]int64{}), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p, err := NewPolicy(config.Policy{Name: "sequential", GoalPercent: c.percent})
			if err != nil {
				t.Fatal(err)
			}
			if got := p.Goal(c.v); got != c.want {
				t.Fatalf("Goal = %v, want %v", got, c.want)
			}
		})
	}
}

func TestUnknownPolicy(t *testing.T) {
	if _, err := NewPolicy(config.Policy{Name: "greedy"}); err == nil {
		t.Fatal("want error for unknown policy")
	}
}
