package bot

import (
	"slices"
	"strings"
	"testing"

	"github.com/EgorLis/apbot/internal/progress"
)

func TestSplitArgs(t *testing.T) {
	got := splitArgs(`!bot missing "3"  extra`)
	if want := []string{"!bot", "missing", "3", "extra"}; !slices.Equal(got, want) {
		t.Fatalf("splitArgs = %q, want %q", got, want)
	}
}

func TestCommands(t *testing.T) {
	st := newStore(t, map[string]int64{"L1": 1, "L2": 2, "L3": 3})
	st.MarkLocationChecked(1)
	st.ReceiveItems(0, []progress.Item{{Item: 77}, {Item: 5}})
	c := &commander{store: st, id: Identity{SlotName: "Bot1"}, itemNames: map[int64]string{77: "Sword"}}

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"!bot", "!bot status | !bot missing [n] | !bot items [n]", false},
		{"!BOT help", "!bot status | !bot missing [n] | !bot items [n]", false},
		{"!bot status", "Bot1: 1/3 locations checked, 2 items received, goal in progress", false},
		{"!bot missing", "missing 2: L2, L3", false},
		{"!bot missing 1", "missing 2: L2 (+1 more)", false},
		{"!bot missing zero", "", true},
		{"!bot items", "items 2: Sword, #5", false},
		{"!bot items 1", "items 2: #5", false},
		{"!bot dance", "", true},
		{"hello", "", false},
	}
	for _, tc := range cases {
		got, err := c.Handle(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("%q: err = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q: got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStatusAfterGoal(t *testing.T) {
	st := newStore(t, map[string]int64{"L1": 1})
	st.MarkLocationChecked(1)
	st.SetGoalReported()
	c := &commander{store: st, id: Identity{SlotName: "Bot1"}}
	got, _ := c.Handle("!bot status")
	if !strings.HasSuffix(got, "goal done") {
		t.Fatalf("status = %q", got)
	}
}
