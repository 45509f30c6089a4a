package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/EgorLis/apbot/internal/apclient"
)

type recvResult struct {
	pkt apclient.ServerPacket
	err error
}

// scriptedReceiver отдаёт заранее заданные пакеты, потом ErrClosed.
type scriptedReceiver struct {
	script []recvResult
}

func (r *scriptedReceiver) Recv(ctx context.Context) (apclient.ServerPacket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(r.script) == 0 {
		return nil, apclient.ErrClosed
	}
	next := r.script[0]
	r.script = r.script[1:]
	return next.pkt, next.err
}

func newServer(t *testing.T, locations map[string]int64) (*serverTask, chan apclient.ClientPacket, *countingSaver) {
	t.Helper()
	st := newStore(t, locations)
	out := make(chan apclient.ClientPacket, 8)
	saver := &countingSaver{}
	id := Identity{SlotName: "Bot1", Slot: 1, Team: 0, Seed: "SEED1", Game: "APBot"}
	return &serverTask{
		recv:   &scriptedReceiver{},
		store:  st,
		saver:  saver,
		outbox: out,
		id:     id,
		cmds:   &commander{store: st, id: id, itemNames: map[int64]string{77: "Sword"}},
	}, out, saver
}

func TestEchoOfOwnCheckIsNoop(t *testing.T) {
	srv, _, saver := newServer(t, map[string]int64{"L1": 1, "L2": 2})
	srv.store.MarkLocationChecked(1)

	srv.handle(&apclient.RoomUpdate{CheckedLocations: []int64{1}})

	if got := srv.store.Checked(); !slices.Equal(got, []int64{1}) {
		t.Fatalf("checked = %v, want [1]", got)
	}
	if saver.n.Load() != 0 {
		t.Fatal("persisted on a no-op echo")
	}

	srv.handle(&apclient.RoomUpdate{CheckedLocations: []int64{1, 2}})
	if got := srv.store.Checked(); !slices.Equal(got, []int64{1, 2}) {
		t.Fatalf("checked = %v, want [1 2]", got)
	}
	if saver.n.Load() != 1 {
		t.Fatalf("persist calls = %d, want 1", saver.n.Load())
	}
}

func TestReceivedItems(t *testing.T) {
	srv, out, _ := newServer(t, nil)

	srv.handle(&apclient.ReceivedItems{Index: 0, Items: []apclient.NetworkItem{{Item: 77}, {Item: 78}}})
	if n := srv.store.ItemCount(); n != 2 {
		t.Fatalf("items = %d", n)
	}
	srv.handle(&apclient.ReceivedItems{Index: 2, Items: []apclient.NetworkItem{{Item: 79}}})
	if n := srv.store.ItemCount(); n != 3 {
		t.Fatalf("items = %d", n)
	}
	if len(out) != 0 {
		t.Fatalf("unexpected outbox packets: %d", len(out))
	}

	// дыра в индексах — запросить Sync, ничего не менять
	srv.handle(&apclient.ReceivedItems{Index: 9, Items: []apclient.NetworkItem{{Item: 80}}})
	if n := srv.store.ItemCount(); n != 3 {
		t.Fatalf("items after gap = %d", n)
	}
	select {
	case pkt := <-out:
		if pkt.Command() != "Sync" {
			t.Fatalf("outbox got %s, want Sync", pkt.Command())
		}
	default:
		t.Fatal("no Sync requested on gap")
	}
}

func TestRetrievedGoalStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{"null", false},
		{"20", false},
		{"30", true},
	}
	for _, c := range cases {
		srv, _, _ := newServer(t, nil)
		srv.handle(&apclient.Retrieved{Keys: map[string]json.RawMessage{
			apclient.StatusKey(0, 1): json.RawMessage(c.raw),
		}})
		if got := srv.store.GoalReported(); got != c.want {
			t.Errorf("status %s: goal = %v, want %v", c.raw, got, c.want)
		}
	}
}

func TestChatCommandReply(t *testing.T) {
	srv, out, _ := newServer(t, map[string]int64{"L1": 1, "L2": 2})

	srv.handle(&apclient.PrintJSON{Type: "Chat", Slot: 2, Message: "!bot status"})
	select {
	case pkt := <-out:
		say, ok := pkt.(apclient.Say)
		if !ok || !strings.HasPrefix(say.Text, "[bot] Bot1: 0/2") {
			t.Fatalf("reply = %#v", pkt)
		}
	default:
		t.Fatal("no reply")
	}

	// своё сообщение и обычный чат игнорируются
	srv.handle(&apclient.PrintJSON{Type: "Chat", Slot: 1, Message: "!bot status"})
	srv.handle(&apclient.PrintJSON{Type: "Chat", Slot: 2, Message: "hello"})
	srv.handle(&apclient.PrintJSON{Type: "ItemSend", Slot: 2, Message: "!bot status"})
	if len(out) != 0 {
		t.Fatalf("unexpected replies: %d", len(out))
	}
}

func TestRunSkipsMalformedAndEndsOnClose(t *testing.T) {
	srv, _, _ := newServer(t, map[string]int64{"L1": 1, "L2": 2})
	srv.recv = &scriptedReceiver{script: []recvResult{
		{err: fmt.Errorf("%w: frame", apclient.ErrMalformed)},
		{pkt: &apclient.Unknown{Cmd: "Wat"}},
		{pkt: &apclient.InvalidPacket{OriginalCmd: "LocationChecks", Text: "nope"}},
		{pkt: &apclient.RoomUpdate{CheckedLocations: []int64{2}}},
	}}

	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !srv.store.IsChecked(2) {
		t.Fatal("RoomUpdate after malformed packet was not applied")
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	srv, _, _ := newServer(t, nil)
	out := make(chan apclient.ClientPacket, 1)
	srv.outbox = out
	srv.enqueue(apclient.Sync{})
	srv.enqueue(apclient.Sync{}) // не должен блокировать
	if len(out) != 1 {
		t.Fatalf("outbox len = %d", len(out))
	}
}
