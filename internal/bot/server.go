package bot

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/EgorLis/apbot/internal/apclient"
	"github.com/EgorLis/apbot/internal/logger"
	"github.com/EgorLis/apbot/internal/progress"
)

type packetReceiver interface {
	Recv(ctx context.Context) (apclient.ServerPacket, error)
}

type packetSender interface {
	Send(ctx context.Context, pkts ...apclient.ClientPacket) error
}

type persister interface {
	Persist(st *progress.Store) error
}

// serverTask владеет читающей половиной соединения и переносит события
// сервера в Store. Сам ничего не отправляет: Sync и ответы в чат уходят
// через outbox задаче решений.
type serverTask struct {
	recv   packetReceiver
	store  *progress.Store
	saver  persister
	outbox chan<- apclient.ClientPacket
	id     Identity
	cmds   *commander
}

// Run читает до разрыва соединения или отмены ctx. Разрыв — нормальное
// завершение (nil), битые пакеты пропускаются.
func (t *serverTask) Run(ctx context.Context) error {
	for {
		pkt, err := t.recv.Recv(ctx)
		if err != nil {
			switch {
			case errors.Is(err, apclient.ErrMalformed):
				log.Printf("[server] skipping packet: %v", err)
				continue
			case ctx.Err() != nil:
				log.Println("[server] stopped")
			case errors.Is(err, apclient.ErrClosed):
				log.Println("[server] connection closed")
			default:
				log.Printf("[server] connection lost: %v", err)
			}
			return nil
		}
		t.handle(pkt)
	}
}

func (t *serverTask) handle(pkt apclient.ServerPacket) {
	switch p := pkt.(type) {
	case *apclient.RoomUpdate:
		t.confirm(p.CheckedLocations)

	case *apclient.Connected:
		t.confirm(p.CheckedLocations)

	case *apclient.ReceivedItems:
		items := make([]progress.Item, len(p.Items))
		for i, it := range p.Items {
			items[i] = progress.Item{Item: it.Item, Location: it.Location, Player: it.Player, Flags: it.Flags}
		}
		added, gap := t.store.ReceiveItems(p.Index, items)
		if gap {
			log.Printf("[server] items index %d is ahead of %d known, requesting sync", p.Index, t.store.ItemCount())
			t.enqueue(apclient.Sync{})
			return
		}
		if added > 0 {
			log.Printf("[server] received %d items (%d total)", added, t.store.ItemCount())
			t.persist()
		}

	case *apclient.Retrieved:
		raw, ok := p.Keys[apclient.StatusKey(t.id.Team, t.id.Slot)]
		if !ok {
			return
		}
		var status int
		if err := json.Unmarshal(raw, &status); err != nil {
			log.Printf("[server] bad client status %s: %v", raw, err)
			return
		}
		logger.Debugf("[server] client status %d", status)
		if status >= apclient.ClientGoal && t.store.SetGoalReported() {
			log.Println("[server] goal already reported on the server")
			t.persist()
		}

	case *apclient.PrintJSON:
		t.chat(p)

	case *apclient.LocationInfo:
		log.Printf("[server] scouted %d locations", len(p.Locations))

	case *apclient.InvalidPacket:
		log.Printf("[server] server rejected %s: %s", p.OriginalCmd, p.Text)

	default:
		logger.Debugf("[server] ignoring %s", pkt.Command())
	}
}

// confirm — эхо сервера на отметки; повторы ничего не меняют.
func (t *serverTask) confirm(ids []int64) {
	if n := t.store.MarkLocationChecked(ids...); n > 0 {
		log.Printf("[server] %d new locations checked", n)
		t.persist()
	}
}

func (t *serverTask) chat(p *apclient.PrintJSON) {
	text := p.Message
	if text == "" {
		text = p.Text()
	}
	if p.Type != "Chat" {
		logger.Debugf("[server] %s", text)
		return
	}
	log.Printf("[chat] %s", text)
	if p.Slot == t.id.Slot && p.Team == t.id.Team {
		return
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "!bot") {
		return
	}
	reply, err := t.cmds.Handle(text)
	if err != nil {
		reply = err.Error()
	}
	if reply != "" {
		t.enqueue(apclient.Say{Text: "[bot] " + reply})
	}
}

func (t *serverTask) enqueue(pkt apclient.ClientPacket) {
	select {
	case t.outbox <- pkt:
	default:
		log.Printf("[server] outbox full, dropping %s", pkt.Command())
	}
}

func (t *serverTask) persist() {
	if err := t.saver.Persist(t.store); err != nil {
		log.Printf("[persist] %v", err)
	}
}
