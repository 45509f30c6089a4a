package apclient

import "context"

// ========================= high-level API =========================

// Sender — пишущая половина соединения.
type Sender struct {
	c *Client
}

// Send отправляет пакеты одним кадром.
func (s *Sender) Send(ctx context.Context, pkts ...ClientPacket) error {
	return s.c.send(ctx, pkts...)
}

func (s *Sender) CheckLocations(ctx context.Context, ids ...int64) error {
	return s.Send(ctx, LocationChecks{Locations: ids})
}

func (s *Sender) ScoutLocations(ctx context.Context, hint bool, ids ...int64) error {
	p := LocationScouts{Locations: ids}
	if hint {
		p.CreateAsHint = 1
	}
	return s.Send(ctx, p)
}

func (s *Sender) UpdateStatus(ctx context.Context, status int) error {
	return s.Send(ctx, StatusUpdate{Status: status})
}

func (s *Sender) Say(ctx context.Context, text string) error {
	return s.Send(ctx, Say{Text: text})
}

func (s *Sender) Sync(ctx context.Context) error {
	return s.Send(ctx, Sync{})
}

func (s *Sender) Get(ctx context.Context, keys ...string) error {
	return s.Send(ctx, Get{Keys: keys})
}
