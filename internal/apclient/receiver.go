package apclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Receiver — читающая половина соединения.
type Receiver struct {
	c *Client
}

// Recv блокируется до следующего пакета. Пакеты из одного кадра и пакеты,
// пришедшие во время рукопожатия, отдаются по порядку.
//
// Ошибки:
//   - ErrMalformed (через errors.Is) — битый пакет, можно читать дальше;
//   - ErrClosed — соединение закрыто нами или сервером штатно;
//   - ctx.Err() — контекст отменён; чтение прерывается через read-deadline,
//     после этого соединение для чтения непригодно, его остаётся закрыть;
//   - прочие — обрыв транспорта.
func (r *Receiver) Recv(ctx context.Context) (ServerPacket, error) {
	return r.c.next(ctx)
}

func (c *Client) next(ctx context.Context) (ServerPacket, error) {
	for len(c.queue) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, err := c.readFrame(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		c.queue = append(c.queue, items...)
	}
	q := c.queue[0]
	c.queue[0] = queued{}
	c.queue = c.queue[1:]
	return q.pkt, q.err
}

func (c *Client) readFrame(ctx context.Context) ([]queued, error) {
	// дедлайн ставим до регистрации AfterFunc, чтобы отмена его не перетёрла
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	_, data, err := c.conn.ReadMessage()
	stop()
	if err != nil {
		if c.closed.Load() || websocket.IsCloseError(err,
			websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return nil, err
	}
	c.touchActivity()
	return decodeFrame(data), nil
}

// await читает до первого пакета, подходящего под match. Остальные пакеты
// (в том числе битые) возвращаются в начало очереди в исходном порядке.
func (c *Client) await(ctx context.Context, match func(ServerPacket) bool) (ServerPacket, error) {
	var skipped []queued
	defer func() {
		if len(skipped) > 0 {
			c.queue = append(skipped, c.queue...)
		}
	}()
	for {
		pkt, err := c.next(ctx)
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				skipped = append(skipped, queued{err: err})
				continue
			}
			return nil, err
		}
		if match(pkt) {
			return pkt, nil
		}
		skipped = append(skipped, queued{pkt: pkt})
	}
}
