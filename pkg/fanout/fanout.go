// Package fanout drains the mutation queue and delivers events to the
// broadcast hub. A single worker preserves queue order end to end, which is
// what keeps per-post broadcast order aligned with commit order; the worker
// count is configurable but defaults to one for exactly that reason.
package fanout

import (
	"context"
	"encoding/json"
	"sync"

	"hearthsync/pkg/gateway"
	"hearthsync/pkg/hub"
	"hearthsync/pkg/logger"
	"hearthsync/pkg/models"
	"hearthsync/pkg/queue"
	"hearthsync/pkg/telemetry"
)

// Handler processes one dequeued op.
type Handler func(ctx context.Context, op *queue.Op) error

// Dispatcher routes dequeued ops to their registered handlers.
type Dispatcher struct {
	q        *queue.Queue
	handlers map[queue.HandlerID]Handler
	wg       sync.WaitGroup
}

// NewDispatcher creates a Dispatcher over q with no handlers registered.
func NewDispatcher(q *queue.Queue) *Dispatcher {
	return &Dispatcher{q: q, handlers: map[queue.HandlerID]Handler{}}
}

// RegisterHandler binds a handler to an op kind.
func (d *Dispatcher) RegisterHandler(id queue.HandlerID, h Handler) {
	d.handlers[id] = h
}

// RegisterDefaultHandlers wires the standard pipeline: broadcast and
// celebration ops publish their pre-marshaled event to the hub, recompute
// ops rebuild a post's snapshot.
func RegisterDefaultHandlers(d *Dispatcher, h *hub.Hub, g *gateway.Gateway) {
	publish := func(ctx context.Context, op *queue.Op) error {
		var ev models.Event
		if err := json.Unmarshal(op.Payload, &ev); err != nil {
			logger.Error("fanout_bad_event", "post", op.Post, "version", op.Version, "error", err)
			return err
		}
		h.Publish(&ev)
		return nil
	}
	d.RegisterHandler(queue.HandlerBroadcast, publish)
	d.RegisterHandler(queue.HandlerCelebration, func(ctx context.Context, op *queue.Op) error {
		if err := publish(ctx, op); err != nil {
			return err
		}
		telemetry.CountCelebration()
		logger.Info("celebration_broadcast", "room", op.Room, "post", op.Post)
		return nil
	})
	d.RegisterHandler(queue.HandlerRecompute, func(ctx context.Context, op *queue.Op) error {
		_, err := g.Recompute(ctx, op.Post)
		if err != nil {
			logger.Error("fanout_recompute_failed", "post", op.Post, "error", err)
		}
		return err
	})
}

// Run starts worker goroutines draining the queue until stop closes.
func (d *Dispatcher) Run(stop <-chan struct{}, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.q.RunWorker(stop, func(op *queue.Op) error {
				h, ok := d.handlers[op.Handler]
				if !ok {
					logger.Warn("fanout_unknown_handler", "handler", string(op.Handler), "post", op.Post)
					return nil
				}
				return h(context.Background(), op)
			})
		}()
	}
}

// Wait blocks until all workers exit.
func (d *Dispatcher) Wait() { d.wg.Wait() }
