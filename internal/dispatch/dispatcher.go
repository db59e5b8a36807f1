// Package dispatch implements the Event Dispatcher (C8): a single consumer
// draining a bounded FIFO of (serviceKind, event) pairs and invoking a
// caller-supplied handler synchronously, one event at a time, in the order
// events were enqueued.
//
// Grounded on internal/webhooks/dispatcher.go's queue-plus-worker shape,
// narrowed from a worker *pool* with a drop-on-full queue (that package's
// is-it-okay-to-lose-this-delivery tradeoff) to a single consumer with a
// blocking enqueue, since a fetch worker stalling on a full queue is the
// dispatcher's intended backpressure mechanism, not a bug to work around.
package dispatch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jkfujinami/linepy/internal/metrics"
)

// Event is one delivered (serviceKind, payload) pair. Payload is left as
// any so this package stays independent of facade.Event / push.ServiceKind;
// callers type-assert inside their Handler.
type Event struct {
	ServiceKind int
	ChatMid     string
	Payload     any
}

// Handler processes one dispatched event. A returned error is logged and
// swallowed, never surfaced to Enqueue's caller. A Handler must not call
// back into Dispatcher.Enqueue from the same goroutine that invoked it —
// Dispatcher has exactly one consumer goroutine, so that would deadlock
// once the queue fills.
type Handler func(Event) error

// Dispatcher is the single-consumer FIFO described by C8. The zero value is
// not usable; construct with New.
type Dispatcher struct {
	queue   chan Event
	handler Handler
	logger  *slog.Logger
	metrics *metrics.Metrics

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// New builds a Dispatcher with the given queue capacity and starts its
// consumer goroutine immediately. handler is invoked synchronously from
// that single goroutine; a panic inside handler is recovered and logged,
// never propagated to the caller of Enqueue. m may be nil, in which case
// NewNop's discarding collectors are used.
func New(capacity int, handler Handler, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if capacity <= 0 {
		capacity = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	d := &Dispatcher{
		queue:   make(chan Event, capacity),
		handler: handler,
		logger:  logger,
		metrics: m,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue adds ev to the FIFO, in order relative to every other Enqueue
// call from the same caller. When the queue is full this blocks, which is
// the intended backpressure: a fetch worker calling Enqueue stalls until
// the consumer catches up, rather than the dispatcher silently dropping or
// unboundedly buffering events.
func (d *Dispatcher) Enqueue(ev Event) {
	d.queue <- ev
	d.metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case ev := <-d.queue:
			d.invoke(ev)
		case <-d.stop:
			// Drain whatever was already queued before this dispatcher was
			// asked to stop, so events accepted by Enqueue are never lost
			// on shutdown.
			for {
				select {
				case ev := <-d.queue:
					d.invoke(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) invoke(ev Event) {
	start := time.Now()
	defer func() {
		d.metrics.DispatchHandlerTime.Observe(time.Since(start).Seconds())
		d.metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
		if r := recover(); r != nil {
			d.metrics.DispatchPanics.Inc()
			d.logger.Error("dispatch: handler panicked", "recovered", r, "serviceKind", ev.ServiceKind, "chat", ev.ChatMid)
		}
	}()
	if err := d.handler(ev); err != nil {
		d.logger.Warn("dispatch: handler error", "error", err, "serviceKind", ev.ServiceKind, "chat", ev.ChatMid)
	}
}

// Stop ends the consumer goroutine after draining any events already
// sitting in the queue, and waits for it to exit. Calling Stop more than
// once is safe.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		close(d.stop)
	})
	<-d.done
}
