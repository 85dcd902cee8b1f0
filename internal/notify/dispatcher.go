package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"freight-resale-api-server/internal/events"
	"freight-resale-api-server/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type Handler interface {
	Handle(ctx context.Context, ev events.Event) error
}

// Dispatcher is the events.Sink behind the market services. Publish never
// blocks: events go to a bounded queue, and once the queue is full they wait
// in an ordered backlog that a pump goroutine feeds back in. A single worker
// handles events one at a time in publish order.
type Dispatcher struct {
	handler Handler
	queue   chan events.Event
	timeout time.Duration
	logger  zerolog.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	backlog []events.Event
	wake    chan struct{}
}

func NewDispatcher(h Handler, queueSize int, handlerTimeout time.Duration, logger zerolog.Logger, metrics *observability.Metrics) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	if metrics == nil {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	return &Dispatcher{
		handler: h,
		queue:   make(chan events.Event, queueSize),
		timeout: handlerTimeout,
		logger:  logger,
		metrics: metrics,
		wake:    make(chan struct{}, 1),
	}
}

func (d *Dispatcher) Publish(evs ...events.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ev := range evs {
		if len(d.backlog) == 0 {
			select {
			case d.queue <- ev:
				continue
			default:
				d.metrics.QueueOverflow.Inc()
			}
		}
		d.backlog = append(d.backlog, ev)
	}
	if len(d.backlog) > 0 {
		select {
		case d.wake <- struct{}{}:
		default:
		}
	}
}

// Run handles events until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	go d.pump(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			d.handle(ctx, ev)
		}
	}
}

// Drain handles whatever is still queued or backlogged, stopping early when
// ctx is done. Call it after Run returns.
func (d *Dispatcher) Drain(ctx context.Context) int {
	n := 0
	for ctx.Err() == nil {
		select {
		case ev := <-d.queue:
			d.handle(ctx, ev)
			n++
			continue
		default:
		}
		d.mu.Lock()
		if len(d.backlog) == 0 {
			d.mu.Unlock()
			return n
		}
		ev := d.backlog[0]
		d.backlog = d.backlog[1:]
		d.mu.Unlock()
		d.handle(ctx, ev)
		n++
	}
	return n
}

func (d *Dispatcher) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		}
		for {
			d.mu.Lock()
			if len(d.backlog) == 0 {
				d.mu.Unlock()
				break
			}
			ev := d.backlog[0]
			d.mu.Unlock()

			select {
			case d.queue <- ev:
			case <-ctx.Done():
				return
			}

			d.mu.Lock()
			d.backlog = d.backlog[1:]
			d.mu.Unlock()
		}
	}
}

// handle runs one event through the handler. Errors and panics stop here.
func (d *Dispatcher) handle(ctx context.Context, ev events.Event) {
	kind := string(ev.Kind())
	defer func() {
		if r := recover(); r != nil {
			d.metrics.FanoutFailures.WithLabelValues(kind, "panic").Inc()
			d.logger.Error().Str("kind", kind).Str("panic", fmt.Sprint(r)).Msg("fan-out handler panicked")
		}
	}()

	hctx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	d.metrics.EventsHandled.WithLabelValues(kind).Inc()
	if err := d.handler.Handle(hctx, ev); err != nil {
		d.metrics.FanoutFailures.WithLabelValues(kind, "error").Inc()
		d.logger.Error().Err(err).Str("kind", kind).Msg("fan-out failed")
	}
}
