// Package analytics delivers wizard step events to an external sink. It is a
// side channel: delivery never blocks navigation and failures are only
// logged and counted.
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/contractor-booking/internal/observability/metrics"
	"github.com/wolfman30/contractor-booking/internal/wizard"
	"github.com/wolfman30/contractor-booking/pkg/logging"
)

// Event is one step view or navigation.
type Event struct {
	Step       string    `json:"step"`
	Action     string    `json:"action"`
	BusinessID string    `json:"businessId"`
	SessionID  string    `json:"sessionId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sink receives analytics events.
type Sink interface {
	Track(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Track(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Config tunes the emitter's queue.
type Config struct {
	Buffer      int
	SendTimeout time.Duration
	Logger      *logging.Logger
	Metrics     *metrics.WizardMetrics
	Now         func() time.Time
}

// Emitter queues events and delivers them from a single worker so that
// events keep their emission order.
type Emitter struct {
	sink    Sink
	queue   chan Event
	timeout time.Duration
	logger  *logging.Logger
	metrics *metrics.WizardMetrics
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewEmitter starts the delivery worker. A nil sink discards events.
func NewEmitter(sink Sink, cfg Config) *Emitter {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	e := &Emitter{
		sink:    sink,
		queue:   make(chan Event, cfg.Buffer),
		timeout: cfg.SendTimeout,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

// Emit enqueues ev without blocking. Events are dropped when the queue is
// full or the emitter is closed.
func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now().UTC()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.metrics.ObserveAnalyticsDropped("closed")
		return
	}
	select {
	case e.queue <- ev:
	default:
		e.metrics.ObserveAnalyticsDropped("buffer_full")
		e.logger.Debug("analytics event dropped", "step", ev.Step, "action", ev.Action)
	}
}

// Hook returns a wizard navigation listener tagged with the business and
// session identifiers.
func (e *Emitter) Hook(businessID, sessionID string) func(wizard.NavEvent) {
	return func(nav wizard.NavEvent) {
		e.Emit(Event{
			Step:       nav.Step.String(),
			Action:     string(nav.Action),
			BusinessID: businessID,
			SessionID:  sessionID,
		})
	}
}

// Close stops accepting events and waits for queued ones to drain or ctx
// to expire.
func (e *Emitter) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Emitter) run() {
	defer close(e.done)
	for ev := range e.queue {
		e.deliver(ev)
	}
}

func (e *Emitter) deliver(ev Event) {
	if e.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			e.metrics.ObserveAnalyticsDropped("sink_panic")
			e.logger.Error("analytics sink panicked", "panic", r)
		}
	}()
	if err := e.sink.Track(ctx, ev); err != nil {
		e.metrics.ObserveAnalyticsDropped("sink_error")
		e.logger.Warn("analytics delivery failed", "error", err, "step", ev.Step, "action", ev.Action)
	}
}
