package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/provio-systems/provio/internal/models"
	"github.com/provio-systems/provio/pkg/logging"
)

// ErrQueueFull reports that an event could not be enqueued.
var ErrQueueFull = errors.New("audit: emitter queue full")

const (
	defaultQueueSize = 256
	// recordTimeout bounds each persistence attempt so a stuck store
	// cannot wedge the writer goroutine forever.
	recordTimeout = 10 * time.Second
)

// Forwarder ships recorded events to an external sink (e.g. a SIEM via
// NATS). Forwarding failures are logged, never propagated.
type Forwarder interface {
	Forward(ctx context.Context, event *models.AuditEvent) error
}

// Emitter decouples audit recording from the request path. Callers
// enqueue events without blocking; a dedicated writer goroutine
// persists them. Delivery is at-least-once attempted: a failed write is
// retried once, and any terminal failure is surfaced through the error
// hook and the process log, never dropped silently.
type Emitter struct {
	trail     *Trail
	forwarder Forwarder
	logger    *logging.Logger

	queue chan *models.AuditEvent
	wg    sync.WaitGroup

	// onError observes terminal emission failures, for tests and
	// operational alerting.
	onError func(event *models.AuditEvent, err error)

	closeOnce sync.Once
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithQueueSize sets the bounded queue capacity.
func WithQueueSize(n int) EmitterOption {
	return func(e *Emitter) {
		if n > 0 {
			e.queue = make(chan *models.AuditEvent, n)
		}
	}
}

// WithErrorHook registers an observer for terminal emission failures.
func WithErrorHook(hook func(event *models.AuditEvent, err error)) EmitterOption {
	return func(e *Emitter) { e.onError = hook }
}

// WithForwarder attaches an external event sink.
func WithForwarder(f Forwarder) EmitterOption {
	return func(e *Emitter) { e.forwarder = f }
}

func NewEmitter(trail *Trail, logger *logging.Logger, opts ...EmitterOption) *Emitter {
	if logger == nil {
		logger = logging.Default()
	}
	e := &Emitter{
		trail:  trail,
		logger: logger,
		queue:  make(chan *models.AuditEvent, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.wg.Add(1)
	go e.run()
	return e
}

// Emit enqueues an event for asynchronous recording. It never blocks:
// when the queue is full the event is counted as a failed emission,
// logged, and passed to the error hook.
func (e *Emitter) Emit(event *models.AuditEvent) {
	select {
	case e.queue <- event:
	default:
		e.logger.Error("audit queue full, event not enqueued",
			"event_type", event.EventType, "actor_id", event.ActorID)
		if e.onError != nil {
			e.onError(event, ErrQueueFull)
		}
	}
}

// Close drains the queue and stops the writer. Pending events are
// still written before Close returns.
func (e *Emitter) Close() {
	e.closeOnce.Do(func() {
		close(e.queue)
	})
	e.wg.Wait()
}

// QueueDepth reports the number of events waiting to be written.
func (e *Emitter) QueueDepth() int {
	return len(e.queue)
}

func (e *Emitter) run() {
	defer e.wg.Done()

	for event := range e.queue {
		e.write(event)
	}
}

func (e *Emitter) write(event *models.AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	err := e.trail.Record(ctx, event)
	if err != nil {
		// One retry before declaring the emission failed.
		err = e.trail.Record(ctx, event)
	}
	if err != nil {
		e.logger.Error("audit emission failed",
			"event_type", event.EventType,
			"actor_id", event.ActorID,
			"error", err)
		if e.onError != nil {
			e.onError(event, err)
		}
		return
	}

	if e.forwarder != nil {
		if err := e.forwarder.Forward(ctx, event); err != nil {
			e.logger.Warn("audit event forwarding failed",
				"event_id", event.EventID, "error", err)
		}
	}
}
