// Package events delivers enforcement events to logging, audit and metrics.
// Emit is fire-and-forget: sinks swallow their own failures and never
// return them to the controller.
package events

import (
	"context"
	"sync"

	"github.com/nudge-project/nudge/internal/audit"
	"github.com/nudge-project/nudge/pkg/logging"
	"github.com/nudge-project/nudge/pkg/metrics"
	"github.com/nudge-project/nudge/pkg/model"
	"github.com/nudge-project/nudge/pkg/webhook"
)

// Sink receives enforcement events.
type Sink interface {
	Emit(ev model.Event)
}

// ContextSink is a Sink whose delivery can be abandoned. AsyncSink passes a
// context that is cancelled when a bounded Close runs out of time.
type ContextSink interface {
	Sink
	EmitContext(ctx context.Context, ev model.Event)
}

func emit(ctx context.Context, s Sink, ev model.Event) {
	if cs, ok := s.(ContextSink); ok {
		cs.EmitContext(ctx, ev)
		return
	}
	s.Emit(ev)
}

// Func adapts a function to a Sink.
type Func func(ev model.Event)

func (f Func) Emit(ev model.Event) { f(ev) }

// Discard drops every event.
var Discard Sink = Func(func(model.Event) {})

type multi []Sink

// Multi fans an event out to each sink in order.
func Multi(sinks ...Sink) Sink {
	var out multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Emit(ev model.Event) { m.EmitContext(context.Background(), ev) }

func (m multi) EmitContext(ctx context.Context, ev model.Event) {
	for _, s := range m {
		emit(ctx, s, ev)
	}
}

// LogSink writes events to a structured logger. Blocked deferrals and
// failed launches log at warn.
type LogSink struct {
	Logger *logging.Logger
}

func (s LogSink) Emit(ev model.Event) {
	msg := string(ev.Type)
	switch ev.Type {
	case model.EventEnforcementBlocked, model.EventUpdateLaunchFailed, model.EventPersistenceRetry:
		s.Logger.Warn(msg, ev.Fields())
	default:
		s.Logger.Info(msg, ev.Fields())
	}
}

// MetricsSink counts events in Prometheus.
type MetricsSink struct {
	Registry *metrics.Registry
}

func (s MetricsSink) Emit(ev model.Event) {
	switch ev.Type {
	case model.EventDeferralRecorded:
		s.Registry.RecordDeferral(string(ev.Kind))
	case model.EventEnforcementBlocked:
		s.Registry.RecordBlocked()
	case model.EventUpdateLaunched:
		s.Registry.RecordUpdateLaunch(true)
	case model.EventUpdateLaunchFailed:
		s.Registry.RecordUpdateLaunch(false)
	case model.EventPersistenceRetry:
		s.Registry.RecordPersistenceRetry()
	}
}

// AuditSink appends events to the hash-chained audit log. Append errors go
// to OnError, if set.
type AuditSink struct {
	Appender *audit.FileAppender
	OnError  func(error)
}

func (s AuditSink) Emit(ev model.Event) {
	if err := s.Appender.Append(ev); err != nil && s.OnError != nil {
		s.OnError(err)
	}
}

// AsyncSink hands events to a background goroutine through a bounded
// buffer. When the buffer is full the event is dropped and OnDrop called,
// so Emit never waits on a slow sink.
type AsyncSink struct {
	next   Sink
	ch     chan model.Event
	done   chan struct{}
	onDrop func(model.Event)
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// Async starts a goroutine feeding next. Call Close to drain and stop it.
func Async(next Sink, buffer int, onDrop func(model.Event)) *AsyncSink {
	if buffer <= 0 {
		buffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &AsyncSink{
		next:   next,
		ch:     make(chan model.Event, buffer),
		done:   make(chan struct{}),
		onDrop: onDrop,
		ctx:    ctx,
		cancel: cancel,
	}
	go a.loop()
	return a
}

func (a *AsyncSink) loop() {
	defer close(a.done)
	for ev := range a.ch {
		emit(a.ctx, a.next, ev)
	}
}

func (a *AsyncSink) Emit(ev model.Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.drop(ev)
		return
	}
	select {
	case a.ch <- ev:
	default:
		a.drop(ev)
	}
}

func (a *AsyncSink) drop(ev model.Event) {
	if a.onDrop != nil {
		a.onDrop(ev)
	}
}

// Close stops accepting events and waits for buffered ones to be delivered.
func (a *AsyncSink) Close() {
	_ = a.CloseContext(context.Background())
}

// CloseContext is Close bounded by ctx. When ctx ends first, in-flight and
// remaining deliveries to context-aware sinks are cancelled and ctx's error
// is returned without waiting for the goroutine to finish.
func (a *AsyncSink) CloseContext(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()
	select {
	case <-a.done:
		a.cancel()
		return nil
	case <-ctx.Done():
		a.cancel()
		return ctx.Err()
	}
}

// WebhookSink posts events to HTTP endpoints. Delivery failures go to
// OnError, if set. Wrap it in Async: delivery retries can take seconds.
type WebhookSink struct {
	Client  *webhook.Client
	OnError func(error)
}

func (s WebhookSink) Emit(ev model.Event) { s.EmitContext(context.Background(), ev) }

func (s WebhookSink) EmitContext(ctx context.Context, ev model.Event) {
	if err := s.Client.Send(ctx, ev); err != nil && s.OnError != nil {
		s.OnError(err)
	}
}
