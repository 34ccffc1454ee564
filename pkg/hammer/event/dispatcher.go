package event

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/argus-labs/sledgehammer/pkg/hammer/internal/guard"
	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ErrInvalidRegistration is returned for registrations that can never be dispatched to.
var ErrInvalidRegistration = eris.New("invalid event handler registration")

// Dispatcher delivers events to handlers registered per event type.
//
// Delivery order for one event:
//  1. A Router registered for the type takes over delivery entirely.
//  2. Each priority tier in turn: type handlers, then TypeAll handlers, in registration order.
//     A handler registered for both is called once.
//     Cancelling returns immediately. Setting handled skips the rest of the current tier.
//  3. The core handler, unless the event was cancelled or asks to ignore core.
//  4. One log record to the sinks, if logging is enabled and the event was not cancelled.
//
// Handler lists are snapshotted per dispatch, so handlers may register, unregister or
// dispatch further events while being called.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	core     Handler
	routes   map[string]Router

	sinks      logsink.Sink
	exceptions logsink.ExceptionSink
	tracer     trace.Tracer
	log        zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(log zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = tracer }
}

// WithSink sets where log records go. Pass a *logsink.Fanout to reach several sinks.
func WithSink(sink logsink.Sink) Option {
	return func(d *Dispatcher) { d.sinks = sink }
}

func WithExceptionSink(sink logsink.ExceptionSink) Option {
	return func(d *Dispatcher) { d.exceptions = sink }
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string][]Handler),
		routes:   make(map[string]Router),
		tracer:   noop.NewTracerProvider().Tracer("event"),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds h to the handlers of one event type.
func (d *Dispatcher) Register(typ string, h Handler) error {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return eris.Wrap(ErrInvalidRegistration, "event type is empty")
	}
	if h == nil {
		return eris.Wrapf(ErrInvalidRegistration, "nil handler for event type %q", typ)
	}
	if !guard.Comparable(h) {
		return eris.Wrapf(ErrInvalidRegistration, "handler %T for event type %q is not comparable", h, typ)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if slices.Contains(d.handlers[typ], h) {
		return eris.Wrapf(ErrInvalidRegistration, "handler already registered for event type %q", typ)
	}
	d.handlers[typ] = append(d.handlers[typ], h)
	return nil
}

// RegisterHandler registers h for every type it lists. Nothing is registered if the list is
// empty or any entry is invalid.
func (d *Dispatcher) RegisterHandler(h Handler) error {
	if h == nil {
		return eris.Wrap(ErrInvalidRegistration, "nil handler")
	}
	if !guard.Comparable(h) {
		return eris.Wrapf(ErrInvalidRegistration, "handler %T is not comparable", h)
	}
	types := h.Types()
	if len(types) == 0 {
		return eris.Wrap(ErrInvalidRegistration, "handler lists no event types")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	normalized := make([]string, 0, len(types))
	for _, typ := range types {
		typ = strings.TrimSpace(typ)
		if typ == "" {
			return eris.Wrap(ErrInvalidRegistration, "handler lists an empty event type")
		}
		if slices.Contains(d.handlers[typ], h) || slices.Contains(normalized, typ) {
			return eris.Wrapf(ErrInvalidRegistration, "handler already registered for event type %q", typ)
		}
		normalized = append(normalized, typ)
	}
	for _, typ := range normalized {
		d.handlers[typ] = append(d.handlers[typ], h)
	}
	return nil
}

// Unregister removes h from one event type. It reports whether h was registered.
func (d *Dispatcher) Unregister(typ string, h Handler) bool {
	typ = strings.TrimSpace(typ)
	if !guard.Comparable(h) {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.handlers[typ]
	idx := slices.Index(list, h)
	if idx < 0 {
		return false
	}
	list = slices.Delete(list, idx, idx+1)
	if len(list) == 0 {
		delete(d.handlers, typ)
	} else {
		d.handlers[typ] = list
	}
	return true
}

// UnregisterHandler removes h from every type and returns how many registrations it removed.
func (d *Dispatcher) UnregisterHandler(h Handler) int {
	if !guard.Comparable(h) {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for typ, list := range d.handlers {
		idx := slices.Index(list, h)
		if idx < 0 {
			continue
		}
		removed++
		list = slices.Delete(list, idx, idx+1)
		if len(list) == 0 {
			delete(d.handlers, typ)
		} else {
			d.handlers[typ] = list
		}
	}
	if d.core == h {
		d.core = nil
		removed++
	}
	return removed
}

// SetCore sets the handler that runs after all registered handlers. nil clears it.
func (d *Dispatcher) SetCore(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.core = h
}

// Route hands every event of typ to r instead of the handler lists. nil removes the route.
func (d *Dispatcher) Route(typ string, r Router) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r == nil {
		delete(d.routes, typ)
		return
	}
	d.routes[typ] = r
}

// Types returns every event type with at least one handler, sorted.
func (d *Dispatcher) Types() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	types := make([]string, 0, len(d.handlers))
	for typ := range d.handlers {
		types = append(types, typ)
	}
	slices.Sort(types)
	return types
}

// Dispatch delivers ev and returns it. Handler failures are reported to the exception sink
// and never reach the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event, logEnabled bool) (result Event) {
	if ev == nil {
		d.report("event dispatch failed", eris.New("cannot dispatch a nil event"))
		return nil
	}
	result = ev
	if b := ev.base(); b.time.IsZero() {
		b.time = time.Now()
	}
	typ := ev.Type()

	d.mu.RLock()
	router := d.routes[typ]
	typed := slices.Clone(d.handlers[typ])
	var wildcard []Handler
	if typ != TypeAll {
		wildcard = slices.Clone(d.handlers[TypeAll])
	}
	core := d.core
	d.mu.RUnlock()

	if router != nil {
		if err := guard.Run(func() { router.Route(ctx, ev, logEnabled) }); err != nil {
			d.report("event router failed", logsink.WithTag(eris.Wrapf(err, "route for %q", typ), logsink.TagEvent, typ))
		}
		return ev
	}

	ctx, span := d.tracer.Start(ctx, "event.dispatch", trace.WithAttributes(attribute.String("event.type", typ)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := eris.Errorf("event dispatch loop panicked: %v", r)
			span.SetStatus(codes.Error, "dispatch panicked")
			d.report("event dispatch failed", err)
		}
	}()

	// A handler registered for its type and for TypeAll runs once, in its typed position.
	handlers := typed
	for _, h := range wildcard {
		if !slices.Contains(typed, h) {
			handlers = append(handlers, h)
		}
	}
	for _, tier := range tiers {
		wasHandled := ev.Handled()
		for _, h := range handlers {
			if h == core || priorityOf(h) != tier {
				continue
			}
			d.invoke(ctx, span, h, ev)
			if ev.Cancelled() {
				span.SetAttributes(attribute.Bool("event.cancelled", true))
				return ev
			}
			if !wasHandled && ev.Handled() {
				break
			}
		}
	}

	if core != nil && !ev.IgnoreCore() {
		d.invoke(ctx, span, core, ev)
		if ev.Cancelled() {
			span.SetAttributes(attribute.Bool("event.cancelled", true))
			return ev
		}
	}

	span.SetAttributes(attribute.Bool("event.handled", ev.Handled()))
	if logEnabled {
		d.emit(ev)
	}
	return ev
}

func (d *Dispatcher) invoke(ctx context.Context, span trace.Span, h Handler, ev Event) {
	err := guard.Call(func() error { return h.OnEvent(ctx, ev) })
	if err == nil {
		return
	}
	span.RecordError(err)
	err = eris.Wrapf(err, "handler for %q", ev.Type())
	d.report("event handler failed", logsink.WithTag(err, logsink.TagEvent, ev.Type()))
}

func (d *Dispatcher) emit(ev Event) {
	if d.sinks == nil {
		return
	}
	msg := ev.LogMessage()
	if msg == "" {
		return
	}
	rec := logsink.NewRecord(logsink.KindEvent, ev.Type(), msg)
	rec.Time = ev.Time()
	rec.Actor = ev.Actor()
	rec.Category = ev.Category()
	rec.Important = ev.Important()
	rec.Announce = ev.Announce()
	d.sinks.OnLogEntry(rec)
}

func (d *Dispatcher) report(reason string, err error) {
	d.log.Error().Str("stack", eris.ToString(err, true)).Msg(reason)
	if d.exceptions != nil {
		d.exceptions.OnException(reason, err)
	}
}
