package command

import (
	"context"
	"slices"
	"sync"

	"github.com/argus-labs/sledgehammer/pkg/hammer/chattag"
	"github.com/argus-labs/sledgehammer/pkg/hammer/event"
	"github.com/argus-labs/sledgehammer/pkg/hammer/internal/guard"
	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// HelpCommand is answered by the dispatcher itself and cannot be taken over by handlers.
const HelpCommand = "help"

// ErrInvalidRegistration is returned for registrations that can never be dispatched to.
var ErrInvalidRegistration = eris.New("invalid command handler registration")

type dispatchKey struct{}

// Dispatcher resolves each command to one outcome.
//
// For a command named N:
//  0. An empty command name fails without reaching any handler.
//  1. "help" lists the commands visible to the actor.
//  2. Handlers registered for N run in registration order until one marks it handled.
//  3. If still unhandled, the vanilla handler runs, then the core handler.
//  4. A non-empty log message is recorded to the sinks when logging is enabled.
//  5. Responses to disconnected actors have chat tags stripped.
//
// Dispatches are serialized. A handler may dispatch a nested command with the context it was
// given without deadlocking.
type Dispatcher struct {
	dispatchMu sync.Mutex

	mu       sync.RWMutex
	handlers map[string][]Handler
	vanilla  Handler
	core     Handler

	permissions PermissionChecker
	sinks       logsink.Sink
	exceptions  logsink.ExceptionSink
	tracer      trace.Tracer
	log         zerolog.Logger
}

var _ event.Router = (*Dispatcher)(nil)

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

// WithPermissions enables permission checks for PermissionedHandler commands. Without a
// checker every actor is allowed.
func WithPermissions(p PermissionChecker) Option {
	return func(d *Dispatcher) { d.permissions = p }
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string][]Handler),
		tracer:   noop.NewTracerProvider().Tracer("command"),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds h to the handlers of one command name.
func (d *Dispatcher) Register(name string, h Handler) error {
	name = NormalizeName(name)
	if name == "" {
		return eris.Wrap(ErrInvalidRegistration, "command name is empty")
	}
	if h == nil {
		return eris.Wrapf(ErrInvalidRegistration, "nil handler for /%s", name)
	}
	if !guard.Comparable(h) {
		return eris.Wrapf(ErrInvalidRegistration, "handler %T for /%s is not comparable", h, name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if slices.Contains(d.handlers[name], h) {
		return eris.Wrapf(ErrInvalidRegistration, "handler already registered for /%s", name)
	}
	d.handlers[name] = append(d.handlers[name], h)
	return nil
}

// RegisterHandler registers h under every name it lists. Nothing is registered if the list is
// empty or any entry is invalid.
func (d *Dispatcher) RegisterHandler(h Handler) error {
	if h == nil {
		return eris.Wrap(ErrInvalidRegistration, "nil handler")
	}
	if !guard.Comparable(h) {
		return eris.Wrapf(ErrInvalidRegistration, "handler %T is not comparable", h)
	}
	names := h.Commands()
	if len(names) == 0 {
		return eris.Wrap(ErrInvalidRegistration, "handler lists no commands")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	normalized := make([]string, 0, len(names))
	for _, name := range names {
		name = NormalizeName(name)
		if name == "" {
			return eris.Wrap(ErrInvalidRegistration, "handler lists an empty command name")
		}
		if slices.Contains(d.handlers[name], h) || slices.Contains(normalized, name) {
			return eris.Wrapf(ErrInvalidRegistration, "handler already registered for /%s", name)
		}
		normalized = append(normalized, name)
	}
	for _, name := range normalized {
		d.handlers[name] = append(d.handlers[name], h)
	}
	return nil
}

// Unregister removes h from one command name. It reports whether h was registered.
func (d *Dispatcher) Unregister(name string, h Handler) bool {
	name = NormalizeName(name)
	if !guard.Comparable(h) {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.remove(name, h)
}

// UnregisterHandler removes h from every command name, and from the vanilla and core slots,
// returning how many registrations it removed.
func (d *Dispatcher) UnregisterHandler(h Handler) int {
	if !guard.Comparable(h) {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for name := range d.handlers {
		if d.remove(name, h) {
			removed++
		}
	}
	if d.vanilla == h {
		d.vanilla = nil
		removed++
	}
	if d.core == h {
		d.core = nil
		removed++
	}
	return removed
}

func (d *Dispatcher) remove(name string, h Handler) bool {
	list := d.handlers[name]
	idx := slices.Index(list, h)
	if idx < 0 {
		return false
	}
	list = slices.Delete(list, idx, idx+1)
	if len(list) == 0 {
		delete(d.handlers, name)
	} else {
		d.handlers[name] = list
	}
	return true
}

// SetVanilla sets the handler for the game's own commands. It runs after every registered
// handler has declined. nil clears it.
func (d *Dispatcher) SetVanilla(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vanilla = h
}

// SetCore sets the handler for the framework's own commands. It runs last. nil clears it.
func (d *Dispatcher) SetCore(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.core = h
}

// Commands returns every command name that has a handler, sorted, help included.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := []string{HelpCommand}
	for name := range d.handlers {
		names = append(names, name)
	}
	for _, h := range []Handler{d.vanilla, d.core} {
		if h == nil {
			continue
		}
		for _, name := range h.Commands() {
			names = append(names, NormalizeName(name))
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Dispatch parses input and dispatches it on behalf of actor.
func (d *Dispatcher) Dispatch(ctx context.Context, actor Actor, input string, logEnabled bool) *Response {
	cmd := Parse(input)
	cmd.Actor = actor
	return d.DispatchCommand(ctx, cmd, logEnabled)
}

// DispatchCommand dispatches an already parsed command.
func (d *Dispatcher) DispatchCommand(ctx context.Context, cmd *Command, logEnabled bool) *Response {
	resp := &Response{}
	d.dispatch(ctx, cmd, resp, logEnabled)
	return resp
}

// Route delivers a command event arriving through the event dispatcher. The event is marked
// handled when the command was.
func (d *Dispatcher) Route(ctx context.Context, ev event.Event, logEnabled bool) {
	cev, ok := ev.(*Event)
	if !ok {
		d.report("command dispatch failed", eris.Errorf("event of type %T routed as a command", ev))
		return
	}
	if cev.Response == nil {
		cev.Response = &Response{}
	}
	d.dispatch(ctx, cev.Command, cev.Response, logEnabled)
	if cev.Response.Handled() {
		cev.SetHandled(true)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd *Command, resp *Response, logEnabled bool) {
	if cmd == nil {
		d.report("command dispatch failed", eris.New("cannot dispatch a nil command"))
		resp.Fail("Invalid command.")
		return
	}
	if cmd.Name() == "" {
		resp.Fail("Invalid command.")
		return
	}
	if cmd.Actor == nil {
		d.log.Warn().Str("command", cmd.Name()).Msg("command has no actor, running as console")
		cmd.Actor = Console
	}

	if ctx.Value(dispatchKey{}) != d {
		d.dispatchMu.Lock()
		defer d.dispatchMu.Unlock()
		ctx = context.WithValue(ctx, dispatchKey{}, d)
	}

	ctx, span := d.tracer.Start(ctx, "command.dispatch", trace.WithAttributes(
		attribute.String("command.name", cmd.Name()),
		attribute.String("command.actor", cmd.Actor.Name()),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			span.SetStatus(codes.Error, "dispatch panicked")
			d.report("command dispatch failed", eris.Errorf("command dispatch loop panicked: %v", r))
			if !resp.Handled() {
				resp.Fail("An internal error occurred while running /" + cmd.Name() + ".")
			}
		}
	}()

	if cmd.Name() == HelpCommand {
		d.help(cmd, resp)
	} else {
		d.run(ctx, span, cmd, resp)
	}
	span.SetAttributes(attribute.String("command.result", resp.Result.String()))

	if logEnabled && resp.LogMessage != "" && d.sinks != nil {
		rec := logsink.NewRecord(logsink.KindCommand, cmd.Name(), resp.LogMessage)
		rec.Actor = cmd.Actor.Name()
		rec.Category = resp.Category
		rec.Important = resp.Important
		d.sinks.OnLogEntry(rec)
	}

	if !cmd.Actor.Connected() {
		resp.Message = chattag.Strip(resp.Message, true)
	}
}

func (d *Dispatcher) run(ctx context.Context, span trace.Span, cmd *Command, resp *Response) {
	d.mu.RLock()
	handlers := slices.Clone(d.handlers[cmd.Name()])
	vanilla, core := d.vanilla, d.core
	d.mu.RUnlock()

	failed := false
	for _, h := range handlers {
		if !d.invoke(ctx, span, h, cmd, resp) {
			failed = true
		}
		if resp.Handled() {
			return
		}
	}
	for _, h := range []Handler{vanilla, core} {
		if h == nil {
			continue
		}
		if !d.invoke(ctx, span, h, cmd, resp) {
			failed = true
		}
		if resp.Handled() {
			return
		}
	}
	if failed {
		resp.Fail("An internal error occurred while running /" + cmd.Name() + ".")
	}
}

// invoke runs one handler and reports whether it completed without failing.
func (d *Dispatcher) invoke(ctx context.Context, span trace.Span, h Handler, cmd *Command, resp *Response) bool {
	if ph, ok := h.(PermissionedHandler); ok && d.permissions != nil {
		node := ph.PermissionNode(cmd.Name())
		if node != "" && !d.permissions.HasPermission(cmd.Actor, node) {
			resp.Deny(cmd.Name())
			resp.Log(logsink.CategoryWarn, cmd.Actor.Name()+" was denied /"+cmd.Name())
			return true
		}
	}

	err := guard.Call(func() error { return h.OnCommand(ctx, cmd, resp) })
	if err == nil {
		return true
	}
	span.RecordError(err)
	err = eris.Wrapf(err, "handler for /%s", cmd.Name())
	d.report("command handler failed", logsink.WithTag(err, logsink.TagCommand, cmd.Name()))
	return false
}

func (d *Dispatcher) report(reason string, err error) {
	d.log.Error().Str("stack", eris.ToString(err, true)).Msg(reason)
	if d.exceptions != nil {
		d.exceptions.OnException(reason, err)
	}
}
