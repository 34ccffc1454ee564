// Package hammer is the engine façade: the single object a host process talks to. It owns
// the module registry, the command and event dispatchers and the log sinks, and wires them
// to the host through Hooks.
//
// The host drives the engine from its own loop:
//
//	e, err := hammer.New(hammer.WithHooks(hooks), hammer.WithProvider(provider))
//	...
//	err = e.Start(ctx)
//	for range ticker.C {
//		e.Update(ctx, interval)
//	}
//	err = e.Shutdown(ctx)
package hammer

import (
	"context"
	"sync"
	"time"

	"github.com/argus-labs/sledgehammer/pkg/hammer/builtin"
	"github.com/argus-labs/sledgehammer/pkg/hammer/command"
	"github.com/argus-labs/sledgehammer/pkg/hammer/event"
	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	"github.com/argus-labs/sledgehammer/pkg/hammer/module"
	"github.com/argus-labs/sledgehammer/pkg/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Engine wires the registry, the dispatchers and the host together.
type Engine struct {
	config    Config
	hasConfig bool
	hooks     Hooks
	providers []Provider
	stage     *stageManager

	registry   *module.Registry
	commands   *command.Dispatcher
	events     *event.Dispatcher
	sinks      *logsink.Fanout
	exceptions *logsink.Exceptions
	history    *logsink.History
	coreEvents *builtin.Events

	hostsMu sync.Mutex
	hosts   map[*module.Instance]*moduleHost

	tracer trace.Tracer
	log    zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig uses cfg instead of reading the environment.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.config = cfg
		e.hasConfig = true
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

func WithHooks(hooks Hooks) Option {
	return func(e *Engine) { e.hooks = hooks }
}

// WithProvider adds a source of plugins, read once by Start.
func WithProvider(p Provider) Option {
	return func(e *Engine) { e.providers = append(e.providers, p) }
}

// New builds an engine. Modules are not loaded until Start.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		stage:  newStageManager(),
		hosts:  make(map[*module.Instance]*moduleHost),
		tracer: noop.NewTracerProvider().Tracer("hammer"),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if !e.hasConfig {
		cfg, err := LoadConfig()
		if err != nil {
			return nil, err
		}
		e.config = cfg
	}
	if err := e.config.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid engine config")
	}

	e.exceptions = logsink.NewExceptions(e.log)
	e.sinks = logsink.NewFanout(e.exceptions)
	e.sinks.Register(logsink.NewLogger(e.log.With().Str("component", "audit").Logger()))
	if e.config.LogHistory > 0 {
		history, err := logsink.NewHistory(e.config.LogHistory)
		if err != nil {
			return nil, eris.Wrap(err, "failed to create log history")
		}
		e.history = history
		e.sinks.Register(history)
	}

	e.commands = command.NewDispatcher(
		command.WithLogger(e.log.With().Str("component", "commands").Logger()),
		command.WithTracer(e.tracer),
		command.WithSink(e.sinks),
		command.WithExceptionSink(e.exceptions),
		command.WithPermissions(e.hooks.Permissions),
	)
	e.events = event.NewDispatcher(
		event.WithLogger(e.log.With().Str("component", "events").Logger()),
		event.WithTracer(e.tracer),
		event.WithSink(e.sinks),
		event.WithExceptionSink(e.exceptions),
	)
	e.events.Route(command.EventType, e.commands)

	e.registry = module.NewRegistry(
		module.WithLogger(e.log.With().Str("component", "modules").Logger()),
		module.WithHostFactory(e.hostFor),
		module.WithOnUnloaded(e.release),
		module.WithExceptionSink(e.exceptions),
	)

	e.commands.SetCore(builtin.NewCommands(builtin.CommandsOptions{
		Modules:     e.registry,
		History:     e.history,
		Players:     e.hooks.Players,
		Permissions: e.hooks.Permissions,
	}))
	if e.hooks.Vanilla != nil {
		e.commands.SetVanilla(builtin.NewVanilla(e.hooks.Vanilla))
	}
	e.coreEvents = builtin.NewEvents(e.hooks.Players)
	e.events.SetCore(e.coreEvents)

	return e, nil
}

// Start registers the modules of every provider, then loads and starts them. A duplicate
// module ID is a packaging error and fails Start; the engine should then be shut down.
// Start can only be called once.
func (e *Engine) Start(ctx context.Context) error {
	if !e.stage.CompareAndSwap(StageInit, StageStarting) {
		return eris.Errorf("cannot start engine in stage %s", e.stage.Current())
	}

	ctx, span := e.tracer.Start(ctx, "engine.start")
	defer span.End()

	for _, p := range e.providers {
		plugins, err := p.Modules(ctx)
		if err != nil {
			e.exceptions.OnException("module provider failed", eris.Wrapf(err, "provider %T", p))
			e.log.Error().Err(err).Msg("module provider failed")
			continue
		}
		for _, plugin := range plugins {
			if err := e.RegisterPlugin(plugin); err != nil {
				span.RecordError(err)
				return err
			}
		}
	}

	e.registry.LoadAll(ctx)
	e.registry.StartAll(ctx)
	e.stage.Store(StageRunning)

	active := len(e.registry.Active())
	span.SetAttributes(attribute.Int("modules.active", active))
	e.log.Info().Int("registered", e.registry.Len()).Int("active", active).Msg("engine started")
	return nil
}

// Update runs one tick: pending module changes are applied and every started module is
// updated. Ticks outside the running stage are ignored.
func (e *Engine) Update(ctx context.Context, delta time.Duration) {
	if e.stage.Current() != StageRunning {
		return
	}
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine.update")
	defer span.End()

	e.coreEvents.ResetTick()
	e.registry.UpdateAll(ctx, delta)
	statsd.EmitTickStat(start, "update")
}

// Shutdown stops and unloads every module, newest first. Calling it again is a no-op.
func (e *Engine) Shutdown(ctx context.Context) error {
	switch e.stage.Swap(StageShuttingDown) {
	case StageShuttingDown, StageShutDown:
		e.stage.Store(StageShutDown)
		return nil
	case StageInit, StageStarting, StageRunning:
	}

	ctx, span := e.tracer.Start(ctx, "engine.shutdown")
	defer span.End()

	e.log.Info().Msg("shutting down engine")
	e.registry.StopAll(ctx)
	e.registry.UnloadAll(ctx)
	e.stage.Store(StageShutDown)
	e.log.Info().Msg("engine shutdown complete")
	return nil
}

// Handle dispatches ev, logging it according to the configuration.
func (e *Engine) Handle(ctx context.Context, ev event.Event) event.Event {
	return e.HandleWithLog(ctx, ev, e.config.LogEvents)
}

// HandleWithLog dispatches ev. Command events are answered by the command dispatcher.
func (e *Engine) HandleWithLog(ctx context.Context, ev event.Event, logEnabled bool) event.Event {
	if ev == nil {
		return e.events.Dispatch(ctx, nil, logEnabled)
	}
	start := time.Now()
	res := e.events.Dispatch(ctx, ev, logEnabled)
	statsd.EmitDispatchStat(start, "event", ev.Type())
	return res
}

// HandleCommand parses and dispatches one line of command input on behalf of actor. A nil
// actor is the console.
func (e *Engine) HandleCommand(
	ctx context.Context,
	actor command.Actor,
	input string,
	logEnabled bool,
) *command.Response {
	start := time.Now()
	cmd := command.Parse(input)
	cmd.Actor = actor
	resp := e.commands.DispatchCommand(ctx, cmd, logEnabled)
	statsd.EmitDispatchStat(start, "command", cmd.Name())
	return resp
}

// RunCommand is HandleCommand with logging according to the configuration.
func (e *Engine) RunCommand(ctx context.Context, actor command.Actor, input string) *command.Response {
	return e.HandleCommand(ctx, actor, input, e.config.LogCommands)
}

// RegisterModule adds a module without an owning plugin. While the engine is running it is
// loaded and started on the next Update.
func (e *Engine) RegisterModule(m module.Module) error {
	return e.registry.Register(m)
}

// RegisterPlugin adds every module of p.
func (e *Engine) RegisterPlugin(p Plugin) error {
	for _, m := range p.Modules {
		if err := e.registry.RegisterOwned(p.Name, p.Settings, m); err != nil {
			return eris.Wrapf(err, "plugin %q", p.Name)
		}
	}
	e.log.Debug().Str("plugin", p.Name).Str("version", p.Version).Int("modules", len(p.Modules)).
		Msg("plugin registered")
	return nil
}

// UnregisterModule unloads a module and forgets it.
func (e *Engine) UnregisterModule(ctx context.Context, id string) error {
	return e.registry.Unregister(ctx, id)
}

// UnregisterPlugin unloads and forgets every module of the named plugin.
func (e *Engine) UnregisterPlugin(ctx context.Context, name string) []string {
	return e.registry.UnregisterOwner(ctx, name)
}

// ReloadModule reloads a module on the next Update.
func (e *Engine) ReloadModule(id string) error {
	return e.registry.Reload(id)
}

func (e *Engine) RegisterCommand(name string, h command.Handler) error {
	return e.commands.Register(name, h)
}

func (e *Engine) RegisterCommandHandler(h command.Handler) error {
	return e.commands.RegisterHandler(h)
}

func (e *Engine) UnregisterCommandHandler(h command.Handler) int {
	return e.commands.UnregisterHandler(h)
}

func (e *Engine) RegisterEvent(typ string, h event.Handler) error {
	return e.events.Register(typ, h)
}

func (e *Engine) RegisterEventHandler(h event.Handler) error {
	return e.events.RegisterHandler(h)
}

func (e *Engine) UnregisterEventHandler(h event.Handler) int {
	return e.events.UnregisterHandler(h)
}

func (e *Engine) RegisterLogSink(s logsink.Sink) bool {
	return e.sinks.Register(s)
}

func (e *Engine) UnregisterLogSink(s logsink.Sink) bool {
	return e.sinks.Unregister(s)
}

func (e *Engine) RegisterExceptionSink(s logsink.ExceptionSink) bool {
	return e.exceptions.Register(s)
}

func (e *Engine) UnregisterExceptionSink(s logsink.ExceptionSink) bool {
	return e.exceptions.Unregister(s)
}

func (e *Engine) Stage() Stage               { return e.stage.Current() }
func (e *Engine) Config() Config             { return e.config }
func (e *Engine) Registry() *module.Registry { return e.registry }
func (e *Engine) History() *logsink.History  { return e.history }
func (e *Engine) Commands() []string         { return e.commands.Commands() }

// hostFor builds the host a module sees while it is loaded.
func (e *Engine) hostFor(inst *module.Instance) module.Host {
	h := &moduleHost{
		engine: e,
		inst:   inst,
		log:    e.log.With().Str("module", inst.ID()).Logger(),
	}
	e.hostsMu.Lock()
	prev := e.hosts[inst]
	e.hosts[inst] = h
	e.hostsMu.Unlock()
	if prev != nil {
		prev.release()
	}
	return h
}

// release drops everything an unloaded module registered.
func (e *Engine) release(inst *module.Instance) {
	e.hostsMu.Lock()
	h := e.hosts[inst]
	delete(e.hosts, inst)
	e.hostsMu.Unlock()
	if h != nil {
		h.release()
	}
}
