// Package module runs extension modules through their lifecycle. A Registry owns the set of
// modules and drives them together; each module moves through
// Unloaded -> Loaded -> Started -> Stopped -> Unloaded.
package module

import (
	"context"
	"time"

	"github.com/argus-labs/sledgehammer/pkg/hammer/command"
	"github.com/argus-labs/sledgehammer/pkg/hammer/event"
	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	"github.com/rs/zerolog"
)

// Module is one unit of extension. Every hook may fail or panic; failures are contained by
// the Registry. Hooks must tolerate being called again after a full unload and reload.
type Module interface {
	// ID identifies the module. It must be unique within a Registry.
	ID() string
	Name() string
	Version() string

	// Load prepares the module and registers its handlers through host.
	Load(ctx context.Context, host Host) error
	Start(ctx context.Context) error
	// Update runs once per engine tick while the module is started.
	Update(ctx context.Context, delta time.Duration) error
	Stop(ctx context.Context) error
	Unload(ctx context.Context) error
}

// Host is the engine as seen by one module. Handlers and sinks registered through a Host
// belong to that module and are removed when it unloads.
type Host interface {
	Logger() zerolog.Logger
	// Setting returns a value from the module's packaging settings.
	Setting(key string) (string, bool)

	RegisterCommand(name string, h command.Handler) error
	RegisterCommandHandler(h command.Handler) error
	UnregisterCommandHandler(h command.Handler)

	RegisterEvent(typ string, h event.Handler) error
	RegisterEventHandler(h event.Handler) error
	UnregisterEventHandler(h event.Handler)

	RegisterLogSink(s logsink.Sink)
	UnregisterLogSink(s logsink.Sink)

	HandleCommand(ctx context.Context, actor command.Actor, input string, logEnabled bool) *command.Response
	Handle(ctx context.Context, ev event.Event, logEnabled bool) event.Event
}

// Base gives a module no-op hooks. Embed it and override what the module needs. A module
// that overrides Load should call Base.Load so Host keeps working.
type Base struct {
	name    string
	version string
	host    Host
}

func NewBase(name, version string) Base {
	return Base{name: name, version: version}
}

func (b *Base) Name() string    { return b.name }
func (b *Base) Version() string { return b.version }

// Host returns the host passed to Load, or nil before the first load.
func (b *Base) Host() Host { return b.host }

func (b *Base) Load(_ context.Context, host Host) error {
	b.host = host
	return nil
}

func (b *Base) Start(context.Context) error                 { return nil }
func (b *Base) Update(context.Context, time.Duration) error { return nil }
func (b *Base) Stop(context.Context) error                  { return nil }
func (b *Base) Unload(context.Context) error                { return nil }
