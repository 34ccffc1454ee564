package script

import (
	"context"
	"reflect"
	"time"

	"github.com/argus-labs/sledgehammer/pkg/hammer/chattag"
	"github.com/argus-labs/sledgehammer/pkg/hammer/command"
	"github.com/argus-labs/sledgehammer/pkg/hammer/event"
	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	"github.com/argus-labs/sledgehammer/pkg/hammer/module"
	"github.com/rotisserie/eris"
	"github.com/traefik/yaegi/interp"
)

// ImportPath is the package scripts import to reach the engine.
const ImportPath = "hammer"

// Module describes one scripted module. Every hook is optional.
type Module struct {
	ID      string
	Name    string
	Version string

	Load   func(h *Host) error
	Start  func() error
	Update func(delta time.Duration) error
	Stop   func() error
	Unload func() error
}

// CommandFunc runs a scripted command.
type CommandFunc func(ctx context.Context, cmd *command.Command, resp *command.Response) error

// EventFunc handles a scripted event.
type EventFunc func(ctx context.Context, ev event.Event) error

// Host is what a script sees of the engine while its module is loaded. Everything
// registered through it is dropped when the module unloads.
type Host struct {
	host module.Host
}

// Setting returns a plugin setting, or "" if it is not set.
func (h *Host) Setting(key string) string {
	v, _ := h.host.Setting(key)
	return v
}

// Log writes an info line to the module's logger.
func (h *Host) Log(msg string) {
	log := h.host.Logger()
	log.Info().Msg(msg)
}

// Command registers fn as a handler for /name. tooltip is shown in help.
func (h *Host) Command(name, tooltip string, fn CommandFunc) error {
	if fn == nil {
		return eris.Errorf("nil function for /%s", name)
	}
	return h.host.RegisterCommand(name, &commandFunc{name: name, tooltip: tooltip, fn: fn})
}

// On registers fn for events of type typ. "*" receives every event.
func (h *Host) On(typ string, fn EventFunc) error {
	if fn == nil {
		return eris.Errorf("nil function for event type %q", typ)
	}
	return h.host.RegisterEvent(typ, &eventFunc{typ: typ, fn: fn})
}

// Run dispatches input as a command issued by actor.
func (h *Host) Run(ctx context.Context, actor command.Actor, input string) *command.Response {
	return h.host.HandleCommand(ctx, actor, input, true)
}

// Emit dispatches a named event carrying message.
func (h *Host) Emit(ctx context.Context, name, message string) event.Event {
	return h.host.Handle(ctx, event.NewGeneric(name, message), true)
}

type commandFunc struct {
	name    string
	tooltip string
	fn      CommandFunc
}

func (c *commandFunc) Commands() []string { return []string{c.name} }

func (c *commandFunc) OnCommand(ctx context.Context, cmd *command.Command, resp *command.Response) error {
	return c.fn(ctx, cmd, resp)
}

func (c *commandFunc) Tooltip(command.Actor, string) string { return c.tooltip }

type eventFunc struct {
	typ string
	fn  EventFunc
}

func (e *eventFunc) Types() []string { return []string{e.typ} }

func (e *eventFunc) OnEvent(ctx context.Context, ev event.Event) error {
	return e.fn(ctx, ev)
}

// exports builds the symbol table behind `import "hammer"`. Yaegi keys packages as
// "importPath/pkgName".
func exports() interp.Exports {
	return interp.Exports{
		ImportPath + "/" + ImportPath: {
			"Module":      reflect.ValueOf((*Module)(nil)),
			"Host":        reflect.ValueOf((*Host)(nil)),
			"CommandFunc": reflect.ValueOf((*CommandFunc)(nil)),
			"EventFunc":   reflect.ValueOf((*EventFunc)(nil)),

			"Command":  reflect.ValueOf((*command.Command)(nil)),
			"Response": reflect.ValueOf((*command.Response)(nil)),
			"Actor":    reflect.ValueOf((*command.Actor)(nil)),
			"Console":  reflect.ValueOf(&command.Console).Elem(),

			"Event":      reflect.ValueOf((*event.Event)(nil)),
			"Chat":       reflect.ValueOf((*event.Chat)(nil)),
			"Connect":    reflect.ValueOf((*event.Connect)(nil)),
			"Disconnect": reflect.ValueOf((*event.Disconnect)(nil)),
			"Kill":       reflect.ValueOf((*event.Kill)(nil)),
			"Cheat":      reflect.ValueOf((*event.Cheat)(nil)),
			"Generic":    reflect.ValueOf((*event.Generic)(nil)),

			"CategoryInfo":  reflect.ValueOf(logsink.CategoryInfo),
			"CategoryWarn":  reflect.ValueOf(logsink.CategoryWarn),
			"CategoryError": reflect.ValueOf(logsink.CategoryError),
			"CategoryCheat": reflect.ValueOf(logsink.CategoryCheat),
			"CategoryStaff": reflect.ValueOf(logsink.CategoryStaff),

			"Strip": reflect.ValueOf(chattag.Strip),
		},
	}
}
