package hammer

import (
	"context"
	"slices"
	"sync"

	"github.com/argus-labs/sledgehammer/pkg/hammer/command"
	"github.com/argus-labs/sledgehammer/pkg/hammer/event"
	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	"github.com/argus-labs/sledgehammer/pkg/hammer/module"
	"github.com/rs/zerolog"
)

// moduleHost is the engine as seen by one loaded module. It remembers what the module
// registered so everything can be dropped when the module unloads.
type moduleHost struct {
	engine *Engine
	inst   *module.Instance
	log    zerolog.Logger

	mu       sync.Mutex
	commands []command.Handler
	events   []event.Handler
	sinks    []logsink.Sink
}

var _ module.Host = (*moduleHost)(nil)

func (h *moduleHost) Logger() zerolog.Logger { return h.log }

func (h *moduleHost) Setting(key string) (string, bool) {
	return h.inst.Setting(key)
}

func (h *moduleHost) RegisterCommand(name string, handler command.Handler) error {
	if err := h.engine.commands.Register(name, handler); err != nil {
		return err
	}
	trackIn(&h.mu, &h.commands, handler)
	return nil
}

func (h *moduleHost) RegisterCommandHandler(handler command.Handler) error {
	if err := h.engine.commands.RegisterHandler(handler); err != nil {
		return err
	}
	trackIn(&h.mu, &h.commands, handler)
	return nil
}

func (h *moduleHost) UnregisterCommandHandler(handler command.Handler) {
	h.engine.commands.UnregisterHandler(handler)
	untrackIn(&h.mu, &h.commands, handler)
}

func (h *moduleHost) RegisterEvent(typ string, handler event.Handler) error {
	if err := h.engine.events.Register(typ, handler); err != nil {
		return err
	}
	trackIn(&h.mu, &h.events, handler)
	return nil
}

func (h *moduleHost) RegisterEventHandler(handler event.Handler) error {
	if err := h.engine.events.RegisterHandler(handler); err != nil {
		return err
	}
	trackIn(&h.mu, &h.events, handler)
	return nil
}

func (h *moduleHost) UnregisterEventHandler(handler event.Handler) {
	h.engine.events.UnregisterHandler(handler)
	untrackIn(&h.mu, &h.events, handler)
}

func (h *moduleHost) RegisterLogSink(s logsink.Sink) {
	if h.engine.sinks.Register(s) {
		trackIn(&h.mu, &h.sinks, s)
	}
}

func (h *moduleHost) UnregisterLogSink(s logsink.Sink) {
	h.engine.sinks.Unregister(s)
	untrackIn(&h.mu, &h.sinks, s)
}

func (h *moduleHost) HandleCommand(
	ctx context.Context,
	actor command.Actor,
	input string,
	logEnabled bool,
) *command.Response {
	return h.engine.HandleCommand(ctx, actor, input, logEnabled)
}

func (h *moduleHost) Handle(ctx context.Context, ev event.Event, logEnabled bool) event.Event {
	return h.engine.HandleWithLog(ctx, ev, logEnabled)
}

// release unregisters everything the module registered through this host.
func (h *moduleHost) release() {
	h.mu.Lock()
	commands, events, sinks := h.commands, h.events, h.sinks
	h.commands, h.events, h.sinks = nil, nil, nil
	h.mu.Unlock()

	for _, c := range commands {
		h.engine.commands.UnregisterHandler(c)
	}
	for _, e := range events {
		h.engine.events.UnregisterHandler(e)
	}
	for _, s := range sinks {
		h.engine.sinks.Unregister(s)
	}
	if n := len(commands) + len(events) + len(sinks); n > 0 {
		h.log.Debug().Int("registrations", n).Msg("released module registrations")
	}
}

func trackIn[T comparable](mu *sync.Mutex, list *[]T, v T) {
	mu.Lock()
	defer mu.Unlock()
	if !slices.Contains(*list, v) {
		*list = append(*list, v)
	}
}

func untrackIn[T comparable](mu *sync.Mutex, list *[]T, v T) {
	mu.Lock()
	defer mu.Unlock()
	*list = slices.DeleteFunc(*list, func(x T) bool { return x == v })
}
