package module

import (
	"context"
	"maps"
	"sync/atomic"
	"time"

	"github.com/argus-labs/sledgehammer/pkg/hammer/internal/guard"
	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	"github.com/argus-labs/sledgehammer/pkg/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// ErrInvalidTransition is returned when a lifecycle step is requested from a state it cannot
// be taken from.
var ErrInvalidTransition = eris.New("invalid module lifecycle transition")

// Instance is a registered module together with its lifecycle state. Transitions are driven
// by the owning Registry; the state can be read at any time.
type Instance struct {
	module   Module
	id       string // Module ID with surrounding whitespace trimmed
	owner    string
	settings map[string]string

	state       *stateHolder
	quarantined atomic.Bool // A hook failed; batch operations skip the module until reloaded
	reload      atomic.Bool // Reload requested, applied on the next update

	log   zerolog.Logger
	hooks *hooks
}

// hooks connects instances to the registry that owns them.
type hooks struct {
	hostFor    func(*Instance) Host
	onUnloaded func(*Instance)
	report     func(reason string, err error)
}

func (i *Instance) ID() string        { return i.id }
func (i *Instance) Module() Module    { return i.module }
func (i *Instance) State() State      { return i.state.Load() }
func (i *Instance) Owner() string     { return i.owner }
func (i *Instance) Quarantined() bool { return i.quarantined.Load() }

// Name is the module's display name, falling back to its ID.
func (i *Instance) Name() string {
	if name := i.module.Name(); name != "" {
		return name
	}
	return i.id
}

// Settings returns a copy of the settings the module was packaged with.
func (i *Instance) Settings() map[string]string {
	return maps.Clone(i.settings)
}

// Setting returns one packaging setting.
func (i *Instance) Setting(key string) (string, bool) {
	v, ok := i.settings[key]
	return v, ok
}

func (i *Instance) load(ctx context.Context) error {
	if st := i.State(); st != StateUnloaded {
		i.log.Error().Str("state", string(st)).Msg("cannot load module that is not unloaded")
		return eris.Wrapf(ErrInvalidTransition, "load from %s", st)
	}

	var host Host
	if i.hooks.hostFor != nil {
		host = i.hooks.hostFor(i)
	}
	if err := i.call("load", func() error { return i.module.Load(ctx, host) }); err != nil {
		i.quarantined.Store(true)
		// Drop whatever the module managed to register before failing.
		i.released()
		return err
	}
	i.state.Store(StateLoaded)
	i.log.Debug().Msg("module loaded")
	return nil
}

func (i *Instance) start(ctx context.Context) error {
	switch st := i.State(); st {
	case StateStarted:
		i.log.Warn().Msg("module is already started")
		return nil
	case StateLoaded:
	default:
		i.log.Error().Str("state", string(st)).Msg("cannot start module that is not loaded")
		return eris.Wrapf(ErrInvalidTransition, "start from %s", st)
	}

	if err := i.call("start", func() error { return i.module.Start(ctx) }); err != nil {
		i.quarantine(ctx)
		return err
	}
	i.state.Store(StateStarted)
	i.log.Debug().Msg("module started")
	return nil
}

func (i *Instance) update(ctx context.Context, delta time.Duration) error {
	if i.State() != StateStarted {
		return nil
	}
	if err := i.call("update", func() error { return i.module.Update(ctx, delta) }); err != nil {
		i.quarantine(ctx)
		return err
	}
	return nil
}

func (i *Instance) stop(ctx context.Context) error {
	switch st := i.State(); st {
	case StateStarted:
	case StateStopped:
		i.log.Debug().Msg("module is already stopped")
		return nil
	default:
		i.log.Error().Str("state", string(st)).Msg("cannot stop module that is not started")
		return nil
	}

	if err := i.call("stop", func() error { return i.module.Stop(ctx) }); err != nil {
		i.state.Store(StateStopped)
		i.quarantine(ctx)
		return err
	}
	i.state.Store(StateStopped)
	i.log.Debug().Msg("module stopped")
	return nil
}

func (i *Instance) unload(ctx context.Context) error {
	st := i.State()
	if st == StateUnloaded {
		return nil
	}
	if st == StateStarted {
		// Stop failures are reported but must not prevent the unload.
		if err := i.call("stop", func() error { return i.module.Stop(ctx) }); err != nil {
			i.quarantined.Store(true)
		}
		i.state.Store(StateStopped)
	}

	err := i.call("unload", func() error { return i.module.Unload(ctx) })
	i.state.Store(StateUnloaded)
	i.released()
	i.log.Debug().Msg("module unloaded")
	return err
}

// quarantine unloads a module whose hook failed and keeps batch operations away from it.
func (i *Instance) quarantine(ctx context.Context) {
	i.quarantined.Store(true)
	i.log.Warn().Msg("module failed and is being unloaded")
	_ = i.unload(ctx) // Failures are already reported by call
}

func (i *Instance) released() {
	if i.hooks.onUnloaded != nil {
		i.hooks.onUnloaded(i)
	}
}

// call runs one hook, timing it and converting panics. Failures are reported before return.
func (i *Instance) call(hook string, fn func() error) error {
	start := time.Now()
	err := guard.Call(fn)
	statsd.EmitModuleStat(start, i.ID(), hook)
	if err == nil {
		return nil
	}
	err = eris.Wrapf(err, "module %s failed during %s", i.ID(), hook)
	i.log.Error().Str("hook", hook).Str("stack", eris.ToString(err, true)).Msg("module hook failed")
	if i.hooks.report != nil {
		i.hooks.report("module "+hook+" failed", logsink.WithTag(err, logsink.TagModule, i.id))
	}
	return err
}
