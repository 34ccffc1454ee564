package module

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/argus-labs/sledgehammer/pkg/testutils"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyModule fails the hook named in failNext once.
type flakyModule struct {
	Base
	failNext string
	calls    map[string]int
}

func (m *flakyModule) ID() string { return "flaky" }

func (m *flakyModule) hook(name string) error {
	m.calls[name]++
	if m.failNext == name {
		m.failNext = ""
		return errors.New(name + " failed")
	}
	return nil
}

func (m *flakyModule) Load(context.Context, Host) error            { return m.hook("load") }
func (m *flakyModule) Start(context.Context) error                 { return m.hook("start") }
func (m *flakyModule) Update(context.Context, time.Duration) error { return m.hook("update") }
func (m *flakyModule) Stop(context.Context) error                  { return m.hook("stop") }
func (m *flakyModule) Unload(context.Context) error                { return m.hook("unload") }

func newTestInstance(m Module) (*Instance, *int, *int) {
	var released, reported int
	inst := &Instance{
		module:   m,
		id:       m.ID(),
		settings: map[string]string{},
		state:    newStateHolder(),
		log:      zerolog.Nop(),
		hooks: &hooks{
			onUnloaded: func(*Instance) { released++ },
			report:     func(string, error) { reported++ },
		},
	}
	return inst, &released, &reported
}

func TestInstance_Transitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := &flakyModule{calls: map[string]int{}}
	inst, released, _ := newTestInstance(m)

	err := inst.start(ctx)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateUnloaded, inst.State())

	require.NoError(t, inst.load(ctx))
	assert.Equal(t, StateLoaded, inst.State())
	require.ErrorIs(t, inst.load(ctx), ErrInvalidTransition)

	require.NoError(t, inst.update(ctx, time.Millisecond))
	assert.Zero(t, m.calls["update"], "loaded modules are not updated")

	require.NoError(t, inst.start(ctx))
	require.NoError(t, inst.start(ctx))
	assert.Equal(t, 1, m.calls["start"])

	require.NoError(t, inst.update(ctx, time.Millisecond))
	require.NoError(t, inst.stop(ctx))
	require.NoError(t, inst.stop(ctx))
	assert.Equal(t, StateStopped, inst.State())
	assert.Equal(t, 1, m.calls["stop"])

	require.NoError(t, inst.unload(ctx))
	require.NoError(t, inst.unload(ctx))
	assert.Equal(t, StateUnloaded, inst.State())
	assert.Equal(t, 1, m.calls["unload"])
	assert.Equal(t, 1, *released)
	assert.False(t, inst.Quarantined())
}

func TestInstance_UnloadStopsStartedModule(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := &flakyModule{calls: map[string]int{}}
	inst, _, reported := newTestInstance(m)
	require.NoError(t, inst.load(ctx))
	require.NoError(t, inst.start(ctx))

	m.failNext = "stop"
	require.NoError(t, inst.unload(ctx))
	assert.Equal(t, StateUnloaded, inst.State())
	assert.Equal(t, 1, m.calls["unload"])
	assert.True(t, inst.Quarantined())
	assert.Equal(t, 1, *reported)
}

func TestInstance_PanicIsContained(t *testing.T) {
	t.Parallel()

	inst, released, reported := newTestInstance(&panickyModule{})
	err := inst.load(context.Background())
	require.Error(t, err)
	assert.Contains(t, eris.ToString(err, false), "module panicky failed during load")
	assert.Equal(t, StateUnloaded, inst.State())
	assert.True(t, inst.Quarantined())
	assert.Equal(t, 1, *released)
	assert.Equal(t, 1, *reported)
}

type panickyModule struct{ Base }

func (*panickyModule) ID() string                       { return "panicky" }
func (*panickyModule) Load(context.Context, Host) error { panic("bad plugin") }

// TestInstance_ModelFuzz drives one instance with random hook calls and failures and checks
// it against a model of the lifecycle.
func TestInstance_ModelFuzz(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	prng := testutils.NewRand(t)

	ops := []string{"load", "start", "update", "stop", "unload"}
	weights := testutils.RandOpWeights(prng, ops)

	m := &flakyModule{calls: map[string]int{}}
	inst, _, _ := newTestInstance(m)
	model := StateUnloaded

	for range 2000 {
		op := testutils.RandWeightedOp(prng, weights)
		fail := prng.IntN(5) == 0
		if fail {
			m.failNext = op
		}

		var err error
		switch op {
		case "load":
			err = inst.load(ctx)
			switch {
			case model != StateUnloaded:
				require.ErrorIs(t, err, ErrInvalidTransition)
			case fail:
				require.Error(t, err)
			default:
				require.NoError(t, err)
				model = StateLoaded
			}
		case "start":
			err = inst.start(ctx)
			switch {
			case model == StateStarted:
				require.NoError(t, err)
			case model != StateLoaded:
				require.ErrorIs(t, err, ErrInvalidTransition)
			case fail:
				require.Error(t, err)
				model = StateUnloaded
			default:
				require.NoError(t, err)
				model = StateStarted
			}
		case "update":
			err = inst.update(ctx, time.Millisecond)
			if model == StateStarted && fail {
				require.Error(t, err)
				model = StateUnloaded
			} else {
				require.NoError(t, err)
			}
		case "stop":
			err = inst.stop(ctx)
			switch {
			case model != StateStarted:
				require.NoError(t, err)
			case fail:
				require.Error(t, err)
				model = StateUnloaded
			default:
				require.NoError(t, err)
				model = StateStopped
			}
		case "unload":
			err = inst.unload(ctx)
			if model != StateUnloaded && fail {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			model = StateUnloaded
		}

		require.Equal(t, model, inst.State(), "after %s (fail=%v)", op, fail)
		m.failNext = ""
	}
}
