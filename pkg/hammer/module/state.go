package module

import "sync/atomic"

// State is a module's lifecycle state.
type State string

const (
	StateUnloaded State = "Unloaded" // Constructed, or torn down
	StateLoaded   State = "Loaded"   // Load succeeded
	StateStarted  State = "Started"  // Receiving updates
	StateStopped  State = "Stopped"  // Stopped, awaiting unload
)

// stateHolder stores a State atomically so queries never wait on lifecycle work.
type stateHolder struct {
	current atomic.Value
}

func newStateHolder() *stateHolder {
	s := &stateHolder{}
	s.current.Store(StateUnloaded)
	return s
}

func (s *stateHolder) Load() State {
	return s.current.Load().(State) //nolint:errcheck // only States are stored
}

func (s *stateHolder) Store(st State) {
	s.current.Store(st)
}
