package hammer

import "sync/atomic"

// Stage is where the engine is in its own lifecycle.
type Stage string

const (
	StageInit         Stage = "Init"         // Constructed
	StageStarting     Stage = "Starting"     // Start is collecting and loading modules
	StageRunning      Stage = "Running"      // Accepting updates
	StageShuttingDown Stage = "ShuttingDown" // Shutdown is stopping modules
	StageShutDown     Stage = "ShutDown"     // Shutdown completed
)

type stageManager struct {
	current atomic.Value
}

func newStageManager() *stageManager {
	m := &stageManager{}
	m.Store(StageInit)
	return m
}

func (m *stageManager) CompareAndSwap(oldStage, newStage Stage) (swapped bool) {
	return m.current.CompareAndSwap(oldStage, newStage)
}

func (m *stageManager) Current() Stage {
	return m.current.Load().(Stage) //nolint:errcheck // only Stages are stored
}

func (m *stageManager) Store(val Stage) {
	m.current.Store(val)
}

func (m *stageManager) Swap(newStage Stage) (oldStage Stage) {
	return m.current.Swap(newStage).(Stage) //nolint:errcheck // only Stages are stored
}
