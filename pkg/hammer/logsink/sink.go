package logsink

import (
	"slices"
	"sync"

	"github.com/argus-labs/sledgehammer/pkg/hammer/internal/guard"
	"github.com/rs/zerolog"
)

// Sink receives audit records. Sinks run inline with dispatch and must not block for long.
// Implementations are registered by identity, so use pointer types.
type Sink interface {
	OnLogEntry(rec Record)
}

// ExceptionSink receives failures recovered from extension code: module hooks, command and
// event handlers, and log sinks themselves.
type ExceptionSink interface {
	OnException(reason string, err error)
}

// Fanout delivers records to an ordered set of sinks. A sink that panics is reported to the
// exception sink and does not stop delivery to the others.
type Fanout struct {
	mu         sync.RWMutex
	sinks      []Sink
	exceptions ExceptionSink
}

// NewFanout creates a fanout. exceptions may be nil.
func NewFanout(exceptions ExceptionSink) *Fanout {
	return &Fanout{exceptions: exceptions}
}

// Register adds a sink. It returns false if the sink is already registered.
func (f *Fanout) Register(s Sink) bool {
	if s == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if slices.Contains(f.sinks, s) {
		return false
	}
	f.sinks = append(f.sinks, s)
	return true
}

// Unregister removes a sink. It returns false if the sink was not registered.
func (f *Fanout) Unregister(s Sink) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := slices.Index(f.sinks, s)
	if idx < 0 {
		return false
	}
	f.sinks = slices.Delete(f.sinks, idx, idx+1)
	return true
}

// Len returns the number of registered sinks.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sinks)
}

// OnLogEntry implements Sink so fanouts can be nested.
func (f *Fanout) OnLogEntry(rec Record) {
	f.mu.RLock()
	sinks := slices.Clone(f.sinks)
	f.mu.RUnlock()

	for _, s := range sinks {
		if err := guard.Run(func() { s.OnLogEntry(rec) }); err != nil && f.exceptions != nil {
			f.exceptions.OnException("log sink failed", err)
		}
	}
}

// Exceptions delivers failures to an ordered set of exception sinks. Panics raised by an
// exception sink are written to the fallback logger and otherwise dropped.
type Exceptions struct {
	mu       sync.RWMutex
	sinks    []ExceptionSink
	fallback zerolog.Logger
}

func NewExceptions(fallback zerolog.Logger) *Exceptions {
	return &Exceptions{fallback: fallback}
}

func (e *Exceptions) Register(s ExceptionSink) bool {
	if s == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if slices.Contains(e.sinks, s) {
		return false
	}
	e.sinks = append(e.sinks, s)
	return true
}

func (e *Exceptions) Unregister(s ExceptionSink) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := slices.Index(e.sinks, s)
	if idx < 0 {
		return false
	}
	e.sinks = slices.Delete(e.sinks, idx, idx+1)
	return true
}

func (e *Exceptions) OnException(reason string, err error) {
	e.mu.RLock()
	sinks := slices.Clone(e.sinks)
	e.mu.RUnlock()

	for _, s := range sinks {
		if perr := guard.Run(func() { s.OnException(reason, err) }); perr != nil {
			e.fallback.Error().Err(perr).Str("reason", reason).Msg("exception sink failed")
		}
	}
}
