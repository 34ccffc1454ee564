package event

import "context"

// Handler reacts to events. Handlers are registered by identity, so use pointer types.
type Handler interface {
	// Types lists the event types the handler registers for with RegisterHandler.
	Types() []string
	// OnEvent handles one event. A returned error or panic is recovered by the dispatcher
	// and does not stop delivery to later handlers.
	OnEvent(ctx context.Context, ev Event) error
}

// Priority orders handlers into tiers. All handlers of one tier run before the next tier.
type Priority uint8

const (
	PriorityNormal Priority = iota
	PriorityLate            // Runs after every normal handler, e.g. to observe the outcome
)

func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PriorityLate:
		return "late"
	default:
		return "unknown"
	}
}

var tiers = []Priority{PriorityNormal, PriorityLate} //nolint:gochecknoglobals // fixed order

// Prioritized is implemented by handlers that run in a tier other than PriorityNormal.
type Prioritized interface {
	Priority() Priority
}

func priorityOf(h Handler) Priority {
	if p, ok := h.(Prioritized); ok {
		return p.Priority()
	}
	return PriorityNormal
}

// Router takes over delivery for a whole event type. The command dispatcher is routed the
// command event type this way.
type Router interface {
	Route(ctx context.Context, ev Event, logEnabled bool)
}
