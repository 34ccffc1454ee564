// Package event delivers typed game occurrences (chat, connections, kills, cheat reports and
// host-defined kinds) to the handlers registered for their type.
package event

import (
	"time"

	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
)

// Event is one typed occurrence passed through the Dispatcher. Every implementation embeds
// Base, which carries the delivery flags.
type Event interface {
	// Type is the identifier handlers register for.
	Type() string
	// LogMessage is the audit text recorded once delivery completes. Empty means nothing
	// is recorded.
	LogMessage() string

	Handled() bool
	SetHandled(handled bool)
	Cancelled() bool
	Cancel()
	Announce() bool
	IgnoreCore() bool
	Important() bool
	Category() logsink.Category
	Actor() string
	Time() time.Time

	base() *Base
}

// Base holds the flags shared by every event. The zero value is ready to use; the
// dispatcher stamps the time on first delivery if it is unset.
type Base struct {
	handled    bool
	cancelled  bool
	announce   bool
	ignoreCore bool
	important  bool
	category   logsink.Category
	actor      string
	time       time.Time
}

func (b *Base) base() *Base { return b }

func (b *Base) Handled() bool { return b.handled }

// SetHandled marks the event as dealt with. Handlers later in the same priority tier are
// skipped.
func (b *Base) SetHandled(handled bool) { b.handled = handled }

func (b *Base) Cancelled() bool { return b.cancelled }

// Cancel stops delivery. No further handler runs, core included, and nothing is logged.
// Cancellation cannot be undone.
func (b *Base) Cancel() { b.cancelled = true }

// Announce reports whether the event should be broadcast to players as well as logged.
func (b *Base) Announce() bool { return b.announce }

func (b *Base) SetAnnounce(announce bool) { b.announce = announce }

// IgnoreCore reports whether the core handler is skipped for this event.
func (b *Base) IgnoreCore() bool { return b.ignoreCore }

func (b *Base) SetIgnoreCore(ignore bool) { b.ignoreCore = ignore }

func (b *Base) Important() bool { return b.important }

func (b *Base) SetImportant(important bool) { b.important = important }

func (b *Base) Category() logsink.Category { return b.category }

func (b *Base) SetCategory(c logsink.Category) { b.category = c }

// Actor is the name of whoever caused the event, if anyone.
func (b *Base) Actor() string { return b.actor }

func (b *Base) SetActor(name string) { b.actor = name }

func (b *Base) Time() time.Time { return b.time }

func (b *Base) SetTime(t time.Time) { b.time = t }
