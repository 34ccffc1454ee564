package command

import (
	"github.com/argus-labs/sledgehammer/pkg/hammer/event"
)

// EventType is the reserved event type under which commands travel through the event
// dispatcher. The engine routes it to the command Dispatcher.
const EventType = "command"

// Event wraps a command so it can be handed to the event dispatcher.
type Event struct {
	event.Base
	Command  *Command
	Response *Response
}

var _ event.Event = (*Event)(nil)

func NewEvent(cmd *Command) *Event {
	e := &Event{Command: cmd, Response: &Response{}}
	if cmd != nil && cmd.Actor != nil {
		e.SetActor(cmd.Actor.Name())
	}
	return e
}

func (e *Event) Type() string { return EventType }

func (e *Event) LogMessage() string { return e.Response.LogMessage }
