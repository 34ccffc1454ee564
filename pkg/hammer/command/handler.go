package command

import "context"

// Handler runs commands. Handlers are registered by identity, so use pointer types.
type Handler interface {
	// Commands lists the command names the handler answers to.
	Commands() []string
	// OnCommand runs cmd, recording the outcome in resp. Setting resp handled stops
	// delivery. A returned error or panic is treated as a handler bug: it is recovered,
	// reported, and delivery continues with the next handler.
	OnCommand(ctx context.Context, cmd *Command, resp *Response) error
	// Tooltip is the help text for command as seen by actor. An empty tooltip hides the
	// command from that actor's help listing.
	Tooltip(actor Actor, command string) string
}

// PermissionedHandler is implemented by handlers whose commands require a permission node.
// Actors lacking the node are denied before the handler runs.
type PermissionedHandler interface {
	Handler
	// PermissionNode returns the node guarding command, or "" if it is unrestricted.
	PermissionNode(command string) string
}
