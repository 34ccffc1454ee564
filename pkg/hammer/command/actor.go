package command

// Actor is whoever issued a command: a connected player or an operator console.
type Actor interface {
	Name() string
	// Connected reports whether the actor has a live network connection. Responses to
	// disconnected actors are rendered as plain text.
	Connected() bool
}

type consoleActor struct{}

func (consoleActor) Name() string    { return "console" }
func (consoleActor) Connected() bool { return false }

// Console is the operator console. It has no connection, so its responses are plain text.
var Console Actor = consoleActor{} //nolint:gochecknoglobals // stateless singleton

// PermissionChecker answers whether an actor holds a permission node.
type PermissionChecker interface {
	HasPermission(actor Actor, node string) bool
}
