// Package builtin holds the engine's own handlers: the core command and event handlers that
// run after every module handler, and the bridge to the host game's vanilla commands.
package builtin

import (
	"context"

	"github.com/argus-labs/sledgehammer/pkg/hammer/command"
)

// Players is the host's directory of players.
type Players interface {
	// Find returns a player by name, online or not.
	Find(name string) (command.Actor, bool)
	Connected() []command.Actor
	// Send delivers a chat line to one player.
	Send(to command.Actor, message string)
}

// Executor runs the host game's own commands.
type Executor interface {
	Commands() []string
	// Execute runs cmd for actor. ok is false when the game does not know the command.
	Execute(ctx context.Context, actor command.Actor, cmd *command.Command) (reply string, ok bool, err error)
}

func broadcast(players Players, message string) int {
	online := players.Connected()
	for _, p := range online {
		players.Send(p, message)
	}
	return len(online)
}
