package event

import (
	"fmt"
	"time"

	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
)

// Built-in event types.
const (
	TypeAll        = "*" // Handlers registered for TypeAll receive every event
	TypeChat       = "chat"
	TypeConnect    = "connect"
	TypeDisconnect = "disconnect"
	TypeKill       = "kill"
	TypeCheat      = "cheat"
)

func newBase(actor string) Base {
	return Base{actor: actor, time: time.Now()}
}

// Chat is a message sent on a chat channel.
type Chat struct {
	Base
	Sender  string
	Channel string
	Message string
}

func NewChat(sender, channel, message string) *Chat {
	return &Chat{Base: newBase(sender), Sender: sender, Channel: channel, Message: message}
}

func (e *Chat) Type() string { return TypeChat }

func (e *Chat) LogMessage() string {
	return fmt.Sprintf("[%s] %s: %s", e.Channel, e.Sender, e.Message)
}

// Connect is a player joining the server.
type Connect struct {
	Base
	Player  string
	Address string
}

func NewConnect(player, address string) *Connect {
	return &Connect{Base: newBase(player), Player: player, Address: address}
}

func (e *Connect) Type() string { return TypeConnect }

func (e *Connect) LogMessage() string {
	return fmt.Sprintf("%s connected from %s", e.Player, e.Address)
}

// Disconnect is a player leaving the server.
type Disconnect struct {
	Base
	Player string
	Reason string
}

func NewDisconnect(player, reason string) *Disconnect {
	return &Disconnect{Base: newBase(player), Player: player, Reason: reason}
}

func (e *Disconnect) Type() string { return TypeDisconnect }

func (e *Disconnect) LogMessage() string {
	if e.Reason == "" {
		return e.Player + " disconnected"
	}
	return fmt.Sprintf("%s disconnected (%s)", e.Player, e.Reason)
}

// Kill is one player killing another.
type Kill struct {
	Base
	Killer string
	Victim string
	Weapon string
}

func NewKill(killer, victim, weapon string) *Kill {
	e := &Kill{Base: newBase(killer), Killer: killer, Victim: victim, Weapon: weapon}
	e.SetAnnounce(true)
	return e
}

func (e *Kill) Type() string { return TypeKill }

func (e *Kill) LogMessage() string {
	if e.Weapon == "" {
		return fmt.Sprintf("%s killed %s", e.Killer, e.Victim)
	}
	return fmt.Sprintf("%s killed %s with %s", e.Killer, e.Victim, e.Weapon)
}

// Cheat is a suspected cheating report raised by the host's anti-cheat checks.
type Cheat struct {
	Base
	Player string
	Reason string
}

func NewCheat(player, reason string) *Cheat {
	e := &Cheat{Base: newBase(player), Player: player, Reason: reason}
	e.SetCategory(logsink.CategoryCheat)
	e.SetImportant(true)
	return e
}

func (e *Cheat) Type() string { return TypeCheat }

func (e *Cheat) LogMessage() string {
	return fmt.Sprintf("%s suspected of cheating: %s", e.Player, e.Reason)
}

// Generic is an event of a host- or module-defined type with a free-form payload.
type Generic struct {
	Base
	Name    string
	Message string
	Payload map[string]any
}

func NewGeneric(name, message string) *Generic {
	return &Generic{Base: newBase(""), Name: name, Message: message, Payload: map[string]any{}}
}

func (e *Generic) Type() string { return e.Name }

func (e *Generic) LogMessage() string { return e.Message }
