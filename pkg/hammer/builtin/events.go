package builtin

import (
	"context"
	"strings"
	"sync"

	"github.com/argus-labs/sledgehammer/pkg/hammer/chattag"
	"github.com/argus-labs/sledgehammer/pkg/hammer/event"
)

// GlobalChannel is the chat channel relayed to every online player.
const GlobalChannel = "global"

// Events is the core event handler. It relays global chat and announces kills, at most once
// per victim per tick. A repeated kill announcement within a tick is cancelled, which also
// keeps it out of the log.
type Events struct {
	players Players

	mu        sync.Mutex
	announced map[string]struct{}
}

var _ event.Handler = (*Events)(nil)

func NewEvents(players Players) *Events {
	return &Events{players: players, announced: make(map[string]struct{})}
}

func (e *Events) Types() []string {
	return []string{event.TypeChat, event.TypeKill}
}

func (e *Events) OnEvent(_ context.Context, ev event.Event) error {
	if e.players == nil {
		return nil
	}
	switch ev := ev.(type) {
	case *event.Chat:
		if ev.Channel != GlobalChannel {
			return nil
		}
		text := escapeTags(chattag.Strip(ev.Message, false))
		broadcast(e.players, chattag.LightGray+" "+ev.Sender+":"+chattag.White+" "+text)
		ev.SetHandled(true)
	case *event.Kill:
		if !ev.Announce() {
			return nil
		}
		victim := strings.ToLower(ev.Victim)
		e.mu.Lock()
		_, seen := e.announced[victim]
		e.announced[victim] = struct{}{}
		e.mu.Unlock()
		if seen {
			ev.SetHandled(true)
			ev.Cancel()
			return nil
		}
		broadcast(e.players, chattag.Red+" "+ev.LogMessage())
	}
	return nil
}

// ResetTick forgets this tick's announcements. The engine calls it once per update.
func (e *Events) ResetTick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.announced)
}

func escapeTags(text string) string {
	return strings.NewReplacer("<", "&lt;", ">", "&gt;").Replace(text)
}
