package command

import (
	"slices"
	"strings"

	"github.com/argus-labs/sledgehammer/pkg/hammer/chattag"
	"github.com/argus-labs/sledgehammer/pkg/hammer/internal/guard"
	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	"github.com/rotisserie/eris"
)

type helpEntry struct {
	name    string
	tooltip string
}

// help answers /help with every command visible to the actor: registered handlers first,
// then vanilla and core. Within each group commands are sorted by name.
func (d *Dispatcher) help(cmd *Command, resp *Response) {
	d.mu.RLock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	registered := make([][]Handler, len(names))
	for i, name := range names {
		registered[i] = slices.Clone(d.handlers[name])
	}
	vanilla, core := d.vanilla, d.core
	d.mu.RUnlock()

	type key struct {
		name    string
		handler Handler
	}
	seen := make(map[key]bool)
	var entries []helpEntry
	add := func(name string, h Handler) {
		k := key{name: name, handler: h}
		if seen[k] {
			return
		}
		seen[k] = true
		if tip := d.tooltip(h, cmd.Actor, name); tip != "" {
			entries = append(entries, helpEntry{name: name, tooltip: tip})
		}
	}

	for i, name := range names {
		for _, h := range registered[i] {
			add(name, h)
		}
	}
	for _, h := range []Handler{vanilla, core} {
		if h == nil {
			continue
		}
		builtin := make([]string, 0, len(h.Commands()))
		for _, name := range h.Commands() {
			builtin = append(builtin, NormalizeName(name))
		}
		slices.Sort(builtin)
		for _, name := range builtin {
			add(name, h)
		}
	}

	resp.Succeed(formatHelp(entries))
}

func (d *Dispatcher) tooltip(h Handler, actor Actor, name string) string {
	var tip string
	err := guard.Run(func() { tip = h.Tooltip(actor, name) })
	if err != nil {
		err = eris.Wrapf(err, "tooltip for /%s", name)
		d.report("command tooltip failed", logsink.WithTag(err, logsink.TagCommand, name))
		return ""
	}
	return tip
}

func formatHelp(entries []helpEntry) string {
	var b strings.Builder
	b.WriteString("Commands:")
	b.WriteString(chattag.NewLine)
	if len(entries) == 0 {
		b.WriteString(" No commands available.")
		return b.String()
	}
	for _, e := range entries {
		b.WriteString(chattag.LightGreen)
		b.WriteString(" " + e.name + ":")
		b.WriteString(chattag.White)
		b.WriteString(" " + e.tooltip)
		b.WriteString(chattag.NewLine)
	}
	return b.String()
}
