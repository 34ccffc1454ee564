package builtin

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/argus-labs/sledgehammer/pkg/hammer/chattag"
	"github.com/argus-labs/sledgehammer/pkg/hammer/command"
	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	"github.com/argus-labs/sledgehammer/pkg/hammer/module"
)

// DefaultLogCount is how many entries /log shows without a count argument.
const DefaultLogCount = 10

// Modules is the part of the module registry the core commands use.
type Modules interface {
	Instances() []*module.Instance
	Reload(id string) error
}

type coreCommand struct {
	tooltip string
	node    string // Permission node, empty when everyone may run it
	run     func(c *Commands, cmd *command.Command, resp *command.Response)
}

var coreCommands = map[string]coreCommand{
	"broadcast": {
		tooltip: `Broadcasts a message to the server. ex: /broadcast "red" "message"`,
		node:    "sledgehammer.core.moderation.broadcast",
		run:     (*Commands).broadcast,
	},
	"colors": {
		tooltip: "Displays all supported colors on this server.",
		node:    "sledgehammer.core.basic.colors",
		run: func(_ *Commands, _ *command.Command, resp *command.Response) {
			resp.Succeed(chattag.ListColors())
		},
	},
	"log": {
		tooltip: "Shows recent log entries. ex: /log 20 staff",
		node:    "sledgehammer.core.moderation.log",
		run:     (*Commands).recent,
	},
	"modules": {
		tooltip: "Lists modules and their state.",
		node:    "sledgehammer.core.moderation.modules",
		run:     (*Commands).modules,
	},
	"players": {
		tooltip: "Lists the players online.",
		node:    "sledgehammer.core.basic.players",
		run:     (*Commands).online,
	},
	"pm": {
		tooltip: `Private messages a player. ex: /pm "player" "message"`,
		node:    "sledgehammer.core.basic.pm",
		run:     (*Commands).pm,
	},
	"reload": {
		tooltip: "Reloads a module on the next tick. ex: /reload chat",
		node:    "sledgehammer.core.moderation.reload",
		run:     (*Commands).reload,
	},
	"warn": {
		tooltip: `Warns a player. ex: /warn "player" "message"`,
		node:    "sledgehammer.core.moderation.warn",
		run:     (*Commands).warn,
	},
}

// CommandsOptions wires the core commands to the engine. Any field may be nil; commands
// that need a missing collaborator fail politely.
type CommandsOptions struct {
	Modules     Modules
	History     *logsink.History
	Players     Players
	Permissions command.PermissionChecker
}

// Commands is the core command handler. It runs last, after the vanilla handler, so modules
// and the game can override every command it answers.
type Commands struct {
	opts CommandsOptions
}

var (
	_ command.Handler             = (*Commands)(nil)
	_ command.PermissionedHandler = (*Commands)(nil)
)

func NewCommands(opts CommandsOptions) *Commands {
	return &Commands{opts: opts}
}

func (c *Commands) Commands() []string {
	names := make([]string, 0, len(coreCommands))
	for name := range coreCommands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (c *Commands) PermissionNode(name string) string {
	return coreCommands[name].node
}

// Tooltip hides commands the actor is not allowed to run.
func (c *Commands) Tooltip(actor command.Actor, name string) string {
	cc, ok := coreCommands[name]
	if !ok {
		return ""
	}
	if c.opts.Permissions != nil && cc.node != "" && !c.opts.Permissions.HasPermission(actor, cc.node) {
		return ""
	}
	return cc.tooltip
}

func (c *Commands) OnCommand(_ context.Context, cmd *command.Command, resp *command.Response) error {
	cc, ok := coreCommands[cmd.Name()]
	if !ok {
		return nil
	}
	cc.run(c, cmd, resp)
	return nil
}

func (c *Commands) modules(_ *command.Command, resp *command.Response) {
	if c.opts.Modules == nil {
		resp.Fail("Modules are not available.")
		return
	}
	var b strings.Builder
	b.WriteString("Modules:")
	b.WriteString(chattag.NewLine)
	insts := c.opts.Modules.Instances()
	if len(insts) == 0 {
		b.WriteString(" No modules registered.")
	}
	for _, inst := range insts {
		b.WriteString(chattag.LightGreen)
		b.WriteString(" " + inst.ID() + ":")
		b.WriteString(chattag.White)
		fmt.Fprintf(&b, " %s %s [%s]", inst.Name(), inst.Module().Version(), inst.State())
		if inst.Quarantined() {
			b.WriteString(chattag.Red)
			b.WriteString(" failed")
		}
		b.WriteString(chattag.NewLine)
	}
	resp.Succeed(b.String())
}

func (c *Commands) reload(cmd *command.Command, resp *command.Response) {
	id, ok := cmd.Arg(0)
	if !ok {
		resp.Fail("/reload [module]")
		return
	}
	if c.opts.Modules == nil || c.opts.Modules.Reload(id) != nil {
		resp.Fail("Unknown module: " + id)
		return
	}
	resp.Succeed("Module " + id + " will reload on the next tick.")
	resp.LogImportant(logsink.CategoryStaff, cmd.Actor.Name()+" reloaded module "+id)
}

// recent answers /log [count] [category].
func (c *Commands) recent(cmd *command.Command, resp *command.Response) {
	if c.opts.History == nil {
		resp.Fail("Log history is disabled.")
		return
	}
	count := DefaultLogCount
	var (
		category    logsink.Category
		hasCategory bool
	)
	for _, arg := range cmd.Args() {
		if n, err := strconv.Atoi(arg); err == nil && n > 0 {
			count = n
			continue
		}
		parsed, err := logsink.ParseCategory(arg)
		if err != nil {
			resp.Fail("/log [count] [info|warn|error|cheat|staff]")
			return
		}
		category, hasCategory = parsed, true
	}

	records := c.opts.History.Filter(func(rec logsink.Record) bool {
		return !hasCategory || rec.Category == category
	})
	if len(records) > count {
		records = records[len(records)-count:]
	}

	var b strings.Builder
	b.WriteString("Recent log entries:")
	b.WriteString(chattag.NewLine)
	if len(records) == 0 {
		b.WriteString(" No log entries.")
	}
	for _, rec := range records {
		fmt.Fprintf(&b, " [%s] [%s] %s", rec.Time.Format("15:04:05"), rec.Category, rec.Message)
		b.WriteString(chattag.NewLine)
	}
	resp.Succeed(b.String())
}

func (c *Commands) online(_ *command.Command, resp *command.Response) {
	if c.opts.Players == nil {
		resp.Fail("No player directory is available.")
		return
	}
	online := c.opts.Players.Connected()
	names := make([]string, 0, len(online))
	for _, p := range online {
		names = append(names, p.Name())
	}
	msg := fmt.Sprintf("Players online (%d):", len(names))
	if len(names) > 0 {
		msg += chattag.NewLine + " " + strings.Join(names, ", ")
	}
	resp.Succeed(msg)
}

func (c *Commands) pm(cmd *command.Command, resp *command.Response) {
	target, msg, ok := c.targetAndMessage(cmd, resp, "/pm [player] [message...]")
	if !ok {
		return
	}
	c.opts.Players.Send(target, chattag.LightGreen+" [PM] "+cmd.Actor.Name()+":"+chattag.White+" "+msg)
	resp.Succeed("Message sent.")
}

func (c *Commands) warn(cmd *command.Command, resp *command.Response) {
	target, msg, ok := c.targetAndMessage(cmd, resp, "/warn [player] [message...]")
	if !ok {
		return
	}
	c.opts.Players.Send(target, chattag.Red+" [WARNING]:"+chattag.White+" You have been warned. Reason: "+msg)
	resp.Succeed("Player warned.")
	resp.Log(logsink.CategoryStaff, fmt.Sprintf("%s warned %s with message: %q", cmd.Actor.Name(), target.Name(), msg))
}

func (c *Commands) broadcast(cmd *command.Command, resp *command.Response) {
	if c.opts.Players == nil {
		resp.Fail("No player directory is available.")
		return
	}
	args := cmd.Args()
	color := chattag.White
	if len(args) > 1 {
		if tag, ok := chattag.Color(args[0]); ok {
			color, args = tag, args[1:]
		}
	}
	if len(args) == 0 {
		resp.Fail("/broadcast [color] [message...]")
		return
	}
	msg := strings.Join(args, " ")
	n := broadcast(c.opts.Players, color+" "+msg)
	resp.Succeed(fmt.Sprintf("Broadcast sent to %d players.", n))
	resp.Log(logsink.CategoryStaff, cmd.Actor.Name()+" broadcast: "+msg)
}

// targetAndMessage resolves "<player> <message...>" to an online player. It fails resp and
// returns false when that is not possible.
func (c *Commands) targetAndMessage(
	cmd *command.Command,
	resp *command.Response,
	usage string,
) (command.Actor, string, bool) {
	if c.opts.Players == nil {
		resp.Fail("No player directory is available.")
		return nil, "", false
	}
	if cmd.NArgs() < 2 {
		resp.Fail(usage)
		return nil, "", false
	}
	name, _ := cmd.Arg(0)
	rest, _ := cmd.SubArgs(1)

	target, ok := c.opts.Players.Find(name)
	if !ok {
		resp.Fail("Player not found: " + name)
		return nil, "", false
	}
	if !target.Connected() {
		resp.Fail("Player is not online: " + target.Name())
		return nil, "", false
	}
	return target, strings.Join(rest, " "), true
}
