package builtin

import (
	"context"

	"github.com/argus-labs/sledgehammer/pkg/hammer/command"
	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	"github.com/rotisserie/eris"
)

// Vanilla hands commands to the host game. It is installed as the dispatcher's vanilla
// handler, so it only sees commands no module handled.
type Vanilla struct {
	exec Executor
}

var _ command.Handler = (*Vanilla)(nil)

func NewVanilla(exec Executor) *Vanilla {
	return &Vanilla{exec: exec}
}

func (v *Vanilla) Commands() []string { return v.exec.Commands() }

func (v *Vanilla) OnCommand(ctx context.Context, cmd *command.Command, resp *command.Response) error {
	reply, ok, err := v.exec.Execute(ctx, cmd.Actor, cmd)
	if err != nil {
		return eris.Wrapf(err, "game rejected /%s", cmd.Name())
	}
	if !ok {
		return nil
	}
	resp.Succeed(reply)
	resp.Log(logsink.CategoryInfo, cmd.Actor.Name()+" ran "+cmd.Raw())
	return nil
}

// Tooltip defers to the executor when it describes its commands.
func (v *Vanilla) Tooltip(actor command.Actor, name string) string {
	if t, ok := v.exec.(interface {
		Tooltip(actor command.Actor, name string) string
	}); ok {
		return t.Tooltip(actor, name)
	}
	return ""
}
