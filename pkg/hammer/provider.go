package hammer

import (
	"context"

	"github.com/argus-labs/sledgehammer/pkg/hammer/builtin"
	"github.com/argus-labs/sledgehammer/pkg/hammer/command"
	"github.com/argus-labs/sledgehammer/pkg/hammer/module"
)

// Plugin is a packaged set of modules. Its name becomes the owner of each module, and its
// settings are handed to every module through module.Host.Setting.
type Plugin struct {
	Name     string
	Version  string
	Settings map[string]string
	Modules  []module.Module
}

// Provider materializes plugins when the engine starts.
type Provider interface {
	Modules(ctx context.Context) ([]Plugin, error)
}

// StaticProvider provides a fixed list of plugins built in Go.
type StaticProvider []Plugin

func (p StaticProvider) Modules(context.Context) ([]Plugin, error) {
	return p, nil
}

// Hooks connect the engine to the host game. Every field is optional.
type Hooks struct {
	// Permissions decides whether an actor may run a permissioned command.
	Permissions command.PermissionChecker
	// Players is the directory used by the core commands and chat relay.
	Players builtin.Players
	// Vanilla runs the game's own commands after every module handler declined.
	Vanilla builtin.Executor
}
