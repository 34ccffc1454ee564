package script_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/argus-labs/sledgehammer/pkg/hammer"
	"github.com/argus-labs/sledgehammer/pkg/hammer/command"
	"github.com/argus-labs/sledgehammer/pkg/hammer/event"
	"github.com/argus-labs/sledgehammer/pkg/hammer/module"
	"github.com/argus-labs/sledgehammer/pkg/hammer/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greeterSource = `package main

import (
	"context"
	"strings"

	"hammer"
)

const PluginName = "greeter"
const PluginVersion = "1.2.0"

var PluginSettings = map[string]string{"greeting": "Howdy"}

func Modules() []hammer.Module {
	return []hammer.Module{{
		ID:      "greeter",
		Name:    "Greeter",
		Version: "1.2.0",
		Load: func(h *hammer.Host) error {
			greeting := h.Setting("greeting")
			if err := h.Command("hello", "Greets you.", func(_ context.Context, c *hammer.Command, r *hammer.Response) error {
				r.Succeed(greeting + ", " + c.Actor.Name() + "!")
				r.Log(hammer.CategoryInfo, c.Actor.Name()+" was greeted")
				return nil
			}); err != nil {
				return err
			}
			return h.On("chat", func(_ context.Context, ev hammer.Event) error {
				chat, ok := ev.(*hammer.Chat)
				if ok && strings.Contains(chat.Message, "badword") {
					ev.Cancel()
				}
				return nil
			})
		},
	}}
}
`

const brokenSource = `package main

func Modules() []int {
	return nil
`

const noModulesSource = `package main

const PluginName = "empty"
`

func writePlugin(t *testing.T, dir, file, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(src), 0o600))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	plugin, err := script.Load("fallback", greeterSource)
	require.NoError(t, err)
	assert.Equal(t, "greeter", plugin.Name)
	assert.Equal(t, "1.2.0", plugin.Version)
	assert.Equal(t, map[string]string{"greeting": "Howdy"}, plugin.Settings)
	require.Len(t, plugin.Modules, 1)
	assert.Equal(t, "greeter", plugin.Modules[0].ID())
	assert.Equal(t, "Greeter", plugin.Modules[0].Name())
	assert.Equal(t, "1.2.0", plugin.Modules[0].Version())
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := script.Load("broken", brokenSource)
	require.Error(t, err)

	_, err = script.Load("empty", noModulesSource)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not declare Modules")
}

func TestLoad_RejectsUnlistedPackages(t *testing.T) {
	t.Parallel()

	_, err := script.Load("shell", `package main

import "os/exec"

func Modules() []int { exec.Command("true"); return nil }
`)
	require.Error(t, err)
}

func TestProvider_Modules(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePlugin(t, dir, "b_greeter.go", greeterSource)
	writePlugin(t, dir, "a_broken.go", brokenSource)
	writePlugin(t, dir, "c_duplicate.go", greeterSource)
	writePlugin(t, dir, "notes.txt", "not a plugin")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.go"), 0o700))

	plugins, err := script.NewProvider(dir).Modules(context.Background())
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, "greeter", plugins[0].Name)
}

func TestProvider_MissingDir(t *testing.T) {
	t.Parallel()

	_, err := script.NewProvider(filepath.Join(t.TempDir(), "missing")).Modules(context.Background())
	require.Error(t, err)
}

func TestProvider_Engine(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePlugin(t, dir, "greeter.go", greeterSource)

	e, err := hammer.New(
		hammer.WithConfig(hammer.Config{TickRate: 20, ServiceName: "test", LogHistory: 8}),
		hammer.WithProvider(script.NewProvider(dir)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	inst, ok := e.Registry().Instance("greeter")
	require.True(t, ok)
	assert.Equal(t, module.StateStarted, inst.State())
	assert.Equal(t, "greeter", inst.Owner())

	resp := e.HandleCommand(ctx, command.Console, "/hello", true)
	assert.Equal(t, command.ResultSuccess, resp.Result)
	assert.Equal(t, "Howdy, console!", resp.Message)
	require.Len(t, e.History().Last(1), 1)
	assert.Equal(t, "console was greeted", e.History().Last(1)[0].Message)

	ev := e.Handle(ctx, event.NewChat("alice", "global", "a badword here"))
	assert.True(t, ev.Cancelled())
	ev = e.Handle(ctx, event.NewChat("alice", "global", "hello"))
	assert.False(t, ev.Cancelled())

	require.NoError(t, e.UnregisterModule(ctx, "greeter"))
	resp = e.HandleCommand(ctx, command.Console, "/hello", false)
	assert.NotEqual(t, "Howdy, console!", resp.Message)
}
