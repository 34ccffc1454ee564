// Package script loads modules written as Go source and interpreted with yaegi. Each *.go
// file in the plugin directory is one plugin:
//
//	package main
//
//	import (
//		"context"
//
//		"hammer"
//	)
//
//	const PluginName = "greeter"
//	const PluginVersion = "1.0.0"
//
//	func Modules() []hammer.Module {
//		return []hammer.Module{{
//			ID:   "greeter",
//			Name: "Greeter",
//			Load: func(h *hammer.Host) error {
//				return h.Command("hello", "Say hello.", func(_ context.Context, c *hammer.Command, r *hammer.Response) error {
//					r.Succeed("Hello, " + c.Actor.Name() + "!")
//					return nil
//				})
//			},
//		}}
//	}
//
// A plugin may also declare `var PluginSettings = map[string]string{...}`.
package script

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/argus-labs/sledgehammer/pkg/hammer"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// allowedPackages are the standard library packages scripts may import.
var allowedPackages = []string{ //nolint:gochecknoglobals // fixed allow list
	"context/context",
	"errors/errors",
	"fmt/fmt",
	"math/math",
	"math/rand/rand",
	"regexp/regexp",
	"sort/sort",
	"strconv/strconv",
	"strings/strings",
	"time/time",
	"unicode/utf8/utf8",
}

// Provider reads plugins from a directory each time the engine starts.
type Provider struct {
	dir string
	log zerolog.Logger
}

var _ hammer.Provider = (*Provider)(nil)

type ProviderOption func(*Provider)

func WithLogger(log zerolog.Logger) ProviderOption {
	return func(p *Provider) { p.log = log }
}

func NewProvider(dir string, opts ...ProviderOption) *Provider {
	p := &Provider{dir: dir, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Modules interprets every plugin in the directory. A plugin that fails to evaluate is
// logged and skipped so one broken file does not keep the others from loading.
func (p *Provider) Modules(ctx context.Context) ([]hammer.Plugin, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read plugin dir %s", p.dir)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".go") || strings.HasSuffix(e.Name(), "_test.go") {
			continue
		}
		paths = append(paths, filepath.Join(p.dir, e.Name()))
	}
	slices.Sort(paths)

	plugins := make([]hammer.Plugin, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "plugin loading cancelled")
		}

		plugin, err := LoadFile(path)
		if err != nil {
			p.log.Error().Err(err).Str("path", path).Msg("failed to load plugin")
			continue
		}
		key := strings.ToLower(plugin.Name)
		if first, ok := seen[key]; ok {
			p.log.Warn().Str("path", path).Str("plugin", plugin.Name).Str("first", first).
				Msg("duplicate plugin name, skipping")
			continue
		}
		seen[key] = path

		p.log.Info().
			Str("plugin", plugin.Name).
			Str("version", plugin.Version).
			Int("modules", len(plugin.Modules)).
			Msg("loaded plugin")
		plugins = append(plugins, plugin)
	}
	return plugins, nil
}

// LoadFile interprets one plugin file. The plugin name defaults to the file name.
func LoadFile(path string) (hammer.Plugin, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return hammer.Plugin{}, eris.Wrapf(err, "failed to read plugin %s", path)
	}
	name := strings.TrimSuffix(filepath.Base(path), ".go")
	return Load(name, string(src))
}

// Load interprets plugin source. fallbackName is used when the source declares no
// PluginName.
func Load(fallbackName, src string) (plugin hammer.Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("plugin %s panicked while loading: %v", fallbackName, r)
		}
	}()

	i := interp.New(interp.Options{})
	if err := i.Use(restrictedStdlib()); err != nil {
		return hammer.Plugin{}, eris.Wrap(err, "failed to expose standard library")
	}
	if err := i.Use(exports()); err != nil {
		return hammer.Plugin{}, eris.Wrap(err, "failed to expose engine API")
	}
	if _, err := i.Eval(src); err != nil {
		return hammer.Plugin{}, eris.Wrapf(err, "failed to evaluate plugin %s", fallbackName)
	}

	plugin.Name = stringSymbol(i, "PluginName", fallbackName)
	plugin.Version = stringSymbol(i, "PluginVersion", "")
	if v, err := i.Eval("PluginSettings"); err == nil {
		if settings, ok := v.Interface().(map[string]string); ok {
			plugin.Settings = settings
		}
	}

	v, err := i.Eval("Modules")
	if err != nil {
		return hammer.Plugin{}, eris.Wrapf(err, "plugin %s does not declare Modules", plugin.Name)
	}
	fn, ok := v.Interface().(func() []Module)
	if !ok {
		return hammer.Plugin{}, eris.Errorf("plugin %s: Modules has type %s, want func() []hammer.Module",
			plugin.Name, v.Type())
	}
	for _, def := range fn() {
		plugin.Modules = append(plugin.Modules, &scripted{def: def})
	}
	return plugin, nil
}

func stringSymbol(i *interp.Interpreter, name, fallback string) string {
	v, err := i.Eval(name)
	if err != nil {
		return fallback
	}
	s, ok := v.Interface().(string)
	if !ok || strings.TrimSpace(s) == "" {
		return fallback
	}
	return strings.TrimSpace(s)
}

func restrictedStdlib() interp.Exports {
	restricted := interp.Exports{}
	for _, key := range allowedPackages {
		if syms, ok := stdlib.Symbols[key]; ok {
			restricted[key] = syms
		}
	}
	return restricted
}

