// Command hammerd is a development host for the sledgehammer engine. It drives the engine
// from a fixed-rate tick loop, reads console commands from stdin and can expose a remote
// console and the audit log over NATS and websockets.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/argus-labs/sledgehammer/pkg/hammer"
	"github.com/argus-labs/sledgehammer/pkg/hammer/command"
	"github.com/argus-labs/sledgehammer/pkg/hammer/logstream"
	"github.com/argus-labs/sledgehammer/pkg/hammer/script"
	"github.com/argus-labs/sledgehammer/pkg/micro"
	"github.com/argus-labs/sledgehammer/pkg/statsd"
	"github.com/argus-labs/sledgehammer/pkg/telemetry"
	"github.com/argus-labs/sledgehammer/pkg/telemetry/sentry"
	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// Set with -ldflags "-X main.version=...".
var version = "dev" //nolint:gochecknoglobals // build metadata

// daemonConfig holds the settings only the dev host reads.
type daemonConfig struct {
	NATSEnabled bool   `env:"HAMMER_NATS_ENABLED" envDefault:"false"`
	LogSubject  string `env:"HAMMER_LOG_SUBJECT" envDefault:"hammer.log"`
	Stdin       bool   `env:"HAMMER_STDIN_CONSOLE" envDefault:"true"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, eris.ToString(err, true))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := hammer.LoadConfig()
	if err != nil {
		return err
	}
	daemon, err := env.ParseAs[daemonConfig]()
	if err != nil {
		return eris.Wrap(err, "failed to parse daemon config")
	}
	streamCfg, err := logstream.LoadConfig()
	if err != nil {
		return err
	}

	tel, err := telemetry.New(telemetry.Options{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		SentryOptions: sentry.Options{
			Release: cfg.ReportRelease(version),
			Tags:    cfg.ReportTags,
		},
	})
	if err != nil {
		return eris.Wrap(err, "failed to set up telemetry")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			tel.Logger.Error().Err(err).Msg("telemetry shutdown error")
		}
	}()
	defer tel.Reporter.RecoverAndFlush(true)

	if cfg.StatsdAddress != "" {
		if err := statsd.Init(cfg.StatsdAddress, []string{"service:" + cfg.ServiceName}); err != nil {
			return eris.Wrap(err, "failed to set up statsd")
		}
		defer func() { _ = statsd.Close() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []hammer.Option{
		hammer.WithConfig(cfg),
		hammer.WithLogger(tel.GetLogger("engine")),
		hammer.WithTracer(tel.Tracer),
		hammer.WithHooks(hammer.Hooks{Vanilla: &devGame{stop: stop}}),
	}
	if cfg.PluginDir != "" {
		opts = append(opts, hammer.WithProvider(script.NewProvider(cfg.PluginDir,
			script.WithLogger(tel.GetLogger("script")))))
	}
	engine, err := hammer.New(opts...)
	if err != nil {
		return err
	}
	engine.RegisterExceptionSink(tel.Reporter)

	eg, ctx := errgroup.WithContext(ctx)

	if daemon.NATSEnabled {
		closeNATS, err := setupNATS(engine, daemon, tel)
		if err != nil {
			return err
		}
		defer closeNATS()
	}

	if streamCfg.Addr != "" {
		hub := logstream.NewHub(logstream.WithLogger(tel.GetLogger("logstream")))
		engine.RegisterLogSink(hub)
		eg.Go(func() error { return hub.ListenAndServe(ctx, streamCfg.Addr, streamCfg.Path) })
	}

	if err := engine.Start(ctx); err != nil {
		_ = engine.Shutdown(context.Background())
		return err
	}

	var lines <-chan string
	if daemon.Stdin {
		lines = readLines(ctx, os.Stdin)
	}
	eg.Go(func() error { return tickLoop(ctx, engine, lines) })

	err = eg.Wait()
	if shutdownErr := engine.Shutdown(context.Background()); shutdownErr != nil {
		tel.Logger.Error().Err(shutdownErr).Msg("engine shutdown error")
	}
	if err != nil && !eris.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// setupNATS exposes the remote console and publishes the audit log.
func setupNATS(engine *hammer.Engine, daemon daemonConfig, tel telemetry.Telemetry) (func(), error) {
	consoleCfg, err := micro.LoadConsoleConfig()
	if err != nil {
		return nil, err
	}
	client, err := micro.NewClient(micro.WithLogger(tel.GetLogger("nats")))
	if err != nil {
		return nil, err
	}

	svc, err := micro.NewService(client, consoleCfg.Subject,
		micro.WithServiceLogger(tel.GetLogger("console")),
		micro.WithServiceTracer(tel.Tracer),
		micro.WithServiceReporter(tel.Reporter),
		micro.WithQueueGroup(consoleCfg.Subject))
	if err != nil {
		client.Close()
		return nil, err
	}
	if _, err := micro.NewConsole(svc, engine, consoleCfg, tel.GetLogger("console")); err != nil {
		client.Close()
		return nil, err
	}

	publisher, err := micro.NewLogPublisher(client, daemon.LogSubject, tel.GetLogger("nats"))
	if err != nil {
		client.Close()
		return nil, err
	}
	engine.RegisterLogSink(publisher)

	return func() {
		engine.UnregisterLogSink(publisher)
		if err := svc.Close(); err != nil {
			tel.Logger.Error().Err(err).Msg("console shutdown error")
		}
		client.Close()
	}, nil
}

// tickLoop updates the engine at the configured rate and runs stdin input between ticks.
func tickLoop(ctx context.Context, engine *hammer.Engine, lines <-chan string) error {
	cfg := engine.Config()
	interval := cfg.TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			engine.Update(ctx, now.Sub(last))
			last = now
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if line == "" {
				continue
			}
			resp := engine.RunCommand(ctx, command.Console, line)
			if resp.Message != "" {
				fmt.Fprintln(os.Stdout, resp.Message)
			}
		}
	}
}

// readLines feeds lines from r until EOF or until ctx is done. A Scan blocked on input is
// left behind when ctx ends; the process is exiting by then.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// devGame stands in for the host game's own commands.
type devGame struct {
	stop context.CancelFunc
}

func (g *devGame) Commands() []string { return []string{"say", "stop"} }

func (g *devGame) Execute(_ context.Context, actor command.Actor, cmd *command.Command) (string, bool, error) {
	switch cmd.Name() {
	case "say":
		msg := cmd.ArgumentsAsString()
		if msg == "" {
			return "Usage: /say <message>", true, nil
		}
		return "[" + actor.Name() + "] " + msg, true, nil
	case "stop":
		g.stop()
		return "Stopping server.", true, nil
	default:
		return "", false, nil
	}
}

func (g *devGame) Tooltip(_ command.Actor, name string) string {
	switch name {
	case "say":
		return "Say something to everyone."
	case "stop":
		return "Stop the server."
	default:
		return ""
	}
}
