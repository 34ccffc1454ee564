// Package statsd wraps the few statsd calls the engine makes. It hides the datadog dependency
// so swapping the metrics backend only touches this file.
package statsd

import (
	"sync/atomic"
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

var client atomic.Pointer[ddstatsd.ClientInterface] //nolint:gochecknoglobals // process-wide metrics client

func init() { //nolint:gochecknoinits // default to a no-op client
	var noop ddstatsd.ClientInterface = &ddstatsd.NoOpClient{}
	client.Store(&noop)
}

func Client() ddstatsd.ClientInterface {
	return *client.Load()
}

// SetClient replaces the global client and returns the previous one.
func SetClient(c ddstatsd.ClientInterface) ddstatsd.ClientInterface {
	return *client.Swap(&c)
}

// EmitTickStat records how long one engine tick stage took.
func EmitTickStat(start time.Time, stage string) {
	timing("tick", start, "stage:"+stage)
}

// EmitDispatchStat records how long one command or event dispatch took.
func EmitDispatchStat(start time.Time, kind, name string) {
	timing("dispatch", start, "kind:"+kind, "name:"+name)
}

// EmitModuleStat records how long one module hook took.
func EmitModuleStat(start time.Time, module, hook string) {
	timing("module", start, "module:"+module, "hook:"+hook)
}

// Incr bumps a counter, e.g. handler failures.
func Incr(name string, tags ...string) {
	if err := Client().Incr(name, tags, 1); err != nil {
		log.Logger.Warn().Err(err).Str("metric", name).Msg("failed to emit counter")
	}
}

func timing(name string, start time.Time, tags ...string) {
	if err := Client().Timing(name, time.Since(start), tags, 1); err != nil {
		log.Logger.Warn().Err(err).Str("metric", name).Msg("failed to emit timing")
	}
}

// Init connects the global client to a statsd agent.
func Init(address string, tags []string) error {
	if address == "" {
		return eris.New("address must not be empty")
	}
	opts := []ddstatsd.Option{
		// The statsd namespace is the prefix of all metrics
		ddstatsd.WithNamespace("sledgehammer."),
	}
	if len(tags) > 0 {
		opts = append(opts, ddstatsd.WithTags(tags))
	}

	newClient, err := ddstatsd.New(address, opts...)
	if err != nil {
		return eris.Wrap(err, "failed to create statsd client")
	}
	SetClient(newClient)
	return nil
}

// Close flushes and closes the global client, leaving a no-op client in its place.
func Close() error {
	old := SetClient(&ddstatsd.NoOpClient{})
	return eris.Wrap(old.Close(), "failed to close statsd client")
}
