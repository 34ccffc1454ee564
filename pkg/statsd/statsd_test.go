package statsd_test

import (
	"sync"
	"testing"
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/argus-labs/sledgehammer/pkg/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	ddstatsd.NoOpClient
	mu      sync.Mutex
	timings map[string][]string
	counts  map[string]int
}

func (c *capture) Timing(name string, _ time.Duration, tags []string, _ float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timings[name] = append(c.timings[name], tags...)
	return nil
}

func (c *capture) Incr(name string, _ []string, _ float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name]++
	return nil
}

// Not parallel: swaps the process-wide client.
func TestEmit(t *testing.T) { //nolint:paralleltest // global client
	c := &capture{timings: map[string][]string{}, counts: map[string]int{}}
	prev := statsd.SetClient(c)
	t.Cleanup(func() { statsd.SetClient(prev) })

	start := time.Now()
	statsd.EmitTickStat(start, "update")
	statsd.EmitDispatchStat(start, "command", "ban")
	statsd.EmitModuleStat(start, "chat", "update")
	statsd.Incr("handler_failure", "kind:event")

	assert.Equal(t, []string{"stage:update"}, c.timings["tick"])
	assert.Equal(t, []string{"kind:command", "name:ban"}, c.timings["dispatch"])
	assert.Equal(t, []string{"module:chat", "hook:update"}, c.timings["module"])
	assert.Equal(t, 1, c.counts["handler_failure"])
}

func TestInit_RequiresAddress(t *testing.T) {
	t.Parallel()
	require.Error(t, statsd.Init("", nil))
}
