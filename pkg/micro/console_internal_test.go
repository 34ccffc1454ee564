package micro

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/argus-labs/sledgehammer/pkg/hammer/command"
	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner answers /echo and records who called.
type fakeRunner struct {
	mu     sync.Mutex
	actors []command.Actor
}

func (r *fakeRunner) HandleCommand(_ context.Context, actor command.Actor, input string, _ bool) *command.Response {
	r.mu.Lock()
	r.actors = append(r.actors, actor)
	r.mu.Unlock()

	cmd := command.Parse(input)
	resp := &command.Response{}
	if cmd.Name() != "echo" {
		resp.Fail("Unknown command: /" + cmd.Name())
		return resp
	}
	resp.Succeed(cmd.ArgumentsAsString())
	resp.SetHandled(true)
	return resp
}

func (r *fakeRunner) Commands() []string { return []string{"echo", "help"} }

func (r *fakeRunner) lastActor() command.Actor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.actors[len(r.actors)-1]
}

func newTestConsole(t *testing.T, subject string, cfg ConsoleConfig) (*fakeRunner, *Client) {
	t.Helper()

	svc, client := newTestService(t, subject)
	runner := &fakeRunner{}
	cfg.Subject = subject
	_, err := NewConsole(svc, runner, cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, client.Flush())
	return runner, client
}

func TestConsole_RunCommand(t *testing.T) {
	t.Parallel()

	runner, client := newTestConsole(t, "console-run", ConsoleConfig{Rate: 100, Burst: 10})

	reply, err := client.RunCommand(requestCtx(t), "console-run", "ops", "/echo hello world")
	require.NoError(t, err)
	assert.Equal(t, command.ResultSuccess.String(), reply.Result)
	assert.Equal(t, "hello world", reply.Message)
	assert.True(t, reply.Handled)

	actor := runner.lastActor()
	assert.Equal(t, "ops", actor.Name())
	assert.False(t, actor.Connected())

	reply, err = client.RunCommand(requestCtx(t), "console-run", "  ", "/nope")
	require.NoError(t, err)
	assert.Equal(t, command.ResultFailure.String(), reply.Result)
	assert.Equal(t, "remote", runner.lastActor().Name())
}

func TestConsole_InvalidInput(t *testing.T) {
	t.Parallel()

	_, client := newTestConsole(t, "console-invalid", ConsoleConfig{Rate: 100, Burst: 10})

	_, err := client.RunCommand(requestCtx(t), "console-invalid", "ops", "   ")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, CodeInvalidArgument, statusErr.Code)

	err = client.Request(requestCtx(t), "console-invalid."+EndpointCommand, nil, nil)
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, CodeInvalidArgument, statusErr.Code)
}

func TestConsole_RateLimit(t *testing.T) {
	t.Parallel()

	_, client := newTestConsole(t, "console-rate", ConsoleConfig{Rate: 0.001, Burst: 2})

	for range 2 {
		_, err := client.RunCommand(requestCtx(t), "console-rate", "ops", "/echo hi")
		require.NoError(t, err)
	}
	_, err := client.RunCommand(requestCtx(t), "console-rate", "ops", "/echo hi")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, CodeResourceExhausted, statusErr.Code)
}

func TestConsole_ListCommands(t *testing.T) {
	t.Parallel()

	_, client := newTestConsole(t, "console-list", ConsoleConfig{Rate: 100, Burst: 10})

	names, err := client.ListCommands(requestCtx(t), "console-list")
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "help"}, names)
}

func TestConsoleConfig(t *testing.T) {
	t.Setenv("HAMMER_CONSOLE_RATE", "2.5")

	cfg, err := LoadConsoleConfig()
	require.NoError(t, err)
	assert.Equal(t, "hammer.console", cfg.Subject)
	assert.InDelta(t, 2.5, cfg.Rate, 1e-9)
	assert.Equal(t, 5, cfg.Burst)

	require.Error(t, ConsoleConfig{Subject: "x", Rate: 0, Burst: 1}.Validate())
	require.Error(t, ConsoleConfig{Subject: "x", Rate: 1, Burst: 0}.Validate())
	require.Error(t, ConsoleConfig{Rate: 1, Burst: 1}.Validate())
}

func TestLogPublisher(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	pub, err := NewLogPublisher(client, "", zerolog.Nop())
	require.NoError(t, err)

	sub, err := client.SubscribeSync(DefaultLogSubject + ".*.cheat")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	require.NoError(t, client.Flush())

	info := logsink.NewRecord(logsink.KindEvent, "chat", "hello")
	pub.OnLogEntry(info)

	cheat := logsink.NewRecord(logsink.KindEvent, "cheat", "bob: speed hack")
	cheat.Category = logsink.CategoryCheat
	cheat.Important = true
	pub.OnLogEntry(cheat)
	assert.Equal(t, "hammer.log.event.cheat", pub.Subject(cheat))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hammer.log.event.cheat", msg.Subject)

	var got logsink.Record
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, cheat.ID, got.ID)
	assert.Equal(t, "bob: speed hack", got.Message)
	assert.True(t, got.Important)

	_, err = sub.NextMsg(50 * time.Millisecond)
	require.ErrorIs(t, err, nats.ErrTimeout)
	assert.Equal(t, uint64(0), pub.Failed())
}

func TestNewLogPublisher_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewLogPublisher(nil, "x", zerolog.Nop())
	require.Error(t, err)
}
