package micro

import (
	"sync/atomic"

	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// DefaultLogSubject is the subject prefix log records are published under.
const DefaultLogSubject = "hammer.log"

// LogPublisher is a log sink that publishes every record as JSON on
// "<prefix>.<kind>.<category>", so subscribers can pick e.g. "hammer.log.*.cheat".
// Publishing is buffered by the NATS client and never blocks dispatch.
type LogPublisher struct {
	client *Client
	prefix string
	failed atomic.Uint64
	log    zerolog.Logger
}

var _ logsink.Sink = (*LogPublisher)(nil)

func NewLogPublisher(client *Client, prefix string, log zerolog.Logger) (*LogPublisher, error) {
	if client == nil {
		return nil, eris.New("NATS client is required")
	}
	if prefix == "" {
		prefix = DefaultLogSubject
	}
	return &LogPublisher{client: client, prefix: prefix, log: log}, nil
}

// Subject returns the subject rec is published on.
func (p *LogPublisher) Subject(rec logsink.Record) string {
	return p.prefix + "." + string(rec.Kind) + "." + rec.Category.String()
}

func (p *LogPublisher) OnLogEntry(rec logsink.Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		p.failed.Add(1)
		p.log.Error().Err(err).Msg("failed to encode log record")
		return
	}
	if err := p.client.Publish(p.Subject(rec), data); err != nil {
		p.failed.Add(1)
		p.log.Warn().Err(err).Str("subject", p.Subject(rec)).Msg("failed to publish log record")
	}
}

// Failed returns the number of records that could not be published.
func (p *LogPublisher) Failed() uint64 { return p.failed.Load() }
