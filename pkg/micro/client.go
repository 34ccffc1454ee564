package micro

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Client represents a NATS client with enhanced logging and error handling.
type Client struct {
	*nats.Conn
	log        zerolog.Logger
	natsConfig NATSConfig
}

// NATSConfig holds the configuration for the NATS client.
type NATSConfig struct {
	Name            string `env:"NATS_NAME" envDefault:"hammerd"`
	URL             string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	CredentialsFile string `env:"NATS_CREDENTIALS_FILE"`
}

// Validate validates the NATS configuration and returns an error if invalid.
func (cfg NATSConfig) Validate() error {
	if cfg.URL == "" {
		return eris.New("NATS URL is required")
	}
	// CredentialsFile, NKey fields are all optional.
	// If none are provided, will connect without authentication (for testing).
	return nil
}

// NewClient creates a new NATS client with the given configuration.
// It handles connection setup, error handling, and logging.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		Conn:       nil,
		log:        zerolog.Nop(),
		natsConfig: NATSConfig{},
	}

	// Parse the NATS config from environment variables.
	var err error
	c.natsConfig, err = env.ParseAs[NATSConfig]()
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse NATS config")
	}

	// Apply options that may override environment variables.
	for _, opt := range opts {
		opt(c)
	}

	if err := c.natsConfig.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid NATS config")
	}

	// Init NATS options with validated configuration.
	natsOpts := []nats.Option{
		nats.Name(c.natsConfig.Name),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second * 5),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}

	// Add credentials authentication if credentials file is provided.
	if c.natsConfig.CredentialsFile != "" {
		natsOpts = append(natsOpts, nats.UserCredentials(c.natsConfig.CredentialsFile))
	}
	// Else we're unauthenticated.

	// Create the NATS connection.
	conn, err := nats.Connect(c.natsConfig.URL, natsOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "failed to connect to NATS server")
	}
	c.Conn = conn

	c.log.Info().
		Str("url", c.ConnectedUrl()).
		Str("name", c.natsConfig.Name).
		Msg("Connected to NATS server")

	return c, nil
}

// Request sends payload to subject and decodes the reply into out (request-reply pattern).
// The trace context of ctx travels in the message headers. The timeout should be set in ctx.
func (c *Client) Request(ctx context.Context, subject string, payload any, out any) error {
	msg, err := newMsg(ctx, subject, "", payload)
	if err != nil {
		return err
	}

	reply, err := c.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return eris.Wrapf(err, "failed to send request to %s", subject)
	}

	var res Response
	if err := json.Unmarshal(reply.Data, &res); err != nil {
		return eris.Wrap(err, "failed to unmarshal response")
	}
	// Check for application-level errors in the response status.
	if res.Status.Code != CodeOK {
		return &StatusError{Code: res.Status.Code, Message: res.Status.Message}
	}
	if out != nil && len(res.Payload) > 0 {
		if err := json.Unmarshal(res.Payload, out); err != nil {
			return eris.Wrap(err, "failed to unmarshal response payload")
		}
	}
	return nil
}

// PublishJSON sends payload to subject without waiting for a reply.
func (c *Client) PublishJSON(ctx context.Context, subject string, payload any) error {
	msg, err := newMsg(ctx, subject, "", payload)
	if err != nil {
		return err
	}
	return eris.Wrapf(c.PublishMsg(msg), "failed to publish to %s", subject)
}

func newMsg(ctx context.Context, subject, requestID string, payload any) (*nats.Msg, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req := Request{RequestID: requestID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, eris.Wrap(err, "failed to marshal payload")
		}
		req.Payload = raw
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal request")
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))
	return msg, nil
}

// Close gracefully closes the NATS connection and logs the event.
func (c *Client) Close() {
	if c.Conn != nil {
		c.Conn.Close()
		c.log.Info().Msg("NATS connection closed")
	}
}

// handleDisconnect handles NATS disconnection events.
func (c *Client) handleDisconnect(nc *nats.Conn, err error) {
	log := c.log.With().
		Str("nats_url", nc.ConnectedUrl()).
		Uint64("reconnect_attempts", nc.Reconnects).
		Logger()

	if err != nil {
		log.Error().Err(err).Msg("Disconnected from NATS with error")
	} else {
		log.Warn().Msg("Disconnected from NATS (no error)")
	}
}

// handleReconnect handles NATS reconnection events.
func (c *Client) handleReconnect(nc *nats.Conn) {
	c.log.Info().
		Str("nats_url", nc.ConnectedUrl()).
		Uint64("reconnect_attempts", nc.Reconnects).
		Msg("Reconnected to NATS")
}

// handleClosed handles NATS connection closure events.
func (c *Client) handleClosed(nc *nats.Conn) {
	log := c.log.With().
		Uint64("reconnect_attempts", nc.Reconnects).
		Logger()

	if err := nc.LastError(); err != nil {
		log.Warn().Err(err).Msg("NATS connection closed with error")
	} else {
		log.Info().Msg("NATS connection closed")
	}
}

// handleError handles NATS subscription errors.
func (c *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	ev := c.log.Error().Err(err)
	if sub != nil {
		ev = ev.Str("subject", sub.Subject)
	}
	ev.Msg("NATS subscription error occurred")
}

// -------------------------------------------------------------------------------------------------
// Options
// -------------------------------------------------------------------------------------------------

// ClientOption defines a function that can modify a Client.
type ClientOption func(*Client)

// WithLogger returns a ClientOption that sets the logger.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithNATSConfig returns a ClientOption that sets the NATS configuration.
func WithNATSConfig(cfg NATSConfig) ClientOption {
	return func(c *Client) {
		c.natsConfig = cfg
	}
}
