package micro

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/argus-labs/sledgehammer/pkg/assert"
	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	ErrEndpointAlreadyExists = eris.New("endpoint already exists")
)

// Handler defines the signature for all service endpoint handlers.
type Handler func(ctx context.Context, req *Request) *Response

// Service serves request-reply endpoints under a common subject prefix.
type Service struct {
	client *Client
	prefix string
	queue  string

	mu        sync.Mutex
	endpoints map[string]*nats.Subscription

	tracer   trace.Tracer
	log      zerolog.Logger
	reporter Reporter
}

// Reporter receives handler panics together with the request context.
type Reporter interface {
	Capture(ctx context.Context, reason string, err error)
}

type ServiceOption func(*Service)

func WithServiceLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

func WithServiceTracer(tracer trace.Tracer) ServiceOption {
	return func(s *Service) { s.tracer = tracer }
}

// WithServiceReporter sends handler panics to r. Each one is tagged with its endpoint.
func WithServiceReporter(r Reporter) ServiceOption {
	return func(s *Service) { s.reporter = r }
}

// WithQueueGroup makes endpoints join a queue group so replicas share the load.
func WithQueueGroup(queue string) ServiceOption {
	return func(s *Service) { s.queue = queue }
}

// NewService creates a service whose endpoints live under prefix.
func NewService(client *Client, prefix string, opts ...ServiceOption) (*Service, error) {
	if client == nil {
		return nil, eris.New("NATS client is required")
	}
	if prefix == "" {
		return nil, eris.New("service subject prefix is required")
	}

	s := &Service{
		client:    client,
		prefix:    prefix,
		endpoints: make(map[string]*nats.Subscription),
		tracer:    noop.NewTracerProvider().Tracer("micro"),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Subject returns the full subject of endpoint.
func (s *Service) Subject(endpoint string) string {
	return s.prefix + "." + endpoint
}

// NATS returns the underlying NATS client.
func (s *Service) NATS() *Client {
	return s.client
}

// AddGroup returns a helper struct that allows registering a group of endpoints with a common prefix.
// For example, all endpoints in the "log" group will be registered as "log.<endpoint_name>".
func (s *Service) AddGroup(name string) *ServiceEndpointGroup {
	return &ServiceEndpointGroup{
		service: s,
		group:   name,
	}
}

// AddEndpoint adds an endpoint to the service.
// The endpoint will be registered under the service's prefix.
//
// Example:
//
//	svc.AddEndpoint("ping", handlePing)   // -> "<prefix>.ping"
func (s *Service) AddEndpoint(name string, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[name]; ok {
		return eris.Wrap(ErrEndpointAlreadyExists, name)
	}

	cb := func(msg *nats.Msg) {
		// Extract parent context from incoming NATS headers.
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Header))

		// Start a span for the server-side request processing.
		ctx, span := s.tracer.Start(ctx, "handler."+name,
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(attribute.String("nats.subject", msg.Subject)))
		defer span.End()

		requestLogger := s.log.With().Str("endpoint", name).Logger()
		start := time.Now()

		onPanic := func(ctx context.Context, err error) {
			if s.reporter != nil {
				s.reporter.Capture(ctx, "endpoint handler panicked", logsink.WithTag(err, "endpoint", name))
			}
		}
		replyBz, err := handleNATSMessage(ctx, msg, handler, s.tracer, requestLogger, onPanic)

		duration := time.Since(start)
		span.SetAttributes(attribute.Int64("handler.duration_ms", duration.Milliseconds()))
		durationLogger := requestLogger.With().Int("duration_ms", int(duration.Milliseconds())).Logger()

		// If handleNATSMessage returns an error, create a generic internal error response.
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			durationLogger.Error().Err(err).Msg("failed to handle request")

			errResp := NewErrorResponse(&Request{Raw: msg}, err, CodeInternal)
			errRespBz, err := errResp.Bytes()
			assert.That(err == nil, "failed to marshal error response")
			replyBz = errRespBz
		} else {
			span.SetStatus(otelcodes.Ok, "")
		}

		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(replyBz); err != nil {
			durationLogger.Error().Err(err).Msg("failed to send response over NATS")
		} else {
			durationLogger.Debug().Msg("response sent successfully")
		}
	}

	var sub *nats.Subscription
	var err error
	if s.queue != "" {
		sub, err = s.client.QueueSubscribe(s.Subject(name), s.queue, cb)
	} else {
		sub, err = s.client.Subscribe(s.Subject(name), cb)
	}
	if err != nil {
		return eris.Wrapf(err, "failed to subscribe to endpoint %s", name)
	}

	s.endpoints[name] = sub
	return nil
}

// handleNATSMessage converts a NATS message to a Request, calls the handler, and converts
// the Response back to bytes for NATS. A panicking handler becomes an error.
func handleNATSMessage(
	ctx context.Context,
	msg *nats.Msg,
	handler Handler,
	tracer trace.Tracer,
	logger zerolog.Logger,
	onPanic func(context.Context, error),
) (reply []byte, err error) {
	ctx, span := tracer.Start(ctx, "handler.execute",
		trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	req, err := NewRequestFromNATSMsg(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, eris.Wrap(err, "failed to parse request")
	}
	span.SetAttributes(attribute.String("request.id", req.RequestID))

	reqLogger := logger.With().Str("request_id", req.RequestID).Logger()
	reqLogger.Debug().Msg("request received")

	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("handler panicked: %v", r)
			onPanic(ctx, err)
		}
	}()
	resp := handler(ctx, req)
	if resp == nil {
		return nil, eris.New("handler returned no response")
	}

	// Record application status in span.
	span.SetAttributes(attribute.String("status.code", resp.Status.Code.String()))
	if resp.Status.Code != CodeOK {
		span.RecordError(eris.New(resp.Status.Message))
		span.SetStatus(otelcodes.Error, resp.Status.Message)
		reqLogger.Warn().Stringer("code", resp.Status.Code).Str("message", resp.Status.Message).
			Msg("request failed")
	} else {
		span.SetStatus(otelcodes.Ok, "")
		reqLogger.Debug().Msg("request processed successfully")
	}

	respBytes, err := resp.Bytes()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, eris.Wrap(err, "failed to marshal response")
	}
	return respBytes, nil
}

// Close closes all the endpoints registered with the service.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for name, sub := range s.endpoints {
		if err := sub.Unsubscribe(); err != nil {
			if !eris.Is(err, nats.ErrConnectionClosed) {
				s.log.Error().Err(err).Str("endpoint", name).Msg("failed to unsubscribe endpoint")
				errs = append(errs, err)
			}
		}
		delete(s.endpoints, name)
	}
	return errors.Join(errs...)
}

// -------------------------------------------------------------------------------------------------
// Endpoint groups
// -------------------------------------------------------------------------------------------------

// ServiceEndpointGroup is a helper struct that allows registering a group of endpoints with a common prefix.
type ServiceEndpointGroup struct {
	service *Service
	group   string
}

func (g *ServiceEndpointGroup) AddEndpoint(name string, handler Handler) error {
	return g.service.AddEndpoint(g.group+"."+name, handler)
}
