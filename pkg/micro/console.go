package micro

import (
	"context"
	"strings"

	"github.com/argus-labs/sledgehammer/pkg/hammer/command"
	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Console endpoints, relative to ConsoleConfig.Subject.
const (
	EndpointCommand  = "command"
	EndpointCommands = "commands"
)

// ConsoleConfig holds the remote console settings.
type ConsoleConfig struct {
	// Subject is the prefix of the console endpoints.
	Subject string `env:"HAMMER_CONSOLE_SUBJECT" envDefault:"hammer.console"`
	// Rate is the number of remote commands accepted per second.
	Rate float64 `env:"HAMMER_CONSOLE_RATE" envDefault:"10"`
	// Burst is the number of commands accepted at once before Rate applies.
	Burst int `env:"HAMMER_CONSOLE_BURST" envDefault:"5"`
}

func LoadConsoleConfig() (ConsoleConfig, error) {
	cfg, err := env.ParseAs[ConsoleConfig]()
	if err != nil {
		return cfg, eris.Wrap(err, "failed to parse console config")
	}
	return cfg, cfg.Validate()
}

func (cfg ConsoleConfig) Validate() error {
	if cfg.Subject == "" {
		return eris.New("console subject is required")
	}
	if cfg.Rate <= 0 {
		return eris.Errorf("console rate must be positive, got %v", cfg.Rate)
	}
	if cfg.Burst <= 0 {
		return eris.Errorf("console burst must be positive, got %d", cfg.Burst)
	}
	return nil
}

// CommandRunner runs console input. *hammer.Engine implements it.
type CommandRunner interface {
	HandleCommand(ctx context.Context, actor command.Actor, input string, logEnabled bool) *command.Response
	Commands() []string
}

// CommandRequest asks the console to run one line of input.
type CommandRequest struct {
	// Operator names whoever is at the remote console. It becomes the actor name.
	Operator string `json:"operator"`
	Input    string `json:"input"`
}

// CommandReply is the outcome of a CommandRequest.
type CommandReply struct {
	Result  string `json:"result"`
	Message string `json:"message"`
	Handled bool   `json:"handled"`
}

// Operator is a remote console user. Like the local console it has no game connection.
type Operator struct {
	name string
}

var _ command.Actor = Operator{}

func (o Operator) Name() string    { return o.name }
func (o Operator) Connected() bool { return false }

// Console exposes the engine's command dispatcher over NATS request-reply.
type Console struct {
	service *Service
	runner  CommandRunner
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewConsole registers the console endpoints on svc.
func NewConsole(svc *Service, runner CommandRunner, cfg ConsoleConfig, log zerolog.Logger) (*Console, error) {
	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid console config")
	}
	if runner == nil {
		return nil, eris.New("command runner is required")
	}

	c := &Console{
		service: svc,
		runner:  runner,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		log:     log,
	}
	if err := svc.AddEndpoint(EndpointCommand, c.handleCommand); err != nil {
		return nil, err
	}
	if err := svc.AddEndpoint(EndpointCommands, c.handleCommands); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Console) handleCommand(ctx context.Context, req *Request) *Response {
	if !c.limiter.Allow() {
		return NewErrorResponse(req, eris.New("too many console commands, slow down"), CodeResourceExhausted)
	}

	var in CommandRequest
	if err := req.Decode(&in); err != nil {
		return NewErrorResponse(req, err, CodeInvalidArgument)
	}
	in.Input = strings.TrimSpace(in.Input)
	if in.Input == "" {
		return NewErrorResponse(req, eris.New("input is empty"), CodeInvalidArgument)
	}
	operator := strings.TrimSpace(in.Operator)
	if operator == "" {
		operator = "remote"
	}

	c.log.Info().Str("operator", operator).Str("request_id", req.RequestID).Str("input", in.Input).
		Msg("remote console command")
	resp := c.runner.HandleCommand(ctx, Operator{name: operator}, in.Input, true)
	return NewSuccessResponse(req, CommandReply{
		Result:  resp.Result.String(),
		Message: resp.Message,
		Handled: resp.Handled(),
	})
}

func (c *Console) handleCommands(_ context.Context, req *Request) *Response {
	return NewSuccessResponse(req, c.runner.Commands())
}

// RunCommand sends input to a remote console listening on subject and returns its reply.
func (c *Client) RunCommand(ctx context.Context, subject, operator, input string) (CommandReply, error) {
	var reply CommandReply
	err := c.Request(ctx, subject+"."+EndpointCommand, CommandRequest{Operator: operator, Input: input}, &reply)
	return reply, err
}

// ListCommands returns the command names known to a remote console.
func (c *Client) ListCommands(ctx context.Context, subject string) ([]string, error) {
	var names []string
	err := c.Request(ctx, subject+"."+EndpointCommands, nil, &names)
	return names, err
}
