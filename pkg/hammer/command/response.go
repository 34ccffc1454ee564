package command

import (
	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
)

// Result is the outcome of a command.
type Result uint8

const (
	ResultNotHandled Result = iota
	ResultSuccess
	ResultFailure
)

func (r Result) String() string {
	switch r {
	case ResultNotHandled:
		return "not-handled"
	case ResultSuccess:
		return "success"
	case ResultFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Response accumulates the outcome of one dispatch. Ordinary failures such as bad arguments
// are reported through Fail, not by returning an error from the handler.
type Response struct {
	Result  Result
	Message string // Shown to the actor

	LogMessage string // Audit text; empty means nothing is logged
	Category   logsink.Category
	Important  bool

	handled bool
}

func (r *Response) Handled() bool { return r.handled }

// SetHandled marks the command as dealt with, stopping delivery to later handlers.
func (r *Response) SetHandled(handled bool) { r.handled = handled }

// Set records an outcome. Any result other than ResultNotHandled also marks the response
// handled.
func (r *Response) Set(result Result, message string) {
	r.Result = result
	r.Message = message
	r.handled = result != ResultNotHandled
}

func (r *Response) Succeed(message string) { r.Set(ResultSuccess, message) }

func (r *Response) Fail(message string) { r.Set(ResultFailure, message) }

// Deny fails the command for lack of permission.
func (r *Response) Deny(command string) {
	r.Fail("You do not have permission to use /" + command + ".")
}

// Log attaches an audit entry to the response.
func (r *Response) Log(category logsink.Category, message string) {
	r.Category = category
	r.LogMessage = message
}

// LogImportant attaches an audit entry flagged for staff attention.
func (r *Response) LogImportant(category logsink.Category, message string) {
	r.Log(category, message)
	r.Important = true
}
