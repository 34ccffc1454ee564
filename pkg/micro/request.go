package micro

import (
	"fmt"

	"github.com/argus-labs/sledgehammer/pkg/assert"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
)

// Code is the application status of a response.
type Code int32

const (
	CodeOK Code = iota
	CodeInvalidArgument
	CodeResourceExhausted
	CodeUnavailable
	CodeInternal
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeInvalidArgument:
		return "invalid_argument"
	case CodeResourceExhausted:
		return "resource_exhausted"
	case CodeUnavailable:
		return "unavailable"
	case CodeInternal:
		return "internal"
	default:
		return fmt.Sprintf("code(%d)", int32(c))
	}
}

// Status is the outcome of a request.
type Status struct {
	Code    Code   `json:"code"`
	Message string `json:"message,omitempty"`
}

// StatusError is returned by Client.Request when the service answered with a non-OK status.
type StatusError struct {
	Code    Code
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Request is the envelope of every service request.
type Request struct {
	// Raw is the original NATS message.
	Raw *nats.Msg `json:"-"`

	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the request payload into v.
func (r *Request) Decode(v any) error {
	if len(r.Payload) == 0 {
		return eris.New("request has no payload")
	}
	return eris.Wrap(json.Unmarshal(r.Payload, v), "failed to unmarshal request payload")
}

// Response is the envelope of every service reply.
type Response struct {
	RequestID string          `json:"request_id,omitempty"`
	Status    Status          `json:"status"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Bytes returns the response as a byte slice ready to be sent over NATS.
func (r *Response) Bytes() ([]byte, error) {
	return json.Marshal(r)
}

// NewRequestFromNATSMsg decodes the request envelope of msg.
func NewRequestFromNATSMsg(msg *nats.Msg) (*Request, error) {
	if msg == nil {
		return nil, eris.New("message is nil")
	}

	req := &Request{}
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, req); err != nil {
			return nil, eris.Wrap(err, "failed to unmarshal request")
		}
	}
	req.Raw = msg
	return req, nil
}

// NewSuccessResponse creates a successful response with optional payload.
func NewSuccessResponse(req *Request, payload any) *Response {
	resp := &Response{RequestID: req.RequestID, Status: Status{Code: CodeOK}}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			// If we fail to encode the payload, return an error response instead
			return NewErrorResponse(req, eris.New("failed to marshal payload"), CodeInternal)
		}
		resp.Payload = raw
	}
	return resp
}

// NewErrorResponse creates an error response with the given error.
// The code parameter must not be CodeOK, as this function is only for error responses.
func NewErrorResponse(req *Request, err error, code Code) *Response {
	assert.That(code != CodeOK, "NewErrorResponse called with CodeOK")

	message := "Unknown error"
	if err != nil {
		message = err.Error()
	}
	return &Response{
		RequestID: req.RequestID,
		Status:    Status{Code: code, Message: message},
	}
}
