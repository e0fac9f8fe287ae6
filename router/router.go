// Package router speaks the controller/action envelope understood by the
// managed router behind the bridge entry point.
//
// Requests are JSON objects naming a controller, an action and optional
// data:
//
//	{"Controller": "home", "Action": "greet", "Data": {"name": "Ada"}}
//
// Responses carry either data or an error message:
//
//	{"errorMessage": null, "data": "Hello, Ada"}
//	{"errorMessage": "No controller found for: 'nope'", "data": null}
//
// The bridge itself treats both as opaque text; this package is an optional
// layer on top of it.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrMalformedResponse is returned when the response is not an envelope.
	ErrMalformedResponse = errors.New("malformed response envelope")

	// ErrInvalidRequest is returned for requests missing a controller or action.
	ErrInvalidRequest = errors.New("invalid route request")
)

var validate = validator.New()

// Processor forwards raw request text and returns the raw response.
// *runtime.Bridge satisfies it.
type Processor interface {
	ProcessRequest(request string) (string, error)
}

// Request is a routed call.
type Request struct {
	Controller string `json:"Controller" validate:"required,max=256"`
	Action     string `json:"Action" validate:"required,max=256"`
	Data       any    `json:"Data,omitempty"`
}

// Response is the envelope returned by the managed router.
type Response struct {
	ErrorMessage *string         `json:"errorMessage"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// Err returns the managed error carried by the envelope, if any.
func (r *Response) Err() error {
	if r.ErrorMessage == nil || *r.ErrorMessage == "" {
		return nil
	}
	return &ManagedError{Message: *r.ErrorMessage}
}

// ManagedError is an error reported by the managed side.
type ManagedError struct {
	Message string
}

func (e *ManagedError) Error() string {
	return "managed error: " + e.Message
}

// Client encodes routed calls and decodes their envelopes.
type Client struct {
	p Processor
}

// New creates a Client sending requests through p.
func New(p Processor) *Client {
	return &Client{p: p}
}

// Raw sends req and returns the decoded envelope without interpreting it.
// The context is only checked before the call; the bridge call itself cannot
// be interrupted.
func (c *Client) Raw(ctx context.Context, req Request) (*Response, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := sonic.Marshal(&req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	text, err := c.p.ProcessRequest(string(body))
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := sonic.UnmarshalString(text, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &resp, nil
}

// Invoke calls controller.action with data and decodes the response data into
// out. out may be nil when the result is not needed. A non-empty error
// message in the envelope is returned as *ManagedError.
func (c *Client) Invoke(ctx context.Context, controller, action string, data, out any) error {
	resp, err := c.Raw(ctx, Request{Controller: controller, Action: action, Data: data})
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("%w: data: %v", ErrMalformedResponse, err)
	}
	return nil
}
