package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/muurk/simplelink/internal/transport"
)

// ErrUnexpectedKind is returned when a frame of the wrong kind is decoded.
var ErrUnexpectedKind = errors.New("unexpected frame kind")

// Response is the payload of a response frame.
type Response struct {
	Code   int32           `json:"code"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// EventPayload is the payload of an event frame.
type EventPayload struct {
	Kind   transport.EventKind  `json:"kind"`
	Socket int32                `json:"socket,omitempty"`
	Ping   transport.PingReport `json:"ping,omitempty"`
}

// DecodeArgs unmarshals a request payload into v. An empty payload leaves v
// at its zero value.
func (f *Frame) DecodeArgs(v any) error {
	if f.Kind != KindRequest {
		return fmt.Errorf("%w: %s, want request", ErrUnexpectedKind, f.Kind)
	}
	if len(f.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("decode %s args: %w", f.Op, err)
	}
	return nil
}

// DecodeResponse unmarshals a response frame. The result is decoded into out
// when out is non-nil and the bridge sent one, even if the call failed. A
// failing status comes back as a *transport.CallError for the frame's op, so
// transport.StatusCode and errors.Is(err, transport.ErrConnectionReset) work
// on the caller's side.
func (f *Frame) DecodeResponse(out any) error {
	if f.Kind != KindResponse {
		return fmt.Errorf("%w: %s, want response", ErrUnexpectedKind, f.Kind)
	}

	var resp Response
	if err := json.Unmarshal(f.Payload, &resp); err != nil {
		return fmt.Errorf("decode %s response: %w", f.Op, err)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", f.Op, err)
		}
	}
	if resp.Code == 0 {
		return nil
	}

	callErr := &transport.CallError{Op: f.Op, Code: resp.Code}
	if resp.Error == "" || resp.Error == callErr.Error() {
		return callErr
	}
	return fmt.Errorf("%w (%s)", callErr, resp.Error)
}

// DecodeEvent unmarshals an event frame.
func (f *Frame) DecodeEvent() (transport.Event, error) {
	if f.Kind != KindEvent {
		return transport.Event{}, fmt.Errorf("%w: %s, want event", ErrUnexpectedKind, f.Kind)
	}
	var p EventPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return transport.Event{}, fmt.Errorf("decode event %s: %w", f.Op, err)
	}
	return transport.Event{Kind: p.Kind, Socket: p.Socket, Ping: p.Ping}, nil
}
