// Package protocol implements the wire envelope shared by the server and the
// client library. Every socket frame is a JSON object with an event name and
// an optional data object.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"examboard/pkg/types"
)

var (
	ErrMalformedFrame = errors.New("frame is not a JSON object with an event field")
	ErrUnknownEvent   = errors.New("unknown event name")
)

// Envelope is one socket frame. Data is left raw so each side decodes only
// the payloads it handles.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds a wire frame for the named event. A nil payload produces an
// envelope without a data field, used for bare signals like
// get_initial_devices and sessions_updated.
func Encode(event string, payload interface{}) ([]byte, error) {
	if !types.IsValidEvent(event) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Decode validates a raw frame and returns its envelope. Validation happens
// before any payload unmarshaling so malformed frames are dropped at the
// boundary with a single cheap scan.
func Decode(raw []byte) (*Envelope, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrMalformedFrame
	}
	event := gjson.GetBytes(raw, "event")
	if event.Type != gjson.String || event.Str == "" {
		return nil, ErrMalformedFrame
	}
	if !types.IsValidEvent(event.Str) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event.Str)
	}

	env := &Envelope{Event: event.Str}
	if data := gjson.GetBytes(raw, "data"); data.Exists() {
		if !data.IsObject() {
			return nil, ErrMalformedFrame
		}
		env.Data = json.RawMessage(data.Raw)
	}
	return env, nil
}

// Unmarshal decodes the envelope's data into v. An envelope without data
// yields the zero value.
func (e *Envelope) Unmarshal(v interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Event, err)
	}
	return nil
}
