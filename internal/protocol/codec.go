package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidCommand is returned for viewer commands that fail validation.
var ErrInvalidCommand = errors.New("invalid command")

// DecodeError reports a line that is not a well-formed event.
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode event %q: %v", e.Raw, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses one engine output line. Unknown event types decode to an
// unrecognized Event that keeps the original bytes.
func Decode(line []byte) (Event, error) {
	line = bytes.TrimSpace(line)
	raw := append([]byte(nil), line...)

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return Event{}, &DecodeError{Raw: raw, Err: err}
	}
	if head.Type == "" {
		return Event{}, &DecodeError{Raw: raw, Err: errors.New("missing type")}
	}
	if !knownTypes[head.Type] {
		return Event{Type: head.Type, raw: raw}, nil
	}

	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, &DecodeError{Raw: raw, Err: err}
	}
	return ev, nil
}

// Encode serializes an event as a single JSON line without the trailing newline.
func Encode(ev Event) ([]byte, error) {
	if ev.raw != nil {
		return append([]byte(nil), ev.raw...), nil
	}
	if ev.Type == "" {
		return nil, errors.New("encode event: missing type")
	}
	return json.Marshal(ev)
}

// MustEncode encodes events built by the relay itself, which are always valid.
func MustEncode(ev Event) []byte {
	data, err := Encode(ev)
	if err != nil {
		panic(err)
	}
	return data
}

// EncodeCommand validates and serializes a viewer command. An invalid command
// produces no output.
func EncodeCommand(cmd Command) ([]byte, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(cmd)
}

// ParseCommand decodes and validates a command received from a viewer.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(bytes.TrimSpace(data), &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}
