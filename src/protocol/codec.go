package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrMissingType    = errors.New("frame has no type")
	ErrUnknownFrame   = errors.New("unknown frame type")
)

type envelope struct {
	Type Type `json:"type"`
}

// PeekType reads only the discriminator of a raw frame.
func PeekType(data []byte) (Type, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return "", ErrMissingType
	}
	return env.Type, nil
}

// Decode validates the type tag before decoding the type-specific payload.
func Decode(data []byte) (Frame, error) {
	t, err := PeekType(data)
	if err != nil {
		return nil, err
	}
	newFrame, ok := inbound[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, t)
	}
	f := newFrame()
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, t, err)
	}
	return f, nil
}

// Encode marshals a command and stamps its type field.
func Encode(cmd Command) ([]byte, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.CommandType(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.CommandType(), err)
	}
	fields["type"], _ = json.Marshal(cmd.CommandType())
	return json.Marshal(fields)
}
