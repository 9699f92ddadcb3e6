package wire

import (
	"encoding/json"
	"fmt"
)

// Encode serializes an envelope to its wire form. Pure; no validation
// beyond what JSON marshaling itself enforces.
func Encode(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("cannot encode nil envelope")
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses a wire message into an envelope. A malformed payload
// surfaces as an error to the caller; nothing is swallowed here.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}
