package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotObject reports a backend body that is not a JSON object.
var ErrNotObject = errors.New("body is not a JSON object")

// ParseEnvelope validates a backend body at the boundary and splits it into
// the required fields, the typed card (when present), and the remaining
// operation-specific fields.
func ParseEnvelope(body []byte) (Envelope, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrNotObject, err)
	}
	if raw == nil {
		return Envelope{}, ErrNotObject
	}

	env := Envelope{Extra: make(map[string]any)}

	if v, ok := raw["success"]; ok {
		if err := json.Unmarshal(v, &env.Success); err != nil {
			return Envelope{}, fmt.Errorf("invalid success field: %w", err)
		}
		env.HasSuccess = true
	}
	if v, ok := raw["message"]; ok {
		if err := json.Unmarshal(v, &env.Message); err != nil {
			return Envelope{}, fmt.Errorf("invalid message field: %w", err)
		}
	}
	if v, ok := raw["card"]; ok && string(v) != "null" {
		var card Card
		if err := json.Unmarshal(v, &card); err != nil {
			return Envelope{}, fmt.Errorf("invalid card field: %w", err)
		}
		env.Card = &card
	}

	for key, v := range raw {
		switch key {
		case "success", "message", "card":
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return Envelope{}, fmt.Errorf("invalid %s field: %w", key, err)
		}
		env.Extra[key] = val
	}

	return env, nil
}
