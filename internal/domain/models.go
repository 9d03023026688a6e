package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Envelope is the backend's response shape: every reply carries at least
// success and message, with optional operation-specific fields alongside.
type Envelope struct {
	Success bool
	// HasSuccess distinguishes an explicit success:false from a body that
	// simply omits the field (status and device-info replies do).
	HasSuccess bool
	Message    string
	Card       *Card
	Extra      map[string]any
}

// Card is a card tap reported by the backend's reader queue. It is ephemeral:
// the gateway consumes and acknowledges it, never persists it.
type Card struct {
	CardID     string `json:"card_id"`
	ObservedAt string `json:"timestamp,omitempty"`
	ReadCount  int    `json:"read_count,omitempty"`
}

// UnmarshalJSON accepts card_id as either a JSON string or number; the
// reader reports raw numeric UIDs.
func (c *Card) UnmarshalJSON(data []byte) error {
	var raw struct {
		CardID     json.RawMessage `json:"card_id"`
		ObservedAt string          `json:"timestamp"`
		ReadCount  int             `json:"read_count"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.ObservedAt = raw.ObservedAt
	c.ReadCount = raw.ReadCount

	if len(raw.CardID) == 0 {
		return fmt.Errorf("card missing card_id")
	}
	if raw.CardID[0] == '"' {
		var s string
		if err := json.Unmarshal(raw.CardID, &s); err != nil {
			return err
		}
		c.CardID = strings.TrimSpace(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw.CardID, &n); err != nil {
		return fmt.Errorf("invalid card_id: %w", err)
	}
	c.CardID = n.String()
	return nil
}

// WashType describes one service option from the backend catalog.
type WashType struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// FlowKind identifies which kiosk interaction a poll session serves.
type FlowKind string

const (
	FlowDropOff FlowKind = "drop-off"
	FlowPickUp  FlowKind = "pick-up"
)

// Valid reports whether the kind is one of the two kiosk flows.
func (k FlowKind) Valid() bool {
	return k == FlowDropOff || k == FlowPickUp
}
