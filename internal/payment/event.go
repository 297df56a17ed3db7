package payment

import (
	"encoding/json"
	"fmt"
)

// EventChargeSuccess is the only gateway event that confirms a payment.
const EventChargeSuccess = "charge.success"

// Event is a webhook delivery from the gateway.
type Event struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

type EventData struct {
	Reference string   `json:"reference"`
	Status    string   `json:"status"`
	Amount    int64    `json:"amount"`
	Currency  string   `json:"currency"`
	Metadata  Metadata `json:"metadata"`
	Customer  Customer `json:"customer"`
}

type Customer struct {
	Email string `json:"email"`
}

// ParseEvent decodes a webhook body.
func ParseEvent(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	return &ev, nil
}
