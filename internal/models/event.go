package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hookline/hookline/internal/idgen"
)

var ErrInvalidPayload = errors.New("event payload must be valid JSON")

// Payload is the producer-submitted body, semantically opaque to the
// pipeline. It is validated for JSON syntax at ingestion and forwarded
// verbatim to endpoints.
type Payload = json.RawMessage

type Event struct {
	ID            idgen.EventID       `json:"id"`
	ApplicationID idgen.ApplicationID `json:"app_id"`
	Topic         string              `json:"topic"`
	Payload       Payload             `json:"payload"`
	CreatedAt     time.Time           `json:"created_at"`
}

func NewEvent(appID idgen.ApplicationID, topic string, payload Payload, now time.Time) (*Event, error) {
	if err := ValidateTopic(topic); err != nil {
		return nil, err
	}
	if !json.Valid(payload) {
		return nil, ErrInvalidPayload
	}
	return &Event{
		ID:            idgen.NewEventID(),
		ApplicationID: appID,
		Topic:         topic,
		Payload:       payload,
		CreatedAt:     now.UTC(),
	}, nil
}
