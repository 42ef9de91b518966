package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/hookline/hookline/internal/idgen"
)

var (
	ErrInvalidAttemptNumber = errors.New("attempt number must be >= 1")
	ErrAttemptOutOfOrder    = errors.New("attempt number leaves a gap in the sequence")
	ErrMessageDelivered     = errors.New("message already delivered")
)

// AttemptStatus is either a numeric HTTP status or an unclassified transport
// failure described by a reason string.
type AttemptStatus struct {
	Code   int    `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func NumericStatus(code int) AttemptStatus {
	return AttemptStatus{Code: code}
}

func UnknownStatus(reason string) AttemptStatus {
	return AttemptStatus{Reason: reason}
}

func (s AttemptStatus) Numeric() bool {
	return s.Code != 0
}

// Delivered reports whether the status is a 2xx HTTP response.
func (s AttemptStatus) Delivered() bool {
	return s.Code >= 200 && s.Code <= 299
}

func (s AttemptStatus) String() string {
	if s.Numeric() {
		return fmt.Sprintf("%d", s.Code)
	}
	return "unknown: " + s.Reason
}

// Attempt is one HTTP POST (or attempted POST) for a Message, numbered
// densely from 1.
type Attempt struct {
	MessageID idgen.MessageID `json:"message_id"`
	Number    int             `json:"number"`
	Status    AttemptStatus   `json:"status"`
}

func NewAttempt(messageID idgen.MessageID, number int, status AttemptStatus) (Attempt, error) {
	if number < 1 {
		return Attempt{}, ErrInvalidAttemptNumber
	}
	return Attempt{MessageID: messageID, Number: number, Status: status}, nil
}

// Message is the routed pairing of one Event with one subscribing Endpoint:
// the unit of delivery. It owns its attempt collection, created empty and
// grown monotonically.
type Message struct {
	ID         idgen.MessageID  `json:"id"`
	EventID    idgen.EventID    `json:"event_id"`
	EndpointID idgen.EndpointID `json:"endpoint_id"`
	Attempts   []Attempt        `json:"attempts"`
}

func NewMessage(eventID idgen.EventID, endpointID idgen.EndpointID) *Message {
	return &Message{
		ID:         idgen.NewMessageID(),
		EventID:    eventID,
		EndpointID: endpointID,
		Attempts:   []Attempt{},
	}
}

// Delivered reports whether any attempt got a 2xx response. Once true, no
// further attempt may be recorded.
func (m *Message) Delivered() bool {
	for _, attempt := range m.Attempts {
		if attempt.Status.Delivered() {
			return true
		}
	}
	return false
}

// RecordAttempt appends the attempt with the given number.
//
// Numbers form the dense sequence 1..k: recording number k+1 appends,
// recording an already-present number returns the stored attempt unchanged
// (the work queue may redeliver a task), and anything past k+1 is a gap and
// rejected.
func (m *Message) RecordAttempt(number int, status AttemptStatus) (Attempt, error) {
	if number < 1 {
		return Attempt{}, ErrInvalidAttemptNumber
	}
	if number <= len(m.Attempts) {
		return m.Attempts[number-1], nil
	}
	if number != len(m.Attempts)+1 {
		return Attempt{}, fmt.Errorf("%w: have %d attempts, got number %d", ErrAttemptOutOfOrder, len(m.Attempts), number)
	}
	if m.Delivered() {
		return Attempt{}, ErrMessageDelivered
	}
	attempt, err := NewAttempt(m.ID, number, status)
	if err != nil {
		return Attempt{}, err
	}
	m.Attempts = append(m.Attempts, attempt)
	return attempt, nil
}

// AttemptLog is the append-only audit entry for one attempt.
// ProcessingTime measures ingestion-to-delivery lag, ResponseTime the HTTP
// round trip. ResponseBody is nil when the request never reached the
// endpoint.
type AttemptLog struct {
	ID             idgen.AttemptLogID `json:"id"`
	MessageID      idgen.MessageID    `json:"message_id"`
	AttemptNumber  int                `json:"attempt_number"`
	ProcessingTime time.Duration      `json:"processing_time"`
	ResponseTime   time.Duration      `json:"response_time"`
	ResponseBody   *string            `json:"response_body,omitempty"`
}

func NewAttemptLog(messageID idgen.MessageID, attemptNumber int, processingTime, responseTime time.Duration, responseBody *string) AttemptLog {
	return AttemptLog{
		ID:             idgen.NewAttemptLogID(),
		MessageID:      messageID,
		AttemptNumber:  attemptNumber,
		ProcessingTime: processingTime,
		ResponseTime:   responseTime,
		ResponseBody:   responseBody,
	}
}
