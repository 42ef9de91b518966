package models

import (
	"encoding/json"
	"fmt"

	"github.com/hookline/hookline/internal/idgen"
	"github.com/hookline/hookline/internal/mqs"
)

// Async tasks travel as externally tagged JSON, {"t":"SentMessage","c":{…}},
// so further task kinds can share the work stream later.
const taskTypeSentMessage = "SentMessage"

type asyncEnvelope struct {
	T string          `json:"t"`
	C json.RawMessage `json:"c"`
}

// SentMessage instructs the dispatch consumer to perform one delivery
// attempt for a message. Attempt counters are 1-based.
type SentMessage struct {
	MessageID idgen.MessageID `json:"message_id"`
	Attempt   int             `json:"attempt"`
}

func NewSentMessage(messageID idgen.MessageID) SentMessage {
	return SentMessage{MessageID: messageID, Attempt: 1}
}

// WithIncreasedAttempt returns the follow-up task for the next attempt.
func (t SentMessage) WithIncreasedAttempt() SentMessage {
	return SentMessage{MessageID: t.MessageID, Attempt: t.Attempt + 1}
}

var _ mqs.IncomingMessage = &SentMessage{}

func (t *SentMessage) ToMessage() (*mqs.Message, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(asyncEnvelope{T: taskTypeSentMessage, C: payload})
	if err != nil {
		return nil, err
	}
	return &mqs.Message{Body: data}, nil
}

func (t *SentMessage) FromMessage(msg *mqs.Message) error {
	var envelope asyncEnvelope
	if err := json.Unmarshal(msg.Body, &envelope); err != nil {
		return err
	}
	if envelope.T != taskTypeSentMessage {
		return fmt.Errorf("unexpected task type %q", envelope.T)
	}
	return json.Unmarshal(envelope.C, t)
}
