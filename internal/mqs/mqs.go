package mqs

import (
	"context"
	"time"

	"gocloud.dev/pubsub"
)

// Message is a raw work-queue delivery. Ack removes it from the queue; a
// message that is neither acked nor nacked is redelivered after the broker's
// visibility window (at-least-once).
type Message struct {
	Body []byte

	ack  func()
	nack func()
}

// NewMessage builds a Message with explicit ack and nack callbacks so
// callers outside a broker subscription (tests, adapters) can observe
// settlement.
func NewMessage(body []byte, ack, nack func()) *Message {
	return &Message{Body: body, ack: ack, nack: nack}
}

func (m *Message) Ack() {
	if m.ack != nil {
		m.ack()
	}
}

func (m *Message) Nack() {
	if m.nack != nil {
		m.nack()
	}
}

// IncomingMessage is implemented by task types that travel over the queue.
type IncomingMessage interface {
	ToMessage() (*Message, error)
	FromMessage(*Message) error
}

type Subscription interface {
	Receive(ctx context.Context) (*Message, error)
	Shutdown(ctx context.Context) error
}

// Queue is a single logical work stream with at-least-once delivery and
// delayed redelivery. PublishDelayed keeps the task invisible to consumers
// for at least the given duration.
type Queue interface {
	Init(ctx context.Context) (func(), error)
	Publish(ctx context.Context, incomingMessage IncomingMessage) error
	PublishDelayed(ctx context.Context, incomingMessage IncomingMessage, delay time.Duration) error
	Subscribe(ctx context.Context) (Subscription, error)
}

// ============================== Subscription ==============================

type subscriptionWrapper struct {
	subscription *pubsub.Subscription
}

var _ Subscription = &subscriptionWrapper{}

func wrapSubscription(subscription *pubsub.Subscription) (Subscription, error) {
	return &subscriptionWrapper{subscription: subscription}, nil
}

func (s *subscriptionWrapper) Receive(ctx context.Context) (*Message, error) {
	msg, err := s.subscription.Receive(ctx)
	if err != nil {
		return nil, err
	}
	return &Message{
		Body: msg.Body,
		ack:  msg.Ack,
		nack: func() {
			if msg.Nackable() {
				msg.Nack()
			}
		},
	}, nil
}

func (s *subscriptionWrapper) Shutdown(ctx context.Context) error {
	return s.subscription.Shutdown(ctx)
}
