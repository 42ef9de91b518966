package mqs

import (
	"context"
	"time"

	"gocloud.dev/pubsub"
	"gocloud.dev/pubsub/mempubsub"
)

// InMemQueue is a process-local queue for tests and local development.
// Delayed publishes are deferred with a timer before entering the topic.
type InMemQueue struct {
	ackDeadline time.Duration
	topic       *pubsub.Topic
}

var _ Queue = &InMemQueue{}

func NewInMemQueue(ackDeadline time.Duration) *InMemQueue {
	if ackDeadline <= 0 {
		ackDeadline = 30 * time.Second
	}
	return &InMemQueue{ackDeadline: ackDeadline}
}

func (q *InMemQueue) Init(ctx context.Context) (func(), error) {
	q.topic = mempubsub.NewTopic()
	return func() {
		q.topic.Shutdown(ctx)
	}, nil
}

func (q *InMemQueue) Publish(ctx context.Context, incomingMessage IncomingMessage) error {
	msg, err := incomingMessage.ToMessage()
	if err != nil {
		return err
	}
	return q.topic.Send(ctx, &pubsub.Message{Body: msg.Body})
}

func (q *InMemQueue) PublishDelayed(ctx context.Context, incomingMessage IncomingMessage, delay time.Duration) error {
	msg, err := incomingMessage.ToMessage()
	if err != nil {
		return err
	}
	time.AfterFunc(delay, func() {
		// Separate context: the publishing request is long gone by the
		// time the delay expires.
		q.topic.Send(context.Background(), &pubsub.Message{Body: msg.Body})
	})
	return nil
}

func (q *InMemQueue) Subscribe(ctx context.Context) (Subscription, error) {
	subscription := mempubsub.NewSubscription(q.topic, q.ackDeadline)
	return wrapSubscription(subscription)
}
