package mqs

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"gocloud.dev/pubsub"
	"gocloud.dev/pubsub/rabbitpubsub"
)

// ============================== Config ==============================

type RabbitMQConfig struct {
	ServerURL string
	Exchange  string
	Queue     string
}

const (
	DefaultRabbitMQExchange = "hookline"
	DefaultRabbitMQQueue    = "sent_message"
)

func (c *RabbitMQConfig) Validate() error {
	if c.ServerURL == "" {
		return errors.New("RabbitMQ server URL is not set")
	}
	if c.Exchange == "" {
		return errors.New("RabbitMQ exchange is not set")
	}
	if c.Queue == "" {
		return errors.New("RabbitMQ queue is not set")
	}
	return nil
}

// ============================== Queue ==============================

// RabbitMQQueue carries the work stream on a durable queue bound to a topic
// exchange. Delayed redelivery uses a companion delay queue whose expired
// messages dead-letter back into the exchange, which satisfies the
// "deliverable no earlier than now+d" contract without a broker plugin.
type RabbitMQQueue struct {
	conn   *amqp091.Connection
	config *RabbitMQConfig
	topic  *pubsub.Topic
}

var _ Queue = &RabbitMQQueue{}

func NewRabbitMQQueue(config *RabbitMQConfig) *RabbitMQQueue {
	return &RabbitMQQueue{config: config}
}

func (q *RabbitMQQueue) Init(ctx context.Context) (func(), error) {
	conn, err := amqp091.Dial(q.config.ServerURL)
	if err != nil {
		return nil, err
	}
	if err := q.declareInfrastructure(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	q.conn = conn
	q.topic = rabbitpubsub.OpenTopic(conn, q.config.Exchange, nil)
	return func() {
		q.topic.Shutdown(ctx)
		conn.Close()
	}, nil
}

func (q *RabbitMQQueue) Publish(ctx context.Context, incomingMessage IncomingMessage) error {
	msg, err := incomingMessage.ToMessage()
	if err != nil {
		return err
	}
	return q.topic.Send(ctx, &pubsub.Message{Body: msg.Body})
}

func (q *RabbitMQQueue) PublishDelayed(ctx context.Context, incomingMessage IncomingMessage, delay time.Duration) error {
	msg, err := incomingMessage.ToMessage()
	if err != nil {
		return err
	}

	ch, err := q.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	// Publish to the delay queue through the default exchange with a
	// per-message TTL; expiry dead-letters the message into the work
	// exchange.
	return ch.PublishWithContext(ctx,
		"",                 // default exchange
		q.delayQueueName(), // routing key = queue name
		false,              // mandatory
		false,              // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         msg.Body,
			Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
			DeliveryMode: amqp091.Persistent,
		},
	)
}

func (q *RabbitMQQueue) Subscribe(ctx context.Context) (Subscription, error) {
	subscription := rabbitpubsub.OpenSubscription(q.conn, q.config.Queue, nil)
	return wrapSubscription(subscription)
}

func (q *RabbitMQQueue) delayQueueName() string {
	return q.config.Queue + ".delay"
}

func (q *RabbitMQQueue) declareInfrastructure(_ context.Context, conn *amqp091.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	err = ch.ExchangeDeclare(
		q.config.Exchange, // name
		"topic",           // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		return err
	}
	queue, err := ch.QueueDeclare(
		q.config.Queue, // name
		true,           // durable
		false,          // delete when unused
		false,          // exclusive
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return err
	}
	err = ch.QueueBind(
		queue.Name,        // queue name
		"",                // routing key
		q.config.Exchange, // exchange
		false,
		nil,
	)
	if err != nil {
		return err
	}
	_, err = ch.QueueDeclare(
		q.delayQueueName(),
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp091.Table{
			"x-dead-letter-exchange":    q.config.Exchange,
			"x-dead-letter-routing-key": "",
		},
	)
	return err
}
