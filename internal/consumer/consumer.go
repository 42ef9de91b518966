// Package consumer runs a message handler over a queue subscription with
// bounded concurrency.
package consumer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/mqs"
)

type Consumer interface {
	Run(context.Context) error
}

type MessageHandler interface {
	Handle(context.Context, *mqs.Message) error
}

type options struct {
	name        string
	concurrency int
	logger      *logging.Logger
}

type Option func(*options)

func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

func WithConcurrency(concurrency int) Option {
	return func(o *options) {
		o.concurrency = concurrency
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func New(subscription mqs.Subscription, handler MessageHandler, opts ...Option) Consumer {
	o := &options{concurrency: 1}
	for _, opt := range opts {
		opt(o)
	}
	return &consumer{
		options:      *o,
		subscription: subscription,
		handler:      handler,
	}
}

type consumer struct {
	options
	subscription mqs.Subscription
	handler      MessageHandler
}

var _ Consumer = &consumer{}

// Run receives until the subscription fails or ctx is canceled, then waits
// for in-flight handlers to finish. Handlers own ack/nack; an error return
// here is only logged and traced.
func (c *consumer) Run(ctx context.Context) error {
	defer c.subscription.Shutdown(ctx)

	tracer := otel.GetTracerProvider().Tracer("github.com/hookline/hookline/internal/consumer")

	var subscriptionErr error

	sem := make(chan struct{}, c.concurrency)
recvLoop:
	for {
		msg, err := c.subscription.Receive(ctx)
		if err != nil {
			subscriptionErr = err
			break recvLoop
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break recvLoop
		}

		go func() {
			defer func() { <-sem }()

			// Detached from ctx so a shutdown does not cut off a handler
			// mid-delivery.
			handlerCtx, span := tracer.Start(context.Background(), c.spanName())
			defer span.End()

			if err := c.handler.Handle(handlerCtx, msg); err != nil {
				span.RecordError(err)
				if c.logger != nil {
					c.logger.Ctx(handlerCtx).Error("consumer handler error",
						zap.String("consumer", c.name),
						zap.Error(err))
				}
			}
		}()
	}

	// Drain: acquiring the full semaphore means every handler returned.
	for n := 0; n < c.concurrency; n++ {
		sem <- struct{}{}
	}

	return subscriptionErr
}

func (c *consumer) spanName() string {
	if c.name == "" {
		return "Consumer.Handle"
	}
	return c.name + ".Consumer.Handle"
}
