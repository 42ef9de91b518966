package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hookline/hookline/internal/consumer"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/mqs"
	"github.com/hookline/hookline/internal/worker"
)

// DispatchWorker consumes delivery tasks from the work queue.
type DispatchWorker struct {
	queue       mqs.Queue
	handler     consumer.MessageHandler
	concurrency int
	logger      *logging.Logger
}

func NewDispatchWorker(queue mqs.Queue, handler consumer.MessageHandler, concurrency int, logger *logging.Logger) worker.Worker {
	return &DispatchWorker{
		queue:       queue,
		handler:     handler,
		concurrency: concurrency,
		logger:      logger,
	}
}

func (w *DispatchWorker) Name() string {
	return "dispatch"
}

func (w *DispatchWorker) Run(ctx context.Context) error {
	logger := w.logger.Ctx(ctx)

	subscription, err := w.queue.Subscribe(ctx)
	if err != nil {
		logger.Error("error subscribing to work queue", zap.Error(err))
		return err
	}

	csm := consumer.New(subscription, w.handler,
		consumer.WithName(w.Name()),
		consumer.WithConcurrency(w.concurrency),
		consumer.WithLogger(w.logger),
	)

	if err := csm.Run(ctx); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			logger.Error("error running dispatch consumer", zap.Error(err))
			return err
		}
	}
	return nil
}
