// Package ingest turns a producer's event submission into persisted state
// and queued delivery work.
package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hookline/hookline/internal/idgen"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/models"
	"github.com/hookline/hookline/internal/mqs"
)

type entityStore interface {
	RetrieveApplication(ctx context.Context, id idgen.ApplicationID) (*models.Application, error)
	ListEndpointsForTopic(ctx context.Context, appID idgen.ApplicationID, topic string) ([]*models.Endpoint, error)
	CreateEvent(ctx context.Context, event *models.Event) error
	CreateMessage(ctx context.Context, message *models.Message) error
}

type EventHandler struct {
	logger *logging.Logger
	store  entityStore
	queue  mqs.Queue
	now    func() time.Time
}

type Option func(*EventHandler)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(h *EventHandler) {
		h.now = now
	}
}

func NewEventHandler(logger *logging.Logger, store entityStore, queue mqs.Queue, opts ...Option) *EventHandler {
	h := &EventHandler{
		logger: logger,
		store:  store,
		queue:  queue,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// PublishEvent validates and persists the event, routes it to the
// application's active endpoints subscribed to the topic, persists one
// message per endpoint, and enqueues the first delivery attempt for each.
//
// The event is persisted even when nothing subscribes to the topic. Each
// message is persisted before its task is enqueued, so the dispatch consumer
// never receives a task it cannot load.
func (h *EventHandler) PublishEvent(ctx context.Context, appID idgen.ApplicationID, topic string, payload models.Payload) (*models.Event, error) {
	if _, err := h.store.RetrieveApplication(ctx, appID); err != nil {
		return nil, err
	}

	event, err := models.NewEvent(appID, topic, payload, h.now())
	if err != nil {
		return nil, err
	}
	if err := h.store.CreateEvent(ctx, event); err != nil {
		return nil, err
	}

	endpoints, err := h.store.ListEndpointsForTopic(ctx, appID, topic)
	if err != nil {
		return nil, err
	}

	logger := h.logger.Ctx(ctx)

	var g errgroup.Group
	for _, endpoint := range endpoints {
		if !endpoint.IsActive() {
			continue
		}
		endpoint := endpoint
		g.Go(func() error {
			message := models.NewMessage(event.ID, endpoint.ID)
			if err := h.store.CreateMessage(ctx, message); err != nil {
				return err
			}
			task := models.NewSentMessage(message.ID)
			if err := h.queue.Publish(ctx, &task); err != nil {
				logger.Error("failed to enqueue delivery task",
					zap.Error(err),
					zap.String("event_id", event.ID.String()),
					zap.String("endpoint_id", endpoint.ID.String()),
					zap.String("message_id", message.ID.String()))
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Info("event published",
		zap.String("event_id", event.ID.String()),
		zap.String("app_id", appID.String()),
		zap.String("topic", topic))

	return event, nil
}
