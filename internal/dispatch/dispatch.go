// Package dispatch consumes delivery tasks from the work queue and performs
// the attempts: one HTTP POST per task, guarded by a per-endpoint circuit
// breaker, with exponential retries scheduled through delayed publishing.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hookline/hookline/internal/breaker"
	"github.com/hookline/hookline/internal/clock"
	"github.com/hookline/hookline/internal/consumer"
	"github.com/hookline/hookline/internal/idgen"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/models"
	"github.com/hookline/hookline/internal/mqs"
	"github.com/hookline/hookline/internal/retry"
	"github.com/hookline/hookline/internal/sender"
	"github.com/hookline/hookline/internal/store"
)

var (
	errEndpointInactive = errors.New("endpoint is not active")
	errAlreadyDelivered = errors.New("message already delivered")
	errBreakerRejected  = errors.New("circuit breaker rejected the attempt")
)

// dropError marks a task that must be acked and forgotten: retrying cannot
// change the outcome. Everything else is nacked for redelivery.
type dropError struct {
	err error
}

func (e *dropError) Error() string {
	return fmt.Sprintf("dropping task: %v", e.err)
}

func (e *dropError) Unwrap() error {
	return e.err
}

type MessageSender interface {
	Send(ctx context.Context, payload models.Payload, url string) (*sender.SentResult, error)
}

type DelayedPublisher interface {
	PublishDelayed(ctx context.Context, incoming mqs.IncomingMessage, delay time.Duration) error
}

type deliveryStore interface {
	RetrieveMessage(ctx context.Context, id idgen.MessageID) (*models.Message, error)
	RetrieveEndpoint(ctx context.Context, id idgen.EndpointID) (*models.Endpoint, error)
	RetrieveEvent(ctx context.Context, id idgen.EventID) (*models.Event, error)
	UpdateEndpointStatus(ctx context.Context, id idgen.EndpointID, status models.EndpointStatus) error
	RecordAttempt(ctx context.Context, attempt models.Attempt) error
	CreateAttemptLog(ctx context.Context, log models.AttemptLog) error
}

type messageHandler struct {
	logger      *logging.Logger
	store       deliveryStore
	queue       DelayedPublisher
	sender      MessageSender
	breaker     *breaker.CircuitBreaker
	retryPolicy retry.Policy
	clock       clock.Clock
}

func NewMessageHandler(
	logger *logging.Logger,
	deliveryStore deliveryStore,
	queue DelayedPublisher,
	messageSender MessageSender,
	circuitBreaker *breaker.CircuitBreaker,
	retryPolicy retry.Policy,
	clk clock.Clock,
) consumer.MessageHandler {
	return &messageHandler{
		logger:      logger,
		store:       deliveryStore,
		queue:       queue,
		sender:      messageSender,
		breaker:     circuitBreaker,
		retryPolicy: retryPolicy,
		clock:       clk,
	}
}

func (h *messageHandler) Handle(ctx context.Context, msg *mqs.Message) error {
	task := models.SentMessage{}
	if err := task.FromMessage(msg); err != nil {
		h.logger.Ctx(ctx).Warn("dropping undecodable task",
			zap.Error(err),
			zap.ByteString("body", msg.Body))
		msg.Ack()
		return nil
	}

	err := h.process(ctx, task)

	var drop *dropError
	if errors.As(err, &drop) {
		h.logger.Ctx(ctx).Info("delivery task dropped",
			zap.String("message_id", task.MessageID.String()),
			zap.Int("attempt", task.Attempt),
			zap.String("reason", drop.err.Error()))
		msg.Ack()
		return nil
	}
	if err != nil {
		msg.Nack()
		return err
	}
	msg.Ack()
	return nil
}

func (h *messageHandler) process(ctx context.Context, task models.SentMessage) error {
	message, err := h.store.RetrieveMessage(ctx, task.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		return &dropError{err: fmt.Errorf("message %s: %w", task.MessageID, err)}
	}
	if err != nil {
		return err
	}
	endpoint, err := h.store.RetrieveEndpoint(ctx, message.EndpointID)
	if errors.Is(err, store.ErrNotFound) {
		return &dropError{err: fmt.Errorf("endpoint %s: %w", message.EndpointID, err)}
	}
	if err != nil {
		return err
	}
	event, err := h.store.RetrieveEvent(ctx, message.EventID)
	if errors.Is(err, store.ErrNotFound) {
		return &dropError{err: fmt.Errorf("event %s: %w", message.EventID, err)}
	}
	if err != nil {
		return err
	}

	if message.Delivered() {
		return &dropError{err: errAlreadyDelivered}
	}

	breakerKey := endpoint.ID.String()
	if !endpoint.IsActive() {
		return &dropError{err: errEndpointInactive}
	}
	// An operator may have re-enabled the endpoint since it tripped the
	// breaker. Revive only touches tripped keys.
	h.breaker.Revive(breakerKey)

	if h.clock.Now().Before(event.CreatedAt) {
		return fmt.Errorf("event %s created in the future (%s)", event.ID, event.CreatedAt)
	}

	var result *sender.SentResult
	err = h.breaker.Call(ctx, breakerKey, func(ctx context.Context) error {
		var sendErr error
		result, sendErr = h.sender.Send(ctx, event.Payload, endpoint.URL)
		return sendErr
	})

	if errors.Is(err, breaker.ErrRejected) {
		return &dropError{err: errBreakerRejected}
	}
	if err != nil && result == nil {
		return err
	}

	if recordErr := h.recordAttempt(ctx, message, event, task, result); recordErr != nil {
		return recordErr
	}

	logger := h.logger.Ctx(ctx)

	if err == nil {
		logger.Info("message delivered",
			zap.String("message_id", message.ID.String()),
			zap.String("endpoint_id", endpoint.ID.String()),
			zap.Int("attempt", task.Attempt),
			zap.String("status", result.Status.String()))
		return nil
	}

	var tripped *breaker.TrippedError
	if errors.As(err, &tripped) {
		endpoint.DisableFailing()
		if updateErr := h.store.UpdateEndpointStatus(ctx, endpoint.ID, endpoint.Status); updateErr != nil {
			return updateErr
		}
		logger.Warn("endpoint disabled after consecutive failures",
			zap.String("endpoint_id", endpoint.ID.String()),
			zap.String("message_id", message.ID.String()),
			zap.Int("attempt", task.Attempt))
		return nil
	}

	if !h.retryPolicy.IsRetryable(task.Attempt) {
		logger.Warn("retries exhausted",
			zap.String("message_id", message.ID.String()),
			zap.String("endpoint_id", endpoint.ID.String()),
			zap.Int("attempt", task.Attempt))
		return nil
	}

	next := task.WithIncreasedAttempt()
	delay := h.retryPolicy.WaitingTime(task.Attempt)
	if publishErr := h.queue.PublishDelayed(ctx, &next, delay); publishErr != nil {
		return publishErr
	}
	logger.Info("attempt failed, retry scheduled",
		zap.String("message_id", message.ID.String()),
		zap.String("endpoint_id", endpoint.ID.String()),
		zap.Int("attempt", task.Attempt),
		zap.Duration("delay", delay),
		zap.String("status", result.Status.String()))
	return nil
}

// recordAttempt persists the attempt and its audit log. Attempt numbers
// already stored stay untouched, so a redelivered task cannot rewrite
// history.
func (h *messageHandler) recordAttempt(ctx context.Context, message *models.Message, event *models.Event, task models.SentMessage, result *sender.SentResult) error {
	attempt, err := message.RecordAttempt(task.Attempt, result.Status)
	if err != nil {
		return &dropError{err: err}
	}
	if err := h.store.RecordAttempt(ctx, attempt); err != nil {
		return err
	}

	processingTime := h.clock.Now().Sub(event.CreatedAt)
	log := models.NewAttemptLog(message.ID, task.Attempt, processingTime, result.ResponseTime, result.ResponseBody)
	if err := h.store.CreateAttemptLog(ctx, log); err != nil {
		return err
	}
	return nil
}
