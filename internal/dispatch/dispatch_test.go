package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookline/hookline/internal/breaker"
	"github.com/hookline/hookline/internal/clock"
	"github.com/hookline/hookline/internal/consumer"
	"github.com/hookline/hookline/internal/dispatch"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/models"
	"github.com/hookline/hookline/internal/mqs"
	"github.com/hookline/hookline/internal/retry"
	"github.com/hookline/hookline/internal/sender"
	"github.com/hookline/hookline/internal/store"
)

var testTime = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

type scriptedSender struct {
	mu      sync.Mutex
	results []sendOutcome
	calls   int
}

type sendOutcome struct {
	result *sender.SentResult
	err    error
}

func (s *scriptedSender) Send(_ context.Context, _ models.Payload, _ string) (*sender.SentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls >= len(s.results) {
		panic("unexpected Send call")
	}
	outcome := s.results[s.calls]
	s.calls++
	return outcome.result, outcome.err
}

func (s *scriptedSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type capturedDelay struct {
	task  models.SentMessage
	delay time.Duration
}

type captureDelayedPublisher struct {
	mu        sync.Mutex
	published []capturedDelay
	err       error
}

func (p *captureDelayedPublisher) PublishDelayed(_ context.Context, incoming mqs.IncomingMessage, delay time.Duration) error {
	if p.err != nil {
		return p.err
	}
	msg, err := incoming.ToMessage()
	if err != nil {
		return err
	}
	var task models.SentMessage
	if err := task.FromMessage(msg); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, capturedDelay{task: task, delay: delay})
	return nil
}

func (p *captureDelayedPublisher) all() []capturedDelay {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]capturedDelay(nil), p.published...)
}

func delivered(code int) sendOutcome {
	body := "ok"
	return sendOutcome{result: &sender.SentResult{
		Status:       models.NumericStatus(code),
		ResponseTime: 50 * time.Millisecond,
		ResponseBody: &body,
	}}
}

func failed(code int) sendOutcome {
	body := "boom"
	status := models.NumericStatus(code)
	return sendOutcome{
		result: &sender.SentResult{
			Status:       status,
			ResponseTime: 50 * time.Millisecond,
			ResponseBody: &body,
		},
		err: &sender.FailedRequestError{Status: status},
	}
}

type fixture struct {
	handler  consumer.MessageHandler
	store    *store.InMemStore
	queue    *captureDelayedPublisher
	sender   *scriptedSender
	breaker  *breaker.CircuitBreaker
	clock    *clock.Frozen
	endpoint *models.Endpoint
	message  *models.Message
}

func setup(t *testing.T, outcomes ...sendOutcome) *fixture {
	t.Helper()
	ctx := context.Background()

	s := store.NewInMemStore()
	app, err := models.NewApplication("Acme", testTime)
	require.NoError(t, err)
	require.NoError(t, s.CreateApplication(ctx, app))

	endpoint, err := models.NewEndpoint(app.ID, "http://svc/hook", []string{"contact.created"}, testTime)
	require.NoError(t, err)
	require.NoError(t, s.CreateEndpoint(ctx, endpoint))

	event, err := models.NewEvent(app.ID, "contact.created", []byte(`{"n":1}`), testTime)
	require.NoError(t, err)
	require.NoError(t, s.CreateEvent(ctx, event))

	message := models.NewMessage(event.ID, endpoint.ID)
	require.NoError(t, s.CreateMessage(ctx, message))

	policy, err := retry.NewPolicyBuilder().
		MaxAttempts(5).
		Exponential(2, 2*time.Second).
		Build()
	require.NoError(t, err)

	snd := &scriptedSender{results: outcomes}
	queue := &captureDelayedPublisher{}
	cb := breaker.New()
	clk := clock.NewFrozen(testTime.Add(5 * time.Second))

	handler := dispatch.NewMessageHandler(logging.NewNop(), s, queue, snd, cb, policy, clk)

	return &fixture{
		handler:  handler,
		store:    s,
		queue:    queue,
		sender:   snd,
		breaker:  cb,
		clock:    clk,
		endpoint: endpoint,
		message:  message,
	}
}

type settlement struct {
	acked  bool
	nacked bool
}

func (f *fixture) handleTask(t *testing.T, task models.SentMessage) (settlement, error) {
	t.Helper()
	raw, err := task.ToMessage()
	require.NoError(t, err)
	var s settlement
	msg := mqs.NewMessage(raw.Body, func() { s.acked = true }, func() { s.nacked = true })
	return s, f.handler.Handle(context.Background(), msg)
}

func TestMessageHandler_Delivered(t *testing.T) {
	t.Parallel()

	f := setup(t, delivered(200))
	task := models.NewSentMessage(f.message.ID)

	settled, err := f.handleTask(t, task)
	require.NoError(t, err)
	assert.True(t, settled.acked)
	assert.False(t, settled.nacked)

	msg, err := f.store.RetrieveMessage(context.Background(), f.message.ID)
	require.NoError(t, err)
	require.Len(t, msg.Attempts, 1)
	assert.Equal(t, 200, msg.Attempts[0].Status.Code)
	assert.True(t, msg.Delivered())

	logs := f.store.AttemptLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, f.message.ID, logs[0].MessageID)
	assert.Equal(t, 1, logs[0].AttemptNumber)
	assert.Equal(t, 5*time.Second, logs[0].ProcessingTime)
	assert.Equal(t, 50*time.Millisecond, logs[0].ResponseTime)
	require.NotNil(t, logs[0].ResponseBody)
	assert.Equal(t, "ok", *logs[0].ResponseBody)

	assert.Empty(t, f.queue.all(), "no retry after delivery")
}

func TestMessageHandler_FailureSchedulesRetry(t *testing.T) {
	t.Parallel()

	f := setup(t, failed(502))
	task := models.NewSentMessage(f.message.ID)

	settled, err := f.handleTask(t, task)
	require.NoError(t, err)
	assert.True(t, settled.acked)

	msg, err := f.store.RetrieveMessage(context.Background(), f.message.ID)
	require.NoError(t, err)
	require.Len(t, msg.Attempts, 1)
	assert.Equal(t, 502, msg.Attempts[0].Status.Code)

	retries := f.queue.all()
	require.Len(t, retries, 1)
	assert.Equal(t, 2, retries[0].task.Attempt)
	assert.Equal(t, f.message.ID, retries[0].task.MessageID)
	assert.Equal(t, 2*time.Second, retries[0].delay)
}

func TestMessageHandler_RetryDelaysGrowExponentially(t *testing.T) {
	t.Parallel()

	f := setup(t, failed(502), failed(502), delivered(200))

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := f.handleTask(t, models.SentMessage{MessageID: f.message.ID, Attempt: attempt})
		require.NoError(t, err)
	}

	msg, err := f.store.RetrieveMessage(context.Background(), f.message.ID)
	require.NoError(t, err)
	require.Len(t, msg.Attempts, 3)
	assert.Equal(t, 502, msg.Attempts[0].Status.Code)
	assert.Equal(t, 502, msg.Attempts[1].Status.Code)
	assert.Equal(t, 200, msg.Attempts[2].Status.Code)
	assert.True(t, msg.Delivered())

	retries := f.queue.all()
	require.Len(t, retries, 2)
	assert.Equal(t, 2*time.Second, retries[0].delay)
	assert.Equal(t, 4*time.Second, retries[1].delay)

	endpoint, err := f.store.RetrieveEndpoint(context.Background(), f.endpoint.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EndpointStatusInitial, endpoint.Status)
}

func TestMessageHandler_RetriesExhausted(t *testing.T) {
	t.Parallel()

	f := setup(t, failed(500))
	ctx := context.Background()

	for number := 1; number <= 4; number++ {
		attempt, err := models.NewAttempt(f.message.ID, number, models.NumericStatus(500))
		require.NoError(t, err)
		require.NoError(t, f.store.RecordAttempt(ctx, attempt))
	}

	settled, err := f.handleTask(t, models.SentMessage{MessageID: f.message.ID, Attempt: 5})
	require.NoError(t, err)
	assert.True(t, settled.acked)
	assert.Empty(t, f.queue.all(), "attempt 5 is the last one")

	msg, err := f.store.RetrieveMessage(ctx, f.message.ID)
	require.NoError(t, err)
	assert.Len(t, msg.Attempts, 5)
}

func TestMessageHandler_TransportErrorRetries(t *testing.T) {
	t.Parallel()

	f := setup(t, sendOutcome{
		result: &sender.SentResult{
			Status:       models.UnknownStatus("connection_refused"),
			ResponseTime: 10 * time.Millisecond,
		},
		err: errors.New("dial tcp: connection refused"),
	})

	settled, err := f.handleTask(t, models.NewSentMessage(f.message.ID))
	require.NoError(t, err)
	assert.True(t, settled.acked)

	msg, err := f.store.RetrieveMessage(context.Background(), f.message.ID)
	require.NoError(t, err)
	require.Len(t, msg.Attempts, 1)
	assert.False(t, msg.Attempts[0].Status.Numeric())
	assert.Equal(t, "connection_refused", msg.Attempts[0].Status.Reason)

	logs := f.store.AttemptLogs()
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].ResponseBody)

	retries := f.queue.all()
	require.Len(t, retries, 1)
	assert.Equal(t, 2, retries[0].task.Attempt)
}

func TestMessageHandler_BreakerTripsAndDisablesEndpoint(t *testing.T) {
	t.Parallel()

	f := setup(t, failed(500), failed(500), failed(500))
	ctx := context.Background()

	for attempt := 1; attempt <= 3; attempt++ {
		settled, err := f.handleTask(t, models.SentMessage{MessageID: f.message.ID, Attempt: attempt})
		require.NoError(t, err)
		assert.True(t, settled.acked)
	}

	endpoint, err := f.store.RetrieveEndpoint(ctx, f.endpoint.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EndpointStatusDisabledFailing, endpoint.Status)
	assert.Equal(t, breaker.StateClosed, f.breaker.State(f.endpoint.ID.String()))

	// The first two failures scheduled retries, the tripping third did not.
	retries := f.queue.all()
	require.Len(t, retries, 2)
	assert.Equal(t, 2, retries[0].task.Attempt)
	assert.Equal(t, 3, retries[1].task.Attempt)

	// All three attempts are on record.
	msg, err := f.store.RetrieveMessage(ctx, f.message.ID)
	require.NoError(t, err)
	assert.Len(t, msg.Attempts, 3)
}

func TestMessageHandler_InactiveEndpointDropsTask(t *testing.T) {
	t.Parallel()

	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpdateEndpointStatus(ctx, f.endpoint.ID, models.EndpointStatusDisabledManually))

	settled, err := f.handleTask(t, models.NewSentMessage(f.message.ID))
	require.NoError(t, err)
	assert.True(t, settled.acked)
	assert.Equal(t, 0, f.sender.callCount(), "no send against a disabled endpoint")

	msg, err := f.store.RetrieveMessage(ctx, f.message.ID)
	require.NoError(t, err)
	assert.Empty(t, msg.Attempts)
}

func TestMessageHandler_TasksAfterTripDropWithoutAttempt(t *testing.T) {
	t.Parallel()

	f := setup(t, failed(500), failed(500), failed(500))
	ctx := context.Background()

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := f.handleTask(t, models.SentMessage{MessageID: f.message.ID, Attempt: attempt})
		require.NoError(t, err)
	}

	// A task for another message of the now-disabled endpoint drops without
	// a send or an attempt.
	other := models.NewMessage(f.message.EventID, f.endpoint.ID)
	require.NoError(t, f.store.CreateMessage(ctx, other))

	settled, err := f.handleTask(t, models.NewSentMessage(other.ID))
	require.NoError(t, err)
	assert.True(t, settled.acked)
	assert.Equal(t, 3, f.sender.callCount())

	stored, err := f.store.RetrieveMessage(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Attempts)
}

func TestMessageHandler_ReviveOnReenabledEndpoint(t *testing.T) {
	t.Parallel()

	f := setup(t, failed(500), failed(500), failed(500), delivered(200))
	ctx := context.Background()

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := f.handleTask(t, models.SentMessage{MessageID: f.message.ID, Attempt: attempt})
		require.NoError(t, err)
	}
	require.Equal(t, breaker.StateClosed, f.breaker.State(f.endpoint.ID.String()))

	// Operator re-enables the endpoint.
	endpoint, err := f.store.RetrieveEndpoint(ctx, f.endpoint.ID)
	require.NoError(t, err)
	endpoint.Enable()
	require.NoError(t, f.store.UpdateEndpointStatus(ctx, f.endpoint.ID, endpoint.Status))

	settled, err := f.handleTask(t, models.SentMessage{MessageID: f.message.ID, Attempt: 4})
	require.NoError(t, err)
	assert.True(t, settled.acked)
	assert.Equal(t, 4, f.sender.callCount(), "revived breaker lets the send through")
	assert.Equal(t, breaker.StateOpen, f.breaker.State(f.endpoint.ID.String()))

	msg, err := f.store.RetrieveMessage(ctx, f.message.ID)
	require.NoError(t, err)
	assert.True(t, msg.Delivered())
}

func TestMessageHandler_AlreadyDeliveredDuplicateDrops(t *testing.T) {
	t.Parallel()

	f := setup(t, delivered(200))

	_, err := f.handleTask(t, models.NewSentMessage(f.message.ID))
	require.NoError(t, err)

	settled, err := f.handleTask(t, models.NewSentMessage(f.message.ID))
	require.NoError(t, err)
	assert.True(t, settled.acked)
	assert.Equal(t, 1, f.sender.callCount(), "duplicate after delivery is not resent")
}

func TestMessageHandler_PoisonMessageAcked(t *testing.T) {
	t.Parallel()

	f := setup(t)

	var settled settlement
	msg := mqs.NewMessage([]byte(`not json`), func() { settled.acked = true }, func() { settled.nacked = true })
	err := f.handler.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, settled.acked, "poison messages must not redeliver forever")
}

func TestMessageHandler_UnknownMessageDropped(t *testing.T) {
	t.Parallel()

	f := setup(t)

	task := models.NewSentMessage(models.NewMessage(f.message.EventID, f.endpoint.ID).ID)
	settled, err := f.handleTask(t, task)
	require.NoError(t, err)
	assert.True(t, settled.acked)
}

func TestMessageHandler_EventFromFutureNacks(t *testing.T) {
	t.Parallel()

	f := setup(t)
	f.clock.Set(testTime.Add(-time.Minute))

	settled, err := f.handleTask(t, models.NewSentMessage(f.message.ID))
	require.Error(t, err)
	assert.True(t, settled.nacked)
	assert.Equal(t, 0, f.sender.callCount())
}

func TestMessageHandler_RetryPublishFailureNacks(t *testing.T) {
	t.Parallel()

	f := setup(t, failed(500))
	f.queue.err = errors.New("broker unavailable")

	settled, err := f.handleTask(t, models.NewSentMessage(f.message.ID))
	require.Error(t, err)
	assert.True(t, settled.nacked, "attempt is recorded but the task redelivers")

	msg, err := f.store.RetrieveMessage(context.Background(), f.message.ID)
	require.NoError(t, err)
	assert.Len(t, msg.Attempts, 1)
}

func TestMessageHandler_RedeliveredTaskKeepsOneAttemptLog(t *testing.T) {
	t.Parallel()

	f := setup(t, failed(500), failed(500))
	f.queue.err = errors.New("broker unavailable")

	task := models.NewSentMessage(f.message.ID)
	settled, err := f.handleTask(t, task)
	require.Error(t, err)
	assert.True(t, settled.nacked)

	// The nacked task comes back with the same attempt number. The resend
	// happens, but the attempt and its log stay as first written.
	settled, err = f.handleTask(t, task)
	require.Error(t, err)
	assert.True(t, settled.nacked)
	assert.Equal(t, 2, f.sender.callCount())

	msg, err := f.store.RetrieveMessage(context.Background(), f.message.ID)
	require.NoError(t, err)
	assert.Len(t, msg.Attempts, 1)
	assert.Len(t, f.store.AttemptLogs(), 1)
}
