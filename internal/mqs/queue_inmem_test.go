package mqs_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookline/hookline/internal/mqs"
)

type testTask struct {
	Name string `json:"name"`
}

func (t *testTask) ToMessage() (*mqs.Message, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return &mqs.Message{Body: body}, nil
}

func (t *testTask) FromMessage(msg *mqs.Message) error {
	return json.Unmarshal(msg.Body, t)
}

func TestInMemQueue_PublishSubscribe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	queue := mqs.NewInMemQueue(time.Second)
	cleanup, err := queue.Init(ctx)
	require.NoError(t, err)
	defer cleanup()

	subscription, err := queue.Subscribe(ctx)
	require.NoError(t, err)
	defer subscription.Shutdown(ctx)

	require.NoError(t, queue.Publish(ctx, &testTask{Name: "first"}))

	receiveCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := subscription.Receive(receiveCtx)
	require.NoError(t, err)

	var task testTask
	require.NoError(t, task.FromMessage(msg))
	assert.Equal(t, "first", task.Name)
	msg.Ack()
}

func TestInMemQueue_PublishDelayed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	queue := mqs.NewInMemQueue(time.Second)
	cleanup, err := queue.Init(ctx)
	require.NoError(t, err)
	defer cleanup()

	subscription, err := queue.Subscribe(ctx)
	require.NoError(t, err)
	defer subscription.Shutdown(ctx)

	start := time.Now()
	delay := 100 * time.Millisecond
	require.NoError(t, queue.PublishDelayed(ctx, &testTask{Name: "later"}, delay))

	receiveCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := subscription.Receive(receiveCtx)
	require.NoError(t, err)
	msg.Ack()

	assert.GreaterOrEqual(t, time.Since(start), delay, "message must stay invisible for the delay")
}
