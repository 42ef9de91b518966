package apirouter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookline/hookline/internal/apirouter"
	"github.com/hookline/hookline/internal/idgen"
	"github.com/hookline/hookline/internal/ingest"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/models"
	"github.com/hookline/hookline/internal/mqs"
	"github.com/hookline/hookline/internal/store"
)

var testTime = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

type captureQueue struct {
	mqs.Queue
	mu    sync.Mutex
	tasks []models.SentMessage
}

func (q *captureQueue) Publish(_ context.Context, incoming mqs.IncomingMessage) error {
	msg, err := incoming.ToMessage()
	if err != nil {
		return err
	}
	var task models.SentMessage
	if err := task.FromMessage(msg); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *captureQueue) published() []models.SentMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.SentMessage(nil), q.tasks...)
}

type fixture struct {
	router http.Handler
	store  *store.InMemStore
	queue  *captureQueue
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s := store.NewInMemStore()
	q := &captureQueue{}
	logger := logging.NewNop()
	publisher := ingest.NewEventHandler(logger, s, q,
		ingest.WithNow(func() time.Time { return testTime }))
	return &fixture{
		router: apirouter.NewRouter(logger, s, publisher),
		store:  s,
		queue:  q,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) createApplication(t *testing.T, name string) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/application", `{"name":"`+name+`"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["id"]
}

func (f *fixture) createEndpoint(t *testing.T, appID string) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/application/"+appID+"/endpoint",
		`{"url":"http://svc/hook","topics":["contact.created"]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["id"].(string)
}

func TestRouter_HealthCheck(t *testing.T) {
	t.Parallel()

	f := setup(t)
	w := f.do(t, http.MethodGet, "/v1/health_check", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRouter_CreateApplication(t *testing.T) {
	t.Parallel()

	f := setup(t)

	t.Run("created", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/application", `{"name":"Acme"}`)
		require.Equal(t, http.StatusCreated, w.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Acme", resp["name"])
		assert.True(t, strings.HasPrefix(resp["id"], "app_"), resp["id"])
	})

	t.Run("missing name", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/application", `{}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "validation error", resp["error"])
		assert.NotEmpty(t, resp["messages"])
	})

	t.Run("blank name", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/application", `{"name":"   "}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/application", `{"name":`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "invalid JSON", resp["error"])
	})
}

func TestRouter_CreateEndpoint(t *testing.T) {
	t.Parallel()

	f := setup(t)
	appID := f.createApplication(t, "Acme")

	t.Run("created", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/application/"+appID+"/endpoint",
			`{"url":"https://svc/hook","topics":["contact.created","contact.updated"]}`)
		require.Equal(t, http.StatusCreated, w.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, appID, resp["app_id"])
		assert.Equal(t, "initial", resp["status"])
		assert.True(t, strings.HasPrefix(resp["id"].(string), "ep_"))
	})

	t.Run("unknown application", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/application/"+idgen.NewApplicationID().String()+"/endpoint",
			`{"url":"http://svc/hook","topics":["a"]}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("empty topics", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/application/"+appID+"/endpoint",
			`{"url":"http://svc/hook","topics":[]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid topic", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/application/"+appID+"/endpoint",
			`{"url":"http://svc/hook","topics":["has space"]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("relative url", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/application/"+appID+"/endpoint",
			`{"url":"svc/hook","topics":["a"]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRouter_EndpointStatusRoutes(t *testing.T) {
	t.Parallel()

	f := setup(t)
	ctx := context.Background()
	appID := f.createApplication(t, "Acme")
	endpointID := f.createEndpoint(t, appID)

	endpointStatus := func(t *testing.T) models.EndpointStatus {
		id, err := idgen.ParseEndpointID(endpointID)
		require.NoError(t, err)
		endpoint, err := f.store.RetrieveEndpoint(ctx, id)
		require.NoError(t, err)
		return endpoint.Status
	}

	t.Run("disable", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/application/"+appID+"/endpoint/"+endpointID+"/disable", "")
		require.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, models.EndpointStatusDisabledManually, endpointStatus(t))
	})

	t.Run("enable", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/application/"+appID+"/endpoint/"+endpointID+"/enable", "")
		require.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, models.EndpointStatusEnabledManually, endpointStatus(t))
	})

	t.Run("unknown endpoint", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/application/"+appID+"/endpoint/"+idgen.NewEndpointID().String()+"/disable", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed endpoint id", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/application/"+appID+"/endpoint/not-an-id/disable", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("endpoint of another application", func(t *testing.T) {
		otherAppID := f.createApplication(t, "Other")
		w := f.do(t, http.MethodPost, "/v1/application/"+otherAppID+"/endpoint/"+endpointID+"/disable", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRouter_PublishEvent(t *testing.T) {
	t.Parallel()

	f := setup(t)
	appID := f.createApplication(t, "Acme")
	f.createEndpoint(t, appID)

	t.Run("published", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/application/"+appID+"/event",
			`{"topic":"contact.created","payload":{"foo":"bar"}}`)
		require.Equal(t, http.StatusOK, w.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, strings.HasPrefix(resp["id"], "evt_"), resp["id"])

		tasks := f.queue.published()
		require.Len(t, tasks, 1)
		assert.Equal(t, 1, tasks[0].Attempt)
	})

	t.Run("invalid topic", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/application/"+appID+"/event",
			`{"topic":"bad topic!","payload":{}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing payload", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/application/"+appID+"/event",
			`{"topic":"contact.created"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown application", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/application/"+idgen.NewApplicationID().String()+"/event",
			`{"topic":"contact.created","payload":{}}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
