// Package store persists the delivery pipeline's entities. The Postgres
// implementation backs production; the in-memory implementation backs tests
// and local development without infrastructure.
package store

import (
	"context"
	"errors"

	"github.com/hookline/hookline/internal/idgen"
	"github.com/hookline/hookline/internal/models"
)

var ErrNotFound = errors.New("not found")

type ApplicationStore interface {
	CreateApplication(ctx context.Context, app *models.Application) error
	RetrieveApplication(ctx context.Context, id idgen.ApplicationID) (*models.Application, error)
}

type EndpointStore interface {
	CreateEndpoint(ctx context.Context, endpoint *models.Endpoint) error
	RetrieveEndpoint(ctx context.Context, id idgen.EndpointID) (*models.Endpoint, error)

	// UpdateEndpointStatus persists a status transition already validated by
	// the model.
	UpdateEndpointStatus(ctx context.Context, id idgen.EndpointID, status models.EndpointStatus) error

	// ListEndpointsForTopic returns the application's endpoints subscribed to
	// the topic, regardless of status.
	ListEndpointsForTopic(ctx context.Context, appID idgen.ApplicationID, topic string) ([]*models.Endpoint, error)
}

type EventStore interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	RetrieveEvent(ctx context.Context, id idgen.EventID) (*models.Event, error)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, message *models.Message) error

	// RetrieveMessage loads the message with its attempts ordered by number.
	RetrieveMessage(ctx context.Context, id idgen.MessageID) (*models.Message, error)

	// RecordAttempt persists one attempt. Recording an attempt number that is
	// already stored is a no-op, so redelivered tasks stay idempotent.
	RecordAttempt(ctx context.Context, attempt models.Attempt) error
}

type AttemptLogStore interface {
	CreateAttemptLog(ctx context.Context, log models.AttemptLog) error
}

// Store aggregates the entity stores a deployment wires together.
type Store interface {
	ApplicationStore
	EndpointStore
	EventStore
	MessageStore
	AttemptLogStore
}
