package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hookline/hookline/internal/idgen"
	"github.com/hookline/hookline/internal/models"
)

type PGStore struct {
	db *pgxpool.Pool
}

var _ Store = &PGStore{}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) CreateApplication(ctx context.Context, app *models.Application) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO applications (id, name, created_at)
		VALUES ($1, $2, $3)
	`, app.ID.String(), app.Name, app.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *PGStore) RetrieveApplication(ctx context.Context, id idgen.ApplicationID) (*models.Application, error) {
	var app models.Application
	var rawID string
	err := s.db.QueryRow(ctx, `
		SELECT id, name, created_at
		FROM applications
		WHERE id = $1
	`, id.String()).Scan(&rawID, &app.Name, &app.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query application: %w", err)
	}
	if app.ID, err = idgen.ParseApplicationID(rawID); err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *PGStore) CreateEndpoint(ctx context.Context, endpoint *models.Endpoint) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO endpoints (id, application_id, url, topics, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, endpoint.ID.String(), endpoint.ApplicationID.String(), endpoint.URL, endpoint.Topics, string(endpoint.Status), endpoint.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert endpoint: %w", err)
	}
	return nil
}

func (s *PGStore) RetrieveEndpoint(ctx context.Context, id idgen.EndpointID) (*models.Endpoint, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, application_id, url, topics, status, created_at
		FROM endpoints
		WHERE id = $1
	`, id.String())
	endpoint, err := scanEndpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query endpoint: %w", err)
	}
	return endpoint, nil
}

func (s *PGStore) UpdateEndpointStatus(ctx context.Context, id idgen.EndpointID, status models.EndpointStatus) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE endpoints
		SET status = $2
		WHERE id = $1
	`, id.String(), string(status))
	if err != nil {
		return fmt.Errorf("update endpoint status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListEndpointsForTopic(ctx context.Context, appID idgen.ApplicationID, topic string) ([]*models.Endpoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, application_id, url, topics, status, created_at
		FROM endpoints
		WHERE application_id = $1
		AND $2 = ANY(topics)
		ORDER BY id
	`, appID.String(), topic)
	if err != nil {
		return nil, fmt.Errorf("query endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []*models.Endpoint
	for rows.Next() {
		endpoint, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		endpoints = append(endpoints, endpoint)
	}
	return endpoints, rows.Err()
}

func scanEndpoint(row pgx.Row) (*models.Endpoint, error) {
	var endpoint models.Endpoint
	var rawID, rawAppID, rawStatus string
	err := row.Scan(&rawID, &rawAppID, &endpoint.URL, &endpoint.Topics, &rawStatus, &endpoint.CreatedAt)
	if err != nil {
		return nil, err
	}
	if endpoint.ID, err = idgen.ParseEndpointID(rawID); err != nil {
		return nil, err
	}
	if endpoint.ApplicationID, err = idgen.ParseApplicationID(rawAppID); err != nil {
		return nil, err
	}
	endpoint.Status = models.EndpointStatus(rawStatus)
	return &endpoint, nil
}

func (s *PGStore) CreateEvent(ctx context.Context, event *models.Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO events (id, application_id, topic, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, event.ID.String(), event.ApplicationID.String(), event.Topic, []byte(event.Payload), event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *PGStore) RetrieveEvent(ctx context.Context, id idgen.EventID) (*models.Event, error) {
	var event models.Event
	var rawID, rawAppID string
	var payload []byte
	err := s.db.QueryRow(ctx, `
		SELECT id, application_id, topic, payload, created_at
		FROM events
		WHERE id = $1
	`, id.String()).Scan(&rawID, &rawAppID, &event.Topic, &payload, &event.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}
	if event.ID, err = idgen.ParseEventID(rawID); err != nil {
		return nil, err
	}
	if event.ApplicationID, err = idgen.ParseApplicationID(rawAppID); err != nil {
		return nil, err
	}
	event.Payload = payload
	return &event, nil
}

func (s *PGStore) CreateMessage(ctx context.Context, message *models.Message) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (id, event_id, endpoint_id)
		VALUES ($1, $2, $3)
	`, message.ID.String(), message.EventID.String(), message.EndpointID.String())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PGStore) RetrieveMessage(ctx context.Context, id idgen.MessageID) (*models.Message, error) {
	var message models.Message
	var rawID, rawEventID, rawEndpointID string
	err := s.db.QueryRow(ctx, `
		SELECT id, event_id, endpoint_id
		FROM messages
		WHERE id = $1
	`, id.String()).Scan(&rawID, &rawEventID, &rawEndpointID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query message: %w", err)
	}
	if message.ID, err = idgen.ParseMessageID(rawID); err != nil {
		return nil, err
	}
	if message.EventID, err = idgen.ParseEventID(rawEventID); err != nil {
		return nil, err
	}
	if message.EndpointID, err = idgen.ParseEndpointID(rawEndpointID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT attempt_number, status_code, status_reason
		FROM message_attempts
		WHERE message_id = $1
		ORDER BY attempt_number
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	message.Attempts = []models.Attempt{}
	for rows.Next() {
		var number int
		var code *int
		var reason *string
		if err := rows.Scan(&number, &code, &reason); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		status := models.AttemptStatus{}
		if code != nil {
			status = models.NumericStatus(*code)
		} else if reason != nil {
			status = models.UnknownStatus(*reason)
		}
		message.Attempts = append(message.Attempts, models.Attempt{
			MessageID: message.ID,
			Number:    number,
			Status:    status,
		})
	}
	return &message, rows.Err()
}

func (s *PGStore) RecordAttempt(ctx context.Context, attempt models.Attempt) error {
	var code *int
	var reason *string
	if attempt.Status.Numeric() {
		code = &attempt.Status.Code
	} else {
		reason = &attempt.Status.Reason
	}
	// ON CONFLICT keeps the first write for a given attempt number so a
	// redelivered task cannot overwrite history.
	_, err := s.db.Exec(ctx, `
		INSERT INTO message_attempts (message_id, attempt_number, status_code, status_reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (message_id, attempt_number) DO NOTHING
	`, attempt.MessageID.String(), attempt.Number, code, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *PGStore) CreateAttemptLog(ctx context.Context, log models.AttemptLog) error {
	// One log per attempt. A redelivered task re-inserts with a fresh log id,
	// so conflicts resolve on the compound key, not the primary key.
	_, err := s.db.Exec(ctx, `
		INSERT INTO attempt_logs (id, message_id, attempt_number, processing_time_ms, response_time_ms, response_body)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id, attempt_number) DO NOTHING
	`, log.ID.String(), log.MessageID.String(), log.AttemptNumber,
		log.ProcessingTime.Milliseconds(), log.ResponseTime.Milliseconds(), log.ResponseBody)
	if err != nil {
		return fmt.Errorf("insert attempt log: %w", err)
	}
	return nil
}
