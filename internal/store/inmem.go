package store

import (
	"context"
	"sync"

	"github.com/hookline/hookline/internal/idgen"
	"github.com/hookline/hookline/internal/models"
)

// InMemStore keeps everything in maps behind one mutex. Copies go in and
// copies come out so callers cannot mutate stored state by accident.
type InMemStore struct {
	mu           sync.RWMutex
	applications map[idgen.ApplicationID]models.Application
	endpoints    map[idgen.EndpointID]models.Endpoint
	events       map[idgen.EventID]models.Event
	messages     map[idgen.MessageID]models.Message
	attempts     map[idgen.MessageID][]models.Attempt
	attemptLogs  []models.AttemptLog
}

var _ Store = &InMemStore{}

func NewInMemStore() *InMemStore {
	return &InMemStore{
		applications: make(map[idgen.ApplicationID]models.Application),
		endpoints:    make(map[idgen.EndpointID]models.Endpoint),
		events:       make(map[idgen.EventID]models.Event),
		messages:     make(map[idgen.MessageID]models.Message),
		attempts:     make(map[idgen.MessageID][]models.Attempt),
	}
}

func (s *InMemStore) CreateApplication(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applications[app.ID] = *app
	return nil
}

func (s *InMemStore) RetrieveApplication(_ context.Context, id idgen.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.applications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &app, nil
}

func (s *InMemStore) CreateEndpoint(_ context.Context, endpoint *models.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *endpoint
	stored.Topics = append([]string(nil), endpoint.Topics...)
	s.endpoints[endpoint.ID] = stored
	return nil
}

func (s *InMemStore) RetrieveEndpoint(_ context.Context, id idgen.EndpointID) (*models.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	endpoint, ok := s.endpoints[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := endpoint
	out.Topics = append([]string(nil), endpoint.Topics...)
	return &out, nil
}

func (s *InMemStore) UpdateEndpointStatus(_ context.Context, id idgen.EndpointID, status models.EndpointStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	endpoint, ok := s.endpoints[id]
	if !ok {
		return ErrNotFound
	}
	endpoint.Status = status
	s.endpoints[id] = endpoint
	return nil
}

func (s *InMemStore) ListEndpointsForTopic(_ context.Context, appID idgen.ApplicationID, topic string) ([]*models.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var endpoints []*models.Endpoint
	for _, endpoint := range s.endpoints {
		if endpoint.ApplicationID != appID || !endpoint.HasTopic(topic) {
			continue
		}
		out := endpoint
		out.Topics = append([]string(nil), endpoint.Topics...)
		endpoints = append(endpoints, &out)
	}
	return endpoints, nil
}

func (s *InMemStore) CreateEvent(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *event
	stored.Payload = append(models.Payload(nil), event.Payload...)
	s.events[event.ID] = stored
	return nil
}

func (s *InMemStore) RetrieveEvent(_ context.Context, id idgen.EventID) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := event
	out.Payload = append(models.Payload(nil), event.Payload...)
	return &out, nil
}

func (s *InMemStore) CreateMessage(_ context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *message
	stored.Attempts = nil
	s.messages[message.ID] = stored
	return nil
}

func (s *InMemStore) RetrieveMessage(_ context.Context, id idgen.MessageID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	message, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := message
	out.Attempts = append([]models.Attempt{}, s.attempts[id]...)
	return &out, nil
}

func (s *InMemStore) RecordAttempt(_ context.Context, attempt models.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[attempt.MessageID]; !ok {
		return ErrNotFound
	}
	for _, stored := range s.attempts[attempt.MessageID] {
		if stored.Number == attempt.Number {
			return nil
		}
	}
	s.attempts[attempt.MessageID] = append(s.attempts[attempt.MessageID], attempt)
	return nil
}

func (s *InMemStore) CreateAttemptLog(_ context.Context, log models.AttemptLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stored := range s.attemptLogs {
		if stored.MessageID == log.MessageID && stored.AttemptNumber == log.AttemptNumber {
			return nil
		}
	}
	s.attemptLogs = append(s.attemptLogs, log)
	return nil
}

// AttemptLogs returns a snapshot of the recorded logs, oldest first.
func (s *InMemStore) AttemptLogs() []models.AttemptLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AttemptLog(nil), s.attemptLogs...)
}
