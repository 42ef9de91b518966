package models

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/hookline/hookline/internal/idgen"
)

var (
	ErrInvalidEndpointURL = errors.New("endpoint url must be an absolute http(s) url")
	ErrTopicsRequired     = errors.New("endpoint requires at least one topic")
	ErrInvalidTopic       = errors.New("invalid topic")
)

var topicPattern = regexp.MustCompile(`^[A-Za-z_.\-]+$`)

// ValidateTopic enforces the topic alphabet: letters, underscore, dot,
// hyphen. Digits, spaces, and the empty string are rejected.
func ValidateTopic(topic string) error {
	if !topicPattern.MatchString(topic) {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return nil
}

type EndpointStatus string

const (
	EndpointStatusInitial          EndpointStatus = "initial"
	EndpointStatusDisabledManually EndpointStatus = "disabled_manually"
	EndpointStatusDisabledFailing  EndpointStatus = "disabled_failing"
	EndpointStatusEnabledManually  EndpointStatus = "enabled_manually"
)

// Active endpoints receive deliveries.
func (s EndpointStatus) Active() bool {
	return s == EndpointStatusInitial || s == EndpointStatusEnabledManually
}

type Endpoint struct {
	ID            idgen.EndpointID    `json:"id"`
	ApplicationID idgen.ApplicationID `json:"app_id"`
	URL           string              `json:"url"`
	Topics        []string            `json:"topics"`
	Status        EndpointStatus      `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
}

func NewEndpoint(appID idgen.ApplicationID, rawURL string, topics []string, now time.Time) (*Endpoint, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpointURL, rawURL)
	}
	if len(topics) == 0 {
		return nil, ErrTopicsRequired
	}
	seen := make(map[string]struct{}, len(topics))
	deduped := make([]string, 0, len(topics))
	for _, topic := range topics {
		if err := ValidateTopic(topic); err != nil {
			return nil, err
		}
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		deduped = append(deduped, topic)
	}
	return &Endpoint{
		ID:            idgen.NewEndpointID(),
		ApplicationID: appID,
		URL:           parsed.String(),
		Topics:        deduped,
		Status:        EndpointStatusInitial,
		CreatedAt:     now.UTC(),
	}, nil
}

func (e *Endpoint) IsActive() bool {
	return e.Status.Active()
}

func (e *Endpoint) HasTopic(topic string) bool {
	for _, t := range e.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// Disable turns an active endpoint off by operator action. Disabling an
// already-disabled endpoint is a no-op so the operation stays idempotent.
func (e *Endpoint) Disable() {
	if e.IsActive() {
		e.Status = EndpointStatusDisabledManually
	}
}

// DisableFailing marks an active endpoint as disabled because its circuit
// tripped.
func (e *Endpoint) DisableFailing() {
	if e.IsActive() {
		e.Status = EndpointStatusDisabledFailing
	}
}

// Enable re-activates a disabled endpoint. Enabling an active endpoint is a
// no-op.
func (e *Endpoint) Enable() {
	if !e.IsActive() {
		e.Status = EndpointStatusEnabledManually
	}
}
