package idgen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/ksuid"
)

// ErrInvalidID is wrapped by every parse failure so callers can map it to an
// invalid-argument response with errors.Is.
var ErrInvalidID = errors.New("invalid id")

const terminator = "_"

const (
	applicationPrefix = "app"
	endpointPrefix    = "ep"
	eventPrefix       = "evt"
	messagePrefix     = "rmsg"
	attemptLogPrefix  = "att"
)

// Ids are KSUIDs rendered as 27-char base62 with an entity prefix, e.g.
// "evt_1srOrx2ZWZBpBUvZwXKQmoEYga2". The body is K-sortable, so a
// lexicographic sort approximates creation order and hot paths need no
// created-at index.

func newBody() string {
	return ksuid.New().String()
}

func parseBody(typeName, prefix, s string) (string, error) {
	prefixPart, bodyPart, ok := strings.Cut(s, terminator)
	if !ok || prefixPart == "" || bodyPart == "" {
		return "", fmt.Errorf("%w: %s should have prefix %q and a valid body, e.g. %q",
			ErrInvalidID, typeName, prefix, prefix+terminator+"1srOrx2ZWZBpBUvZwXKQmoEYga2")
	}
	if prefixPart != prefix {
		return "", fmt.Errorf("%w: %s should have prefix %q but has %q",
			ErrInvalidID, typeName, prefix, prefixPart)
	}
	if _, err := ksuid.Parse(bodyPart); err != nil {
		return "", fmt.Errorf("%w: %s received invalid body %q", ErrInvalidID, typeName, bodyPart)
	}
	return bodyPart, nil
}

// ApplicationID identifies an Application ("app" prefix).
type ApplicationID struct{ body string }

func NewApplicationID() ApplicationID { return ApplicationID{body: newBody()} }

func ParseApplicationID(s string) (ApplicationID, error) {
	body, err := parseBody("ApplicationID", applicationPrefix, s)
	if err != nil {
		return ApplicationID{}, err
	}
	return ApplicationID{body: body}, nil
}

func (i ApplicationID) String() string { return applicationPrefix + terminator + i.body }
func (i ApplicationID) Body() string   { return i.body }
func (i ApplicationID) IsZero() bool   { return i.body == "" }

func (i ApplicationID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *ApplicationID) UnmarshalText(data []byte) error {
	id, err := ParseApplicationID(string(data))
	if err != nil {
		return err
	}
	*i = id
	return nil
}

// EndpointID identifies an Endpoint ("ep" prefix).
type EndpointID struct{ body string }

func NewEndpointID() EndpointID { return EndpointID{body: newBody()} }

func ParseEndpointID(s string) (EndpointID, error) {
	body, err := parseBody("EndpointID", endpointPrefix, s)
	if err != nil {
		return EndpointID{}, err
	}
	return EndpointID{body: body}, nil
}

func (i EndpointID) String() string { return endpointPrefix + terminator + i.body }
func (i EndpointID) Body() string   { return i.body }
func (i EndpointID) IsZero() bool   { return i.body == "" }

func (i EndpointID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *EndpointID) UnmarshalText(data []byte) error {
	id, err := ParseEndpointID(string(data))
	if err != nil {
		return err
	}
	*i = id
	return nil
}

// EventID identifies an Event ("evt" prefix).
type EventID struct{ body string }

func NewEventID() EventID { return EventID{body: newBody()} }

func ParseEventID(s string) (EventID, error) {
	body, err := parseBody("EventID", eventPrefix, s)
	if err != nil {
		return EventID{}, err
	}
	return EventID{body: body}, nil
}

func (i EventID) String() string { return eventPrefix + terminator + i.body }
func (i EventID) Body() string   { return i.body }
func (i EventID) IsZero() bool   { return i.body == "" }

func (i EventID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *EventID) UnmarshalText(data []byte) error {
	id, err := ParseEventID(string(data))
	if err != nil {
		return err
	}
	*i = id
	return nil
}

// MessageID identifies a routed Message ("rmsg" prefix).
type MessageID struct{ body string }

func NewMessageID() MessageID { return MessageID{body: newBody()} }

func ParseMessageID(s string) (MessageID, error) {
	body, err := parseBody("MessageID", messagePrefix, s)
	if err != nil {
		return MessageID{}, err
	}
	return MessageID{body: body}, nil
}

func (i MessageID) String() string { return messagePrefix + terminator + i.body }
func (i MessageID) Body() string   { return i.body }
func (i MessageID) IsZero() bool   { return i.body == "" }

func (i MessageID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *MessageID) UnmarshalText(data []byte) error {
	id, err := ParseMessageID(string(data))
	if err != nil {
		return err
	}
	*i = id
	return nil
}

// AttemptLogID identifies an AttemptLog audit row ("att" prefix).
type AttemptLogID struct{ body string }

func NewAttemptLogID() AttemptLogID { return AttemptLogID{body: newBody()} }

func ParseAttemptLogID(s string) (AttemptLogID, error) {
	body, err := parseBody("AttemptLogID", attemptLogPrefix, s)
	if err != nil {
		return AttemptLogID{}, err
	}
	return AttemptLogID{body: body}, nil
}

func (i AttemptLogID) String() string { return attemptLogPrefix + terminator + i.body }
func (i AttemptLogID) Body() string   { return i.body }
func (i AttemptLogID) IsZero() bool   { return i.body == "" }

func (i AttemptLogID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *AttemptLogID) UnmarshalText(data []byte) error {
	id, err := ParseAttemptLogID(string(data))
	if err != nil {
		return err
	}
	*i = id
	return nil
}
