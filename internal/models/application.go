package models

import (
	"errors"
	"strings"
	"time"

	"github.com/hookline/hookline/internal/idgen"
)

var ErrApplicationNameRequired = errors.New("application name must not be empty")

type Application struct {
	ID        idgen.ApplicationID `json:"id"`
	Name      string              `json:"name"`
	CreatedAt time.Time           `json:"created_at"`
}

func NewApplication(name string, now time.Time) (*Application, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrApplicationNameRequired
	}
	return &Application{
		ID:        idgen.NewApplicationID(),
		Name:      name,
		CreatedAt: now.UTC(),
	}, nil
}
