package worker

import (
	"sync"
	"time"
)

const (
	StatusHealthy = "healthy"
	StatusFailed  = "failed"
)

type Health struct {
	Status    string    `json:"status"`
	LastCheck time.Time `json:"last_check"`
}

// HealthTracker records per-worker status. Safe for concurrent use.
type HealthTracker struct {
	mu      sync.RWMutex
	workers map[string]Health
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{workers: make(map[string]Health)}
}

func (h *HealthTracker) MarkHealthy(name string) {
	h.set(name, StatusHealthy)
}

func (h *HealthTracker) MarkFailed(name string) {
	h.set(name, StatusFailed)
}

func (h *HealthTracker) set(name, status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.workers[name] = Health{Status: status, LastCheck: time.Now()}
}

// IsHealthy reports whether no worker has failed.
func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, health := range h.workers {
		if health.Status == StatusFailed {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of the tracked statuses.
func (h *HealthTracker) Snapshot() map[string]Health {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]Health, len(h.workers))
	for name, health := range h.workers {
		out[name] = health
	}
	return out
}
