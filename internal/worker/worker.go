// Package worker runs the process's long-lived components (HTTP server,
// dispatch consumer) under one supervisor with shared shutdown handling.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Worker is a long-running background process. Run blocks until ctx is
// canceled or a fatal error occurs; context.Canceled counts as a graceful
// stop.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// Logger is the narrow logging surface the supervisor needs.
type Logger interface {
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// Supervisor starts registered workers in their own goroutines and tracks
// their health. A failed worker does not take down its siblings; the health
// tracker reports it so an orchestrator can restart the process.
type Supervisor struct {
	workers         []Worker
	health          *HealthTracker
	logger          Logger
	shutdownTimeout time.Duration
}

type SupervisorOption func(*Supervisor)

// WithShutdownTimeout bounds the graceful-shutdown wait. Zero waits
// indefinitely.
func WithShutdownTimeout(timeout time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		s.shutdownTimeout = timeout
	}
}

func NewSupervisor(logger Logger, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		health: NewHealthTracker(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Supervisor) Register(w Worker) {
	for _, existing := range s.workers {
		if existing.Name() == w.Name() {
			panic(fmt.Sprintf("worker %s already registered", w.Name()))
		}
	}
	s.workers = append(s.workers, w)
}

func (s *Supervisor) Health() *HealthTracker {
	return s.health
}

// Run blocks until all workers exit or ctx is canceled. After cancellation
// it waits for workers to drain, bounded by the shutdown timeout when one is
// configured.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.workers) == 0 {
		s.logger.Warn("no workers registered")
		return nil
	}

	s.logger.Info("starting workers", zap.Int("count", len(s.workers)))

	var wg sync.WaitGroup
	for _, w := range s.workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			s.logger.Info("worker starting", zap.String("worker", w.Name()))
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("worker failed", zap.String("worker", w.Name()), zap.Error(err))
				s.health.MarkFailed(w.Name())
				return
			}
			s.logger.Info("worker stopped", zap.String("worker", w.Name()))
			s.health.MarkHealthy(w.Name())
		}(w)
	}

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down workers")
		return s.wait(&wg)
	case <-waitChan(&wg):
		s.logger.Warn("all workers have exited")
		return nil
	}
}

func (s *Supervisor) wait(wg *sync.WaitGroup) error {
	if s.shutdownTimeout == 0 {
		wg.Wait()
		return nil
	}
	select {
	case <-waitChan(wg):
		return nil
	case <-time.After(s.shutdownTimeout):
		return fmt.Errorf("shutdown timeout exceeded (%v)", s.shutdownTimeout)
	}
}

func waitChan(wg *sync.WaitGroup) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}
