// Package services wraps the process's serving surfaces as supervised
// workers.
package services

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/worker"
)

// HTTPServerWorker runs the ingestion API server as a worker.
type HTTPServerWorker struct {
	server *http.Server
	logger *logging.Logger
}

func NewHTTPServerWorker(server *http.Server, logger *logging.Logger) worker.Worker {
	return &HTTPServerWorker{server: server, logger: logger}
}

func (w *HTTPServerWorker) Name() string {
	return "http-server"
}

func (w *HTTPServerWorker) Run(ctx context.Context) error {
	logger := w.logger.Ctx(ctx)
	logger.Info("http server listening", zap.String("addr", w.server.Addr))

	errChan := make(chan error, 1)
	go func() {
		if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := w.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down http server", zap.Error(err))
			return err
		}
		logger.Info("http server shut down")
		return nil
	case err := <-errChan:
		logger.Error("http server error", zap.Error(err))
		return err
	}
}
