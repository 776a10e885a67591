package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dukex/flowrun/pkg/web"
	"github.com/google/uuid"
)

const shutdownTimeout = 10 * time.Second

// NewWorkerID returns id, or a generated one when it is empty.
func NewWorkerID(id string) string {
	if id != "" {
		return id
	}

	return "worker-" + uuid.New().String()[:8]
}

// ServeAPI runs the HTTP server until ctx is done.
func ServeAPI(ctx context.Context, rt *Runtime) error {
	handlers := web.NewAPIHandlers(web.Services{
		Workflows:  rt.Workflows,
		Triggers:   rt.Triggers,
		Executions: rt.Executions,
		Webhooks:   rt.Webhooks,
		Events:     rt.Bus,
		Registry:   rt.Registry,
		Validator:  rt.Validate,
		Logger:     rt.Logger,
	})

	app := web.NewApp(handlers, web.AppConfig{RequestLogger: rt.Config.RequestLog})

	errCh := make(chan error, 1)

	go func() {
		rt.Logger.Info("api listening", "port", rt.Config.Port)
		errCh <- app.Listen(":" + strconv.Itoa(rt.Config.Port))
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down api server: %w", err)
	}

	return nil
}

// RunWorkers rebuilds cron schedules from the store and consumes jobs until ctx is done.
func RunWorkers(ctx context.Context, rt *Runtime, workerID string) error {
	if err := rt.Scheduler.SyncAll(ctx); err != nil {
		return fmt.Errorf("failed to sync schedules: %w", err)
	}

	err := rt.Engine(workerID).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
