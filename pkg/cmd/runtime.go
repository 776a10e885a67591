package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowrun/pkg/config"
	"github.com/dukex/flowrun/pkg/engine"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/otelhelper"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/queue"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/services"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"
)

// Runtime wires the shared collaborators of the API and the workers.
type Runtime struct {
	Config      *config.Config
	Logger      *slog.Logger
	Persistence persistence.Persistence
	Queue       queue.Queue
	Bus         eventbus.EventBus
	Registry    *registry.Registry
	Validate    *validator.Validate
	Tracer      trace.Tracer

	Scheduler  *services.Scheduler
	Workflows  *services.Workflow
	Triggers   *services.Trigger
	Executions *services.Execution
	Webhooks   *services.Webhook

	closers []func(context.Context) error
}

// NewRuntime opens the store, the queue and the event bus described by cfg.
// On error everything opened so far is closed.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, serviceName string) (*Runtime, error) {
	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Registry: NewRegistry(logger),
		Validate: validator.New(),
		Tracer:   otelhelper.NoopTracer(),
	}

	if err := rt.open(ctx, serviceName); err != nil {
		_ = rt.Close(ctx)

		return nil, err
	}

	rt.Scheduler = services.NewScheduler(rt.Persistence, rt.Queue, logger)
	rt.Workflows = services.NewWorkflow(rt.Persistence, rt.Registry, rt.Scheduler, rt.Validate, logger)
	rt.Triggers = services.NewTrigger(rt.Persistence, rt.Scheduler, rt.Validate, logger)
	rt.Executions = services.NewExecution(rt.Persistence, rt.Workflows, rt.Queue, rt.Bus, logger)
	rt.Webhooks = services.NewWebhook(rt.Persistence, rt.Executions)

	return rt, nil
}

func (rt *Runtime) open(ctx context.Context, serviceName string) error {
	p, err := NewPersistence(ctx, rt.Logger, rt.Config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}

	rt.Persistence = p
	rt.closers = append(rt.closers, p.Close)

	q, closeQueue, err := NewQueue(ctx, rt.Logger, rt.Config)
	if err != nil {
		return fmt.Errorf("failed to open queue: %w", err)
	}

	rt.Queue = q
	rt.closers = append(rt.closers, func(context.Context) error { return closeQueue() })

	bus, err := NewEventBus(rt.Logger, rt.Config)
	if err != nil {
		return fmt.Errorf("failed to open event bus: %w", err)
	}

	rt.Bus = bus
	rt.closers = append(rt.closers, func(context.Context) error { return bus.Close() })

	if rt.Config.OTELEnabled {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return fmt.Errorf("failed to create tracer: %w", err)
		}

		rt.Tracer = tracer
		rt.closers = append(rt.closers, shutdown)
	}

	return nil
}

// Engine builds the workflow and node workers on top of the runtime.
func (rt *Runtime) Engine(workerID string) *engine.Engine {
	return engine.New(engine.Dependencies{
		Persistence: rt.Persistence,
		Registry:    rt.Registry,
		Queue:       rt.Queue,
		Bus:         rt.Bus,
		Executions:  rt.Executions,
		Tracer:      rt.Tracer,
		Logger:      rt.Logger,
	}, engine.Options{
		WorkflowConcurrency: rt.Config.WorkflowConcurrency,
		NodeConcurrency:     rt.Config.NodeConcurrency,
		WorkerID:            workerID,
	})
}

// Close releases resources in reverse opening order.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error

	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	rt.closers = nil

	return errors.Join(errs...)
}
