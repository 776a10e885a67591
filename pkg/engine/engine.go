// Package engine runs workflow executions: the workflow worker creates executions
// and their start node runs, the node worker runs one node at a time and enqueues
// its successors.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/metrics"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/otelhelper"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/queue"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/services"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkflowConcurrency = 3
	DefaultNodeConcurrency     = 5
	DefaultWorkflowCacheTTL    = time.Minute
	DefaultStatsInterval       = 30 * time.Second
)

// Options tunes the worker pools.
type Options struct {
	WorkflowConcurrency int
	NodeConcurrency     int
	// WorkflowCacheTTL bounds how long the node worker reuses a loaded
	// workflow definition. The workflow worker always refreshes it.
	WorkflowCacheTTL time.Duration
	// StatsInterval is the period of queue statistics logging. Negative disables it.
	StatsInterval time.Duration
	WorkerID      string
}

func (o *Options) setDefaults() {
	if o.WorkflowConcurrency <= 0 {
		o.WorkflowConcurrency = DefaultWorkflowConcurrency
	}

	if o.NodeConcurrency <= 0 {
		o.NodeConcurrency = DefaultNodeConcurrency
	}

	if o.WorkflowCacheTTL <= 0 {
		o.WorkflowCacheTTL = DefaultWorkflowCacheTTL
	}

	if o.StatsInterval == 0 {
		o.StatsInterval = DefaultStatsInterval
	}
}

// Dependencies are the collaborators of the engine. Tracer may be nil.
type Dependencies struct {
	Persistence persistence.Persistence
	Registry    *registry.Registry
	Queue       queue.Queue
	Bus         eventbus.EventPublisher
	Executions  *services.Execution
	Tracer      trace.Tracer
	Logger      *slog.Logger
}

type Engine struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	queue       queue.Queue
	bus         eventbus.EventPublisher
	executions  *services.Execution
	tracer      trace.Tracer
	logger      *slog.Logger

	workflows  *cache.Cache
	stateLocks *keyedMutex
	options    Options
	now        func() time.Time
}

func New(deps Dependencies, options Options) *Engine {
	options.setDefaults()

	tracer := deps.Tracer
	if tracer == nil {
		tracer = otelhelper.NoopTracer()
	}

	logger := deps.Logger.With("module", "engine")
	if options.WorkerID != "" {
		logger = logger.With("worker_id", options.WorkerID)
	}

	return &Engine{
		persistence: deps.Persistence,
		registry:    deps.Registry,
		queue:       deps.Queue,
		bus:         deps.Bus,
		executions:  deps.Executions,
		tracer:      tracer,
		logger:      logger,
		workflows:   cache.New(options.WorkflowCacheTTL, 2*options.WorkflowCacheTTL),
		stateLocks:  newKeyedMutex(),
		options:     options,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run consumes both job families until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("starting workers",
		"workflow_concurrency", e.options.WorkflowConcurrency,
		"node_concurrency", e.options.NodeConcurrency,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.queue.Consume(ctx, queue.FamilyWorkflow, e.options.WorkflowConcurrency, e.HandleWorkflowJob)
	})

	g.Go(func() error {
		return e.queue.Consume(ctx, queue.FamilyNode, e.options.NodeConcurrency, e.HandleNodeJob)
	})

	if e.options.StatsInterval > 0 {
		g.Go(func() error {
			e.reportStats(ctx)

			return nil
		})
	}

	err := g.Wait()

	e.logger.Info("workers stopped")

	return err
}

func (e *Engine) reportStats(ctx context.Context) {
	ticker := time.NewTicker(e.options.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := e.queue.Stats(ctx)
			if err != nil {
				e.logger.Warn("failed to read queue stats", "error", err)

				continue
			}

			metrics.QueueJobs.WithLabelValues("pending").Set(float64(stats.Pending))
			metrics.QueueJobs.WithLabelValues("running").Set(float64(stats.Running))
			metrics.QueueJobs.WithLabelValues("delayed").Set(float64(stats.Delayed))
			metrics.QueueJobs.WithLabelValues("dead").Set(float64(stats.Dead))

			e.logger.Info("queue stats", "pending", stats.Pending, "running", stats.Running, "delayed", stats.Delayed, "dead", stats.Dead)
		}
	}
}

// workflow returns the cached definition, loading it on a miss.
func (e *Engine) workflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	if cached, ok := e.workflows.Get(workflowID); ok {
		return cached.(*models.Workflow), nil
	}

	return e.loadWorkflow(ctx, workflowID)
}

func (e *Engine) loadWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := e.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	e.workflows.SetDefault(workflowID, workflow)

	return workflow, nil
}

// pendingRun creates the PENDING run of node and publishes it. It returns nil
// when the node already has a run in this execution.
func (e *Engine) pendingRun(ctx context.Context, execution *models.WorkflowExecution, node models.WorkflowNode) (*models.WorkflowNodeRun, error) {
	run, created, err := e.persistence.FindOrCreateNodeRun(ctx, &models.WorkflowNodeRun{
		ID:          models.NewNodeRunID(),
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		NodeID:      node.ID,
		Status:      models.NodeRunStatusPending,
		CreatedAt:   e.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create run of node %s: %w", node.ID, err)
	}

	if !created {
		return nil, nil
	}

	e.publish(ctx, events.NewNodeRunUpdated(run))

	return run, nil
}

// skippedRun records that a branch did not select node.
func (e *Engine) skippedRun(ctx context.Context, execution *models.WorkflowExecution, node models.WorkflowNode) error {
	now := e.now()

	run, created, err := e.persistence.FindOrCreateNodeRun(ctx, &models.WorkflowNodeRun{
		ID:          models.NewNodeRunID(),
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		NodeID:      node.ID,
		Status:      models.NodeRunStatusSkipped,
		FinishedAt:  &now,
		CreatedAt:   now,
	})
	if err != nil {
		return fmt.Errorf("failed to record skipped node %s: %w", node.ID, err)
	}

	if created {
		metrics.NodeRuns.WithLabelValues(node.Type, string(models.NodeRunStatusSkipped)).Inc()
		e.publish(ctx, events.NewNodeRunUpdated(run))
	}

	return nil
}

func (e *Engine) publish(ctx context.Context, event events.Event) {
	if e.bus == nil {
		return
	}

	if err := e.bus.Publish(ctx, event); err != nil {
		e.logger.Warn("failed to publish event",
			"event_type", event.GetType(),
			"execution_id", event.GetExecutionID(),
			"error", err,
		)
	}
}
