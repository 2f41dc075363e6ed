package temporalworker

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/reelforge-backend/internal/platform/logger"
	"github.com/yungbote/reelforge-backend/internal/temporalx"
	"github.com/yungbote/reelforge-backend/internal/temporalx/crontick"
)

// Runner hosts the cron workflow worker and keeps the singleton workflow
// execution alive.
type Runner struct {
	log *logger.Logger
	cfg temporalx.Config

	tc     temporalsdkclient.Client
	driver crontick.Ticker
}

func NewRunner(log *logger.Logger, cfg temporalx.Config, tc temporalsdkclient.Client, driver crontick.Ticker) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if driver == nil {
		return nil, fmt.Errorf("temporal worker missing cron driver")
	}
	return &Runner{log: log.With("service", "TemporalCronWorker"), cfg: cfg, tc: tc, driver: driver}, nil
}

// Start begins polling the task queue, stopping when ctx is done, and then
// ensures the cron workflow is running.
func (r *Runner) Start(ctx context.Context) error {
	cfg := r.cfg
	r.log.Info("Starting Temporal worker", "address", cfg.Address, "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue)

	policy := cfg.Retry
	policy.MaxWait = cfg.StartMaxWait
	var w worker.Worker
	err := temporalx.Retry(ctx, policy, func(attempt int) error {
		w = r.newWorker()
		err := w.Start()
		if err == nil {
			r.log.Info("Temporal worker started", "task_queue", cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()
		var nfe *serviceerror.NamespaceNotFound
		if errors.As(err, &nfe) {
			if !cfg.AutoRegisterNamespace {
				return temporalx.Permanent(fmt.Errorf("temporal namespace %s not found: %w", cfg.Namespace, err))
			}
			if nerr := temporalx.EnsureNamespace(ctx, cfg, r.log); nerr != nil {
				return errors.Join(err, nerr)
			}
		}
		return err
	}, func(attempt int, err error) {
		r.log.Warn("Temporal worker failed to start; retrying", "task_queue", cfg.TaskQueue, "attempt", attempt, "error", err)
	})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return r.EnsureWorkflow(ctx)
}

func (r *Runner) newWorker() worker.Worker {
	// one tick at a time; runs are serialized by the claim anyway
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     1,
		MaxConcurrentWorkflowTaskExecutionSize: 2,
	})
	acts := &crontick.Activities{Log: r.log, Driver: r.driver}
	w.RegisterWorkflowWithOptions(crontick.Workflow, workflow.RegisterOptions{Name: crontick.WorkflowName})
	w.RegisterActivityWithOptions(acts.Tick, activity.RegisterOptions{Name: crontick.ActivityTick})
	return w
}

// EnsureWorkflow starts the singleton cron workflow unless it is already
// running.
func (r *Runner) EnsureWorkflow(ctx context.Context) error {
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                       r.cfg.WorkflowID,
		TaskQueue:                r.cfg.TaskQueue,
		WorkflowIDReusePolicy:    enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowIDConflictPolicy: enums.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
	}
	run, err := r.tc.ExecuteWorkflow(ctx, opts, crontick.WorkflowName, crontick.Input{IntervalSeconds: r.cfg.IntervalSeconds})
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return nil
		}
		return fmt.Errorf("start cron workflow: %w", err)
	}
	r.log.Info("Cron workflow running", "workflow_id", run.GetID(), "run_id", run.GetRunID())
	return nil
}

// TickNow signals the cron workflow to run a pass immediately.
func (r *Runner) TickNow(ctx context.Context) error {
	return r.tc.SignalWorkflow(ctx, r.cfg.WorkflowID, "", crontick.SignalTickNow, nil)
}
