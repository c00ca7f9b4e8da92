package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"

	"github.com/antigravity-dev/tracker/internal/backlog"
)

// WorkflowStarter is the part of client.Client the dispatcher needs.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Dispatcher applies item batches through ApplyItemUpdatesWorkflow. Each
// patch is applied independently; partial failures come back as
// *apperr.BatchError.
type Dispatcher struct {
	client    WorkflowStarter
	taskQueue string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. A zero timeout waits as long as ctx
// allows.
func NewDispatcher(c WorkflowStarter, taskQueue string, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{client: c, taskQueue: taskQueue, timeout: timeout, logger: logger}
}

// ApplyItemUpdates starts a batch workflow and blocks until it finishes.
func (d *Dispatcher) ApplyItemUpdates(ctx context.Context, updates []backlog.Update) error {
	if len(updates) == 0 {
		return nil
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	wo := client.StartWorkflowOptions{
		ID:                       "item-batch-" + uuid.NewString(),
		TaskQueue:                d.taskQueue,
		WorkflowExecutionTimeout: d.timeout,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}
	run, err := d.client.ExecuteWorkflow(ctx, wo, ApplyItemUpdatesWorkflow, BatchRequest{Updates: updates})
	if err != nil {
		return fmt.Errorf("temporal: start item batch: %w", err)
	}

	var result BatchResult
	if err := run.Get(ctx, &result); err != nil {
		return fmt.Errorf("temporal: item batch %s: %w", run.GetID(), err)
	}
	if len(result.Failures) > 0 {
		d.logger.Warn("item batch partially applied",
			"workflow_id", run.GetID(),
			"run_id", run.GetRunID(),
			"applied", result.Applied,
			"failed", len(result.Failures))
	}
	return result.Err()
}
