package temporal

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/antigravity-dev/tracker/internal/apperr"
)

// ApplyItemUpdatesWorkflow fans out one UpdateItemActivity per patch, waits
// for all of them and reports which failed. There is no rollback: a failed
// patch leaves the others applied.
func ApplyItemUpdatesWorkflow(ctx workflow.Context, req BatchRequest) (BatchResult, error) {
	logger := workflow.GetLogger(ctx)

	opts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	}
	actx := workflow.WithActivityOptions(ctx, opts)

	var a *Activities
	futures := make([]workflow.Future, len(req.Updates))
	for i, u := range req.Updates {
		futures[i] = workflow.ExecuteActivity(actx, a.UpdateItemActivity, u)
	}

	var result BatchResult
	for i, f := range futures {
		if err := f.Get(ctx, nil); err != nil {
			result.Failures = append(result.Failures, apperr.ItemFailure{
				ItemID: req.Updates[i].ID,
				Reason: failureReason(err),
			})
			continue
		}
		result.Applied++
	}

	logger.Info("item batch finished", "Updates", len(req.Updates), "Applied", result.Applied, "Failed", len(result.Failures))
	return result, nil
}

// failureReason strips the activity envelope down to the store's message.
func failureReason(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return err.Error()
}
