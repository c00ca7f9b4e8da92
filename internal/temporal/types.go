package temporal

import (
	"github.com/antigravity-dev/tracker/internal/apperr"
	"github.com/antigravity-dev/tracker/internal/backlog"
)

// TaskQueue is the default queue the tracker worker polls.
const TaskQueue = "tracker-task-queue"

// BatchRequest is the input to ApplyItemUpdatesWorkflow.
type BatchRequest struct {
	Updates []backlog.Update `json:"updates"`
}

// BatchResult reports how a fan-out batch went. Updates are independent, so
// a failure leaves the others applied. Only ItemID and Reason survive the
// round trip through the workflow history.
type BatchResult struct {
	Applied  int                  `json:"applied"`
	Failures []apperr.ItemFailure `json:"failures,omitempty"`
}

// Err converts the result into *apperr.BatchError, or nil when every update
// was applied.
func (r BatchResult) Err() error {
	return apperr.NewBatchError(r.Applied, r.Failures)
}
