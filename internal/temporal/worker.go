package temporal

import (
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
)

// Dial connects to the Temporal frontend at hostPort. SDK logs go through
// logger.
func Dial(hostPort string, logger *slog.Logger) (client.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := client.Dial(client.Options{
		HostPort: hostPort,
		Logger:   tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("temporal: dial %s: %w", hostPort, err)
	}
	return c, nil
}

// StartWorker registers the batch workflow and its activity on taskQueue and
// starts polling in the background. Callers stop the returned worker on
// shutdown.
func StartWorker(c client.Client, taskQueue string, st ItemStore) (worker.Worker, error) {
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	w := worker.New(c, taskQueue, worker.Options{})

	acts := &Activities{Store: st}
	w.RegisterWorkflow(ApplyItemUpdatesWorkflow)
	w.RegisterActivity(acts.UpdateItemActivity)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("temporal: start worker on %s: %w", taskQueue, err)
	}
	return w, nil
}
