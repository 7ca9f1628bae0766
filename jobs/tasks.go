package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockIntegrity is the task type for the nightly stock integrity scan.
	TaskStockIntegrity = "inventory:integrity_scan"
)

// NewStockIntegrityTask constructs the integrity scan task. The scan takes no
// payload; it always covers every cached stock pair.
func NewStockIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskStockIntegrity, nil)
}
