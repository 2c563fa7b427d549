// Package jobs defines the background tasks of the ledger and the
// asynq worker that runs them.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDistributeDividends runs year-end dividend distribution.
	TaskDistributeDividends = "dividends:distribute"
	// TaskOverdueScan flags overdue installments and verifies schedules.
	TaskOverdueScan = "loans:overdue_scan"
)

// DistributePayload names the financial year to distribute. Year 0
// means the year whose configured end boundary most recently passed.
// Recompute lets a run supersede records that were already paid out.
type DistributePayload struct {
	Year      int  `json:"year"`
	Recompute bool `json:"recompute,omitempty"`
}

// NewDistributeTask constructs a distribution task.
func NewDistributeTask(payload DistributePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDistributeDividends, data), nil
}

// NewOverdueScanTask constructs an overdue scan task.
func NewOverdueScanTask() *asynq.Task {
	return asynq.NewTask(TaskOverdueScan, nil)
}
