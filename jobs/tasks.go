package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCatalogItemUpdated refreshes open quotes after a catalog item edit.
	TaskCatalogItemUpdated = "catalog:item-updated"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency-cleanup"
)

// CatalogItemUpdatedPayload names the edited catalog item.
type CatalogItemUpdatedPayload struct {
	ItemID int64 `json:"item_id"`
}

// NewCatalogItemUpdatedTask constructs an Asynq task.
func NewCatalogItemUpdatedTask(itemID int64) (*asynq.Task, error) {
	if itemID <= 0 {
		return nil, errors.New("jobs: catalog item id must be positive")
	}
	data, err := json.Marshal(CatalogItemUpdatedPayload{ItemID: itemID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogItemUpdated, data), nil
}

// IdempotencyCleanupPayload sets the retention window in hours.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
