package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

// TypePurgeReads removes per-reader read records past the retention window.
const TypePurgeReads = "reads:purge"

// QueueMaintenance carries housekeeping tasks.
const QueueMaintenance = "maintenance"

// ReadPurger is the receipts engine slice the purge task needs.
type ReadPurger interface {
	PurgePerReader(ctx context.Context, olderThan time.Duration) (int64, error)
}

type purgePayload struct {
	OlderThan string `json:"older_than"`
}

// NewPurgeReadsTask builds a purge task for records older than olderThan.
func NewPurgeReadsTask(olderThan time.Duration) (*asynq.Task, error) {
	if olderThan <= 0 {
		return nil, fmt.Errorf("jobs: purge window must be positive, got %s", olderThan)
	}
	raw, err := json.Marshal(purgePayload{OlderThan: olderThan.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePurgeReads, raw, asynq.Queue(QueueMaintenance), asynq.MaxRetry(3)), nil
}

// HandlePurgeReads runs PurgePerReader with the window carried by the task.
// Malformed payloads are skipped rather than retried.
func HandlePurgeReads(purger ReadPurger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p purgePayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("jobs: decode purge payload: %v: %w", err, asynq.SkipRetry)
		}
		olderThan, err := time.ParseDuration(p.OlderThan)
		if err != nil || olderThan <= 0 {
			return fmt.Errorf("jobs: invalid purge window %q: %w", p.OlderThan, asynq.SkipRetry)
		}
		deleted, err := purger.PurgePerReader(ctx, olderThan)
		if err != nil {
			return err
		}
		log.Printf("read purge done deleted=%d older_than=%s", deleted, olderThan)
		return nil
	}
}
