package execution

import (
	"context"
	"time"

	"github.com/google/uuid"

	shared "github.com/fitnessllm/dataplatform/pkg"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

// Options carries optional metadata for an execution record.
type Options struct {
	UserID      string
	TriggerType string
}

// LogStart creates an execution record in STARTED state and returns its id.
func LogStart(ctx context.Context, db shared.Database, service string, opts Options) (string, error) {
	id := uuid.NewString()
	record := &types.ExecutionRecord{
		ExecutionID: id,
		Service:     service,
		UserID:      opts.UserID,
		TriggerType: opts.TriggerType,
		Status:      types.ExecutionStarted,
		StartedAt:   time.Now().UTC(),
	}
	if err := db.SetExecution(ctx, record); err != nil {
		return id, err
	}
	return id, nil
}

// LogSuccess marks an execution as succeeded with its outputs.
func LogSuccess(ctx context.Context, db shared.Database, id string, outputs interface{}) error {
	return db.UpdateExecution(ctx, id, map[string]interface{}{
		"status":      types.ExecutionSuccess,
		"finished_at": time.Now().UTC(),
		"outputs":     outputs,
	})
}

// LogFailure marks an execution as failed, keeping any partial outputs.
func LogFailure(ctx context.Context, db shared.Database, id string, cause error, outputs interface{}) error {
	return db.UpdateExecution(ctx, id, map[string]interface{}{
		"status":      types.ExecutionFailed,
		"finished_at": time.Now().UTC(),
		"error":       cause.Error(),
		"outputs":     outputs,
	})
}
