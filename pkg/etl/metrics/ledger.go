package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	shared "github.com/fitnessllm/dataplatform/pkg"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

// Ledger is the append-only metrics table used as the pipeline's
// idempotency mechanism: a (athlete, activity, stream) key with a SUCCESS
// row is never loaded again. Rows are only ever appended; corrections are
// new rows.
type Ledger struct {
	wh  shared.Warehouse
	env string

	// reserved guards concurrent check-then-append within one process.
	// Cross-process dedup comes from the SUCCESS query itself, since the
	// batch coordinator never schedules the same user twice concurrently.
	mu       sync.Mutex
	reserved map[string]struct{}
}

func NewLedger(wh shared.Warehouse, env string) *Ledger {
	return &Ledger{
		wh:       wh,
		env:      env,
		reserved: make(map[string]struct{}),
	}
}

func (l *Ledger) table() string {
	return shared.MetricsDataset(l.env) + "." + shared.MetricsTable
}

// SuccessfulActivityIDs returns the activity ids that already have a
// SUCCESS row for the given athlete, source and stream.
func (l *Ledger) SuccessfulActivityIDs(ctx context.Context, athleteID, dataSource, dataStream string) (map[string]bool, error) {
	sql := fmt.Sprintf(`
        SELECT DISTINCT activity_id
        FROM %s
        WHERE athlete_id = '%s' AND data_source = '%s' AND data_stream = '%s' AND status = '%s'
    `, l.table(), athleteID, dataSource, dataStream, types.StatusSuccess)

	rows, err := l.wh.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query metrics ledger: %w", err)
	}
	ids := make(map[string]bool, len(rows))
	for _, row := range rows {
		if id, ok := row["activity_id"].(string); ok {
			ids[id] = true
		}
	}
	return ids, nil
}

// Reserve claims a ledger key for this process. It returns false when
// another worker already holds the key, in which case the caller skips
// the unit instead of double-loading it.
func (l *Ledger) Reserve(athleteID, activityID, dataStream string) bool {
	key := athleteID + "/" + activityID + "/" + dataStream
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.reserved[key]; taken {
		return false
	}
	l.reserved[key] = struct{}{}
	return true
}

// Append writes metric rows with the given status and timestamp.
func (l *Ledger) Append(ctx context.Context, records []types.MetricRecord, status string, ts time.Time) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, len(records))
	for i, rec := range records {
		rec.Status = status
		rec.BQInsertTimestamp = ts
		rows[i] = rec.Row()
	}
	if err := l.wh.Insert(ctx, shared.MetricsDataset(l.env), shared.MetricsTable, rows); err != nil {
		return fmt.Errorf("append metrics: %w", err)
	}
	return nil
}
