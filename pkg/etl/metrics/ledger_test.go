package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitnessllm/dataplatform/pkg/testing/mocks"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

func TestSuccessfulActivityIDs(t *testing.T) {
	wh := &mocks.MockWarehouse{
		QueryFunc: func(ctx context.Context, sql string) ([]map[string]interface{}, error) {
			assert.Contains(t, sql, "dev_metrics.metrics")
			assert.Contains(t, sql, "athlete_id = '42'")
			assert.Contains(t, sql, "data_stream = 'heartrate'")
			assert.Contains(t, sql, "status = 'SUCCESS'")
			return []map[string]interface{}{
				{"activity_id": "100"},
				{"activity_id": "101"},
			}, nil
		},
	}

	ledger := NewLedger(wh, "dev")
	ids, err := ledger.SuccessfulActivityIDs(context.Background(), "42", "strava", "heartrate")
	require.NoError(t, err)
	assert.True(t, ids["100"])
	assert.True(t, ids["101"])
	assert.False(t, ids["102"])
}

func TestReserve(t *testing.T) {
	ledger := NewLedger(&mocks.MockWarehouse{}, "dev")

	assert.True(t, ledger.Reserve("42", "100", "heartrate"))
	assert.False(t, ledger.Reserve("42", "100", "heartrate"), "second claim on the same key must fail")
	assert.True(t, ledger.Reserve("42", "100", "watts"), "different stream is a different key")
	assert.True(t, ledger.Reserve("42", "101", "heartrate"))
}

func TestAppend(t *testing.T) {
	var gotDataset, gotTable string
	var gotRows []map[string]interface{}
	wh := &mocks.MockWarehouse{
		InsertFunc: func(ctx context.Context, dataset, table string, rows []map[string]interface{}) error {
			gotDataset, gotTable, gotRows = dataset, table, rows
			return nil
		},
	}

	ledger := NewLedger(wh, "dev")
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	err := ledger.Append(context.Background(), []types.MetricRecord{
		{AthleteID: "42", ActivityID: "100", DataSource: "strava", DataStream: "heartrate", RecordCount: 7},
	}, types.StatusSuccess, ts)
	require.NoError(t, err)

	assert.Equal(t, "dev_metrics", gotDataset)
	assert.Equal(t, "metrics", gotTable)
	require.Len(t, gotRows, 1)
	assert.Equal(t, "SUCCESS", gotRows[0]["status"])
	assert.Equal(t, ts, gotRows[0]["bq_insert_timestamp"])
	assert.Equal(t, 7, gotRows[0]["record_count"])
}

func TestAppend_EmptyNoInsert(t *testing.T) {
	wh := &mocks.MockWarehouse{
		InsertFunc: func(ctx context.Context, dataset, table string, rows []map[string]interface{}) error {
			t.Fatal("empty append must not insert")
			return nil
		},
	}
	ledger := NewLedger(wh, "dev")
	require.NoError(t, ledger.Append(context.Background(), nil, types.StatusSuccess, time.Now()))
}
