package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitnessllm/dataplatform/pkg/testing/mocks"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

type fakeRunner struct {
	mu      sync.Mutex
	ran     []string
	failFor map[string]bool

	active     atomic.Int32
	maxActive  atomic.Int32
	runLatency time.Duration
}

func (f *fakeRunner) Run(ctx context.Context, userID string, stages []types.Stage) *types.RunResult {
	cur := f.active.Add(1)
	for {
		prev := f.maxActive.Load()
		if cur <= prev || f.maxActive.CompareAndSwap(prev, cur) {
			break
		}
	}
	if f.runLatency > 0 {
		time.Sleep(f.runLatency)
	}
	f.active.Add(-1)

	f.mu.Lock()
	f.ran = append(f.ran, userID)
	f.mu.Unlock()

	result := &types.RunResult{UserID: userID, Stages: stages}
	if f.failFor[userID] {
		result.FailedStage = types.StageIngest
		result.Err = fmt.Errorf("simulated failure")
		result.Error = result.Err.Error()
	}
	return result
}

func TestRunAll_IsolatesFailures(t *testing.T) {
	db := &mocks.MockDatabase{
		ListConnectedUsersFunc: func(ctx context.Context, dataSource string) ([]string, error) {
			return []string{"u1", "u2", "u3"}, nil
		},
	}
	runner := &fakeRunner{failFor: map[string]bool{"u2": true}}

	c := NewCoordinator(db, nil, runner, "strava", 2)
	report, err := c.RunAll(context.Background(), types.FullPipeline)
	require.NoError(t, err)

	assert.Len(t, runner.ran, 3, "every user runs regardless of failures")
	assert.ElementsMatch(t, []string{"u1", "u3"}, report.Succeeded)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "u2", report.Failed[0].UserID)
	assert.Equal(t, types.StageIngest, report.Failed[0].FailedStage)
}

func TestRunAll_BoundsConcurrency(t *testing.T) {
	users := make([]string, 10)
	for i := range users {
		users[i] = fmt.Sprintf("u%d", i)
	}
	db := &mocks.MockDatabase{
		ListConnectedUsersFunc: func(ctx context.Context, dataSource string) ([]string, error) {
			return users, nil
		},
	}
	runner := &fakeRunner{runLatency: 10 * time.Millisecond}

	c := NewCoordinator(db, nil, runner, "strava", 3)
	_, err := c.RunAll(context.Background(), types.FullPipeline)
	require.NoError(t, err)

	assert.LessOrEqual(t, runner.maxActive.Load(), int32(3))
	assert.Len(t, runner.ran, 10)
}

func TestRunAll_ListFailureAborts(t *testing.T) {
	db := &mocks.MockDatabase{
		ListConnectedUsersFunc: func(ctx context.Context, dataSource string) ([]string, error) {
			return nil, fmt.Errorf("firestore unavailable")
		},
	}

	c := NewCoordinator(db, nil, &fakeRunner{}, "strava", 2)
	_, err := c.RunAll(context.Background(), types.FullPipeline)
	require.Error(t, err)
}

func TestRunAll_PublishesBatchEvent(t *testing.T) {
	db := &mocks.MockDatabase{
		ListConnectedUsersFunc: func(ctx context.Context, dataSource string) ([]string, error) {
			return []string{"u1"}, nil
		},
	}
	var published []byte
	pub := &mocks.MockPublisher{
		PublishFunc: func(ctx context.Context, topicID string, data []byte) (string, error) {
			published = data
			return "msg-1", nil
		},
	}

	c := NewCoordinator(db, pub, &fakeRunner{}, "strava", 1)
	_, err := c.RunAll(context.Background(), types.FullPipeline)
	require.NoError(t, err)

	require.NotNil(t, published)
	assert.Contains(t, string(published), "pipeline.batch.completed")
}
