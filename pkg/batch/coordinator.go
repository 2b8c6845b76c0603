package batch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	shared "github.com/fitnessllm/dataplatform/pkg"
	ps "github.com/fitnessllm/dataplatform/pkg/infrastructure/pubsub"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

// Runner executes the pipeline for one user. Satisfied by the
// orchestrator.
type Runner interface {
	Run(ctx context.Context, userID string, stages []types.Stage) *types.RunResult
}

// Coordinator fans the pipeline out over every connected user of a data
// source through a bounded worker pool. One user's failure never stops
// the others; the report lists failures for explicit follow-up and
// nothing is retried automatically.
type Coordinator struct {
	db         shared.Database
	pub        shared.Publisher
	runner     Runner
	dataSource string
	workers    int
	logger     *slog.Logger
}

func NewCoordinator(db shared.Database, pub shared.Publisher, runner Runner, dataSource string, workers int) *Coordinator {
	if workers <= 0 {
		workers = 1
	}
	return &Coordinator{
		db:         db,
		pub:        pub,
		runner:     runner,
		dataSource: dataSource,
		workers:    workers,
		logger:     slog.Default().With("component", "batch"),
	}
}

// RunAll executes the requested stages for every connected user. Each
// user appears at most once in the schedule, so no two workers ever
// process the same user concurrently.
func (c *Coordinator) RunAll(ctx context.Context, stages []types.Stage) (*types.BatchReport, error) {
	users, err := c.db.ListConnectedUsers(ctx, c.dataSource)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Batch starting",
		"data_source", c.dataSource,
		"users", len(users),
		"workers", c.workers)

	var (
		mu     sync.Mutex
		report = &types.BatchReport{DataSource: c.dataSource}
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, userID := range users {
		g.Go(func() error {
			result := c.runner.Run(ctx, userID, stages)
			mu.Lock()
			defer mu.Unlock()
			if result.Succeeded() {
				report.Succeeded = append(report.Succeeded, userID)
			} else {
				report.Failed = append(report.Failed, result)
			}
			return nil
		})
	}
	// Workers never return errors; Wait only surfaces ctx cancellation.
	if err := g.Wait(); err != nil {
		return report, err
	}

	c.logger.Info("Batch complete",
		"data_source", c.dataSource,
		"succeeded", len(report.Succeeded),
		"failed", len(report.Failed))
	c.publishCompleted(ctx, report)
	return report, nil
}

func (c *Coordinator) publishCompleted(ctx context.Context, report *types.BatchReport) {
	if c.pub == nil {
		return
	}
	event, err := ps.NewCloudEvent(ps.EventSourceBatch, ps.EventTypeBatchCompleted, report)
	if err != nil {
		c.logger.Error("Failed to build batch event", "error", err)
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("Failed to encode batch event", "error", err)
		return
	}
	if _, err := c.pub.Publish(ctx, shared.TopicPipelineRuns, data); err != nil {
		c.logger.Error("Failed to publish batch event", "error", err)
	}
}
