package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	shared "github.com/fitnessllm/dataplatform/pkg"
	"github.com/fitnessllm/dataplatform/pkg/etl/bronze"
	"github.com/fitnessllm/dataplatform/pkg/etl/ingest"
	"github.com/fitnessllm/dataplatform/pkg/etl/metrics"
	"github.com/fitnessllm/dataplatform/pkg/etl/silver"
	ps "github.com/fitnessllm/dataplatform/pkg/infrastructure/pubsub"
	"github.com/fitnessllm/dataplatform/pkg/sources"
	"github.com/fitnessllm/dataplatform/pkg/types"
	"github.com/fitnessllm/dataplatform/pkg/vault"
)

// Config holds the run-level settings shared by every stage.
type Config struct {
	Env          string
	BronzeBucket string
	DataSource   string
	// Streams overrides the source's per-sample stream catalog; nil means
	// the full catalog.
	Streams []string
	Sample  int
	Workers int
}

// Orchestrator drives the per-user pipeline as a strict stage sequence.
// A stage failure absorbs the run; later stages never see partial input
// beyond what the ledger already marks as done.
type Orchestrator struct {
	db     shared.Database
	store  shared.BlobStore
	wh     shared.Warehouse
	pub    shared.Publisher
	vault  *vault.Vault
	cfg    Config
	logger *slog.Logger
}

func New(db shared.Database, store shared.BlobStore, wh shared.Warehouse, pub shared.Publisher, v *vault.Vault, cfg Config) *Orchestrator {
	return &Orchestrator{
		db:     db,
		store:  store,
		wh:     wh,
		pub:    pub,
		vault:  v,
		cfg:    cfg,
		logger: slog.Default().With("component", "orchestrator"),
	}
}

// stageOrder is the only legal execution order. Requested stages run in
// this order regardless of how the caller listed them.
var stageOrder = []types.Stage{types.StageIngest, types.StageBronze, types.StageSilver}

func requested(stages []types.Stage, s types.Stage) bool {
	for _, stage := range stages {
		if stage == s {
			return true
		}
	}
	return false
}

// Run executes the requested stages for one user. The returned result is
// terminal: either every stage succeeded or FailedStage names the first
// one that did not. Run never panics a batch; all failures land in the
// result.
func (o *Orchestrator) Run(ctx context.Context, userID string, stages []types.Stage) *types.RunResult {
	result := &types.RunResult{
		UserID:     userID,
		DataSource: o.cfg.DataSource,
		Stages:     stages,
	}
	defer o.publishCompleted(ctx, result)

	desc, err := sources.Lookup(o.cfg.DataSource)
	if err != nil {
		return o.fail(result, types.StageCredentials, err)
	}

	streams := o.cfg.Streams
	if len(streams) == 0 {
		streams = desc.SampleStreams
	}

	// Ingest needs a live access token; bronze and silver only need the
	// athlete identity, so a stored credential is enough and no refresh
	// is spent on it.
	var cred *types.Credential
	if requested(stages, types.StageIngest) {
		cred, err = o.vault.EnsureValid(ctx, userID, o.cfg.DataSource)
	} else {
		cred, err = o.db.GetStreamCredential(ctx, userID, o.cfg.DataSource)
	}
	if err != nil {
		return o.fail(result, types.StageCredentials, err)
	}
	if cred.AthleteID == "" && !requested(stages, types.StageIngest) {
		return o.fail(result, types.StageCredentials, fmt.Errorf("credential has no athlete id; run ingest first"))
	}

	athleteID := cred.AthleteID
	for _, stage := range stageOrder {
		if !requested(stages, stage) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return o.fail(result, stage, err)
		}

		o.logger.Info("Stage starting", "user_id", userID, "stage", string(stage))
		switch stage {
		case types.StageIngest:
			agent := ingest.NewAgent(o.store, o.wh, desc.New(cred.AccessToken), ingest.Config{
				Env:          o.cfg.Env,
				BronzeBucket: o.cfg.BronzeBucket,
				Streams:      streams,
				Sample:       o.cfg.Sample,
			})
			pull, err := agent.Pull(ctx, nil)
			if err != nil {
				return o.fail(result, stage, err)
			}
			result.Pull = pull
			athleteID = pull.AthleteID
			if cred.AthleteID != athleteID {
				// First ingest for this user: persist the athlete identity
				// so later bronze/silver-only runs can resolve it.
				if err := o.db.UpdateStreamCredential(ctx, userID, o.cfg.DataSource, map[string]interface{}{
					"athleteId": athleteID,
				}); err != nil {
					return o.fail(result, stage, fmt.Errorf("persist athlete id: %w", err))
				}
			}

		case types.StageBronze:
			ledger := metrics.NewLedger(o.wh, o.cfg.Env)
			loader := bronze.NewLoader(o.store, o.wh, ledger, bronze.Config{
				Env:           o.cfg.Env,
				BronzeBucket:  o.cfg.BronzeBucket,
				DataSource:    o.cfg.DataSource,
				AthleteID:     athleteID,
				Sample:        o.cfg.Sample,
				StreamWorkers: o.cfg.Workers,
			})
			tables := append([]string{"activity", "athlete_summary"}, streams...)
			load, err := loader.Load(ctx, tables)
			if err != nil {
				return o.fail(result, stage, err)
			}
			result.Load = load

		case types.StageSilver:
			transformer := silver.NewTransformer(o.wh, silver.Config{
				Env:        o.cfg.Env,
				DataSource: o.cfg.DataSource,
				AthleteID:  athleteID,
			})
			if err := transformer.Refresh(ctx); err != nil {
				return o.fail(result, stage, err)
			}
		}
		o.logger.Info("Stage complete", "user_id", userID, "stage", string(stage))
	}

	return result
}

func (o *Orchestrator) fail(result *types.RunResult, stage types.Stage, err error) *types.RunResult {
	result.FailedStage = stage
	result.Err = err
	result.Error = err.Error()
	o.logger.Error("Run failed",
		"user_id", result.UserID,
		"stage", string(stage),
		"error", err)
	return result
}

func (o *Orchestrator) publishCompleted(ctx context.Context, result *types.RunResult) {
	if o.pub == nil {
		return
	}
	event, err := ps.NewCloudEvent(ps.EventSourceOrchestrator, ps.EventTypeRunCompleted, result)
	if err != nil {
		o.logger.Error("Failed to build completion event", "error", err)
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		o.logger.Error("Failed to encode completion event", "error", err)
		return
	}
	// Best effort: a publish failure never changes the run outcome.
	if _, err := o.pub.Publish(ctx, shared.TopicPipelineRuns, data); err != nil {
		o.logger.Error("Failed to publish completion event", "error", err)
	}
}
