package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	shared "github.com/fitnessllm/dataplatform/pkg"
	"github.com/fitnessllm/dataplatform/pkg/sources"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

// Config holds the ingestion settings for one run.
type Config struct {
	Env          string
	BronzeBucket string
	// Streams are the per-sample stream types to fetch for each activity.
	Streams []string
	// Sample caps how many activities are ingested, 0 = unlimited. Used
	// for test runs against real accounts.
	Sample int
}

// Agent pulls raw payloads from a source API into the bronze bucket.
// Raw objects are immutable-by-identity: re-ingestion overwrites the same
// paths (last-write-wins) and downstream dedup is the metrics ledger's
// job, not raw storage's.
type Agent struct {
	store  shared.BlobStore
	wh     shared.Warehouse
	source sources.Source
	cfg    Config
	logger *slog.Logger
}

func NewAgent(store shared.BlobStore, wh shared.Warehouse, source sources.Source, cfg Config) *Agent {
	return &Agent{
		store:  store,
		wh:     wh,
		source: source,
		cfg:    cfg,
		logger: slog.Default().With("component", "ingest"),
	}
}

// Pull lists activities newer than the watermark and writes one raw
// object per (activity, stream). A failure to fetch or store one
// activity's payloads is recorded and skipped; it never aborts the rest
// of the pull.
func (a *Agent) Pull(ctx context.Context, since *time.Time) (*types.PullReport, error) {
	athlete, err := a.source.Athlete(ctx)
	if err != nil {
		return nil, fmt.Errorf("athlete summary: %w", err)
	}

	// The athlete summary is re-fetched every run; the object is keyed
	// with activity_id=0 so it lands next to the activity streams.
	summaryPath := shared.RawObjectPath(a.source.Name(), athlete.ID, "athlete_summary", "0")
	if err := a.store.Write(ctx, a.cfg.BronzeBucket, summaryPath, athlete.Raw); err != nil {
		return nil, fmt.Errorf("write athlete summary: %w", err)
	}

	watermark := time.Time{}
	if since != nil {
		watermark = *since
	} else {
		watermark, err = a.latestActivityDate(ctx, athlete.ID)
		if err != nil {
			return nil, err
		}
	}

	activities, err := a.source.Activities(ctx, watermark)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	if a.cfg.Sample > 0 && len(activities) > a.cfg.Sample {
		a.logger.Info("Sampling enabled", "sample", a.cfg.Sample, "listed", len(activities))
		activities = activities[:a.cfg.Sample]
	}

	report := &types.PullReport{
		AthleteID: athlete.ID,
		Watermark: watermark,
		Objects:   1, // athlete summary
	}

	for _, activity := range activities {
		if err := a.pullActivity(ctx, athlete.ID, activity, report); err != nil {
			report.Failed++
			a.logger.Warn("Skipping activity after fetch failure",
				"activity_id", activity.ID, "error", err)
			continue
		}
		report.Activities++
	}

	a.logger.Info("Pull complete",
		"athlete_id", athlete.ID,
		"activities", report.Activities,
		"objects", report.Objects,
		"failed", report.Failed)
	return report, nil
}

func (a *Agent) pullActivity(ctx context.Context, athleteID string, activity sources.Activity, report *types.PullReport) error {
	path := shared.RawObjectPath(a.source.Name(), athleteID, "activity", activity.ID)
	if err := a.store.Write(ctx, a.cfg.BronzeBucket, path, activity.Raw); err != nil {
		return fmt.Errorf("write activity summary: %w", err)
	}
	report.Objects++

	streams, err := a.source.ActivityStreams(ctx, activity.ID, a.cfg.Streams)
	if err != nil {
		return err
	}
	for streamType, payload := range streams {
		path := shared.RawObjectPath(a.source.Name(), athleteID, streamType, activity.ID)
		if err := a.store.Write(ctx, a.cfg.BronzeBucket, path, payload); err != nil {
			return fmt.Errorf("write %s stream: %w", streamType, err)
		}
		report.Objects++
	}
	return nil
}

// latestActivityDate reads the ingestion watermark from the bronze
// activity table. A user with no bronze history starts from the epoch
// default (zero time = full history).
func (a *Agent) latestActivityDate(ctx context.Context, athleteID string) (time.Time, error) {
	sql := fmt.Sprintf(`
        SELECT MAX(start_date) AS start_date
        FROM %s.activity
        WHERE athlete_id = '%s'
    `, shared.BronzeDataset(a.cfg.Env, a.source.Name()), athleteID)

	rows, err := a.wh.Query(ctx, sql)
	if err != nil {
		return time.Time{}, fmt.Errorf("query watermark: %w", err)
	}
	if len(rows) == 0 {
		return time.Time{}, nil
	}
	switch v := rows[0]["start_date"].(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse watermark %q: %w", v, err)
		}
		return t, nil
	default:
		return time.Time{}, nil
	}
}
