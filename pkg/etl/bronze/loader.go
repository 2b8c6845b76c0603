package bronze

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	shared "github.com/fitnessllm/dataplatform/pkg"
	"github.com/fitnessllm/dataplatform/pkg/etl/metrics"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

// Config holds the settings for one bronze load.
type Config struct {
	Env          string
	BronzeBucket string
	DataSource   string
	AthleteID    string
	// Sample caps how many raw objects are loaded per stream, 0 = unlimited.
	Sample int
	// StreamWorkers bounds how many stream types load concurrently.
	StreamWorkers int
}

// Loader moves raw objects into typed bronze tables, one table per
// stream type. Bronze is append-only: a unit with a SUCCESS ledger row
// is skipped forever, so loads are safe to re-run after partial failure.
type Loader struct {
	store  shared.BlobStore
	wh     shared.Warehouse
	ledger *metrics.Ledger
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func NewLoader(store shared.BlobStore, wh shared.Warehouse, ledger *metrics.Ledger, cfg Config) *Loader {
	if cfg.StreamWorkers <= 0 {
		cfg.StreamWorkers = 4
	}
	return &Loader{
		store:  store,
		wh:     wh,
		ledger: ledger,
		cfg:    cfg,
		logger: slog.Default().With("component", "bronze"),
		now:    time.Now,
	}
}

// Load processes the given stream types concurrently. Per-unit failures
// are recorded in the ledger as FAILURE and counted; only infrastructure
// errors (listing, ledger queries) abort the load.
func (l *Loader) Load(ctx context.Context, streams []string) (*types.LoadReport, error) {
	var (
		mu     sync.Mutex
		report types.LoadReport
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.StreamWorkers)
	for _, stream := range streams {
		g.Go(func() error {
			sub, err := l.loadStream(ctx, stream)
			if err != nil {
				return fmt.Errorf("load %s: %w", stream, err)
			}
			mu.Lock()
			report.Add(*sub)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	l.logger.Info("Bronze load complete",
		"athlete_id", l.cfg.AthleteID,
		"streams", len(streams),
		"loaded", report.Loaded,
		"skipped", report.Skipped,
		"failed", report.Failed)
	return &report, nil
}

func (l *Loader) loadStream(ctx context.Context, stream string) (*types.LoadReport, error) {
	done, err := l.ledger.SuccessfulActivityIDs(ctx, l.cfg.AthleteID, l.cfg.DataSource, stream)
	if err != nil {
		return nil, err
	}

	prefix := shared.RawStreamPrefix(l.cfg.DataSource, l.cfg.AthleteID, stream)
	objects, err := l.store.List(ctx, l.cfg.BronzeBucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("list raw objects: %w", err)
	}

	report := &types.LoadReport{}
	for _, object := range objects {
		activityID := shared.ActivityIDFromObject(object)
		if activityID == "" {
			l.logger.Warn("Ignoring object outside raw layout", "object", object)
			continue
		}
		if done[activityID] || !l.ledger.Reserve(l.cfg.AthleteID, activityID, stream) {
			report.Skipped++
			continue
		}
		if l.cfg.Sample > 0 && report.Loaded >= l.cfg.Sample {
			report.Skipped++
			continue
		}

		if err := l.loadObject(ctx, stream, object, activityID); err != nil {
			report.Failed++
			l.logger.Warn("Skipping unit after load failure",
				"stream", stream, "activity_id", activityID, "error", err)
			if err := l.recordOutcome(ctx, stream, activityID, 0, types.StatusFailure); err != nil {
				return nil, err
			}
			continue
		}
		report.Loaded++
	}
	return report, nil
}

func (l *Loader) loadObject(ctx context.Context, stream, object, activityID string) error {
	raw, err := l.store.Read(ctx, l.cfg.BronzeBucket, object)
	if err != nil {
		return fmt.Errorf("read raw object: %w", err)
	}

	rows, err := l.transform(stream, activityID, raw)
	if err != nil {
		return &TransformError{ActivityID: activityID, Stream: stream, Err: err}
	}

	if len(rows) > 0 {
		dataset := shared.BronzeDataset(l.cfg.Env, l.cfg.DataSource)
		if err := l.wh.Insert(ctx, dataset, stream, rows); err != nil {
			return fmt.Errorf("insert %d rows: %w", len(rows), err)
		}
	}
	// A SUCCESS row with zero records marks an empty stream as processed
	// so it is never re-read.
	return l.recordOutcome(ctx, stream, activityID, len(rows), types.StatusSuccess)
}

func (l *Loader) transform(stream, activityID string, raw []byte) ([]map[string]interface{}, error) {
	ts := l.now().UTC()
	switch stream {
	case "activity":
		return transformActivity(raw, l.cfg.AthleteID, ts)
	case "athlete_summary":
		return transformAthleteSummary(raw, ts)
	case "latlng":
		return transformLatLng(raw, l.cfg.AthleteID, activityID, ts)
	default:
		return transformSamples(raw, l.cfg.AthleteID, activityID, ts)
	}
}

func (l *Loader) recordOutcome(ctx context.Context, stream, activityID string, count int, status string) error {
	rec := types.MetricRecord{
		AthleteID:   l.cfg.AthleteID,
		ActivityID:  activityID,
		DataSource:  l.cfg.DataSource,
		DataStream:  stream,
		RecordCount: count,
	}
	return l.ledger.Append(ctx, []types.MetricRecord{rec}, status, l.now().UTC())
}
