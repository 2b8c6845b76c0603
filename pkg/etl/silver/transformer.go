package silver

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"text/template"

	shared "github.com/fitnessllm/dataplatform/pkg"
)

//go:embed queries/*.sql
var queryFS embed.FS

var queries = template.Must(template.ParseFS(queryFS, "queries/*.sql"))

// Tables refreshed by a silver run, in execution order.
var silverTables = []string{"activity_summary", "stream_aggregate"}

// Config scopes one silver refresh. ActivityID narrows the refresh to a
// single activity; empty means the athlete's full history.
type Config struct {
	Env        string
	DataSource string
	AthleteID  string
	ActivityID string
}

// RefreshError marks a silver table whose rebuild failed. The table keeps
// its previous contents: each rebuild runs delete and insert inside one
// transaction, so a failure never leaves a half-replaced scope.
type RefreshError struct {
	Table string
	Err   error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh silver table %s: %v", e.Table, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// Transformer rebuilds the queryable silver tables from bronze. Runs are
// idempotent: the same bronze state always produces the same silver rows.
type Transformer struct {
	wh     shared.Warehouse
	cfg    Config
	logger *slog.Logger
}

func NewTransformer(wh shared.Warehouse, cfg Config) *Transformer {
	return &Transformer{
		wh:     wh,
		cfg:    cfg,
		logger: slog.Default().With("component", "silver"),
	}
}

// Refresh replaces the configured scope in every silver table.
func (t *Transformer) Refresh(ctx context.Context) error {
	for _, table := range silverTables {
		script, err := t.renderScript(table)
		if err != nil {
			return &RefreshError{Table: table, Err: err}
		}
		if err := t.wh.RunScript(ctx, script); err != nil {
			return &RefreshError{Table: table, Err: err}
		}
		t.logger.Info("Silver table refreshed",
			"table", table,
			"athlete_id", t.cfg.AthleteID,
			"activity_id", t.cfg.ActivityID)
	}
	return nil
}

func (t *Transformer) renderScript(table string) (string, error) {
	data := struct {
		Bronze     string
		Silver     string
		AthleteID  string
		ActivityID string
	}{
		Bronze:     shared.BronzeDataset(t.cfg.Env, t.cfg.DataSource),
		Silver:     shared.SilverDataset(t.cfg.Env, t.cfg.DataSource),
		AthleteID:  t.cfg.AthleteID,
		ActivityID: t.cfg.ActivityID,
	}
	var buf bytes.Buffer
	if err := queries.ExecuteTemplate(&buf, table+".sql", data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
