package types

import (
	"time"
)

// Status values recorded in the metrics ledger.
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// Credential is one user's connection to a data source, stored at
// users/{uid}/stream/{dataSource}. Token fields hold ciphertext in
// Firestore; the vault decrypts them before handing the struct out and
// never writes plaintext back.
type Credential struct {
	UserID           string    `firestore:"-"`
	DataSource       string    `firestore:"dataSource"`
	AthleteID        string    `firestore:"athleteId"`
	AccessToken      string    `firestore:"accessToken"`
	RefreshToken     string    `firestore:"refreshToken"`
	ExpiresAt        time.Time `firestore:"expiresAt"`
	Scope            string    `firestore:"scope"`
	Connected        bool      `firestore:"connected"`
	LastTokenRefresh time.Time `firestore:"lastTokenRefresh"`
}

// MetricRecord is one row of the append-only metrics ledger. For a given
// (athlete_id, activity_id, data_stream) at most one row ever carries
// StatusSuccess; corrections are new rows, never updates.
type MetricRecord struct {
	AthleteID         string    `json:"athlete_id"`
	ActivityID        string    `json:"activity_id"`
	DataSource        string    `json:"data_source"`
	DataStream        string    `json:"data_stream"`
	RecordCount       int       `json:"record_count"`
	Status            string    `json:"status"`
	BQInsertTimestamp time.Time `json:"bq_insert_timestamp"`
}

// Row converts the record to the warehouse insert shape.
func (m MetricRecord) Row() map[string]interface{} {
	return map[string]interface{}{
		"athlete_id":          m.AthleteID,
		"activity_id":         m.ActivityID,
		"data_source":         m.DataSource,
		"data_stream":         m.DataStream,
		"record_count":        m.RecordCount,
		"status":              m.Status,
		"bq_insert_timestamp": m.BQInsertTimestamp,
	}
}

// PullReport summarizes one ingestion run.
type PullReport struct {
	AthleteID  string    `json:"athlete_id"`
	Watermark  time.Time `json:"watermark"`
	Activities int       `json:"activities"`
	Objects    int       `json:"objects"`
	Failed     int       `json:"failed"`
}

// LoadReport summarizes one bronze load.
type LoadReport struct {
	Loaded  int `json:"loaded"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Add folds another report into this one.
func (r *LoadReport) Add(other LoadReport) {
	r.Loaded += other.Loaded
	r.Skipped += other.Skipped
	r.Failed += other.Failed
}

// Stage names for the per-user pipeline state machine.
type Stage string

const (
	StageCredentials Stage = "credentials"
	StageIngest      Stage = "ingest"
	StageBronze      Stage = "bronze_etl"
	StageSilver      Stage = "silver_etl"
)

// RunResult is the terminal state of one (user, data source) pipeline run.
// A run either reaches DONE (Err == nil) or is absorbed into FAILED(stage).
type RunResult struct {
	UserID      string      `json:"user_id"`
	DataSource  string      `json:"data_source"`
	Stages      []Stage     `json:"stages"`
	FailedStage Stage       `json:"failed_stage,omitempty"`
	Err         error       `json:"-"`
	Error       string      `json:"error,omitempty"`
	Pull        *PullReport `json:"pull,omitempty"`
	Load        *LoadReport `json:"load,omitempty"`
}

// Succeeded reports whether the run reached DONE.
func (r *RunResult) Succeeded() bool {
	return r.Err == nil
}

// BatchReport is the operator-facing outcome of a batch run. Failed runs
// are listed for explicit follow-up; nothing is retried automatically.
type BatchReport struct {
	DataSource string       `json:"data_source"`
	Succeeded  []string     `json:"succeeded"`
	Failed     []*RunResult `json:"failed"`
}

// ExecutionRecord tracks one function/CLI invocation in Firestore.
type ExecutionRecord struct {
	ExecutionID string    `firestore:"execution_id"`
	Service     string    `firestore:"service"`
	UserID      string    `firestore:"user_id,omitempty"`
	TriggerType string    `firestore:"trigger_type"`
	Status      string    `firestore:"status"`
	StartedAt   time.Time `firestore:"started_at"`
}

// Execution statuses.
const (
	ExecutionStarted = "STARTED"
	ExecutionSuccess = "SUCCESS"
	ExecutionFailed  = "FAILED"
)
