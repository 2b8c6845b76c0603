package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Athlete is the source-level athlete summary.
type Athlete struct {
	ID  string
	Raw json.RawMessage
}

// Activity is one listed activity with its raw summary payload.
type Activity struct {
	ID        string
	StartDate time.Time
	Raw       json.RawMessage
}

// FetchError marks a per-activity/per-stream fetch failure. It is recorded
// and skipped by the ingestion agent, never escalated to a stage failure.
type FetchError struct {
	ActivityID string
	Stream     string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s for activity %s: %v", e.Stream, e.ActivityID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Source is the capability a data source must provide to the pipeline.
// One implementation exists per configured source, selected at startup
// through the registry.
type Source interface {
	Name() string
	Athlete(ctx context.Context) (*Athlete, error)
	Activities(ctx context.Context, after time.Time) ([]Activity, error)
	// ActivityStreams returns the raw payload per requested stream type.
	// Missing streams are reported with a null-data payload rather than
	// omitted, so raw objects exist for every configured stream.
	ActivityStreams(ctx context.Context, activityID string, streams []string) (map[string]json.RawMessage, error)
}

// Descriptor registers a data source: its refresh endpoint, its stream
// catalog and a constructor bound to an access token.
type Descriptor struct {
	Name          string
	TokenURL      string
	SampleStreams []string // per-sample stream types (heartrate, cadence, ...)
	New           func(accessToken string) Source
}

var (
	mu       sync.RWMutex
	registry = map[string]Descriptor{}
)

// Register adds a data source descriptor. Called from implementation
// package init functions.
func Register(d Descriptor) {
	mu.Lock()
	defer mu.Unlock()
	registry[d.Name] = d
}

// Lookup returns the descriptor for a data source name.
func Lookup(name string) (Descriptor, error) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := registry[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("unsupported data source: %s", name)
	}
	return d, nil
}

// Names returns the registered data source names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
