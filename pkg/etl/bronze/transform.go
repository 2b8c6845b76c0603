package bronze

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// TransformError marks a payload that could not be shaped into warehouse
// rows. The unit is recorded as FAILURE and skipped; it does not abort
// the surrounding load.
type TransformError struct {
	ActivityID string
	Stream     string
	Err        error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s for activity %s: %v", e.Stream, e.ActivityID, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// cleanColumnName maps a raw JSON key to a warehouse-safe column name:
// dots become underscores, any other non-alphanumeric runes are dropped.
func cleanColumnName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '.':
			b.WriteRune('_')
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// flattenSummary shapes a summary object (activity or athlete) into a
// single flat row. Nested objects are dropped, lists are serialized to
// JSON strings, and the id column is renamed per idColumn.
func flattenSummary(raw []byte, idColumn string) (map[string]interface{}, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	row := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		name := cleanColumnName(key)
		if name == "" {
			continue
		}
		if name == "id" {
			name = idColumn
		}
		switch v := value.(type) {
		case map[string]interface{}:
			// Nested objects (athlete ref, map polyline) do not fit the
			// flat bronze schema.
			continue
		case []interface{}:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("serialize %s: %w", key, err)
			}
			row[name] = string(encoded)
		default:
			row[name] = value
		}
	}
	if _, ok := row[idColumn]; !ok {
		return nil, fmt.Errorf("payload missing id")
	}
	// The id lands as a string column so it joins against the ledger and
	// the raw path layout without numeric coercion.
	row[idColumn] = stringifyID(row[idColumn])
	return row, nil
}

func stringifyID(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	default:
		return fmt.Sprintf("%v", id)
	}
}

// streamPayload is the common shape of a raw sample-stream object. A
// stream the API never returned has Data == nil.
type streamPayload struct {
	Data         []json.RawMessage `json:"data"`
	SeriesType   *string           `json:"series_type"`
	OriginalSize *int              `json:"original_size"`
}

// transformActivity shapes an activity summary payload into one row.
func transformActivity(raw []byte, athleteID string, ts time.Time) ([]map[string]interface{}, error) {
	row, err := flattenSummary(raw, "activity_id")
	if err != nil {
		return nil, err
	}
	row["athlete_id"] = athleteID
	row["metadata_insert_timestamp"] = ts
	return []map[string]interface{}{row}, nil
}

// transformAthleteSummary shapes an athlete summary payload into one row.
func transformAthleteSummary(raw []byte, ts time.Time) ([]map[string]interface{}, error) {
	row, err := flattenSummary(raw, "athlete_id")
	if err != nil {
		return nil, err
	}
	row["metadata_insert_timestamp"] = ts
	return []map[string]interface{}{row}, nil
}

// transformLatLng shapes a latlng payload, whose data points are
// [latitude, longitude] pairs, into one row per point.
func transformLatLng(raw []byte, athleteID, activityID string, ts time.Time) ([]map[string]interface{}, error) {
	var payload streamPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}

	rows := make([]map[string]interface{}, 0, len(payload.Data))
	for i, point := range payload.Data {
		var pair []float64
		if err := json.Unmarshal(point, &pair); err != nil || len(pair) != 2 {
			return nil, fmt.Errorf("point %d is not a [lat, lng] pair", i)
		}
		rows = append(rows, map[string]interface{}{
			"athlete_id":                athleteID,
			"activity_id":               activityID,
			"index":                     i + 1,
			"latitude":                  pair[0],
			"longitude":                 pair[1],
			"metadata_insert_timestamp": ts,
		})
	}
	return rows, nil
}

// transformSamples shapes a scalar sample stream (heartrate, velocity,
// cadence and friends) into one row per data point. Index is 1-based and
// is the join key across streams of the same activity.
func transformSamples(raw []byte, athleteID, activityID string, ts time.Time) ([]map[string]interface{}, error) {
	var payload streamPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}

	rows := make([]map[string]interface{}, 0, len(payload.Data))
	for i, point := range payload.Data {
		var value interface{}
		if err := json.Unmarshal(point, &value); err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		row := map[string]interface{}{
			"athlete_id":                athleteID,
			"activity_id":               activityID,
			"index":                     i + 1,
			"value":                     value,
			"metadata_insert_timestamp": ts,
		}
		if payload.SeriesType != nil {
			row["series_type"] = *payload.SeriesType
		}
		if payload.OriginalSize != nil {
			row["original_size"] = *payload.OriginalSize
		}
		rows = append(rows, row)
	}
	return rows, nil
}
