package shared

import (
	"fmt"
	"strings"
)

// RawObjectPath builds the object name for a raw payload inside the bronze
// bucket. Segment order and casing are load-bearing: downstream discovery
// lists by this exact layout.
//
//	{dataSource}/athlete_id={athleteId}/{streamType}/activity_id={activityId}.json
func RawObjectPath(dataSource, athleteID, streamType, activityID string) string {
	return fmt.Sprintf("%s/athlete_id=%s/%s/activity_id=%s.json", dataSource, athleteID, streamType, activityID)
}

// RawStreamPrefix is the listing prefix for all raw objects of one stream.
func RawStreamPrefix(dataSource, athleteID, streamType string) string {
	return fmt.Sprintf("%s/athlete_id=%s/%s/", dataSource, athleteID, streamType)
}

// ActivityIDFromObject extracts the activity id from a raw object name.
// Returns "" if the name does not follow the raw object layout.
func ActivityIDFromObject(object string) string {
	base := object[strings.LastIndex(object, "/")+1:]
	base = strings.TrimSuffix(base, ".json")
	_, id, ok := strings.Cut(base, "=")
	if !ok {
		return ""
	}
	return id
}
