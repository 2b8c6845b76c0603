package strava

// Stream types for the Strava data source. "activity" and
// "athlete_summary" are summary streams derived from the listing and
// athlete endpoints; the rest are per-sample time series fetched from the
// streams endpoint.
const (
	StreamActivity       = "activity"
	StreamAthleteSummary = "athlete_summary"
	StreamTime           = "time"
	StreamDistance       = "distance"
	StreamLatLng         = "latlng"
	StreamAltitude       = "altitude"
	StreamVelocitySmooth = "velocity_smooth"
	StreamHeartrate      = "heartrate"
	StreamCadence        = "cadence"
	StreamWatts          = "watts"
	StreamTemp           = "temp"
	StreamMoving         = "moving"
	StreamGradeSmooth    = "grade_smooth"
)

// SampleStreams lists the per-sample stream types, in catalog order.
func SampleStreams() []string {
	return []string{
		StreamTime,
		StreamDistance,
		StreamLatLng,
		StreamAltitude,
		StreamVelocitySmooth,
		StreamHeartrate,
		StreamCadence,
		StreamWatts,
		StreamTemp,
		StreamMoving,
		StreamGradeSmooth,
	}
}

// AllStreams lists every stream type that produces raw objects and bronze
// tables, summary streams included.
func AllStreams() []string {
	return append([]string{StreamActivity, StreamAthleteSummary}, SampleStreams()...)
}
