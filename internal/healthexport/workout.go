package healthexport

import "time"

// Workout is one completed exercise session, assembled from a Workout element
// of the export document and all of its nested children. Once emitted by the
// parser it is never mutated.
type Workout struct {
	ActivityType    string    `json:"activityType"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	DurationSeconds float64   `json:"durationSeconds"`
	SourceName      string    `json:"sourceName,omitempty"`

	// Metrics are optional: nil means the export did not carry the value
	// for this workout. Never conflate that with zero.
	DistanceKm      *float64 `json:"distanceKm,omitempty"`
	EnergyKcal      *float64 `json:"energyKcal,omitempty"`
	AvgHeartRateBPM *float64 `json:"avgHeartRateBpm,omitempty"`
	AvgPowerWatts   *float64 `json:"avgPowerWatts,omitempty"`
	AvgMETs         *float64 `json:"avgMets,omitempty"`
	ElevationMeters *float64 `json:"elevationMeters,omitempty"`

	// RouteFile is the path of the GPX route inside the archive, if any.
	// It is a reference only - the route itself is not loaded here.
	RouteFile string `json:"routeFile,omitempty"`

	// Metadata holds all key/value pairs (and unrecognized statistics)
	// in document order, raw and uninterpreted.
	Metadata []MetadataEntry `json:"metadata,omitempty"`
}

type MetadataEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Unit  string `json:"unit,omitempty"`
}
