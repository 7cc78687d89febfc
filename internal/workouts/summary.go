package workouts

import "github.com/2beens/healthstats/internal/healthexport"

// Metric names used as Summary keys and export column stems.
const (
	MetricDuration  = "durationSeconds"
	MetricDistance  = "distanceKm"
	MetricEnergy    = "energyKcal"
	MetricHeartRate = "avgHeartRateBpm"
	MetricPower     = "avgPowerWatts"
	MetricMETs      = "avgMets"
	MetricElevation = "elevationMeters"
)

// MetricNames is the fixed metric order for exports and dense summaries.
var MetricNames = []string{
	MetricDuration,
	MetricDistance,
	MetricEnergy,
	MetricHeartRate,
	MetricPower,
	MetricMETs,
	MetricElevation,
}

// MetricSummary aggregates the non-missing values of one metric over a group
// of records. Min/max ties resolve to the first occurrence in record order.
type MetricSummary struct {
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Summary describes a group of workout records. A metric with no value in
// any record of the group is absent from Metrics - absent means "no data",
// which is not the same as zero.
type Summary struct {
	Workouts int                       `json:"workouts"`
	Metrics  map[string]*MetricSummary `json:"metrics"`
}

func newSummary() Summary {
	return Summary{Metrics: make(map[string]*MetricSummary)}
}

func (s *Summary) add(w healthexport.Workout) {
	s.Workouts++
	for _, mv := range metricValues(w) {
		if !mv.present {
			continue
		}
		ms, ok := s.Metrics[mv.name]
		if !ok {
			ms = &MetricSummary{Min: mv.value, Max: mv.value}
			s.Metrics[mv.name] = ms
		}
		ms.Count++
		ms.Sum += mv.value
		if mv.value < ms.Min {
			ms.Min = mv.value
		}
		if mv.value > ms.Max {
			ms.Max = mv.value
		}
	}
}

func (s *Summary) finalize() {
	for _, ms := range s.Metrics {
		if ms.Count > 0 {
			ms.Avg = ms.Sum / float64(ms.Count)
		}
	}
}

type metricValue struct {
	name    string
	value   float64
	present bool
}

func metricValues(w healthexport.Workout) [7]metricValue {
	return [7]metricValue{
		{MetricDuration, w.DurationSeconds, true},
		optMetric(MetricDistance, w.DistanceKm),
		optMetric(MetricEnergy, w.EnergyKcal),
		optMetric(MetricHeartRate, w.AvgHeartRateBPM),
		optMetric(MetricPower, w.AvgPowerWatts),
		optMetric(MetricMETs, w.AvgMETs),
		optMetric(MetricElevation, w.ElevationMeters),
	}
}

func optMetric(name string, v *float64) metricValue {
	if v == nil {
		return metricValue{name: name}
	}
	return metricValue{name: name, value: *v, present: true}
}
