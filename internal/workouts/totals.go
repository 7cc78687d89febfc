package workouts

import (
	"fmt"
	"strings"

	"github.com/2beens/healthstats/internal/healthexport"
)

// DistanceUnit selects the unit total distances are reported in.
type DistanceUnit string

const (
	DistanceUnitKm    DistanceUnit = "km"
	DistanceUnitM     DistanceUnit = "m"
	DistanceUnitMiles DistanceUnit = "mi"
)

// TotalDistance returns the summed distance of the summary in the given unit.
// ok is false when the group has no distance data at all.
func TotalDistance(s Summary, unit DistanceUnit) (total float64, ok bool, err error) {
	ms, ok := s.Metrics[MetricDistance]
	if !ok {
		return 0, false, nil
	}
	switch unit {
	case DistanceUnitKm, "":
		return ms.Sum, true, nil
	case DistanceUnitM:
		return ms.Sum * 1000, true, nil
	case DistanceUnitMiles:
		return ms.Sum / 1.609344, true, nil
	default:
		return 0, false, fmt.Errorf("unknown distance unit: %s", unit)
	}
}

// TotalDurationHours returns the summed workout duration in hours.
func TotalDurationHours(s Summary) float64 {
	ms, ok := s.Metrics[MetricDuration]
	if !ok {
		return 0
	}
	return ms.Sum / 3600
}

// TotalCalories returns the summed active energy; ok is false with no data.
func TotalCalories(s Summary) (float64, bool) {
	ms, ok := s.Metrics[MetricEnergy]
	if !ok {
		return 0, false
	}
	return ms.Sum, true
}

// ActivityShares returns each activity's share of the total workout count,
// in percent. Small slices can then be collapsed with GroupSmallValues.
func ActivityShares(records []healthexport.Workout) map[string]float64 {
	if len(records) == 0 {
		return map[string]float64{}
	}
	shares := make(map[string]float64)
	for _, w := range records {
		shares[w.ActivityType]++
	}
	for activity := range shares {
		shares[activity] = shares[activity] / float64(len(records)) * 100
	}
	return shares
}

// StatsText renders a short human-readable overview of a record group.
func StatsText(s Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d workouts", s.Workouts)
	fmt.Fprintf(&sb, ", %.1f hours total", TotalDurationHours(s))
	if km, ok, _ := TotalDistance(s, DistanceUnitKm); ok {
		fmt.Fprintf(&sb, ", %.1f km", km)
	}
	if kcal, ok := TotalCalories(s); ok {
		fmt.Fprintf(&sb, ", %.0f kcal", kcal)
	}
	return sb.String()
}
