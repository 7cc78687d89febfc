package workouts

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/2beens/healthstats/internal/healthexport"
)

// recordCSVHeader is the fixed column order of the per-record CSV export.
// Route file references stay out of the export on purpose, they are local
// archive paths with no meaning outside the source archive.
var recordCSVHeader = []string{
	"activityType",
	"startTime",
	"endTime",
	"sourceName",
	"durationSeconds",
	"distanceKm",
	"energyKcal",
	"avgHeartRateBpm",
	"avgPowerWatts",
	"avgMets",
	"elevationMeters",
}

// WriteRecordsCSV streams the records to w as CSV, one row per record in
// document order. Absent optional metrics render as empty cells, not zeros.
func WriteRecordsCSV(w io.Writer, records []healthexport.Workout) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(recordCSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.ActivityType,
			formatTimestamp(rec.StartTime),
			formatTimestamp(rec.EndTime),
			rec.SourceName,
			formatFloat(rec.DurationSeconds),
			formatOptFloat(rec.DistanceKm),
			formatOptFloat(rec.EnergyKcal),
			formatOptFloat(rec.AvgHeartRateBPM),
			formatOptFloat(rec.AvgPowerWatts),
			formatOptFloat(rec.AvgMETs),
			formatOptFloat(rec.ElevationMeters),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteRecordsJSON streams the records to w as a JSON array. Absent optional
// metrics are omitted from the objects entirely.
func WriteRecordsJSON(w io.Writer, records []healthexport.Workout) error {
	if records == nil {
		records = []healthexport.Workout{}
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode records json: %w", err)
	}
	return nil
}

// WriteActivitySummariesCSV writes one row per activity type, sorted by
// activity name, with the summary sums of each metric.
func WriteActivitySummariesCSV(w io.Writer, summaries map[string]Summary) error {
	cw := csv.NewWriter(w)
	header := append([]string{"activityType", "workouts"}, summaryMetricColumns()...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	activities := make([]string, 0, len(summaries))
	for activity := range summaries {
		activities = append(activities, activity)
	}
	sort.Strings(activities)

	for _, activity := range activities {
		s := summaries[activity]
		row := append([]string{activity, strconv.Itoa(s.Workouts)}, summaryMetricCells(s)...)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WritePeriodSummariesCSV writes one row per period bucket, in the
// chronological order of the series.
func WritePeriodSummariesCSV(w io.Writer, series []PeriodSummary) error {
	cw := csv.NewWriter(w)
	header := append([]string{"period", "workouts"}, summaryMetricColumns()...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, ps := range series {
		row := append(
			[]string{ps.Period.String(), strconv.Itoa(ps.Summary.Workouts)},
			summaryMetricCells(ps.Summary)...,
		)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func summaryMetricColumns() []string {
	cols := make([]string, 0, len(MetricNames)*2)
	for _, metric := range MetricNames {
		cols = append(cols, metric+"Sum", metric+"Avg")
	}
	return cols
}

func summaryMetricCells(s Summary) []string {
	cells := make([]string, 0, len(MetricNames)*2)
	for _, metric := range MetricNames {
		ms, ok := s.Metrics[metric]
		if !ok {
			cells = append(cells, "", "")
			continue
		}
		cells = append(cells, formatFloat(ms.Sum), formatFloat(ms.Avg))
	}
	return cells
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(healthexport.TimestampLayout)
}
