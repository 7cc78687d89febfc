package workouts

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/2beens/healthstats/internal/healthexport"
	"github.com/2beens/healthstats/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// ActivityTypeAll matches every record when used as a filter value.
const ActivityTypeAll = "All"

// OthersGroupLabel is the bucket label small groups collapse into.
const OthersGroupLabel = "Others"

// FilterParams narrows a record set before aggregation. Zero values mean
// "no constraint". From and To are inclusive bounds on the record start time.
type FilterParams struct {
	ActivityType string
	From         *time.Time
	To           *time.Time
}

// Filter returns the records matching params, preserving document order.
// The input slice is never mutated.
func Filter(records []healthexport.Workout, params FilterParams) []healthexport.Workout {
	matchAll := params.ActivityType == "" || strings.EqualFold(params.ActivityType, ActivityTypeAll)

	var filtered []healthexport.Workout
	for _, w := range records {
		if !matchAll && !strings.EqualFold(w.ActivityType, params.ActivityType) {
			continue
		}
		if params.From != nil && w.StartTime.Before(*params.From) {
			continue
		}
		if params.To != nil && w.StartTime.After(*params.To) {
			continue
		}
		filtered = append(filtered, w)
	}
	return filtered
}

// SummarizeByActivity groups records by activity type and summarizes each
// group. Records with an empty activity type are grouped under the empty key.
func SummarizeByActivity(records []healthexport.Workout) map[string]Summary {
	summaries := make(map[string]Summary)
	for _, w := range records {
		s, ok := summaries[w.ActivityType]
		if !ok {
			s = newSummary()
		}
		s.add(w)
		summaries[w.ActivityType] = s
	}
	for activity := range summaries {
		s := summaries[activity]
		s.finalize()
		summaries[activity] = s
	}
	return summaries
}

// OverviewTotals summarizes all given records as a single group.
func OverviewTotals(records []healthexport.Workout) Summary {
	s := newSummary()
	for _, w := range records {
		s.add(w)
	}
	s.finalize()
	return s
}

// PeriodOptions tunes trend aggregation.
type PeriodOptions struct {
	// DenseFill inserts empty buckets for periods between the first and the
	// last occupied one, so consumers see a gapless timeline.
	DenseFill bool
	// SmoothingWindow > 1 adds a trailing moving average over each metric's
	// per-period sums. The first window-1 buckets carry no smoothed values.
	SmoothingWindow int
}

// PeriodSummary is one calendar bucket of a trend series.
type PeriodSummary struct {
	Period  PeriodKey `json:"period"`
	Summary Summary   `json:"summary"`
	// Smoothed maps metric name to the trailing moving average of that
	// metric's per-period sums. Nil when smoothing is off or the window
	// has not filled yet.
	Smoothed map[string]float64 `json:"smoothed,omitempty"`
}

// SummarizeByPeriod buckets records into calendar periods of the given
// granularity and returns the buckets in chronological order. Records without
// a start time cannot be bucketed and are skipped.
func SummarizeByPeriod(
	records []healthexport.Workout,
	granularity Granularity,
	opts PeriodOptions,
) ([]PeriodSummary, error) {
	if _, err := ParseGranularity(string(granularity)); err != nil {
		return nil, err
	}

	byPeriod := make(map[PeriodKey]Summary)
	for _, w := range records {
		if w.StartTime.IsZero() {
			continue
		}
		key, err := PeriodKeyFor(w.StartTime, granularity)
		if err != nil {
			return nil, err
		}
		s, ok := byPeriod[key]
		if !ok {
			s = newSummary()
		}
		s.add(w)
		byPeriod[key] = s
	}

	keys := make([]PeriodKey, 0, len(byPeriod))
	for key := range byPeriod {
		s := byPeriod[key]
		s.finalize()
		byPeriod[key] = s
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	var series []PeriodSummary
	if opts.DenseFill && len(keys) > 0 {
		last := keys[len(keys)-1]
		for key := keys[0]; !last.Before(key); key = key.Next() {
			s, ok := byPeriod[key]
			if !ok {
				s = newSummary()
			}
			series = append(series, PeriodSummary{Period: key, Summary: s})
		}
	} else {
		for _, key := range keys {
			series = append(series, PeriodSummary{Period: key, Summary: byPeriod[key]})
		}
	}

	if opts.SmoothingWindow > 1 {
		applySmoothing(series, opts.SmoothingWindow)
	}
	return series, nil
}

// applySmoothing computes trailing moving averages over per-period metric
// sums. A bucket without a metric contributes 0 to the window, so the
// smoothed series stays comparable across sparse data.
func applySmoothing(series []PeriodSummary, window int) {
	for i := range series {
		if i < window-1 {
			continue
		}
		smoothed := make(map[string]float64, len(MetricNames))
		for _, metric := range MetricNames {
			var (
				sum     float64
				present bool
			)
			for j := i - window + 1; j <= i; j++ {
				if ms, ok := series[j].Summary.Metrics[metric]; ok {
					sum += ms.Sum
					present = true
				}
			}
			if present {
				smoothed[metric] = sum / float64(window)
			}
		}
		if len(smoothed) > 0 {
			series[i].Smoothed = smoothed
		}
	}
}

// GroupSmallValues collapses map entries whose value falls below
// thresholdPercent of the total into a single "Others" entry. Useful for
// charting per-activity breakdowns without a long tail of tiny slices.
func GroupSmallValues(values map[string]float64, thresholdPercent float64) map[string]float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	if total <= 0 {
		return values
	}

	grouped := make(map[string]float64, len(values))
	var others float64
	for key, v := range values {
		if v/total*100 < thresholdPercent {
			others += v
			continue
		}
		grouped[key] = v
	}
	if others > 0 {
		grouped[OthersGroupLabel] += others
	}
	return grouped
}

// Analyzer exposes the aggregation operations over the current store
// snapshot, with request-scoped filtering and tracing.
type Analyzer struct {
	store *Store
}

func NewAnalyzer(store *Store) *Analyzer {
	return &Analyzer{store: store}
}

func (a *Analyzer) Overview(ctx context.Context, params FilterParams) Summary {
	_, span := tracing.GlobalTracer.Start(ctx, "analyzer.overview")
	defer span.End()

	records := Filter(a.store.All(), params)
	span.SetAttributes(attribute.Int("records", len(records)))
	return OverviewTotals(records)
}

func (a *Analyzer) ByActivity(ctx context.Context, params FilterParams) map[string]Summary {
	_, span := tracing.GlobalTracer.Start(ctx, "analyzer.byActivity")
	defer span.End()

	records := Filter(a.store.All(), params)
	span.SetAttributes(attribute.Int("records", len(records)))
	return SummarizeByActivity(records)
}

func (a *Analyzer) ByPeriod(
	ctx context.Context,
	params FilterParams,
	granularity Granularity,
	opts PeriodOptions,
) (_ []PeriodSummary, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "analyzer.byPeriod")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("granularity", string(granularity)),
		attribute.Bool("dense", opts.DenseFill),
		attribute.Int("smoothing_window", opts.SmoothingWindow),
	)

	records := Filter(a.store.All(), params)
	span.SetAttributes(attribute.Int("records", len(records)))
	return SummarizeByPeriod(records, granularity, opts)
}
