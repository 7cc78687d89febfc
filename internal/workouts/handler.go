package workouts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/healthstats/internal/healthexport"
	"github.com/2beens/healthstats/internal/instrumentation"
	"github.com/2beens/healthstats/internal/telemetry/tracing"
	"github.com/2beens/healthstats/pkg"

	"github.com/coocood/freecache"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// dateOnlyLayout is accepted in from/to query params besides the full
// export timestamp layout.
const dateOnlyLayout = "2006-01-02"

const statsCacheExpireSeconds = 10 * 60

type exportLoader interface {
	LoadWorkouts(ctx context.Context, path string) (*healthexport.ParseResult, error)
}

type LoadRequest struct {
	Path string `json:"path"`
}

type LoadResponse struct {
	Records  int  `json:"records"`
	Warnings int  `json:"warnings"`
	Partial  bool `json:"partial"`
}

type StatusResponse struct {
	Loaded   bool       `json:"loaded"`
	Records  int        `json:"records"`
	Partial  bool       `json:"partial"`
	LoadedAt *time.Time `json:"loadedAt,omitempty"`
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
	// Summary is a short human-readable recap of the loaded data.
	Summary string `json:"summary,omitempty"`
}

type WorkoutsPageResponse struct {
	Workouts []healthexport.Workout `json:"workouts"`
	Total    int                    `json:"total"`
}

type ByPeriodResponse struct {
	Granularity Granularity     `json:"granularity"`
	Periods     []PeriodSummary `json:"periods"`
}

type Handler struct {
	loader   exportLoader
	store    *Store
	analyzer *Analyzer
	cache    *freecache.Cache
	instr    *instrumentation.Instrumentation
}

func NewHandler(
	loader exportLoader,
	store *Store,
	cacheSizeBytes int,
	instr *instrumentation.Instrumentation,
) *Handler {
	return &Handler{
		loader:   loader,
		store:    store,
		analyzer: NewAnalyzer(store),
		cache:    freecache.NewCache(cacheSizeBytes),
		instr:    instr,
	}
}

// HandleLoad runs a full extraction pass over the archive named in the
// request body and replaces the store content with the result. A malformed
// document does not fail the request: the records parsed before the failure
// point are stored and the response carries the partial flag.
func (handler *Handler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.load")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var loadReq LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&loadReq); err != nil {
		log.Errorf("load health data, unmarshal json params: %s", err)
		http.Error(w, "load failed", http.StatusBadRequest)
		return
	}
	if loadReq.Path == "" {
		http.Error(w, "error, archive path empty", http.StatusBadRequest)
		return
	}

	loadStart := time.Now()
	res, err := handler.loader.LoadWorkouts(ctx, loadReq.Path)
	if err != nil && !errors.Is(err, healthexport.ErrDocumentMalformed) {
		log.Errorf("failed to load health export [%s]: %s", loadReq.Path, err)
		http.Error(w, "error, failed to load health export", http.StatusInternalServerError)
		return
	}
	if err != nil {
		log.Warnf("health export [%s] loaded partially: %s", loadReq.Path, err)
	}

	handler.store.Load(res.Workouts, res.Partial)
	handler.cache.Clear()

	handler.instr.CounterExportLoads.Inc()
	handler.instr.CounterWorkoutsParsed.Add(float64(len(res.Workouts)))
	handler.instr.CounterParseWarnings.Add(float64(res.Warnings))
	handler.instr.GaugeStoredRecords.Set(float64(len(res.Workouts)))
	handler.instr.HistLoadDuration.Observe(time.Since(loadStart).Seconds())

	log.Debugf(
		"health export loaded: %d records, %d warnings, partial: %t",
		len(res.Workouts), res.Warnings, res.Partial,
	)

	pkg.WriteJSONResponse(w, LoadResponse{
		Records:  len(res.Workouts),
		Warnings: res.Warnings,
		Partial:  res.Partial,
	})
}

func (handler *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.status")
	defer span.End()

	status := StatusResponse{
		Records: handler.store.Count(),
		Partial: handler.store.Partial(),
	}
	if loadedAt := handler.store.LoadedAt(); !loadedAt.IsZero() {
		status.Loaded = true
		status.LoadedAt = &loadedAt
	}
	if from, to, ok := handler.store.DateBounds(); ok {
		status.From = &from
		status.To = &to
	}
	if status.Records > 0 {
		status.Summary = StatsText(OverviewTotals(handler.store.All()))
	}

	pkg.WriteJSONResponse(w, status)
}

func (handler *Handler) HandleActivityTypes(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.activityTypes")
	defer span.End()

	types := handler.store.ActivityTypes()
	if types == nil {
		types = []string{}
	}
	pkg.WriteJSONResponse(w, types)
}

func (handler *Handler) HandleStatsOverview(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.statsOverview")
	defer span.End()

	if handler.writeCached(w, r) {
		return
	}

	params, err := filterParamsFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	handler.writeAndCacheJSON(w, r, handler.analyzer.Overview(ctx, params))
}

func (handler *Handler) HandleStatsByActivity(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.statsByActivity")
	defer span.End()

	if handler.writeCached(w, r) {
		return
	}

	params, err := filterParamsFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	handler.writeAndCacheJSON(w, r, handler.analyzer.ByActivity(ctx, params))
}

func (handler *Handler) HandleStatsByPeriod(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.statsByPeriod")
	defer span.End()

	if handler.writeCached(w, r) {
		return
	}

	params, err := filterParamsFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	granularity, err := ParseGranularity(r.URL.Query().Get("granularity"))
	if err != nil {
		http.Error(w, "error, unsupported granularity", http.StatusBadRequest)
		return
	}

	opts := PeriodOptions{
		DenseFill: r.URL.Query().Get("dense") == "true",
	}
	if smoothingParam := r.URL.Query().Get("smoothing"); smoothingParam != "" {
		window, err := strconv.Atoi(smoothingParam)
		if err != nil || window < 1 {
			http.Error(w, "error, invalid smoothing window", http.StatusBadRequest)
			return
		}
		opts.SmoothingWindow = window
	}

	periods, err := handler.analyzer.ByPeriod(ctx, params, granularity, opts)
	if err != nil {
		log.Errorf("failed to aggregate by period: %s", err)
		http.Error(w, "error, failed to aggregate by period", http.StatusInternalServerError)
		return
	}
	if periods == nil {
		periods = []PeriodSummary{}
	}

	handler.writeAndCacheJSON(w, r, ByPeriodResponse{
		Granularity: granularity,
		Periods:     periods,
	})
}

// HandleActivityPercentages returns each activity's share of the workout
// count in percent, with slices under the threshold collapsed into "Others".
func (handler *Handler) HandleActivityPercentages(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.activityPercentages")
	defer span.End()

	if handler.writeCached(w, r) {
		return
	}

	params, err := filterParamsFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	threshold := 5.0
	if thresholdParam := r.URL.Query().Get("threshold"); thresholdParam != "" {
		threshold, err = strconv.ParseFloat(thresholdParam, 64)
		if err != nil || threshold < 0 || threshold > 100 {
			http.Error(w, "error, invalid threshold", http.StatusBadRequest)
			return
		}
	}

	records := Filter(handler.store.All(), params)
	handler.writeAndCacheJSON(w, r, GroupSmallValues(ActivityShares(records), threshold))
}

// HandleExportCSV streams the filtered records (or their summaries, when the
// kind param asks for by-activity / by-period) as a CSV attachment.
func (handler *Handler) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.exportCSV")
	defer span.End()

	params, err := filterParamsFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	records := Filter(handler.store.All(), params)

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="workouts.csv"`)

	switch kind := r.URL.Query().Get("kind"); kind {
	case "", "records":
		err = WriteRecordsCSV(w, records)
	case "by-activity":
		err = WriteActivitySummariesCSV(w, SummarizeByActivity(records))
	case "by-period":
		granularity, granErr := ParseGranularity(r.URL.Query().Get("granularity"))
		if granErr != nil {
			http.Error(w, "error, unsupported granularity", http.StatusBadRequest)
			return
		}
		var series []PeriodSummary
		if series, err = handler.analyzer.ByPeriod(ctx, params, granularity, PeriodOptions{}); err == nil {
			err = WritePeriodSummariesCSV(w, series)
		}
	default:
		http.Error(w, "error, unknown export kind", http.StatusBadRequest)
		return
	}

	if err != nil {
		// headers are out by now, all we can do is log
		log.Errorf("failed to write csv export: %s", err)
	}
}

func (handler *Handler) HandleExportJSON(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.exportJSON")
	defer span.End()

	params, err := filterParamsFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	records := Filter(handler.store.All(), params)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="workouts.json"`)
	if err := WriteRecordsJSON(w, records); err != nil {
		log.Errorf("failed to write json export: %s", err)
	}
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.list")
	defer span.End()

	vars := mux.Vars(r)
	page, err := strconv.Atoi(vars["page"])
	if err != nil || page < 1 {
		http.Error(w, "error, invalid page", http.StatusBadRequest)
		return
	}
	size, err := strconv.Atoi(vars["size"])
	if err != nil || size < 1 {
		http.Error(w, "error, invalid size", http.StatusBadRequest)
		return
	}

	params, err := filterParamsFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	records := Filter(handler.store.All(), params)

	from := (page - 1) * size
	if from > len(records) {
		from = len(records)
	}
	to := from + size
	if to > len(records) {
		to = len(records)
	}

	pageRecords := records[from:to]
	if pageRecords == nil {
		pageRecords = []healthexport.Workout{}
	}
	pkg.WriteJSONResponse(w, WorkoutsPageResponse{
		Workouts: pageRecords,
		Total:    len(records),
	})
}

// writeCached serves the response from the stats cache when present.
// The full request URI is the cache key; the cache is cleared on every load.
func (handler *Handler) writeCached(w http.ResponseWriter, r *http.Request) bool {
	cached, err := handler.cache.Get([]byte(r.URL.RequestURI()))
	if err != nil {
		return false
	}
	log.Tracef("stats cache hit: %s", r.URL.RequestURI())
	pkg.WriteResponseBytes(w, "application/json", cached)
	return true
}

func (handler *Handler) writeAndCacheJSON(w http.ResponseWriter, r *http.Request, payload any) {
	respBytes, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("failed to marshal stats response: %s", err)
		http.Error(w, "failed to marshal response", http.StatusInternalServerError)
		return
	}

	cacheKey := r.URL.RequestURI()
	if err := handler.cache.Set([]byte(cacheKey), respBytes, statsCacheExpireSeconds); err != nil {
		log.Errorf("failed to set stats cache for [%s]: %s", cacheKey, err)
	}

	pkg.WriteResponseBytes(w, "application/json", respBytes)
}

// filterParamsFromRequest reads the activity/from/to query params. Dates
// accept the full export timestamp layout or a bare date; a bare "to" date
// is extended to the end of that day so the bound stays inclusive.
func filterParamsFromRequest(r *http.Request) (FilterParams, error) {
	params := FilterParams{
		ActivityType: r.URL.Query().Get("activity"),
	}

	if fromParam := r.URL.Query().Get("from"); fromParam != "" {
		from, _, err := parseTimeParam(fromParam)
		if err != nil {
			return FilterParams{}, fmt.Errorf("error, invalid from param: %s", fromParam)
		}
		params.From = &from
	}
	if toParam := r.URL.Query().Get("to"); toParam != "" {
		to, dateOnly, err := parseTimeParam(toParam)
		if err != nil {
			return FilterParams{}, fmt.Errorf("error, invalid to param: %s", toParam)
		}
		if dateOnly {
			to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		params.To = &to
	}

	return params, nil
}

func parseTimeParam(raw string) (t time.Time, dateOnly bool, err error) {
	if t, err = time.Parse(dateOnlyLayout, raw); err == nil {
		return t, true, nil
	}
	t, err = time.Parse(healthexport.TimestampLayout, raw)
	return t, false, err
}
