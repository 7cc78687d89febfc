package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/healthstats/internal/config"
	"github.com/2beens/healthstats/internal/healthexport"
	"github.com/2beens/healthstats/internal/instrumentation"
	"github.com/2beens/healthstats/internal/middleware"
	"github.com/2beens/healthstats/internal/telemetry/tracing"
	"github.com/2beens/healthstats/internal/workouts"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

const megabyte = 1024 * 1024

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config        *config.Config
	exportService *healthexport.Service
	store         *workouts.Store
	handler       *workouts.Handler

	// telemetry
	instr        *instrumentation.Instrumentation
	promRegistry *prometheus.Registry
	otelShutdown func()
}

type NewServerParams struct {
	Config                  *config.Config
	VersionInfo             string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	promRegistry := instrumentation.SetupPrometheus()
	instr := instrumentation.NewInstrumentation("healthstats", "main", promRegistry)
	instr.GaugeLifeSignal.Set(0)

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "healthstats-backend")
	if err != nil {
		return nil, err
	}

	exportService := healthexport.NewService(healthexport.NewLogSink())
	store := workouts.NewStore()

	cacheSizeMB := params.Config.StatsCacheSizeMB
	if cacheSizeMB <= 0 {
		cacheSizeMB = 10
	}

	s := &Server{
		config:        params.Config,
		versionInfo:   params.VersionInfo,
		exportService: exportService,
		store:         store,
		handler: workouts.NewHandler(
			exportService,
			store,
			cacheSizeMB*megabyte,
			instr,
		),

		// telemetry
		instr:        instr,
		promRegistry: promRegistry,
		otelShutdown: otelShutdown,
	}

	if autoloadPath := params.Config.ExportAutoloadPath; autoloadPath != "" {
		if err := s.autoloadExport(ctx, autoloadPath); err != nil {
			return nil, fmt.Errorf("autoload export archive: %w", err)
		}
	}

	return s, nil
}

// autoloadExport fills the store on startup from a configured archive path.
// A malformed document keeps the records parsed before the failure point.
func (s *Server) autoloadExport(ctx context.Context, path string) error {
	loadStart := time.Now()
	res, err := s.exportService.LoadWorkouts(ctx, path)
	if err != nil && !errors.Is(err, healthexport.ErrDocumentMalformed) {
		return err
	}
	if err != nil {
		log.Warnf("export archive [%s] loaded partially: %s", path, err)
	}

	s.store.Load(res.Workouts, res.Partial)
	s.instr.CounterExportLoads.Inc()
	s.instr.CounterWorkoutsParsed.Add(float64(len(res.Workouts)))
	s.instr.CounterParseWarnings.Add(float64(res.Warnings))
	s.instr.GaugeStoredRecords.Set(float64(len(res.Workouts)))
	s.instr.HistLoadDuration.Observe(time.Since(loadStart).Seconds())

	log.Infof(
		"export archive autoloaded: %d records, %d warnings, partial: %t",
		len(res.Workouts), res.Warnings, res.Partial,
	)
	return nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("healthstats-router"))

	r.HandleFunc("/health-data/load", s.handler.HandleLoad).Methods("POST", "OPTIONS").Name("load-health-data")
	r.HandleFunc("/health-data/status", s.handler.HandleStatus).Methods("GET", "OPTIONS").Name("health-data-status")
	r.HandleFunc("/health-data/activity-types", s.handler.HandleActivityTypes).Methods("GET", "OPTIONS").Name("activity-types")

	r.HandleFunc("/health-data/stats/overview", s.handler.HandleStatsOverview).Methods("GET", "OPTIONS").Name("stats-overview")
	r.HandleFunc("/health-data/stats/by-activity", s.handler.HandleStatsByActivity).Methods("GET", "OPTIONS").Name("stats-by-activity")
	r.HandleFunc("/health-data/stats/by-activity/percentages", s.handler.HandleActivityPercentages).Methods("GET", "OPTIONS").Name("activity-percentages")
	r.HandleFunc("/health-data/stats/by-period", s.handler.HandleStatsByPeriod).Methods("GET", "OPTIONS").Name("stats-by-period")

	r.HandleFunc("/health-data/export/csv", s.handler.HandleExportCSV).Methods("GET", "OPTIONS").Name("export-csv")
	r.HandleFunc("/health-data/export/json", s.handler.HandleExportJSON).Methods("GET", "OPTIONS").Name("export-json")

	r.HandleFunc("/health-data/workouts/list/page/{page}/size/{size}", s.handler.HandleList).Methods("GET", "OPTIONS").Name("list-workouts")

	r.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(s.versionInfo)); err != nil {
			log.Errorf("failed to write version response: %s", err)
		}
	}).Methods("GET").Name("version")

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	r.Use(middleware.PanicRecovery(s.instr))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.instr))
	r.Use(middleware.Cors())
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) Serve(_ context.Context, host string, port int) {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.instr.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.instr.GaugeLifeSignal.Set(0)

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown metrics http server")
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.instr.GaugeRequests.Add(1)
	case http.StateClosed:
		s.instr.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
