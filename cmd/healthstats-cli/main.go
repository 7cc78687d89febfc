package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/2beens/healthstats/internal/healthexport"
	"github.com/2beens/healthstats/internal/workouts"

	log "github.com/sirupsen/logrus"
)

// one-off extraction and stats over an export archive, no server needed
func main() {
	archivePath := flag.String("archive", "", "path to the health export zip archive")
	activity := flag.String("activity", "", "activity type filter (empty or All for everything)")
	output := flag.String("output", "overview", "what to print [overview | by-activity | by-period | records-csv | records-json]")
	granularity := flag.String("granularity", "month", "period granularity [week | month | quarter | year]")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if *archivePath == "" {
		fmt.Fprintln(os.Stderr, "archive path empty, use -archive")
		os.Exit(1)
	}

	if level, err := log.ParseLevel(*logLevel); err == nil {
		log.SetLevel(level)
	}
	log.SetOutput(os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *archivePath, *activity, *output, *granularity); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, archivePath, activity, output, granularity string) error {
	service := healthexport.NewService(healthexport.NewLogSink())
	res, err := service.LoadWorkouts(ctx, archivePath)
	if err != nil && res == nil {
		return err
	}
	if res.Partial {
		fmt.Fprintf(os.Stderr, "warning: document malformed, %d records extracted before failure\n", len(res.Workouts))
	}

	records := workouts.Filter(res.Workouts, workouts.FilterParams{ActivityType: activity})

	switch output {
	case "overview":
		printSummary("all workouts", workouts.OverviewTotals(records))
		return nil
	case "by-activity":
		summaries := workouts.SummarizeByActivity(records)
		activities := make([]string, 0, len(summaries))
		for a := range summaries {
			activities = append(activities, a)
		}
		sort.Strings(activities)
		for _, a := range activities {
			printSummary(a, summaries[a])
		}
		return nil
	case "by-period":
		g, err := workouts.ParseGranularity(granularity)
		if err != nil {
			return err
		}
		series, err := workouts.SummarizeByPeriod(records, g, workouts.PeriodOptions{})
		if err != nil {
			return err
		}
		return workouts.WritePeriodSummariesCSV(os.Stdout, series)
	case "records-csv":
		return workouts.WriteRecordsCSV(os.Stdout, records)
	case "records-json":
		return workouts.WriteRecordsJSON(os.Stdout, records)
	default:
		return fmt.Errorf("unknown output kind: %s", output)
	}
}

func printSummary(title string, s workouts.Summary) {
	fmt.Printf("%s: %d workouts\n", title, s.Workouts)
	for _, metric := range workouts.MetricNames {
		ms, ok := s.Metrics[metric]
		if !ok {
			continue
		}
		fmt.Printf(
			"  %-18s count=%d sum=%.2f avg=%.2f min=%.2f max=%.2f\n",
			metric, ms.Count, ms.Sum, ms.Avg, ms.Min, ms.Max,
		)
	}
}
