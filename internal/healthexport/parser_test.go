package healthexport_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/2beens/healthstats/internal/healthexport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleExport = `<?xml version="1.0" encoding="UTF-8"?>
<HealthData locale="en_US">
 <ExportDate value="2024-06-01 10:00:00 +0100"/>
 <Workout workoutActivityType="HKWorkoutActivityTypeRunning" duration="45.5" durationUnit="min" sourceName="Serj Watch" startDate="2024-03-15 07:30:00 +0100" endDate="2024-03-15 08:15:30 +0100">
  <MetadataEntry key="HKAverageMETs" value="8.2 kcal/hr·kg"/>
  <MetadataEntry key="HKElevationAscended" value="1250 cm"/>
  <MetadataEntry key="HKIndoorWorkout" value="0"/>
  <MetadataEntry key="HKWOIntervalStepKeyPath" value="interval-1.step-2"/>
  <WorkoutStatistics type="HKQuantityTypeIdentifierDistanceWalkingRunning" sum="8.45" unit="km"/>
  <WorkoutStatistics type="HKQuantityTypeIdentifierActiveEnergyBurned" sum="520.3" unit="Cal"/>
  <WorkoutStatistics type="HKQuantityTypeIdentifierHeartRate" average="152" minimum="98" maximum="181" unit="count/min"/>
  <WorkoutRoute sourceName="Serj Watch">
   <FileReference path="/workout-routes/route_2024-03-15_7.30am.gpx"/>
  </WorkoutRoute>
 </Workout>
 <Workout workoutActivityType="HKWorkoutActivityTypeYoga" sourceName="Serj Watch" startDate="2024-03-16 18:00:00 +0100" endDate="2024-03-16 18:30:00 +0100"/>
</HealthData>`

func parseTimestamp(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(healthexport.TimestampLayout, value)
	require.NoError(t, err)
	return ts
}

func TestParse(t *testing.T) {
	collector := &healthexport.CollectorSink{}
	parser := healthexport.NewParser(collector)

	res, err := parser.Parse(context.Background(), strings.NewReader(sampleExport))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Partial)
	assert.Zero(t, res.Warnings)
	assert.Empty(t, collector.Diagnostics())
	require.Len(t, res.Workouts, 2)

	running := res.Workouts[0]
	assert.Equal(t, "Running", running.ActivityType)
	assert.Equal(t, "Serj Watch", running.SourceName)
	assert.True(t, running.StartTime.Equal(parseTimestamp(t, "2024-03-15 07:30:00 +0100")))
	assert.True(t, running.EndTime.Equal(parseTimestamp(t, "2024-03-15 08:15:30 +0100")))
	// explicit duration attribute wins over the timestamp difference
	assert.InDelta(t, 45.5*60, running.DurationSeconds, 0.001)

	require.NotNil(t, running.DistanceKm)
	assert.InDelta(t, 8.45, *running.DistanceKm, 0.001)
	require.NotNil(t, running.EnergyKcal)
	assert.InDelta(t, 520.3, *running.EnergyKcal, 0.001)
	require.NotNil(t, running.AvgHeartRateBPM)
	assert.InDelta(t, 152, *running.AvgHeartRateBPM, 0.001)
	require.NotNil(t, running.AvgMETs)
	assert.InDelta(t, 8.2, *running.AvgMETs, 0.001)
	require.NotNil(t, running.ElevationMeters)
	assert.InDelta(t, 12.5, *running.ElevationMeters, 0.001)
	assert.Equal(t, "/workout-routes/route_2024-03-15_7.30am.gpx", running.RouteFile)

	// min/max heart rate are not first class metrics, but must not get lost
	metadataKeys := make(map[string]string)
	for _, entry := range running.Metadata {
		metadataKeys[entry.Key] = entry.Value
	}
	assert.Equal(t, "98", metadataKeys["minimumHeartRate"])
	assert.Equal(t, "181", metadataKeys["maximumHeartRate"])
	assert.Equal(t, "0", metadataKeys["IndoorWorkout"])
	assert.NotContains(t, metadataKeys, "WOIntervalStepKeyPath")

	yoga := res.Workouts[1]
	assert.Equal(t, "Yoga", yoga.ActivityType)
	// no duration attribute: derived from start/end
	assert.InDelta(t, 30*60, yoga.DurationSeconds, 0.001)
	assert.Nil(t, yoga.DistanceKm)
	assert.Nil(t, yoga.EnergyKcal)
	assert.Empty(t, yoga.RouteFile)
}

func TestParse_TwoPassesYieldIdenticalRecords(t *testing.T) {
	parser := healthexport.NewParser(&healthexport.CollectorSink{})

	first, err := parser.Parse(context.Background(), strings.NewReader(sampleExport))
	require.NoError(t, err)
	second, err := parser.Parse(context.Background(), strings.NewReader(sampleExport))
	require.NoError(t, err)

	assert.Equal(t, first.Workouts, second.Workouts)
}

func TestParse_FieldCoercionFailure(t *testing.T) {
	doc := `<HealthData>
 <Workout workoutActivityType="HKWorkoutActivityTypeRunning" startDate="2024-03-15 07:30:00 +0100" endDate="2024-03-15 08:00:00 +0100">
  <WorkoutStatistics type="HKQuantityTypeIdentifierDistanceWalkingRunning" sum="garbage" unit="km"/>
  <WorkoutStatistics type="HKQuantityTypeIdentifierHeartRate" average="140" unit="count/min"/>
 </Workout>
</HealthData>`

	collector := &healthexport.CollectorSink{}
	parser := healthexport.NewParser(collector)

	res, err := parser.Parse(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, res.Workouts, 1)
	assert.Equal(t, 1, res.Warnings)

	// the bad field is dropped, everything else survives
	w := res.Workouts[0]
	assert.Nil(t, w.DistanceKm)
	require.NotNil(t, w.AvgHeartRateBPM)
	assert.InDelta(t, 140, *w.AvgHeartRateBPM, 0.001)

	diagnostics := collector.Diagnostics()
	require.Len(t, diagnostics, 1)
	assert.Equal(t, 0, diagnostics[0].RecordIndex)
	assert.Equal(t, "garbage", diagnostics[0].RawValue)
}

func TestParse_UnknownDistanceUnit(t *testing.T) {
	doc := `<HealthData>
 <Workout workoutActivityType="HKWorkoutActivityTypeRunning" startDate="2024-03-15 07:30:00 +0100" endDate="2024-03-15 08:00:00 +0100">
  <WorkoutStatistics type="HKQuantityTypeIdentifierDistanceWalkingRunning" sum="3" unit="furlong"/>
 </Workout>
</HealthData>`

	collector := &healthexport.CollectorSink{}
	res, err := healthexport.NewParser(collector).Parse(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, res.Workouts, 1)
	assert.Nil(t, res.Workouts[0].DistanceKm)

	diagnostics := collector.Diagnostics()
	require.Len(t, diagnostics, 1)
	assert.Equal(t, "distanceKm", diagnostics[0].Field)
}

func TestParse_InvalidTimestamp(t *testing.T) {
	doc := `<HealthData>
 <Workout workoutActivityType="HKWorkoutActivityTypeWalking" duration="10" durationUnit="min" startDate="not-a-date" endDate="2024-03-15 08:00:00 +0100"/>
</HealthData>`

	collector := &healthexport.CollectorSink{}
	res, err := healthexport.NewParser(collector).Parse(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, res.Workouts, 1)
	assert.True(t, res.Workouts[0].StartTime.IsZero())
	assert.Equal(t, 1, res.Warnings)
}

func TestParse_MultisportElevationSegmentsAddUp(t *testing.T) {
	doc := `<HealthData>
 <Workout workoutActivityType="HKWorkoutActivityTypeTriathlon" duration="90" durationUnit="min" startDate="2024-03-15 07:30:00 +0100" endDate="2024-03-15 09:00:00 +0100">
  <WorkoutActivity workoutActivityType="HKWorkoutActivityTypeCycling">
   <MetadataEntry key="HKElevationAscended" value="1000 cm"/>
  </WorkoutActivity>
  <WorkoutActivity workoutActivityType="HKWorkoutActivityTypeRunning">
   <MetadataEntry key="HKElevationAscended" value="500 cm"/>
  </WorkoutActivity>
 </Workout>
</HealthData>`

	res, err := healthexport.NewParser(&healthexport.CollectorSink{}).
		Parse(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, res.Workouts, 1)

	w := res.Workouts[0]
	assert.Equal(t, "Triathlon", w.ActivityType)
	require.NotNil(t, w.ElevationMeters)
	assert.InDelta(t, 15, *w.ElevationMeters, 0.001)
}

func TestParse_TruncatedDocument(t *testing.T) {
	// cut the document inside the second workout element
	cutAt := strings.Index(sampleExport, `HKWorkoutActivityTypeYoga`)
	require.Positive(t, cutAt)
	truncated := sampleExport[:cutAt+len("HKWorkoutActivityTypeYoga")]

	res, err := healthexport.NewParser(&healthexport.CollectorSink{}).
		Parse(context.Background(), strings.NewReader(truncated))
	require.ErrorIs(t, err, healthexport.ErrDocumentMalformed)
	require.NotNil(t, res)
	assert.True(t, res.Partial)

	// everything emitted before the failure point is kept
	require.Len(t, res.Workouts, 1)
	assert.Equal(t, "Running", res.Workouts[0].ActivityType)
}

func TestParse_UnknownEntityRejected(t *testing.T) {
	doc := `<?xml version="1.0"?>
<HealthData>
 <Workout workoutActivityType="HKWorkoutActivityTypeRunning" sourceName="&xxe;" startDate="2024-03-15 07:30:00 +0100" endDate="2024-03-15 08:00:00 +0100"/>
</HealthData>`

	res, err := healthexport.NewParser(&healthexport.CollectorSink{}).
		Parse(context.Background(), strings.NewReader(doc))
	require.ErrorIs(t, err, healthexport.ErrDocumentMalformed)
	assert.True(t, res.Partial)
	assert.Empty(t, res.Workouts)
}

func TestParse_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := healthexport.NewParser(&healthexport.CollectorSink{}).
		Parse(ctx, strings.NewReader(sampleExport))
	require.ErrorIs(t, err, context.Canceled)
}

func TestParseStream_EmitError(t *testing.T) {
	errStop := errors.New("stop")
	parser := healthexport.NewParser(&healthexport.CollectorSink{})

	_, err := parser.ParseStream(
		context.Background(),
		strings.NewReader(sampleExport),
		func(healthexport.Workout) error { return errStop },
	)
	require.ErrorIs(t, err, errStop)
}

func TestParseStream_DocumentOrder(t *testing.T) {
	parser := healthexport.NewParser(&healthexport.CollectorSink{})

	var activities []string
	warnings, err := parser.ParseStream(
		context.Background(),
		strings.NewReader(sampleExport),
		func(w healthexport.Workout) error {
			activities = append(activities, w.ActivityType)
			return nil
		},
	)
	require.NoError(t, err)
	assert.Zero(t, warnings)
	assert.Equal(t, []string{"Running", "Yoga"}, activities)
}
