package healthexport

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the fixed textual timestamp format of the export document.
const TimestampLayout = "2006-01-02 15:04:05 -0700"

const (
	activityTypePrefix = "HKWorkoutActivityType"
	quantityTypePrefix = "HKQuantityTypeIdentifier"
	metadataKeyPrefix  = "HK"

	// interval step key paths carry no analytical value
	metadataKeyIntervalSteps = "WOIntervalStepKeyPath"
)

// ParseResult holds everything a single extraction pass produced.
type ParseResult struct {
	Workouts []Workout
	// Partial is true when the document failed partway through; the
	// workouts emitted before the failure point are still valid.
	Partial  bool
	Warnings int
}

// Parser walks the export document with a streaming token decoder and emits
// fully assembled workout records. A parser is reusable, but each pass needs
// a fresh reader - the document is consumed forward-only, in a single pass.
type Parser struct {
	sink DiagnosticSink
}

func NewParser(sink DiagnosticSink) *Parser {
	if sink == nil {
		sink = NewLogSink()
	}
	return &Parser{sink: sink}
}

// Parse runs a full extraction pass and collects all workouts.
// On a structural XML error it returns the records emitted so far together
// with an error wrapping ErrDocumentMalformed - callers decide whether a
// partial load is acceptable.
func (p *Parser) Parse(ctx context.Context, r io.Reader) (*ParseResult, error) {
	res := &ParseResult{}
	warnings, err := p.ParseStream(ctx, r, func(w Workout) error {
		res.Workouts = append(res.Workouts, w)
		return nil
	})
	res.Warnings = warnings
	if err != nil {
		res.Partial = true
	}
	return res, err
}

// ParseStream is the streaming primitive behind Parse: emit is called once
// per assembled workout, in document order. Memory stays bounded by a single
// in-flight workout regardless of document size. Returns the number of
// non-fatal diagnostics surfaced during the pass.
func (p *Parser) ParseStream(ctx context.Context, r io.Reader, emit func(Workout) error) (int, error) {
	ex := &extraction{sink: p.sink}
	err := ex.run(ctx, r, emit)
	return ex.warnings, err
}

// extraction is the state of a single pass.
type extraction struct {
	sink     DiagnosticSink
	warnings int
}

func (ex *extraction) run(ctx context.Context, r io.Reader, emit func(Workout) error) error {
	dec := xml.NewDecoder(r)
	dec.Strict = true
	// Hard security requirement: no external entity or DTD resolution.
	// encoding/xml never fetches external entities; an empty custom entity
	// map means unknown entity references fail the parse instead of
	// expanding, and undeclared charsets are rejected outright.
	dec.Entity = map[string]string{}
	dec.CharsetReader = func(charset string, _ io.Reader) (io.Reader, error) {
		return nil, fmt.Errorf("unsupported document charset: %s", charset)
	}

	var (
		builder      *workoutBuilder
		inRoute      bool
		emittedCount int
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			if builder != nil {
				// document ended inside an open workout element
				return fmt.Errorf("%w: unexpected EOF inside workout element", ErrDocumentMalformed)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %s", ErrDocumentMalformed, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "Workout":
				if builder == nil {
					builder = ex.newWorkoutBuilder(t, emittedCount)
				}
			case "WorkoutStatistics":
				if builder != nil {
					builder.addStatistics(t)
				}
			case "MetadataEntry":
				if builder != nil {
					builder.addMetadata(t)
				}
			case "WorkoutRoute":
				if builder != nil {
					inRoute = true
				}
			case "FileReference":
				if builder != nil && inRoute && builder.workout.RouteFile == "" {
					builder.workout.RouteFile = attrValue(t, "path")
				}
			case "WorkoutActivity":
				// multisport sub-activities: children merge into the parent record
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "Workout":
				if builder != nil {
					if err := emit(builder.finalize()); err != nil {
						return err
					}
					emittedCount++
					builder = nil
				}
			case "WorkoutRoute":
				inRoute = false
			}
		}
	}
}

func (ex *extraction) warn(recordIndex int, field, rawValue, reason string) {
	ex.warnings++
	ex.sink.OnDiagnostic(Diagnostic{
		RecordIndex: recordIndex,
		Field:       field,
		RawValue:    rawValue,
		Reason:      reason,
	})
}

// workoutBuilder accumulates one workout element until its closing tag.
// Partially assembled records never escape it.
type workoutBuilder struct {
	ex          *extraction
	recordIndex int
	workout     Workout

	explicitDuration bool
}

func (ex *extraction) newWorkoutBuilder(se xml.StartElement, recordIndex int) *workoutBuilder {
	b := &workoutBuilder{
		ex:          ex,
		recordIndex: recordIndex,
	}

	b.workout.ActivityType = strings.TrimPrefix(attrValue(se, "workoutActivityType"), activityTypePrefix)
	b.workout.SourceName = attrValue(se, "sourceName")

	if raw := attrValue(se, "startDate"); raw != "" {
		if ts, err := time.Parse(TimestampLayout, raw); err == nil {
			b.workout.StartTime = ts
		} else {
			ex.warn(recordIndex, "startDate", raw, "invalid timestamp")
		}
	}
	if raw := attrValue(se, "endDate"); raw != "" {
		if ts, err := time.Parse(TimestampLayout, raw); err == nil {
			b.workout.EndTime = ts
		} else {
			ex.warn(recordIndex, "endDate", raw, "invalid timestamp")
		}
	}

	if raw := attrValue(se, "duration"); raw != "" {
		durationUnit := attrValue(se, "durationUnit")
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			ex.warn(recordIndex, "duration", raw, "not a number")
		} else if seconds, convErr := durationToSeconds(val, durationUnit); convErr != nil {
			ex.warn(recordIndex, "duration", raw, convErr.Error())
		} else {
			b.workout.DurationSeconds = seconds
			b.explicitDuration = true
		}
	}

	return b
}

// statistic type -> metric field mapping; everything not matched here lands
// in the raw metadata bag.
func (b *workoutBuilder) addStatistics(se xml.StartElement) {
	statType := strings.TrimPrefix(attrValue(se, "type"), quantityTypePrefix)
	unit := attrValue(se, "unit")

	for _, aggr := range []string{"sum", "average", "minimum", "maximum"} {
		raw := attrValue(se, aggr)
		if raw == "" {
			continue
		}

		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			b.ex.warn(b.recordIndex, aggr+statType, raw, "not a number")
			continue
		}

		switch {
		case aggr == "sum" && strings.Contains(statType, "Distance"):
			km, convErr := distanceToKm(val, unit)
			if convErr != nil {
				b.ex.warn(b.recordIndex, "distanceKm", raw, convErr.Error())
				continue
			}
			b.workout.DistanceKm = &km
		case aggr == "sum" && statType == "ActiveEnergyBurned":
			kcal, convErr := energyToKcal(val, unit)
			if convErr != nil {
				b.ex.warn(b.recordIndex, "energyKcal", raw, convErr.Error())
				continue
			}
			b.workout.EnergyKcal = &kcal
		case aggr == "average" && statType == "HeartRate":
			b.workout.AvgHeartRateBPM = &val
		case aggr == "average" && strings.HasSuffix(statType, "Power"):
			b.workout.AvgPowerWatts = &val
		default:
			// unrecognized statistic types are retained, never dropped silently
			b.workout.Metadata = append(b.workout.Metadata, MetadataEntry{
				Key:   aggr + statType,
				Value: raw,
				Unit:  unit,
			})
		}
	}
}

func (b *workoutBuilder) addMetadata(se xml.StartElement) {
	key := strings.TrimPrefix(attrValue(se, "key"), metadataKeyPrefix)
	if key == metadataKeyIntervalSteps {
		return
	}
	raw := attrValue(se, "value")

	switch key {
	case "AverageMETs":
		val, _, ok := splitValueUnit(raw)
		if !ok {
			b.ex.warn(b.recordIndex, "avgMets", raw, "not a number")
			break
		}
		b.workout.AvgMETs = addOrSet(b.workout.AvgMETs, val)
		return
	case "ElevationAscended":
		val, unit, ok := splitValueUnit(raw)
		if !ok || (unit != "m" && unit != "") {
			b.ex.warn(b.recordIndex, "elevationMeters", raw, "not a known elevation value")
			break
		}
		// multisport exports repeat the key per sub-activity; segments add up
		b.workout.ElevationMeters = addOrSet(b.workout.ElevationMeters, val)
		return
	}

	b.workout.Metadata = append(b.workout.Metadata, MetadataEntry{
		Key:   key,
		Value: raw,
	})
}

// finalize seals the record. Duration rule: an explicit duration attribute
// wins; otherwise it is derived from the start/end timestamps.
func (b *workoutBuilder) finalize() Workout {
	w := b.workout

	if !b.explicitDuration && !w.StartTime.IsZero() && !w.EndTime.IsZero() {
		if derived := w.EndTime.Sub(w.StartTime).Seconds(); derived >= 0 {
			w.DurationSeconds = derived
		} else {
			b.ex.warn(b.recordIndex, "endDate", w.EndTime.Format(TimestampLayout), "end before start")
		}
	}

	return w
}

func addOrSet(existing *float64, val float64) *float64 {
	if existing != nil {
		val += *existing
	}
	return &val
}

func attrValue(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
