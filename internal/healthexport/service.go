package healthexport

import (
	"context"
	"fmt"

	"github.com/2beens/healthstats/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
)

// Service ties the archive accessor and the parser together: open archive,
// stream the export document through the parser, release the archive handle
// on every exit path.
type Service struct {
	parser *Parser
}

func NewService(sink DiagnosticSink) *Service {
	return &Service{
		parser: NewParser(sink),
	}
}

// LoadWorkouts runs one full extraction pass over the archive at path.
// A non-nil result can accompany an error: on a malformed document the
// workouts parsed before the failure point are returned with Partial set.
func (s *Service) LoadWorkouts(ctx context.Context, path string) (_ *ParseResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "healthexport.loadWorkouts")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("archive_path", path))

	archive, err := OpenArchive(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, archive.Close())
	}()

	exportReader, err := archive.ExportReader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := exportReader.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("close export reader: %w", closeErr))
		}
	}()

	res, parseErr := s.parser.Parse(ctx, exportReader)
	span.SetAttributes(
		attribute.Int("workouts", len(res.Workouts)),
		attribute.Int("warnings", res.Warnings),
		attribute.Bool("partial", res.Partial),
	)
	return res, parseErr
}
