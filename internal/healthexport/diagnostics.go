package healthexport

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Diagnostic is a non-fatal extraction warning: a field could not be coerced
// and was dropped, or a value looked off. Extraction continues after these.
type Diagnostic struct {
	// RecordIndex is the index of the workout being assembled when the
	// issue occurred (0-based, document order).
	RecordIndex int
	Field       string
	RawValue    string
	Reason      string
}

type DiagnosticSink interface {
	OnDiagnostic(d Diagnostic)
}

// SinkFunc adapts a plain function to a DiagnosticSink.
type SinkFunc func(Diagnostic)

func (f SinkFunc) OnDiagnostic(d Diagnostic) {
	f(d)
}

// NewLogSink returns a sink that logs each diagnostic as a warning.
func NewLogSink() DiagnosticSink {
	return SinkFunc(func(d Diagnostic) {
		log.Warnf(
			"parse diagnostic: record %d, field [%s], value [%s]: %s",
			d.RecordIndex, d.Field, d.RawValue, d.Reason,
		)
	})
}

// CollectorSink collects diagnostics in memory, mostly for tests and the CLI.
type CollectorSink struct {
	mu          sync.Mutex
	diagnostics []Diagnostic
}

func (c *CollectorSink) OnDiagnostic(d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diagnostics = append(c.diagnostics, d)
}

func (c *CollectorSink) Diagnostics() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.diagnostics))
	copy(out, c.diagnostics)
	return out
}

// MultiSink fans each diagnostic out to all given sinks.
func MultiSink(sinks ...DiagnosticSink) DiagnosticSink {
	return SinkFunc(func(d Diagnostic) {
		for _, s := range sinks {
			s.OnDiagnostic(d)
		}
	})
}
