// Package telemetry fans acquired traces out to logs, archives and live
// HTTP subscribers.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rjboer/gofpc/internal/dsp"
	"github.com/rjboer/gofpc/internal/fpc"
	"github.com/rjboer/gofpc/internal/logging"
)

// Sample is one acquired trace.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Index     int       `json:"index"`
	Source    string    `json:"source"`
	Trace     fpc.Trace `json:"trace"`
}

// Reporter consumes samples.
type Reporter interface {
	Report(ctx context.Context, s Sample) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, s Sample) error

func (f ReporterFunc) Report(ctx context.Context, s Sample) error { return f(ctx, s) }

// MultiReporter fans out samples to several destinations. Every reporter
// sees every sample; their errors are joined.
type MultiReporter []Reporter

// Report forwards s to each configured reporter.
func (m MultiReporter) Report(ctx context.Context, s Sample) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Report(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogReporter writes a one-line peak summary per sample.
type LogReporter struct {
	logger logging.Logger
}

// NewLogReporter builds a log reporter with the provided logger.
func NewLogReporter(logger logging.Logger) LogReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return LogReporter{logger: logger}
}

func (r LogReporter) Report(_ context.Context, s Sample) error {
	fields := []logging.Field{
		{Key: "subsystem", Value: "telemetry"},
		{Key: "index", Value: s.Index},
		{Key: "source", Value: s.Source},
		{Key: "points", Value: s.Trace.Len()},
	}
	if len(s.Trace.X) > 0 {
		fields = append(fields, logging.Field{
			Key:   "span",
			Value: FormatHz(s.Trace.X[0]) + " - " + FormatHz(s.Trace.X[len(s.Trace.X)-1]),
		})
	}
	if _, freq, level, ok := dsp.Peak(s.Trace.X, s.Trace.Y); ok {
		fields = append(fields,
			logging.Field{Key: "peak_freq", Value: FormatHz(freq)},
			logging.Field{Key: "peak_level", Value: fmt.Sprintf("%.4g %s", level, s.Trace.UnitY)},
			logging.Field{Key: "mean_level", Value: fmt.Sprintf("%.4g %s", dsp.Mean(s.Trace.Y), s.Trace.UnitY)},
		)
	}
	r.logger.Info("trace sample", fields...)
	return nil
}

// FormatHz renders a frequency with an SI prefix, e.g. "150 MHz".
func FormatHz(hz float64) string {
	v, prefix := humanize.ComputeSI(hz)
	return humanize.FtoaWithDigits(v, 6) + " " + prefix + "Hz"
}
