// Package app holds the long-running acquisition loop behind the CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rjboer/gofpc/internal/fpc"
	"github.com/rjboer/gofpc/internal/logging"
	"github.com/rjboer/gofpc/internal/telemetry"
)

// Acquirer reads traces. *fpc.Driver implements it.
type Acquirer interface {
	Trace(n int, src fpc.Source) (fpc.Trace, error)
}

// Config controls a Monitor.
type Config struct {
	// Interval between acquisitions. Defaults to one second.
	Interval time.Duration
	// Count stops the monitor after that many samples; 0 runs until the
	// context is cancelled.
	Count int
	// TraceNumber and Source select what is read.
	TraceNumber int
	Source      fpc.Source
	// MaxRetries bounds retries of a failed acquisition. 0 fails on the
	// first error.
	MaxRetries int
	// RetryInterval is the first backoff delay. Defaults to 500ms.
	RetryInterval time.Duration
	// WarmupTraces are read and discarded before reporting starts.
	WarmupTraces int
}

// Monitor periodically acquires traces and reports them.
type Monitor struct {
	acq      Acquirer
	reporter telemetry.Reporter
	logger   logging.Logger
	cfg      Config
	now      func() time.Time
}

// NewMonitor builds a monitor. A nil reporter discards samples.
func NewMonitor(acq Acquirer, reporter telemetry.Reporter, logger logging.Logger, cfg Config) *Monitor {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	if cfg.TraceNumber < 1 {
		cfg.TraceNumber = 1
	}
	return &Monitor{
		acq:      acq,
		reporter: reporter,
		logger:   logger.With(logging.Field{Key: "subsystem", Value: "monitor"}),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run acquires until Count samples were reported, ctx is cancelled, or an
// acquisition fails after all retries.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.warmup(ctx); err != nil {
		return fmt.Errorf("warmup: %w", err)
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for index := 0; m.cfg.Count <= 0 || index < m.cfg.Count; index++ {
		if index > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}

		start := m.now()
		tr, err := m.acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("acquire sample %d: %w", index, err)
		}

		if m.reporter != nil {
			s := telemetry.Sample{
				Timestamp: start,
				Index:     index,
				Source:    m.cfg.Source.String(),
				Trace:     tr,
			}
			if err := m.reporter.Report(ctx, s); err != nil {
				return fmt.Errorf("report sample %d: %w", index, err)
			}
		}
		m.logger.Debug("sample processed",
			logging.Field{Key: "index", Value: index},
			logging.Field{Key: "duration_ms", Value: m.now().Sub(start).Seconds() * 1000},
		)
	}
	return nil
}

func (m *Monitor) acquire(ctx context.Context) (fpc.Trace, error) {
	var tr fpc.Trace
	op := func() error {
		var err error
		tr, err = m.acq.Trace(m.cfg.TraceNumber, m.cfg.Source)
		return err
	}

	// WithMaxRetries treats 0 as unlimited.
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if m.cfg.MaxRetries > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = m.cfg.RetryInterval
		eb.MaxElapsedTime = 0
		policy = backoff.WithMaxRetries(eb, uint64(m.cfg.MaxRetries))
	}
	b := backoff.WithContext(policy, ctx)

	notify := func(err error, next time.Duration) {
		m.logger.Warn("acquisition failed, retrying",
			logging.Field{Key: "error", Value: err.Error()},
			logging.Field{Key: "retry_in", Value: next.String()},
		)
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return fpc.Trace{}, err
	}
	return tr, nil
}

func (m *Monitor) warmup(ctx context.Context) error {
	for i := 0; i < m.cfg.WarmupTraces; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := m.acq.Trace(m.cfg.TraceNumber, m.cfg.Source); err != nil {
			return fmt.Errorf("warmup trace %d: %w", i, err)
		}
		m.logger.Debug("warmup trace discarded", logging.Field{Key: "index", Value: i})
	}
	return nil
}
