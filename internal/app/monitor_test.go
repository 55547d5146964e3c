package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rjboer/gofpc/internal/fpc"
	"github.com/rjboer/gofpc/internal/scpi"
	"github.com/rjboer/gofpc/internal/telemetry"
)

type recordingReporter struct {
	mu      sync.Mutex
	samples []telemetry.Sample
	err     error
}

func (r *recordingReporter) Report(_ context.Context, s telemetry.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	return r.err
}

// flakyAcquirer fails the first `fails` calls.
type flakyAcquirer struct {
	fails int
	calls int
	err   error
}

func (f *flakyAcquirer) Trace(n int, _ fpc.Source) (fpc.Trace, error) {
	f.calls++
	if f.calls <= f.fails {
		return fpc.Trace{}, f.err
	}
	return fpc.Trace{X: []float64{1, 2}, Y: []float64{3, 4}}, nil
}

func TestMonitorWithMockDriver(t *testing.T) {
	m := scpi.NewMock()
	m.Points = 21
	drv := fpc.New(m, nil)
	reporter := &recordingReporter{}

	mon := NewMonitor(drv, reporter, nil, Config{Interval: time.Millisecond, Count: 3})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mon.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(reporter.samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(reporter.samples))
	}
	for i, s := range reporter.samples {
		if s.Index != i || s.Source != "live" || s.Trace.Len() != 21 {
			t.Fatalf("sample %d = %+v", i, s)
		}
		if s.Timestamp.IsZero() {
			t.Fatalf("sample %d has no timestamp", i)
		}
	}
}

func TestMonitorRetriesThenSucceeds(t *testing.T) {
	acq := &flakyAcquirer{fails: 2, err: errors.New("timeout")}
	reporter := &recordingReporter{}
	mon := NewMonitor(acq, reporter, nil, Config{
		Interval:      time.Millisecond,
		Count:         1,
		MaxRetries:    3,
		RetryInterval: time.Millisecond,
	})
	if err := mon.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if acq.calls != 3 || len(reporter.samples) != 1 {
		t.Fatalf("calls = %d, samples = %d", acq.calls, len(reporter.samples))
	}
}

func TestMonitorRetriesExhausted(t *testing.T) {
	boom := errors.New("link down")
	acq := &flakyAcquirer{fails: 100, err: boom}
	mon := NewMonitor(acq, nil, nil, Config{Count: 1, MaxRetries: 2, RetryInterval: time.Millisecond})
	err := mon.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if acq.calls != 3 {
		t.Fatalf("expected 1 attempt + 2 retries, got %d", acq.calls)
	}
}

func TestMonitorNoRetries(t *testing.T) {
	boom := errors.New("link down")
	acq := &flakyAcquirer{fails: 1, err: boom}
	mon := NewMonitor(acq, nil, nil, Config{Count: 1})
	if err := mon.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if acq.calls != 1 {
		t.Fatalf("calls = %d", acq.calls)
	}
}

func TestMonitorReportError(t *testing.T) {
	full := errors.New("disk full")
	reporter := &recordingReporter{err: full}
	mon := NewMonitor(&flakyAcquirer{}, reporter, nil, Config{Count: 5, Interval: time.Millisecond})
	if err := mon.Run(context.Background()); !errors.Is(err, full) {
		t.Fatalf("err = %v", err)
	}
	if len(reporter.samples) != 1 {
		t.Fatalf("samples = %d", len(reporter.samples))
	}
}

func TestMonitorCancel(t *testing.T) {
	reporter := &recordingReporter{}
	mon := NewMonitor(&flakyAcquirer{}, reporter, nil, Config{Interval: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := mon.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if len(reporter.samples) != 1 {
		t.Fatalf("samples = %d", len(reporter.samples))
	}
}

func TestMonitorWarmup(t *testing.T) {
	acq := &flakyAcquirer{}
	reporter := &recordingReporter{}
	mon := NewMonitor(acq, reporter, nil, Config{Count: 1, WarmupTraces: 2})
	if err := mon.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if acq.calls != 3 || len(reporter.samples) != 1 || reporter.samples[0].Index != 0 {
		t.Fatalf("calls = %d samples = %+v", acq.calls, reporter.samples)
	}
}

func TestMonitorFeedsHub(t *testing.T) {
	hub := telemetry.NewHub(2, nil)
	mon := NewMonitor(&flakyAcquirer{}, telemetry.MultiReporter{hub}, nil, Config{Count: 3, Interval: time.Millisecond, Source: fpc.Memory})
	if err := mon.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	h := hub.History()
	if len(h) != 2 || h[1].Index != 2 || h[1].Source != "memory" {
		t.Fatalf("history = %+v", h)
	}
}
