package telemetry

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rjboer/gofpc/internal/fpc"
	"github.com/rjboer/gofpc/internal/logging"
)

func sample(i int) Sample {
	return Sample{
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Index:     i,
		Source:    "live",
		Trace: fpc.Trace{
			X:        []float64{100e6, 150e6, 200e6},
			Y:        []float64{-90, -30, -91},
			Metadata: fpc.Metadata{NameX: "Frequency", UnitX: "Hz", NameY: "$S_V$", UnitY: "DBM"},
		},
	}
}

func TestFormatHz(t *testing.T) {
	tests := map[float64]string{
		150e6:  "150 MHz",
		2.5e9:  "2.5 GHz",
		100e3:  "100 kHz",
		1:      "1 Hz",
		0:      "0 Hz",
		1.25e6: "1.25 MHz",
	}
	for in, want := range tests {
		if got := FormatHz(in); got != want {
			t.Errorf("FormatHz(%g) = %q, want %q", in, got, want)
		}
	}
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewLogReporter(logging.New(logging.Info, logging.JSON, &buf))
	if err := r.Report(context.Background(), sample(3)); err != nil {
		t.Fatal(err)
	}
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if rec["peak_freq"] != "150 MHz" {
		t.Fatalf("peak_freq = %v", rec["peak_freq"])
	}
	if rec["peak_level"] != "-30 DBM" {
		t.Fatalf("peak_level = %v", rec["peak_level"])
	}
	if rec["index"] != 3.0 || rec["points"] != 3.0 {
		t.Fatalf("record = %v", rec)
	}
}

type failingReporter struct{ err error }

func (f failingReporter) Report(context.Context, Sample) error { return f.err }

func TestMultiReporter(t *testing.T) {
	hub := NewHub(5, nil)
	boom := errors.New("disk full")
	m := MultiReporter{failingReporter{boom}, nil, hub}

	err := m.Report(context.Background(), sample(1))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if len(hub.History()) != 1 {
		t.Fatal("later reporters must still see the sample")
	}
	if err := (MultiReporter{hub}).Report(context.Background(), sample(2)); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestHubHistoryLimit(t *testing.T) {
	hub := NewHub(3, nil)
	for i := 0; i < 5; i++ {
		hub.Report(context.Background(), sample(i))
	}
	h := hub.History()
	if len(h) != 3 || h[0].Index != 2 || h[2].Index != 4 {
		t.Fatalf("history = %+v", h)
	}
	latest, ok := hub.Latest()
	if !ok || latest.Index != 4 {
		t.Fatalf("latest = %+v %v", latest, ok)
	}
}

func TestHubSubscribe(t *testing.T) {
	hub := NewHub(3, nil)
	ch, cancel := hub.Subscribe()
	hub.Report(context.Background(), sample(7))
	select {
	case s := <-ch:
		if s.Index != 7 {
			t.Fatalf("index = %d", s.Index)
		}
	case <-time.After(time.Second):
		t.Fatal("no sample delivered")
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed after cancel")
	}
	hub.Report(context.Background(), sample(8))
}

func TestHandleHistory(t *testing.T) {
	hub := NewHub(10, nil)
	for i := 0; i < 4; i++ {
		hub.Report(context.Background(), sample(i))
	}
	h := NewHandler(hub)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/history?limit=2", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var got []Sample
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Index != 3 {
		t.Fatalf("history = %+v", got)
	}
	if got[1].Trace.UnitY != "DBM" || len(got[1].Trace.Y) != 3 {
		t.Fatalf("trace not encoded: %+v", got[1].Trace)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/history?limit=x", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/history", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status %d", rr.Code)
	}
}

func TestHandleLatest(t *testing.T) {
	hub := NewHub(10, nil)
	h := NewHandler(hub)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/latest", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status %d", rr.Code)
	}

	hub.Report(context.Background(), sample(9))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/latest", nil))
	var got Sample
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Index != 9 {
		t.Fatalf("latest = %+v", got)
	}
}

func TestHandleLiveStreams(t *testing.T) {
	hub := NewHub(10, nil)
	hub.Report(context.Background(), sample(0))
	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/live", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	next := func() Sample {
		t.Helper()
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var s Sample
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &s); err != nil {
				t.Fatal(err)
			}
			return s
		}
		t.Fatalf("stream ended: %v", sc.Err())
		return Sample{}
	}

	if s := next(); s.Index != 0 {
		t.Fatalf("replayed index %d", s.Index)
	}
	// The handler subscribes before replaying, so this is delivered live.
	hub.Report(context.Background(), sample(1))
	if s := next(); s.Index != 1 {
		t.Fatalf("live index %d", s.Index)
	}
}

func nanSample(i int) Sample {
	s := sample(i)
	s.Trace.Y = []float64{math.NaN(), math.Inf(1), -30}
	return s
}

func TestUnencodableSampleIsLogged(t *testing.T) {
	var buf bytes.Buffer
	hub := NewHub(10, logging.New(logging.Warn, logging.JSON, &buf))
	hub.Report(context.Background(), nanSample(0))
	h := NewHandler(hub)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/latest", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, body %q", rr.Code, rr.Body.String())
	}
	if !strings.Contains(buf.String(), "encode response failed") {
		t.Fatalf("no warning logged: %q", buf.String())
	}
}

// lockedBuffer is written by handler goroutines and read by the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHandleLiveSkipsUnencodable(t *testing.T) {
	var buf lockedBuffer
	hub := NewHub(10, logging.New(logging.Warn, logging.JSON, &buf))
	hub.Report(context.Background(), nanSample(0))
	hub.Report(context.Background(), sample(1))
	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/live", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if line == "data: " {
			t.Fatal("empty event sent for unencodable sample")
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var s Sample
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &s); err != nil {
			t.Fatal(err)
		}
		if s.Index != 1 {
			t.Fatalf("first event index %d, want 1", s.Index)
		}
		break
	}
	cancel()
	if !strings.Contains(buf.String(), "encode sample failed") {
		t.Fatalf("no warning logged: %q", buf.String())
	}
}
