package dsp

import (
	"math"
	"testing"
)

func TestLinspace(t *testing.T) {
	got := Linspace(100e6, 200e6, 5)
	want := []float64{100e6, 125e6, 150e6, 175e6, 200e6}
	if len(got) != len(want) {
		t.Fatalf("unexpected length: %d", len(got))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-6 {
			t.Fatalf("index %d expected %.1f got %.6f", i, want[i], got[i])
		}
	}
	if got[0] != 100e6 || got[4] != 200e6 {
		t.Fatalf("endpoints must be exact: %v", got)
	}
}

func TestLinspaceDegenerate(t *testing.T) {
	if got := Linspace(1, 2, 0); len(got) != 0 || got == nil {
		t.Fatalf("n=0 must give an empty, non-nil slice: %#v", got)
	}
	if got := Linspace(1, 2, -3); len(got) != 0 {
		t.Fatalf("negative n must give an empty slice: %v", got)
	}
	if got := Linspace(7, 9, 1); len(got) != 1 || got[0] != 7 {
		t.Fatalf("n=1 must give [start]: %v", got)
	}
	if got := Linspace(3, 3, 3); got[0] != 3 || got[1] != 3 || got[2] != 3 {
		t.Fatalf("flat span: %v", got)
	}
}

func TestDBmToPSDExact(t *testing.T) {
	in := []float64{-50, -90.25, 0, 13.5}
	rbw := 1000.0
	got := DBmToPSD(in, rbw)
	for i, y := range in {
		want := 50 * 0.001 * math.Pow(10, y/10) / rbw
		if got[i] != want {
			t.Fatalf("sample %d: got %g want %g", i, got[i], want)
		}
		if alt := 0.05 * math.Pow(10, y/10) / rbw; got[i] != alt {
			t.Fatalf("sample %d: got %g, 0.05 form %g", i, got[i], alt)
		}
	}
}

func TestDBmToPSDExample(t *testing.T) {
	got := DBmToPSD([]float64{-50}, 1000)
	if math.Abs(got[0]-5e-10) > 1e-24 {
		t.Fatalf("expected 5e-10 got %g", got[0])
	}
	if len(DBmToPSD(nil, 1000)) != 0 {
		t.Fatalf("empty input must give empty output")
	}
}

func TestPeakAndMean(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	y := []float64{-90, -30, -60, -95}
	idx, f, lvl, ok := Peak(x, y)
	if !ok || idx != 1 || f != 2 || lvl != -30 {
		t.Fatalf("Peak = %d %v %v %v", idx, f, lvl, ok)
	}
	if _, _, _, ok := Peak(nil, nil); ok {
		t.Fatalf("empty trace has no peak")
	}
	if _, _, _, ok := Peak(x, y[:2]); ok {
		t.Fatalf("length mismatch has no peak")
	}
	if m := Mean(y); m != -68.75 {
		t.Fatalf("Mean = %v", m)
	}
	if !math.IsNaN(Mean(nil)) {
		t.Fatalf("Mean of empty trace must be NaN")
	}
}
