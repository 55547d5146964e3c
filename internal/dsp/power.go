package dsp

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// ReferenceImpedance is the analyzer input impedance in ohms.
	ReferenceImpedance = 50.0
	// milliwatt converts mW to W.
	milliwatt = 0.001
)

// DBmToPSD converts samples in dBm measured with resolution bandwidth rbw
// (Hz) to a voltage power spectral density in V^2/Hz across
// ReferenceImpedance:
//
//	psd = 50 * 0.001 * 10^(dbm/10) / rbw
func DBmToPSD(dbm []float64, rbw float64) []float64 {
	out := make([]float64, len(dbm))
	for i, v := range dbm {
		out[i] = ReferenceImpedance * milliwatt * math.Pow(10, v/10) / rbw
	}
	return out
}

// Peak returns the index and coordinates of the largest sample of y.
// ok is false for an empty trace or mismatched lengths.
func Peak(x, y []float64) (idx int, freq, level float64, ok bool) {
	if len(y) == 0 || len(x) != len(y) {
		return 0, 0, 0, false
	}
	idx = floats.MaxIdx(y)
	return idx, x[idx], y[idx], true
}

// Mean returns the arithmetic mean of y, or NaN when y is empty.
func Mean(y []float64) float64 {
	if len(y) == 0 {
		return math.NaN()
	}
	return stat.Mean(y, nil)
}
