package dsp

import "gonum.org/v1/gonum/floats"

// Linspace returns n evenly spaced values from start to stop inclusive.
// n <= 0 yields an empty slice and n == 1 yields []float64{start}.
func Linspace(start, stop float64, n int) []float64 {
	switch {
	case n <= 0:
		return []float64{}
	case n == 1:
		return []float64{start}
	}
	return floats.Span(make([]float64, n), start, stop)
}
