package fpc

// Source selects which trace data is read.
type Source int

const (
	// Live reads the currently displayed trace.
	Live Source = iota
	// Memory reads the reference stored in trace memory.
	Memory
)

func (s Source) String() string {
	if s == Memory {
		return "memory"
	}
	return "live"
}

// Metadata names and units of the trace axes.
type Metadata struct {
	NameX string `json:"name_x" yaml:"name_x"`
	UnitX string `json:"unit_x" yaml:"unit_x"`
	NameY string `json:"name_y" yaml:"name_y"`
	UnitY string `json:"unit_y" yaml:"unit_y"`
}

// Trace is a frequency axis with one amplitude per frequency.
// len(X) == len(Y) always holds.
type Trace struct {
	X []float64 `json:"x" yaml:"x"`
	Y []float64 `json:"y" yaml:"y"`
	Metadata `yaml:",inline"`
}

// Unpack returns the trace as (x, y, metadata).
func (t Trace) Unpack() ([]float64, []float64, Metadata) {
	return t.X, t.Y, t.Metadata
}

// Map returns the keyed form: x, y, name_x, unit_x, name_y, unit_y.
func (t Trace) Map() map[string]any {
	return map[string]any{
		"x":      t.X,
		"y":      t.Y,
		"name_x": t.NameX,
		"unit_x": t.UnitX,
		"name_y": t.NameY,
		"unit_y": t.UnitY,
	}
}

// Len returns the number of points.
func (t Trace) Len() int { return len(t.Y) }
