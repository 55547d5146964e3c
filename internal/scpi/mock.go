package scpi

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
)

// Mock simulates the SCPI surface of an FPC spectrum analyzer. Parameter
// writes are stored and read back, frequency settings stay coupled the
// way the instrument keeps them (start/stop vs. center/span), and traces
// are synthesized as a noise floor with one tone.
//
// Headers are matched in short form and in any case, so "FREQuency:STARt",
// "freq:star" and "FREQ:STAR" address the same setting. Every node of a
// ';'-joined command is treated as rooted.
type Mock struct {
	mu sync.Mutex

	// Identity is returned for *IDN?.
	Identity string
	// Points is the number of samples per trace.
	Points int
	// ToneFreq and ToneLevel (dBm) place the synthesized carrier.
	ToneFreq  float64
	ToneLevel float64
	// NoiseFloor is the mean displayed noise level in dBm.
	NoiseFloor float64
	// Err, when set, is returned by every operation.
	Err error

	start, stop float64
	rbw, vbw    float64
	unit        string
	format      string
	// raw holds values written as non-numeric strings; they are echoed
	// back verbatim on query.
	raw      map[string]string
	memory   []float32
	commands []string
	seed     int64
	closed   bool
}

var _ Transport = (*Mock)(nil)

// NewMock returns a simulated FPC tuned to 100–200 MHz with a -30 dBm
// tone at 150 MHz.
func NewMock() *Mock {
	return &Mock{
		Identity:   "Rohde&Schwarz,FPC1500,1328.6660K03/000000,V1.70",
		Points:     201,
		ToneFreq:   150e6,
		ToneLevel:  -30,
		NoiseFloor: -95,
		start:      100e6,
		stop:       200e6,
		rbw:        100e3,
		vbw:        100e3,
		unit:       "DBM",
		format:     "ASC",
		raw:        make(map[string]string),
		seed:       1,
	}
}

// Commands returns every command received, in order.
func (m *Mock) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

// StoreReference copies the current live trace into trace memory.
func (m *Mock) StoreReference() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memory = m.liveTrace()
}

// SetUnit changes the reported power unit (e.g. "DBM", "DBMV", "W").
func (m *Mock) SetUnit(unit string) {
	m.mu.Lock()
	m.unit = unit
	m.mu.Unlock()
}

func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Mock) Write(cmd string) error {
	_, _, err := m.exec(cmd)
	return err
}

func (m *Mock) Query(cmd string) (string, error) {
	resp, _, err := m.exec(cmd)
	if err != nil {
		return "", err
	}
	return strings.Join(resp, ";"), nil
}

func (m *Mock) QueryBinaryFloat32(cmd string) ([]float64, error) {
	_, block, err := m.exec(cmd)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, fmt.Errorf("%w: %q did not return a block", ErrBlockFormat, cmd)
	}
	out := make([]float64, len(block))
	for i, v := range block {
		out[i] = float64(v)
	}
	return out, nil
}

func (m *Mock) exec(cmd string) ([]string, []float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, nil, m.Err
	}
	if m.closed {
		return nil, nil, ErrClosed
	}
	m.commands = append(m.commands, cmd)

	var (
		resp  []string
		block []float32
	)
	for _, node := range strings.Split(strings.TrimSpace(cmd), ";") {
		node = strings.TrimSpace(node)
		if node == "" {
			continue
		}
		header, arg, _ := strings.Cut(node, " ")
		header = shortHeader(header)
		arg = strings.TrimSpace(arg)

		if strings.HasSuffix(header, "?") {
			r, b, err := m.query(strings.TrimSuffix(header, "?"), arg)
			if err != nil {
				return nil, nil, err
			}
			if b != nil {
				block = b
				continue
			}
			resp = append(resp, r)
			continue
		}
		if err := m.set(header, arg); err != nil {
			return nil, nil, err
		}
	}
	return resp, block, nil
}

func (m *Mock) query(header, arg string) (string, []float32, error) {
	if v, ok := m.raw[header]; ok {
		return v, nil, nil
	}
	switch header {
	case "*IDN":
		return m.Identity, nil, nil
	case "FREQ:STAR":
		return formatNumber(m.start), nil, nil
	case "FREQ:STOP":
		return formatNumber(m.stop), nil, nil
	case "FREQ:CENT":
		return formatNumber((m.start + m.stop) / 2), nil, nil
	case "FREQ:SPAN":
		return formatNumber(m.stop - m.start), nil, nil
	case "BAND:RES":
		return formatNumber(m.rbw), nil, nil
	case "BAND:VID":
		return formatNumber(m.vbw), nil, nil
	case "UNIT:POW":
		return m.unit, nil, nil
	case "FORM":
		return m.format, nil, nil
	case "TRAC:DATA", "TRAC:DATA:MEM":
		if m.format != "REAL,32" {
			return "", nil, fmt.Errorf("%w: trace format is %s", ErrBlockFormat, m.format)
		}
		if _, err := traceNumber(arg); err != nil {
			return "", nil, err
		}
		if header == "TRAC:DATA:MEM" {
			if m.memory == nil {
				m.memory = m.floorTrace()
			}
			return "", append([]float32{}, m.memory...), nil
		}
		return "", m.liveTrace(), nil
	}
	return "", nil, fmt.Errorf("scpi mock: undefined header %q", header)
}

func (m *Mock) set(header, arg string) error {
	if header == "FORM" {
		m.format = strings.ToUpper(strings.ReplaceAll(arg, " ", ""))
		return nil
	}
	if header == "UNIT:POW" {
		m.unit = strings.ToUpper(arg)
		return nil
	}

	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		switch header {
		case "FREQ:STAR", "FREQ:STOP", "FREQ:CENT", "FREQ:SPAN", "BAND:RES", "BAND:VID":
			m.raw[header] = arg
			return nil
		}
		return fmt.Errorf("scpi mock: undefined header %q", header)
	}
	delete(m.raw, header)

	center, span := (m.start+m.stop)/2, m.stop-m.start
	switch header {
	case "FREQ:STAR":
		m.start = v
	case "FREQ:STOP":
		m.stop = v
	case "FREQ:CENT":
		m.start, m.stop = v-span/2, v+span/2
	case "FREQ:SPAN":
		m.start, m.stop = center-v/2, center+v/2
	case "BAND:RES":
		m.rbw = v
	case "BAND:VID":
		m.vbw = v
	default:
		return fmt.Errorf("scpi mock: undefined header %q", header)
	}
	return nil
}

func (m *Mock) floorTrace() []float32 {
	out := make([]float32, m.Points)
	for i := range out {
		out[i] = float32(m.NoiseFloor)
	}
	return out
}

func (m *Mock) liveTrace() []float32 {
	n := m.Points
	out := make([]float32, n)
	rng := rand.New(rand.NewSource(m.seed))
	m.seed++
	rbw := m.rbw
	if rbw <= 0 {
		rbw = 1
	}
	for i := range out {
		f := m.start
		if n > 1 {
			f += (m.stop - m.start) * float64(i) / float64(n-1)
		}
		noise := m.NoiseFloor + rng.NormFloat64()
		// Gaussian RBW filter: -3 dB at +-rbw/2.
		d := (f - m.ToneFreq) / rbw
		tone := m.ToneLevel - 12*d*d
		out[i] = float32(math.Max(noise, tone))
	}
	return out
}

// shortHeader reduces a SCPI header to upper-case short form, e.g.
// ":BWIDth:RESolution?" -> "BAND:RES?".
func shortHeader(h string) string {
	query := strings.HasSuffix(h, "?")
	h = strings.TrimPrefix(strings.TrimSuffix(h, "?"), ":")
	nodes := strings.Split(h, ":")
	for i, n := range nodes {
		n = strings.ToUpper(n)
		if s, ok := shortForms[n]; ok {
			n = s
		}
		nodes[i] = n
	}
	h = strings.Join(nodes, ":")
	if query {
		h += "?"
	}
	return h
}

var shortForms = map[string]string{
	"FREQUENCY":  "FREQ",
	"START":      "STAR",
	"CENTER":     "CENT",
	"BANDWIDTH":  "BAND",
	"BWIDTH":     "BAND",
	"BWID":       "BAND",
	"RESOLUTION": "RES",
	"VIDEO":      "VID",
	"TRACE":      "TRAC",
	"MEMORY":     "MEM",
	"FORMAT":     "FORM",
	"POWER":      "POW",
}

func traceNumber(arg string) (int, error) {
	if arg == "" {
		return 1, nil
	}
	s := strings.ToUpper(arg)
	s = strings.TrimPrefix(s, "TRACE")
	s = strings.TrimPrefix(s, "TRAC")
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 6 {
		return 0, fmt.Errorf("scpi mock: bad trace selector %q", arg)
	}
	return n, nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
