// Package fpc drives Rohde & Schwarz FPC series spectrum analyzers over
// an SCPI transport.
package fpc

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/rjboer/gofpc/internal/config"
	"github.com/rjboer/gofpc/internal/dsp"
	"github.com/rjboer/gofpc/internal/logging"
	"github.com/rjboer/gofpc/internal/scpi"
)

// Trace axis metadata.
const (
	FrequencyName = "Frequency"
	FrequencyUnit = "Hz"
	AmplitudeName = "$S_V$"
	PSDUnit       = "V$^2$/Hz"
)

const (
	traceQuery    = "FORMat REAL,32;:TRACe:DATA%s? TRACE%d"
	settingsQuery = ":FREQuency:STARt?;:FREQuency:STOP?;:UNIT:POWer?;:BWIDth:RESolution?"
	idnQuery      = "*IDN?"
)

// ErrNoAddress is returned by Open when no address was given and none is
// persisted in the configuration.
var ErrNoAddress = errors.New("fpc: an instrument address must be supplied or set in the config file")

// DialFunc opens the transport for a resource name.
type DialFunc func(ctx context.Context, address string) (scpi.Transport, error)

// Options configures a Driver. The zero value is usable.
type Options struct {
	// Config supplies the default address when Open gets none.
	Config *config.Store
	// Dial opens the transport. Defaults to a raw SCPI socket.
	Dial DialFunc
	// Transport options for the default Dial.
	Transport *scpi.Options
	Logger    logging.Logger
}

func (opts *Options) logger() logging.Logger {
	if opts == nil || opts.Logger == nil {
		return logging.Default()
	}
	return opts.Logger
}

func (opts *Options) dial() DialFunc {
	if opts != nil && opts.Dial != nil {
		return opts.Dial
	}
	var topts *scpi.Options
	if opts != nil {
		topts = opts.Transport
	}
	return func(ctx context.Context, address string) (scpi.Transport, error) {
		return scpi.Dial(ctx, address, topts)
	}
}

// Driver talks to one FPC. It owns its transport and is not safe for
// concurrent use.
type Driver struct {
	comm    scpi.Transport
	address string
	logger  logging.Logger
}

// Open connects to the analyzer at address. An empty address is looked up
// in opts.Config; if that yields nothing Open fails with ErrNoAddress
// before any connection attempt. Transport errors are returned as-is.
func Open(ctx context.Context, address string, opts *Options) (*Driver, error) {
	if address == "" {
		if opts == nil || opts.Config == nil {
			return nil, ErrNoAddress
		}
		addr, ok, err := opts.Config.Address()
		if err != nil {
			return nil, errors.Wrap(err, "fpc: load default address")
		}
		if !ok {
			return nil, ErrNoAddress
		}
		address = addr
	}

	comm, err := opts.dial()(ctx, address)
	if err != nil {
		return nil, err
	}
	d := New(comm, opts)
	d.address = address
	d.logger = d.logger.With(logging.Field{Key: "address", Value: address})
	d.logger.Info("connected")
	return d, nil
}

// New wraps an already open transport.
func New(comm scpi.Transport, opts *Options) *Driver {
	return &Driver{
		comm:   comm,
		logger: opts.logger().With(logging.Field{Key: "subsystem", Value: "fpc"}),
	}
}

// Address returns the resource name used by Open, if any.
func (d *Driver) Address() string { return d.address }

// Close releases the transport.
func (d *Driver) Close() error { return d.comm.Close() }

// Identify returns the trimmed *IDN? response.
func (d *Driver) Identify() (string, error) {
	resp, err := d.comm.Query(idnQuery)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp), nil
}

// Trace reads trace n (1 when n < 1) from the instrument without starting
// or stopping a sweep. Samples reported in dBm are converted to V^2/Hz
// across 50 ohm using the current resolution bandwidth; any other unit is
// passed through and recorded verbatim.
func (d *Driver) Trace(n int, src Source) (Trace, error) {
	if n < 1 {
		n = 1
	}
	kind := ""
	if src == Memory {
		kind = ":MEMory"
	}

	y, err := d.comm.QueryBinaryFloat32(fmt.Sprintf(traceQuery, kind, n))
	if err != nil {
		return Trace{}, err
	}

	resp, err := d.comm.Query(settingsQuery)
	if err != nil {
		return Trace{}, err
	}
	fields := strings.Split(resp, ";")
	if len(fields) != 4 {
		return Trace{}, errors.Errorf("fpc: expected 4 fields in %q, got %d", resp, len(fields))
	}
	start, err := parseFloat(fields[0])
	if err != nil {
		return Trace{}, errors.Wrap(err, "fpc: start frequency")
	}
	stop, err := parseFloat(fields[1])
	if err != nil {
		return Trace{}, errors.Wrap(err, "fpc: stop frequency")
	}
	unit := fields[2]

	tr := Trace{
		X: dsp.Linspace(start, stop, len(y)),
		Metadata: Metadata{
			NameX: FrequencyName,
			UnitX: FrequencyUnit,
			NameY: AmplitudeName,
		},
	}

	if strings.EqualFold(strings.TrimSpace(unit), "dbm") {
		rbw, err := parseFloat(fields[3])
		if err != nil {
			return Trace{}, errors.Wrap(err, "fpc: resolution bandwidth")
		}
		tr.Y = dsp.DBmToPSD(y, rbw)
		tr.UnitY = PSDUnit
	} else {
		tr.Y = y
		tr.UnitY = unit
	}

	d.logger.Debug("trace acquired",
		logging.Field{Key: "trace", Value: n},
		logging.Field{Key: "source", Value: src.String()},
		logging.Field{Key: "points", Value: len(y)},
		logging.Field{Key: "unit", Value: unit},
	)
	return tr, nil
}

// Set writes v to p without reading it back.
func (d *Driver) Set(p Param, v Value) error {
	if !p.valid() {
		return errors.Errorf("fpc: unknown parameter %d", int(p))
	}
	return d.comm.Write(p.Header() + " " + v.String())
}

// Get queries p. A reply that does not parse as a number is returned as
// Raw instead of failing.
func (d *Driver) Get(p Param) (Value, error) {
	if !p.valid() {
		return Value{}, errors.Errorf("fpc: unknown parameter %d", int(p))
	}
	resp, err := d.comm.Query(p.Header() + "?")
	if err != nil {
		return Value{}, err
	}
	v := parseValue(resp)
	if v.IsRaw() {
		d.logger.Debug("non-numeric reply", logging.Field{Key: "param", Value: p.String()}, logging.Field{Key: "resp", Value: v.String()})
	}
	return v, nil
}

// SetStartFreq sets the start frequency (Hz).
func (d *Driver) SetStartFreq(hz float64) error { return d.Set(StartFreq, Number(hz)) }

// StartFreq reads the start frequency (Hz).
func (d *Driver) StartFreq() (Value, error) { return d.Get(StartFreq) }

// SetStopFreq sets the stop frequency (Hz).
func (d *Driver) SetStopFreq(hz float64) error { return d.Set(StopFreq, Number(hz)) }

// StopFreq reads the stop frequency (Hz).
func (d *Driver) StopFreq() (Value, error) { return d.Get(StopFreq) }

// SetCenterFreq sets the center frequency (Hz).
func (d *Driver) SetCenterFreq(hz float64) error { return d.Set(CenterFreq, Number(hz)) }

// CenterFreq reads the center frequency (Hz).
func (d *Driver) CenterFreq() (Value, error) { return d.Get(CenterFreq) }

// SetSpan sets the span (Hz).
func (d *Driver) SetSpan(hz float64) error { return d.Set(Span, Number(hz)) }

// Span reads the span (Hz).
func (d *Driver) Span() (Value, error) { return d.Get(Span) }

// SetRBW sets the resolution bandwidth (Hz).
func (d *Driver) SetRBW(hz float64) error { return d.Set(RBW, Number(hz)) }

// RBW reads the resolution bandwidth (Hz).
func (d *Driver) RBW() (Value, error) { return d.Get(RBW) }

// SetVBW sets the video bandwidth (Hz).
func (d *Driver) SetVBW(hz float64) error { return d.Set(VBW, Number(hz)) }

// VBW reads the video bandwidth (Hz).
func (d *Driver) VBW() (Value, error) { return d.Get(VBW) }

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
