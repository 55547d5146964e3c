package fpc

import (
	"fmt"
	"strings"
)

// Param identifies one of the scalar instrument settings. All are in Hz.
type Param int

const (
	StartFreq Param = iota
	StopFreq
	CenterFreq
	Span
	RBW
	VBW
)

var params = [...]struct {
	name   string
	header string
	desc   string
}{
	StartFreq:  {"start", "FREQuency:STARt", "start frequency"},
	StopFreq:   {"stop", "FREQuency:STOP", "stop frequency"},
	CenterFreq: {"center", "FREQuency:CENTer", "center frequency"},
	Span:       {"span", "FREQuency:SPAN", "span"},
	RBW:        {"rbw", "BWIDth:RESolution", "resolution bandwidth"},
	VBW:        {"vbw", "BANDwidth:VIDeo", "video bandwidth"},
}

// Params lists every parameter in declaration order.
func Params() []Param {
	return []Param{StartFreq, StopFreq, CenterFreq, Span, RBW, VBW}
}

func (p Param) valid() bool { return p >= 0 && int(p) < len(params) }

// String returns the short CLI name, e.g. "rbw".
func (p Param) String() string {
	if !p.valid() {
		return fmt.Sprintf("Param(%d)", int(p))
	}
	return params[p].name
}

// Description returns a human readable name, e.g. "resolution bandwidth".
func (p Param) Description() string {
	if !p.valid() {
		return p.String()
	}
	return params[p].desc
}

// Header returns the SCPI header used to set and (with '?') query p.
func (p Param) Header() string {
	if !p.valid() {
		return ""
	}
	return params[p].header
}

// ParseParam resolves a CLI name such as "start" or "vbw".
func ParseParam(s string) (Param, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, d := range params {
		if d.name == s {
			return Param(i), nil
		}
	}
	switch s {
	case "cent", "centre":
		return CenterFreq, nil
	case "res", "resolution":
		return RBW, nil
	case "video":
		return VBW, nil
	}
	return 0, fmt.Errorf("unknown parameter %q", s)
}
