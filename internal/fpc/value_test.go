package fpc

import (
	"encoding/json"
	"math"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in     string
		raw    bool
		num    float64
		string string
	}{
		{"100000", false, 1e5, "100000"},
		{" 1.5E+08\r\n", false, 1.5e8, "1.5e+08"},
		{"-3", false, -3, "-3"},
		{"AUTO\n", true, 0, "AUTO"},
		{"", true, 0, ""},
	}
	for _, tt := range tests {
		v := parseValue(tt.in)
		if v.IsRaw() != tt.raw {
			t.Errorf("parseValue(%q).IsRaw() = %v", tt.in, v.IsRaw())
		}
		if f, ok := v.Float(); ok != !tt.raw || f != tt.num {
			t.Errorf("parseValue(%q).Float() = %v, %v", tt.in, f, ok)
		}
		if v.String() != tt.string {
			t.Errorf("parseValue(%q).String() = %q", tt.in, v.String())
		}
	}
}

func TestValueMarshal(t *testing.T) {
	tests := []struct {
		v    Value
		json string
	}{
		{Number(2.5e6), "2.5e+06"},
		{Number(100), "100"},
		{Raw(`say "hi"`), `"say \"hi\""`},
		{Number(math.NaN()), `"NaN"`},
	}
	for _, tt := range tests {
		b, err := json.Marshal(tt.v)
		if err != nil {
			t.Fatalf("json %v: %v", tt.v, err)
		}
		if string(b) != tt.json {
			t.Errorf("json(%v) = %s, want %s", tt.v, b, tt.json)
		}
	}

	b, err := yaml.Marshal(map[string]Value{"rbw": Number(1000), "vbw": Raw("AUTO")})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "rbw: 1000\nvbw: AUTO\n" {
		t.Fatalf("yaml = %q", b)
	}
}

func TestParseParam(t *testing.T) {
	tests := map[string]Param{
		"start":  StartFreq,
		"STOP":   StopFreq,
		"center": CenterFreq,
		"centre": CenterFreq,
		"span":   Span,
		" rbw ":  RBW,
		"res":    RBW,
		"vbw":    VBW,
		"video":  VBW,
	}
	for in, want := range tests {
		got, err := ParseParam(in)
		if err != nil || got != want {
			t.Errorf("ParseParam(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseParam("attenuation"); err == nil {
		t.Fatal("expected error for unknown parameter")
	}
}

func TestParamTable(t *testing.T) {
	if len(Params()) != 6 {
		t.Fatalf("Params() = %v", Params())
	}
	for _, p := range Params() {
		if p.Header() == "" || p.Description() == "" {
			t.Errorf("%v has empty header or description", p)
		}
		back, err := ParseParam(p.String())
		if err != nil || back != p {
			t.Errorf("ParseParam(%q) = %v, %v", p.String(), back, err)
		}
	}
	if Param(42).Header() != "" || Param(42).String() != "Param(42)" {
		t.Fatal("out of range param not handled")
	}
}
