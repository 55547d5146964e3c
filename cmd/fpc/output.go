package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rjboer/gofpc/internal/fpc"
)

// emit writes v as JSON or YAML, or calls text for the text format.
func (c *cli) emit(v any, text func(w io.Writer) error) error {
	switch c.output() {
	case "json":
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(c.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(c.out)
	}
}

// writeTrace prints a trace as two tab-separated columns under a comment
// header naming the axes.
func writeTrace(w io.Writer, tr fpc.Trace) error {
	if _, err := fmt.Fprintf(w, "# %s (%s)\t%s (%s)\n", tr.NameX, tr.UnitX, tr.NameY, tr.UnitY); err != nil {
		return err
	}
	for i := range tr.Y {
		if _, err := fmt.Fprintf(w, "%.10g\t%.8g\n", tr.X[i], tr.Y[i]); err != nil {
			return err
		}
	}
	return nil
}

func writeMap(w io.Writer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s=%v\n", k, m[k]); err != nil {
			return err
		}
	}
	return nil
}
