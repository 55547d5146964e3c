package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rjboer/gofpc/internal/app"
	"github.com/rjboer/gofpc/internal/archive"
	"github.com/rjboer/gofpc/internal/config"
	"github.com/rjboer/gofpc/internal/dsp"
	"github.com/rjboer/gofpc/internal/fpc"
	"github.com/rjboer/gofpc/internal/logging"
	"github.com/rjboer/gofpc/internal/render"
	"github.com/rjboer/gofpc/internal/telemetry"
)

func (c *cli) idnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "idn",
		Short: "Print the instrument identification string",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := c.openDriver(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			id, err := d.Identify()
			if err != nil {
				return err
			}
			return c.emit(map[string]string{"idn": id}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, id)
				return err
			})
		},
	}
}

func (c *cli) traceCmd() *cobra.Command {
	var (
		number      int
		memory      bool
		plotPath    string
		archivePath string
	)
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Read a trace without triggering a sweep",
		Long: `Read trace data as currently shown on the instrument. Traces in dBm are
converted to a voltage power spectral density (V^2/Hz across 50 ohm) using
the current resolution bandwidth; other units are passed through.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := c.openDriver(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			src := fpc.Live
			if memory {
				src = fpc.Memory
			}
			tr, err := d.Trace(number, src)
			if err != nil {
				return err
			}

			if plotPath != "" {
				if err := render.Trace(plotPath, tr); err != nil {
					return fmt.Errorf("plot: %w", err)
				}
				c.logger.Info("plot written", logging.Field{Key: "path", Value: plotPath})
			}
			if archivePath != "" {
				store := archive.Open(archivePath)
				defer store.Close()
				id, err := store.Save(cmd.Context(), telemetry.Sample{
					Timestamp: time.Now(),
					Source:    src.String(),
					Trace:     tr,
				})
				if err != nil {
					return fmt.Errorf("archive: %w", err)
				}
				c.logger.Info("trace archived", logging.Field{Key: "id", Value: id})
			}
			return c.emit(tr, func(w io.Writer) error { return writeTrace(w, tr) })
		},
	}
	cmd.Flags().IntVarP(&number, "number", "n", 1, "trace number")
	cmd.Flags().BoolVar(&memory, "memory", false, "read the stored reference trace instead of the live one")
	cmd.Flags().StringVar(&plotPath, "plot", "", "also write a PNG plot to this file")
	cmd.Flags().StringVar(&archivePath, "archive", "", "also store the trace in this SQLite archive")
	return cmd
}

func paramHelp() string {
	var b strings.Builder
	for _, p := range fpc.Params() {
		fmt.Fprintf(&b, "  %-7s %s (Hz)\n", p.String(), p.Description())
	}
	return b.String()
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <param>...",
		Short: "Query frequency settings",
		Long:  "Query one or more settings. Parameters:\n" + paramHelp(),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := make([]fpc.Param, 0, len(args))
			for _, a := range args {
				p, err := fpc.ParseParam(a)
				if err != nil {
					return err
				}
				params = append(params, p)
			}

			d, err := c.openDriver(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			values := make(map[string]fpc.Value, len(params))
			for _, p := range params {
				v, err := d.Get(p)
				if err != nil {
					return err
				}
				values[p.String()] = v
			}
			return c.emit(values, func(w io.Writer) error {
				for _, p := range params {
					var err error
					if len(params) == 1 {
						_, err = fmt.Fprintln(w, values[p.String()])
					} else {
						_, err = fmt.Fprintf(w, "%s=%s\n", p, values[p.String()])
					}
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func (c *cli) setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <param> <value>",
		Short: "Change a frequency setting",
		Long: "Write a setting in Hz. The value is not read back. Parameters:\n" + paramHelp() +
			"\nNon-numeric values (e.g. AUTO) are sent verbatim.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := fpc.ParseParam(args[0])
			if err != nil {
				return err
			}
			v, err := parseSetting(args[1])
			if err != nil {
				return err
			}

			d, err := c.openDriver(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.Set(p, v); err != nil {
				return err
			}
			c.logger.Info("setting written", logging.Field{Key: "param", Value: p.String()}, logging.Field{Key: "value", Value: v.String()})
			return nil
		},
	}
}

// parseSetting accepts plain numbers, SI suffixed frequencies such as
// "1.5GHz", "10 mhz" or "100 k", and bare words which are sent unchanged.
// Every setting is a frequency, so a lowercase "m" before "Hz" means mega;
// a bare "m" suffix is rejected as ambiguous.
func parseSetting(s string) (fpc.Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fpc.Value{}, fmt.Errorf("empty value")
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return fpc.Number(v), nil
	}
	if c := s[0]; !(c >= '0' && c <= '9' || c == '-' || c == '+' || c == '.') {
		return fpc.Raw(s), nil
	}

	num := s
	hz := len(num) >= 2 && strings.EqualFold(num[len(num)-2:], "hz")
	if hz {
		num = strings.TrimSpace(num[:len(num)-2])
	}
	if strings.HasSuffix(num, "m") {
		if !hz {
			return fpc.Value{}, fmt.Errorf("ambiguous prefix in %q, use M or MHz", s)
		}
		num = num[:len(num)-1] + "M"
	}
	if v, unit, err := humanize.ParseSI(num); err == nil && unit == "" {
		return fpc.Number(v), nil
	}
	return fpc.Value{}, fmt.Errorf("invalid number %q", s)
}

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change persisted defaults",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the config file",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			store, err := c.store()
			if err != nil {
				return err
			}
			m, err := store.Load()
			if err != nil {
				return err
			}
			return c.emit(m, func(w io.Writer) error { return writeMap(w, m) })
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set key=value...",
		Short: "Merge keys into the config file",
		Long: `Merge keys into the config file; existing keys not named are kept.
The "` + config.AddressKey + `" key sets the default instrument address.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			update := make(map[string]any, len(args))
			for _, a := range args {
				k, v, ok := strings.Cut(a, "=")
				if !ok || strings.TrimSpace(k) == "" {
					return fmt.Errorf("expected key=value, got %q", a)
				}
				update[strings.TrimSpace(k)] = v
			}
			store, err := c.store()
			if err != nil {
				return err
			}
			if err := store.Merge(update); err != nil {
				return err
			}
			c.logger.Info("config updated", logging.Field{Key: "path", Value: store.Path})
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			store, err := c.store()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.out, store.Path)
			return err
		},
	})
	return cmd
}

func (c *cli) monitorCmd() *cobra.Command {
	var (
		cfg         app.Config
		memory      bool
		archivePath string
		httpAddr    string
		history     int
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Acquire traces periodically",
		Long: `Acquire a trace every --interval and print a peak summary. Failed
acquisitions are retried with exponential backoff up to --retries times.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			d, err := c.openDriver(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			reporters := telemetry.MultiReporter{
				telemetry.NewLogReporter(c.logger),
				telemetry.ReporterFunc(c.printSample),
			}
			if archivePath != "" {
				store := archive.Open(archivePath)
				defer store.Close()
				reporters = append(reporters, store)
			}
			if httpAddr != "" {
				hub := telemetry.NewHub(history, c.logger)
				reporters = append(reporters, hub)
				srv := telemetry.NewServer(httpAddr, hub, c.logger)
				go func() {
					if err := srv.Start(ctx); err != nil {
						c.logger.Error("http server", logging.Field{Key: "error", Value: err.Error()})
					}
				}()
			}

			if memory {
				cfg.Source = fpc.Memory
			}
			return app.NewMonitor(d, reporters, c.logger, cfg).Run(ctx)
		},
	}
	f := cmd.Flags()
	f.DurationVar(&cfg.Interval, "interval", time.Second, "time between acquisitions")
	f.IntVar(&cfg.Count, "count", 0, "stop after this many traces (0 = until interrupted)")
	f.IntVarP(&cfg.TraceNumber, "number", "n", 1, "trace number")
	f.IntVar(&cfg.MaxRetries, "retries", 3, "retries per failed acquisition")
	f.DurationVar(&cfg.RetryInterval, "retry-interval", 500*time.Millisecond, "initial retry backoff")
	f.IntVar(&cfg.WarmupTraces, "warmup", 0, "traces to read and discard first")
	f.BoolVar(&memory, "memory", false, "read the stored reference trace")
	f.StringVar(&archivePath, "archive", "", "store every trace in this SQLite archive")
	f.StringVar(&httpAddr, "http", "", "serve recent traces over HTTP on this address, e.g. :8080")
	f.IntVar(&history, "history", 50, "traces kept for --http")
	return cmd
}

func (c *cli) printSample(_ context.Context, s telemetry.Sample) error {
	summary := sampleSummary{
		Index:  s.Index,
		Time:   s.Timestamp,
		Points: s.Trace.Len(),
		UnitY:  s.Trace.UnitY,
	}
	if _, freq, level, ok := dsp.Peak(s.Trace.X, s.Trace.Y); ok {
		summary.PeakHz, summary.PeakLevel = freq, level
	}
	switch c.output() {
	case "json", "yaml":
		return c.emit(summary, nil)
	}
	_, err := fmt.Fprintf(c.out, "%d\t%s\t%s\t%.4g %s\n", summary.Index, summary.Time.Format(time.RFC3339),
		telemetry.FormatHz(summary.PeakHz), summary.PeakLevel, summary.UnitY)
	return err
}

type sampleSummary struct {
	Index     int       `json:"index" yaml:"index"`
	Time      time.Time `json:"time" yaml:"time"`
	Points    int       `json:"points" yaml:"points"`
	PeakHz    float64   `json:"peak_hz" yaml:"peak_hz"`
	PeakLevel float64   `json:"peak_level" yaml:"peak_level"`
	UnitY     string    `json:"unit_y" yaml:"unit_y"`
}

func (c *cli) archiveCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect a trace archive",
	}
	cmd.PersistentFlags().StringVar(&path, "db", "traces.db", "archive database file")

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List archived traces, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := archive.Open(path)
			defer store.Close()
			sums, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return c.emit(sums, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTAKEN\tSOURCE\tPOINTS\tSTART\tSTOP\tUNIT")
				for _, s := range sums {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n", s.ID, humanize.Time(s.Timestamp), s.Source,
						s.Points, telemetry.FormatHz(s.StartHz), telemetry.FormatHz(s.StopHz), s.UnitY)
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of traces (0 = all)")

	var plotPath string
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print an archived trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := archive.Open(path)
			defer store.Close()
			rec, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if plotPath != "" {
				if err := render.Trace(plotPath, rec.Trace); err != nil {
					return fmt.Errorf("plot: %w", err)
				}
			}
			return c.emit(rec, func(w io.Writer) error { return writeTrace(w, rec.Trace) })
		},
	}
	show.Flags().StringVar(&plotPath, "plot", "", "also write a PNG plot to this file")

	cmd.AddCommand(list, show)
	return cmd
}
