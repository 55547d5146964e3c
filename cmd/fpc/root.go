package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rjboer/gofpc/internal/config"
	"github.com/rjboer/gofpc/internal/fpc"
	"github.com/rjboer/gofpc/internal/logging"
	"github.com/rjboer/gofpc/internal/scpi"
)

// mockAddress is used with --backend mock when no address is known.
const mockAddress = "mock"

// cli carries the resolved global settings to subcommands.
type cli struct {
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer
	logger logging.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), out: out, errOut: errOut, logger: logging.Nop()}

	root := &cobra.Command{
		Use:   "fpc",
		Short: "Control a Rohde & Schwarz FPC spectrum analyzer",
		Long: `fpc reads traces and frequency settings from an R&S FPC spectrum analyzer
over its SCPI socket.

The instrument address is taken from --address, FPC_ADDRESS, or the config
file (see "fpc config set address=..."), in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.String("address", "", "instrument resource, e.g. TCPIP0::192.168.1.20::inst0::INSTR")
	pf.String("backend", "visa", "instrument backend (visa or mock)")
	pf.Duration("timeout", scpi.DefaultTimeout, "per-operation I/O timeout")
	pf.String("config", "", "config file (default <user config dir>/gofpc/config.json)")
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text or json)")
	pf.StringP("output", "o", "text", "output format (text, json, yaml)")

	c.v.SetEnvPrefix("FPC")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	_ = c.v.BindPFlags(pf)

	root.AddCommand(
		c.idnCmd(),
		c.traceCmd(),
		c.getCmd(),
		c.setCmd(),
		c.configCmd(),
		c.monitorCmd(),
		c.archiveCmd(),
	)
	return root
}

func (c *cli) setup() error {
	level, err := logging.ParseLevel(c.v.GetString("log-level"))
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(c.v.GetString("log-format"))
	if err != nil {
		return err
	}
	c.logger = logging.New(level, format, c.errOut)
	logging.SetDefault(c.logger)

	switch c.output() {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", c.output())
	}
	switch c.backend() {
	case "visa", "mock":
	default:
		return fmt.Errorf("unknown backend %s", c.backend())
	}
	return nil
}

func (c *cli) output() string  { return strings.ToLower(c.v.GetString("output")) }
func (c *cli) backend() string { return strings.ToLower(c.v.GetString("backend")) }

func (c *cli) timeout() time.Duration {
	if d := c.v.GetDuration("timeout"); d > 0 {
		return d
	}
	return scpi.DefaultTimeout
}

func (c *cli) store() (*config.Store, error) {
	return config.Open(c.v.GetString("config"))
}

// openDriver connects to the selected backend. The mock backend accepts
// any address and falls back to a placeholder when none is configured.
func (c *cli) openDriver(ctx context.Context) (*fpc.Driver, error) {
	store, err := c.store()
	if err != nil {
		return nil, err
	}
	opts := &fpc.Options{
		Config:    store,
		Logger:    c.logger,
		Transport: &scpi.Options{Timeout: c.timeout(), Logger: c.logger},
	}
	address := c.v.GetString("address")

	if c.backend() == "mock" {
		opts.Dial = func(context.Context, string) (scpi.Transport, error) {
			return scpi.NewMock(), nil
		}
		d, err := fpc.Open(ctx, address, opts)
		if errors.Is(err, fpc.ErrNoAddress) {
			return fpc.Open(ctx, mockAddress, opts)
		}
		return d, err
	}

	return fpc.Open(ctx, address, opts)
}
