// Command smdfu updates a device running the serial modem application over
// its AT command channel.
//
// Usage:
//
//	smdfu --port /dev/ttyACM0 --baudrate 115200 --ping
//	smdfu --port /dev/ttyACM0 --baudrate 115200 --reset
//	smdfu --port /dev/ttyACM0 --baudrate 115200 --modem-reset
//	smdfu --port /dev/ttyACM0 --baudrate 115200 --type application --file app_update.bin
//	smdfu --port /dev/ttyACM0 --baudrate 115200 --type modem-delta --file mfw_delta.bin
//	smdfu --port /dev/ttyACM0 --baudrate 115200 --type modem-full --file mfw_full.cbor
//	smdfu --list-ports
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/moffa90/go-atdfu/config"
	"github.com/moffa90/go-atdfu/dfu"
	"github.com/moffa90/go-atdfu/firmware"
	"github.com/moffa90/go-atdfu/logging"
	"github.com/moffa90/go-atdfu/protocol"
	"github.com/moffa90/go-atdfu/transport"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", describe(err))
		os.Exit(1)
	}
}

// options holds the flags that select what to do. Port, baud rate and
// tuning flags are read through config.Load.
type options struct {
	configPath string
	file       string
	dfuType    string
	ping       bool
	reset      bool
	modemReset bool
	listPorts  bool
}

func newFlagSet(opts *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("smdfu", pflag.ContinueOnError)
	fs.SortFlags = false

	fs.String("port", "", "serial port, e.g. /dev/ttyACM0 or COM3")
	fs.Int("baudrate", 115200, "baud rate")
	fs.StringVar(&opts.file, "file", "", "firmware file (.bin for application/modem-delta, signed .cbor for modem-full)")
	fs.StringVar(&opts.dfuType, "type", "", "DFU type: application, modem-delta or modem-full")
	fs.BoolVar(&opts.ping, "ping", false, "ping the device (AT)")
	fs.BoolVar(&opts.reset, "reset", false, "reset the device (AT#XRESET)")
	fs.BoolVar(&opts.modemReset, "modem-reset", false, "reset the modem (AT#XMODEMRESET)")
	fs.BoolVar(&opts.listPorts, "list-ports", false, "list serial ports and exit")

	fs.Int("chunk-size", firmware.DefaultChunkSize, "bytes per write command")
	fs.Int("retries", 3, "attempts per chunk")
	fs.String("base-address", "0", "load address of a raw image")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", "console", "log format: console or json")
	fs.String("log-file", "", "also write logs to this rolling file")
	fs.StringVar(&opts.configPath, "config", "", "config file (yaml, toml or json)")

	return fs
}

// validate enforces that exactly one action is selected.
func (o options) validate() error {
	utilities := 0
	for _, set := range []bool{o.ping, o.reset, o.modemReset} {
		if set {
			utilities++
		}
	}

	if utilities > 0 {
		if o.file != "" || o.dfuType != "" {
			return errors.New("--ping/--reset/--modem-reset cannot be combined with --file or --type")
		}
		if utilities > 1 {
			return errors.New("--ping, --reset and --modem-reset cannot be combined")
		}
		return nil
	}

	if o.file == "" || o.dfuType == "" {
		return errors.New("--file and --type are required for DFU")
	}
	return nil
}

// job is the single action a run performs on the device.
type job func(ctx context.Context, upd *dfu.Updater) error

// prepare resolves the action and, for a DFU, loads and checks the file
// so a bad file never reaches the device.
func prepare(opts options, stdout io.Writer) (job, error) {
	switch {
	case opts.ping:
		return func(ctx context.Context, upd *dfu.Updater) error {
			fmt.Fprintln(stdout, protocol.BuildPingCmd())
			if err := upd.Ping(ctx); err != nil {
				return err
			}
			fmt.Fprintln(stdout, protocol.ResponseOK)
			return nil
		}, nil

	case opts.reset:
		return func(ctx context.Context, upd *dfu.Updater) error {
			fmt.Fprintln(stdout, protocol.BuildResetCmd())
			return upd.Reset(ctx)
		}, nil

	case opts.modemReset:
		return func(ctx context.Context, upd *dfu.Updater) error {
			fmt.Fprintln(stdout, protocol.BuildModemResetCmd())
			return upd.ModemReset(ctx)
		}, nil
	}

	t, err := protocol.ParseDFUType(opts.dfuType)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(stdout, "File: %s\n", opts.file)
	fmt.Fprintf(stdout, "Type: %s\n", t)

	if t == protocol.ModemFull {
		pkg, err := firmware.LoadPackage(opts.file)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(stdout, "Modem full DFU: boot %s, firmware %s in %d segments\n",
			formatBytes(pkg.BootSize()), formatBytes(pkg.FirmwareSize()), len(pkg.Firmware()))

		return func(ctx context.Context, upd *dfu.Updater) error {
			if err := upd.ModemFull(ctx, pkg); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "OK: Modem full DFU complete")
			return nil
		}, nil
	}

	data, err := firmware.LoadBinary(opts.file)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(stdout, "%s DFU: %s\n", t, formatBytes(len(data)))

	return func(ctx context.Context, upd *dfu.Updater) error {
		if t == protocol.Application {
			if err := upd.Application(ctx, data); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "OK: Application DFU complete. Reboot to activate.")
			return nil
		}

		if err := upd.ModemDelta(ctx, data); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "OK: Modem delta DFU complete. Reset the modem to activate.")
		return nil
	}, nil
}

func run(args []string, stdout io.Writer) error {
	var opts options
	fs := newFlagSet(&opts)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if opts.listPorts {
		return listPorts(stdout)
	}

	if err := opts.validate(); err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath, fs)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		if cfg.Port.Name == "" {
			if ports, listErr := transport.ListPorts(); listErr == nil && len(ports) > 0 {
				fmt.Fprintf(stdout, "Available ports: %s\n", strings.Join(ports, ", "))
			}
		}
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	action, err := prepare(opts, stdout)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Using: %s @ %d baud\n", cfg.Port.Name, cfg.Port.Baud)

	port, err := transport.OpenSerial(ctx, cfg.Port.Name, cfg.Port.Baud,
		transport.WithSettleDelay(cfg.Port.Settle),
		transport.WithReadTimeout(cfg.DFU.PollInterval),
	)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := port.Close(); closeErr != nil {
			logger.Warn("close serial port", zap.Error(closeErr))
		}
	}()

	return execute(ctx, port, cfg, logger, stdout, action)
}

// execute runs action against an open channel.
func execute(ctx context.Context, rw io.ReadWriter, cfg *config.Config, logger *zap.Logger, stdout io.Writer, action job) error {
	progress := newProgressPrinter(stdout)
	defer progress.Done()

	upd := dfu.New(rw,
		dfu.WithLogger(logging.Adapt(logger)),
		dfu.WithChunkSize(cfg.DFU.ChunkSize),
		dfu.WithRetries(cfg.DFU.Retries),
		dfu.WithBaseAddress(cfg.DFU.BaseAddress),
		dfu.WithPollInterval(cfg.DFU.PollInterval),
		dfu.WithProgressCallback(progress.Update),
		dfu.WithStateCallback(progress.State),
	)

	return action(ctx, upd)
}

func listPorts(stdout io.Writer) error {
	ports, err := transport.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(stdout, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(stdout, p)
	}
	return nil
}

// describe turns an error into the one-line message printed before exit.
func describe(err error) string {
	var lost *transport.ChannelLostError
	switch {
	case errors.Is(err, context.Canceled):
		return "aborted by user"
	case errors.As(err, &lost):
		return fmt.Sprintf("serial connection lost: %v", lost.Err)
	default:
		return err.Error()
	}
}
