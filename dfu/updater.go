package dfu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/moffa90/go-atdfu/firmware"
	"github.com/moffa90/go-atdfu/protocol"
	"github.com/moffa90/go-atdfu/transport"
)

// Transfer labels passed to progress callbacks.
const (
	LabelApplication = "Application"
	LabelModemDelta  = "Modem delta"
	LabelBoot        = "BOOT"
	LabelFirmware    = "FW"
)

// Updater drives DFU sessions against a device running the serial modem
// application. It handles session setup, chunked transfer with retry,
// phase commits and progress reporting.
//
// Updater is not safe for concurrent use; the protocol allows one
// outstanding command at a time.
type Updater struct {
	conn   *transport.Conn
	config Config
	state  State
}

// New creates a new Updater with the given device and options.
// The device must implement io.ReadWriter, typically a serial port opened
// with transport.OpenSerial.
//
// Example:
//
//	port, _ := transport.OpenSerial(ctx, "/dev/ttyACM0", 115200)
//	upd := dfu.New(port,
//	    dfu.WithProgressCallback(progressFunc),
//	    dfu.WithRetries(5),
//	)
func New(device io.ReadWriter, opts ...Option) *Updater {
	if device == nil {
		panic("device cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	connOpts := []transport.Option{transport.WithPollInterval(cfg.PollInterval)}
	if cfg.Logger != nil {
		connOpts = append(connOpts, transport.WithLogger(cfg.Logger))
	}

	return &Updater{
		conn:   transport.New(device, connOpts...),
		config: cfg,
		state:  StateIdle,
	}
}

// State returns the current session state.
func (u *Updater) State() State {
	return u.state
}

// Run loads path and performs a DFU of type t: a raw image for application
// and modem delta updates, a signed package for full modem updates. The file
// is read completely before anything is sent to the device.
//
// Example:
//
//	err := upd.Run(ctx, protocol.ModemFull, "mfw_nrf91x1_full_2.0.2.cbor")
func (u *Updater) Run(ctx context.Context, t protocol.DFUType, path string) error {
	switch t {
	case protocol.Application, protocol.ModemDelta:
		data, err := firmware.LoadBinary(path)
		if err != nil {
			return err
		}
		if t == protocol.Application {
			return u.Application(ctx, data)
		}
		return u.ModemDelta(ctx, data)

	case protocol.ModemFull:
		pkg, err := firmware.LoadPackage(path)
		if err != nil {
			return err
		}
		return u.ModemFull(ctx, pkg)

	default:
		return fmt.Errorf("unsupported DFU type %s", t)
	}
}

// Application updates the application image:
//  1. AT#XDFUINIT=0,<size>, OK within 5s
//  2. every chunk with retry
//  3. AT#XDFUAPPLY=0, status notification within 10s
//
// The new image becomes active after the next reset.
func (u *Updater) Application(ctx context.Context, data []byte) error {
	return u.imageSession(ctx, protocol.Application, LabelApplication, data, u.config.Timeouts.InitApplication)
}

// ModemDelta applies a delta patch to the modem firmware. It follows the
// same sequence as Application; the init step waits up to 120s because the
// device erases the scratch area first.
func (u *Updater) ModemDelta(ctx context.Context, data []byte) error {
	return u.imageSession(ctx, protocol.ModemDelta, LabelModemDelta, data, u.config.Timeouts.InitModemDelta)
}

func (u *Updater) imageSession(ctx context.Context, t protocol.DFUType, label string, data []byte, initTimeout time.Duration) (err error) {
	if len(data) == 0 {
		return fmt.Errorf("%s image is empty", t)
	}
	if uint64(len(data)) > math.MaxUint32 {
		return fmt.Errorf("%s image of %d bytes exceeds the 32-bit size field", t, len(data))
	}
	if uint64(u.config.BaseAddress)+uint64(len(data)) > math.MaxUint32+1 {
		return fmt.Errorf("%s image of %d bytes at 0x%X runs past the 32-bit address space",
			t, len(data), u.config.BaseAddress)
	}

	chunks := firmware.Split(u.config.BaseAddress, data, u.config.ChunkSize)
	start := time.Now()
	defer u.finish(t, &err)

	u.logInfo("starting dfu",
		"type", t.String(),
		"bytes", len(data),
		"chunks", len(chunks),
		"base_addr", fmt.Sprintf("0x%X", u.config.BaseAddress),
	)

	u.setState(StateInitializing)

	cmd, err := protocol.BuildInitCmd(t, uint32(len(data)))
	if err != nil {
		return &PhaseError{Type: t, Phase: PhaseInit, Err: err}
	}
	if _, err := u.conn.Transact(ctx, cmd, protocol.TerminalOK, initTimeout); err != nil {
		return &PhaseError{Type: t, Phase: PhaseInit, Err: err}
	}

	u.setState(StateTransferring)

	sent, err := u.SendChunks(ctx, t, label, chunks, u.config.Retries)
	if err != nil {
		return &PhaseError{Type: t, Phase: PhaseTransfer, Err: err}
	}

	u.setState(StateApplying)

	if err := u.apply(ctx, t); err != nil {
		return &PhaseError{Type: t, Phase: PhaseApply, Err: err}
	}

	u.logInfo("dfu complete",
		"type", t.String(),
		"bytes", sent,
		"chunks", len(chunks),
		"elapsed", time.Since(start).String(),
	)

	return nil
}

// ModemFull replaces the complete modem firmware from a signed package:
//  1. AT#XDFUINIT=2; the device reboots and prints "Bootloader mode ready" within 30s
//  2. boot segment chunks, one attempt each
//  3. AT#XDFUAPPLY=2, status notification within 10s
//  4. firmware segment chunks with retry
//  5. AT#XDFUAPPLY=2; the device reboots
//  6. AT probes until the device answers
//
// A failed boot commit stops the session before any firmware chunk is sent.
// Once the first firmware chunk is written an incomplete update leaves the
// modem unbootable.
func (u *Updater) ModemFull(ctx context.Context, pkg *firmware.Package) (err error) {
	const t = protocol.ModemFull

	if pkg == nil {
		return errors.New("package cannot be nil")
	}

	boot, fw, err := pkg.Chunks(u.config.ChunkSize)
	if err != nil {
		return err
	}

	start := time.Now()
	defer u.finish(t, &err)

	u.logInfo("starting dfu",
		"type", t.String(),
		"boot_bytes", pkg.BootSize(),
		"firmware_bytes", pkg.FirmwareSize(),
		"segments", len(pkg.Segments),
	)

	u.setState(StateInitializing)

	cmd, err := protocol.BuildInitCmd(t, 0)
	if err != nil {
		return &PhaseError{Type: t, Phase: PhaseInit, Err: err}
	}
	if _, err := u.conn.Transact(ctx, cmd, protocol.TerminalBootloaderReady, u.config.Timeouts.InitModemFull); err != nil {
		return &PhaseError{Type: t, Phase: PhaseInit, Err: err}
	}
	u.logInfo("device in bootloader mode")

	// Phase 1: bootloader segment. Each chunk gets a single attempt.
	u.setState(StateTransferring)
	if _, err := u.SendChunks(ctx, t, LabelBoot, boot, 1); err != nil {
		return &PhaseError{Type: t, Phase: PhaseBootTransfer, Err: err}
	}

	u.setState(StateApplying)
	if err := u.apply(ctx, t); err != nil {
		return &PhaseError{Type: t, Phase: PhaseBootApply, Err: err}
	}
	u.logInfo("bootloader committed")

	// Phase 2: firmware segments.
	u.logWarn("writing modem firmware; the modem is unusable until this update completes")
	u.setState(StateTransferring)
	sent, err := u.SendChunks(ctx, t, LabelFirmware, fw, u.config.Retries)
	if err != nil {
		return &PhaseError{Type: t, Phase: PhaseFirmwareTransfer, Err: err}
	}

	u.setState(StateApplying)
	applyCmd, err := protocol.BuildApplyCmd(t)
	if err != nil {
		return &PhaseError{Type: t, Phase: PhaseFirmwareApply, Err: err}
	}
	if err := u.conn.Send(ctx, applyCmd); err != nil {
		return &PhaseError{Type: t, Phase: PhaseFirmwareApply, Err: err}
	}

	to := u.config.Timeouts
	if !u.conn.Ping(ctx, to.RebootAttempts, to.RebootPing, to.RebootMaxBackoff) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &PhaseError{Type: t, Phase: PhaseReboot, Err: &transport.AbortError{Err: ctxErr}}
		}
		return &PhaseError{Type: t, Phase: PhaseReboot, Err: ErrNotResponding}
	}

	u.logInfo("dfu complete",
		"type", t.String(),
		"boot_bytes", pkg.BootSize(),
		"firmware_bytes", sent,
		"elapsed", time.Since(start).String(),
	)

	return nil
}

// apply commits the current phase and checks the apply notification.
func (u *Updater) apply(ctx context.Context, t protocol.DFUType) error {
	cmd, err := protocol.BuildApplyCmd(t)
	if err != nil {
		return err
	}

	if err := u.conn.Send(ctx, cmd); err != nil {
		return err
	}

	_, err = u.awaitStatus(ctx, protocol.OpApply)
	return err
}

// Ping sends a single AT and waits up to 3s for OK.
func (u *Updater) Ping(ctx context.Context) error {
	_, err := u.conn.Transact(ctx, protocol.BuildPingCmd(), protocol.TerminalOK, u.config.Timeouts.Ping)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	u.logInfo("device ready")
	return nil
}

// Reset resets the application core with AT#XRESET. It does not wait
// for a reply; the device reboots.
func (u *Updater) Reset(ctx context.Context) error {
	if err := u.conn.Send(ctx, protocol.BuildResetCmd()); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// ModemReset resets the modem with AT#XMODEMRESET. It does not wait
// for a reply.
func (u *Updater) ModemReset(ctx context.Context) error {
	if err := u.conn.Send(ctx, protocol.BuildModemResetCmd()); err != nil {
		return fmt.Errorf("modem reset: %w", err)
	}
	return nil
}

// finish moves the session to its terminal state.
func (u *Updater) finish(t protocol.DFUType, err *error) {
	if *err != nil {
		u.logError("dfu failed", "type", t.String(), "state", u.state.String(), "error", *err)
		u.setState(StateFailed)
		return
	}
	u.setState(StateCompleted)
}

// setState records a transition and notifies the state callback.
func (u *Updater) setState(s State) {
	from := u.state
	if from == s {
		return
	}

	u.state = s
	u.logDebug("state change", "from", from.String(), "to", s.String())

	if u.config.StateCallback != nil {
		u.config.StateCallback(from, s)
	}
}

// reportProgress calls the progress callback if configured.
func (u *Updater) reportProgress(p Progress) {
	if u.config.ProgressCallback != nil {
		u.config.ProgressCallback(p)
	}
}

// logDebug logs a debug message if a logger is configured.
func (u *Updater) logDebug(msg string, keysAndValues ...interface{}) {
	if u.config.Logger != nil {
		u.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (u *Updater) logInfo(msg string, keysAndValues ...interface{}) {
	if u.config.Logger != nil {
		u.config.Logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if a logger is configured.
func (u *Updater) logWarn(msg string, keysAndValues ...interface{}) {
	if u.config.Logger != nil {
		u.config.Logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (u *Updater) logError(msg string, keysAndValues ...interface{}) {
	if u.config.Logger != nil {
		u.config.Logger.Error(msg, keysAndValues...)
	}
}
