package dfu

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-atdfu/firmware"
	"github.com/moffa90/go-atdfu/protocol"
	"github.com/moffa90/go-atdfu/simulator"
	"github.com/moffa90/go-atdfu/transport"
)

var testTimeouts = Timeouts{
	WriteAck:         50 * time.Millisecond,
	Notification:     50 * time.Millisecond,
	InitApplication:  100 * time.Millisecond,
	InitModemDelta:   100 * time.Millisecond,
	InitModemFull:    100 * time.Millisecond,
	Ping:             50 * time.Millisecond,
	RebootAttempts:   3,
	RebootPing:       30 * time.Millisecond,
	RebootMaxBackoff: time.Millisecond,
}

func newTestUpdater(dev *simulator.Device, opts ...Option) *Updater {
	base := []Option{
		WithPollInterval(time.Millisecond),
		WithTimeouts(testTimeouts),
	}
	return New(dev, append(base, opts...)...)
}

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return data
}

func TestApplicationUpdate(t *testing.T) {
	dev := simulator.New()
	var progress []Progress
	var states []State

	upd := newTestUpdater(dev,
		WithProgressCallback(func(p Progress) { progress = append(progress, p) }),
		WithStateCallback(func(_, to State) { states = append(states, to) }),
	)

	data := pattern(10000)
	require.NoError(t, upd.Application(context.Background(), data))

	assert.Equal(t, []string{
		"AT#XDFUINIT=0,10000",
		"AT#XDFUWRITE=0,0,4096",
		"AT#XDFUWRITE=0,4096,4096",
		"AT#XDFUWRITE=0,8192,1808",
		"AT#XDFUAPPLY=0",
	}, dev.Commands())

	writes := dev.Writes()
	require.Len(t, writes, 3)
	assert.Equal(t, data[:4096], writes[0].Data)
	assert.Equal(t, data[4096:8192], writes[1].Data)
	assert.Equal(t, data[8192:], writes[2].Data)

	require.Len(t, progress, 3)
	assert.Equal(t, LabelApplication, progress[2].Label)
	assert.Equal(t, 3, progress[2].Chunk)
	assert.Equal(t, 3, progress[2].TotalChunks)
	assert.Equal(t, 10000, progress[2].BytesSent)
	assert.Equal(t, 10000, progress[2].TotalBytes)
	assert.InDelta(t, 100.0, progress[2].Percentage, 0.001)
	assert.Equal(t, "AT#XDFUWRITE=0,8192,1808", progress[2].Command)
	assert.Equal(t, "#XDFU: 0,1,0", progress[2].Notification)

	assert.Equal(t, []State{StateInitializing, StateTransferring, StateApplying, StateCompleted}, states)
	assert.Equal(t, StateCompleted, upd.State())
}

func TestModemDeltaUpdate(t *testing.T) {
	dev := simulator.New()
	upd := newTestUpdater(dev, WithChunkSize(1000), WithBaseAddress(0x1000))

	require.NoError(t, upd.ModemDelta(context.Background(), pattern(2500)))

	assert.Equal(t, []string{
		"AT#XDFUINIT=1,2500",
		"AT#XDFUWRITE=1,4096,1000",
		"AT#XDFUWRITE=1,5096,1000",
		"AT#XDFUWRITE=1,6096,500",
		"AT#XDFUAPPLY=1",
	}, dev.Commands())
	assert.Equal(t, []protocol.DFUType{protocol.ModemDelta}, dev.Applies())
}

func TestChunkRetrySucceedsOnLastAttempt(t *testing.T) {
	dev := simulator.New()
	dev.FailWrites(-1, -1)
	upd := newTestUpdater(dev, WithRetries(3))

	require.NoError(t, upd.Application(context.Background(), pattern(100)))

	writes := dev.Writes()
	require.Len(t, writes, 3)
	for _, w := range writes {
		assert.Equal(t, uint32(0), w.Address)
	}
	assert.Equal(t, StateCompleted, upd.State())
}

func TestChunkRetryExhausted(t *testing.T) {
	dev := simulator.New()
	dev.FailWrites(-1, -1, -1)
	upd := newTestUpdater(dev, WithRetries(3))

	err := upd.Application(context.Background(), pattern(5000))
	require.Error(t, err)

	var exhausted *ChunkWriteExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, LabelApplication, exhausted.Label)
	assert.Equal(t, 0, exhausted.Index)
	assert.Equal(t, uint32(0), exhausted.Address)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.True(t, protocol.IsProtocolError(err))

	var phase *PhaseError
	require.ErrorAs(t, err, &phase)
	assert.Equal(t, PhaseTransfer, phase.Phase)

	for _, w := range dev.Writes() {
		assert.Equal(t, uint32(0), w.Address, "no later chunk may be attempted")
	}
	assert.Len(t, dev.Writes(), 3)
	assert.Empty(t, dev.Applies())
	assert.Equal(t, StateFailed, upd.State())
}

func TestChunkRetryTransientFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(d *simulator.Device)
	}{
		{name: "announce rejected", setup: func(d *simulator.Device) { d.Reject(protocol.CmdDFUWrite, 1) }},
		{name: "announce unanswered", setup: func(d *simulator.Device) { d.Ignore(protocol.CmdDFUWrite, 1) }},
		{name: "notification dropped", setup: func(d *simulator.Device) { d.DropNotifications(1) }},
		{name: "failure status", setup: func(d *simulator.Device) { d.FailWrites(-5) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := simulator.New()
			tt.setup(dev)
			upd := newTestUpdater(dev)

			require.NoError(t, upd.Application(context.Background(), pattern(10)))
			assert.Equal(t, map[uint32][]byte{0: pattern(10)}, dev.Image(protocol.Application))
		})
	}
}

func TestSingleAttemptWhenRetriesNotPositive(t *testing.T) {
	dev := simulator.New()
	dev.FailWrites(-1)
	upd := newTestUpdater(dev)

	chunks := firmware.Split(0, pattern(10), 4096)
	_, err := upd.SendChunks(context.Background(), protocol.Application, "x", chunks, 0)

	var exhausted *ChunkWriteExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.Attempts)
}

func TestSendChunksReturnsBytesDelivered(t *testing.T) {
	dev := simulator.New()
	upd := newTestUpdater(dev)
	ctx := context.Background()

	_, err := upd.conn.Transact(ctx, "AT#XDFUINIT=0,5000", nil, time.Second)
	require.NoError(t, err)

	chunks := firmware.Split(0, pattern(5000), 4096)
	sent, err := upd.SendChunks(ctx, protocol.Application, "x", chunks, 1)
	require.NoError(t, err)
	assert.Equal(t, 5000, sent)
	assert.Len(t, dev.Writes(), 2)
}

func TestInitFailure(t *testing.T) {
	dev := simulator.New()
	dev.Reject(protocol.CmdDFUInit, 1)
	upd := newTestUpdater(dev)

	err := upd.Application(context.Background(), pattern(100))
	require.Error(t, err)

	var phase *PhaseError
	require.ErrorAs(t, err, &phase)
	assert.Equal(t, PhaseInit, phase.Phase)
	assert.True(t, protocol.IsDeviceError(err))
	assert.Empty(t, dev.Writes())
	assert.Equal(t, StateFailed, upd.State())
}

func TestInitTimeout(t *testing.T) {
	dev := simulator.New()
	dev.Ignore(protocol.CmdDFUInit, 1)
	upd := newTestUpdater(dev)

	err := upd.ModemDelta(context.Background(), pattern(100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, transport.ErrTimeout))
	assert.Len(t, dev.Commands(), 1, "init is not retried")
}

func TestApplyFailure(t *testing.T) {
	dev := simulator.New()
	dev.ApplyStatuses(-5)
	upd := newTestUpdater(dev)

	err := upd.Application(context.Background(), pattern(100))
	require.Error(t, err)

	var phase *PhaseError
	require.ErrorAs(t, err, &phase)
	assert.Equal(t, PhaseApply, phase.Phase)

	var perr *protocol.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, -5, perr.StatusCode)
	assert.Equal(t, protocol.OpApply, perr.Operation)
}

func TestEmptyImage(t *testing.T) {
	dev := simulator.New()
	upd := newTestUpdater(dev)

	require.Error(t, upd.Application(context.Background(), nil))
	assert.Empty(t, dev.Commands())
}

func TestImageAddressOverflow(t *testing.T) {
	tests := []struct {
		name    string
		base    uint32
		size    int
		wantErr bool
	}{
		{name: "wraps past 4 GiB", base: 0xFFFFF000, size: 10000, wantErr: true},
		{name: "one byte too many", base: 0xFFFFF000, size: 0x1001, wantErr: true},
		{name: "ends at the top", base: 0xFFFFF000, size: 0x1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := simulator.New()
			upd := newTestUpdater(dev, WithBaseAddress(tt.base))

			err := upd.Application(context.Background(), pattern(tt.size))
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.base, dev.Writes()[0].Address)
				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), "32-bit address space")
			assert.Empty(t, dev.Commands(), "nothing may reach the device")
			assert.Empty(t, dev.Writes())
		})
	}
}

func TestApplyRejected(t *testing.T) {
	dev := simulator.New()
	dev.Reject(protocol.CmdDFUApply, 1)
	upd := newTestUpdater(dev, WithTimeouts(Timeouts{Notification: 5 * time.Second}))

	start := time.Now()
	err := upd.Application(context.Background(), pattern(100))
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "ERROR must end the wait early")

	var phase *PhaseError
	require.ErrorAs(t, err, &phase)
	assert.Equal(t, PhaseApply, phase.Phase)

	var derr *protocol.DeviceError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "AT#XDFUAPPLY=0", derr.Command)
	assert.Equal(t, protocol.ResponseError, derr.Line)
	assert.NotErrorIs(t, err, ErrNoNotification)
	assert.Equal(t, StateFailed, upd.State())
}

func buildPackage(t *testing.T, segments ...simulator.SegmentImage) *firmware.Package {
	t.Helper()

	raw, err := simulator.BuildPackage(segments...)
	require.NoError(t, err)

	pkg, err := firmware.ParseManifest(raw)
	require.NoError(t, err)
	return pkg
}

func TestModemFullUpdate(t *testing.T) {
	dev := simulator.New()
	dev.RebootSilence(1)

	var labels []string
	upd := newTestUpdater(dev, WithProgressCallback(func(p Progress) { labels = append(labels, p.Label) }))

	boot := pattern(300)
	fw := pattern(5000)
	pkg := buildPackage(t,
		simulator.SegmentImage{Address: 0x0, Data: boot},
		simulator.SegmentImage{Address: 0x50000, Data: fw},
	)

	require.NoError(t, upd.ModemFull(context.Background(), pkg))

	assert.Equal(t, []string{
		"AT#XDFUINIT=2",
		"AT#XDFUWRITE=2,0,300",
		"AT#XDFUAPPLY=2",
		"AT#XDFUWRITE=2,327680,4096",
		"AT#XDFUWRITE=2,331776,904",
		"AT#XDFUAPPLY=2",
		"AT",
		"AT",
	}, dev.Commands())

	assert.Equal(t, []string{LabelBoot, LabelFirmware, LabelFirmware}, labels)
	assert.Equal(t, map[uint32][]byte{
		0x0:     boot,
		0x50000: fw[:4096],
		0x51000: fw[4096:],
	}, dev.Image(protocol.ModemFull))
	assert.Equal(t, StateCompleted, upd.State())
}

func TestModemFullBootApplyFailure(t *testing.T) {
	dev := simulator.New()
	dev.ApplyStatuses(-1)
	upd := newTestUpdater(dev)

	pkg := buildPackage(t,
		simulator.SegmentImage{Address: 0x0, Data: pattern(300)},
		simulator.SegmentImage{Address: 0x50000, Data: pattern(5000)},
	)

	err := upd.ModemFull(context.Background(), pkg)
	require.Error(t, err)

	var phase *PhaseError
	require.ErrorAs(t, err, &phase)
	assert.Equal(t, PhaseBootApply, phase.Phase)

	for _, w := range dev.Writes() {
		assert.Less(t, w.Address, uint32(0x50000), "no firmware chunk may be sent")
	}
	assert.Equal(t, StateFailed, upd.State())
}

func TestModemFullBootChunksNotRetried(t *testing.T) {
	dev := simulator.New()
	dev.FailWrites(-1)
	upd := newTestUpdater(dev, WithRetries(5))

	pkg := buildPackage(t,
		simulator.SegmentImage{Address: 0x0, Data: pattern(300)},
		simulator.SegmentImage{Address: 0x50000, Data: pattern(10)},
	)

	err := upd.ModemFull(context.Background(), pkg)

	var exhausted *ChunkWriteExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, LabelBoot, exhausted.Label)
	assert.Equal(t, 1, exhausted.Attempts)
	assert.Len(t, dev.Writes(), 1)
	assert.Empty(t, dev.Applies())
}

func TestModemFullFirmwareChunksRetried(t *testing.T) {
	dev := simulator.New()
	dev.FailWrites(0, -1, -1)
	upd := newTestUpdater(dev, WithRetries(3))

	pkg := buildPackage(t,
		simulator.SegmentImage{Address: 0x0, Data: pattern(10)},
		simulator.SegmentImage{Address: 0x50000, Data: pattern(10)},
	)

	require.NoError(t, upd.ModemFull(context.Background(), pkg))
	assert.Len(t, dev.Writes(), 4)
}

func TestModemFullInitNeedsBootloaderBanner(t *testing.T) {
	dev := simulator.New()
	dev.Ignore(protocol.CmdDFUInit, 1)
	upd := newTestUpdater(dev)

	pkg := buildPackage(t, simulator.SegmentImage{Address: 0x0, Data: pattern(10)})

	err := upd.ModemFull(context.Background(), pkg)

	var phase *PhaseError
	require.ErrorAs(t, err, &phase)
	assert.Equal(t, PhaseInit, phase.Phase)
	assert.True(t, errors.Is(err, transport.ErrTimeout))
}

func TestModemFullDeviceNeverReturns(t *testing.T) {
	dev := simulator.New()
	dev.RebootSilence(10)
	upd := newTestUpdater(dev)

	pkg := buildPackage(t,
		simulator.SegmentImage{Address: 0x0, Data: pattern(10)},
		simulator.SegmentImage{Address: 0x50000, Data: pattern(10)},
	)

	err := upd.ModemFull(context.Background(), pkg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotResponding)

	var phase *PhaseError
	require.ErrorAs(t, err, &phase)
	assert.Equal(t, PhaseReboot, phase.Phase)

	pings := 0
	for _, c := range dev.Commands() {
		if c == "AT" {
			pings++
		}
	}
	assert.Equal(t, testTimeouts.RebootAttempts, pings)
}

func TestAbortNotRetried(t *testing.T) {
	dev := simulator.New()
	upd := newTestUpdater(dev)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := upd.Application(ctx, pattern(10))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var abort *transport.AbortError
	assert.ErrorAs(t, err, &abort)
	assert.Empty(t, dev.Commands())
}

func TestChannelLostNotRetried(t *testing.T) {
	dev := simulator.New()
	upd := newTestUpdater(dev,
		WithRetries(3),
		WithProgressCallback(func(p Progress) {
			if p.Chunk == 1 {
				dev.Unplug()
			}
		}),
	)

	err := upd.Application(context.Background(), pattern(5000))
	require.Error(t, err)

	var lost *transport.ChannelLostError
	require.ErrorAs(t, err, &lost)

	var exhausted *ChunkWriteExhaustedError
	assert.False(t, errors.As(err, &exhausted))
	assert.Len(t, dev.Writes(), 1)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()

	binPath := filepath.Join(dir, "app.bin")
	require.NoError(t, os.WriteFile(binPath, pattern(10), 0o644))

	raw, err := simulator.BuildPackage(
		simulator.SegmentImage{Address: 0x0, Data: pattern(10)},
		simulator.SegmentImage{Address: 0x50000, Data: pattern(10)},
	)
	require.NoError(t, err)
	pkgPath := filepath.Join(dir, "mfw.cbor")
	require.NoError(t, os.WriteFile(pkgPath, raw, 0o644))

	badPath := filepath.Join(dir, "bad.cbor")
	require.NoError(t, os.WriteFile(badPath, []byte{0xFF}, 0o644))

	tests := []struct {
		name      string
		dfuType   protocol.DFUType
		path      string
		wantErr   error
		wantFirst string
	}{
		{name: "application", dfuType: protocol.Application, path: binPath, wantFirst: "AT#XDFUINIT=0,10"},
		{name: "modem delta", dfuType: protocol.ModemDelta, path: binPath, wantFirst: "AT#XDFUINIT=1,10"},
		{name: "modem full", dfuType: protocol.ModemFull, path: pkgPath, wantFirst: "AT#XDFUINIT=2"},
		{name: "malformed package", dfuType: protocol.ModemFull, path: badPath, wantErr: firmware.ErrFormat},
		{name: "missing file", dfuType: protocol.Application, path: filepath.Join(dir, "nope.bin"), wantErr: os.ErrNotExist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := simulator.New()
			upd := newTestUpdater(dev)

			err := upd.Run(context.Background(), tt.dfuType, tt.path)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, dev.Commands(), "nothing is sent for a bad file")
				return
			}

			require.NoError(t, err)
			require.NotEmpty(t, dev.Commands())
			assert.Equal(t, tt.wantFirst, dev.Commands()[0])
		})
	}
}

func TestUtilities(t *testing.T) {
	t.Run("ping", func(t *testing.T) {
		dev := simulator.New()
		require.NoError(t, newTestUpdater(dev).Ping(context.Background()))
		assert.Equal(t, []string{"AT"}, dev.Commands())
	})

	t.Run("ping timeout", func(t *testing.T) {
		dev := simulator.New()
		dev.Ignore(protocol.CmdAttention, 1)

		err := newTestUpdater(dev).Ping(context.Background())
		assert.ErrorIs(t, err, transport.ErrTimeout)
	})

	t.Run("reset", func(t *testing.T) {
		dev := simulator.New()
		require.NoError(t, newTestUpdater(dev).Reset(context.Background()))
		assert.Equal(t, []string{"AT#XRESET"}, dev.Commands())
	})

	t.Run("modem reset", func(t *testing.T) {
		dev := simulator.New()
		require.NoError(t, newTestUpdater(dev).ModemReset(context.Background()))
		assert.Equal(t, []string{"AT#XMODEMRESET"}, dev.Commands())
	})
}

func TestNewPanicsOnNil(t *testing.T) {
	assert.Panics(t, func() { New(nil) })
}
