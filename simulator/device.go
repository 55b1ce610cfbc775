package simulator

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/moffa90/go-atdfu/protocol"
)

// ErrUnplugged is returned by Read and Write after Unplug.
var ErrUnplugged = errors.New("device unplugged")

// Write records one chunk the device received.
type Write struct {
	Type    protocol.DFUType
	Address uint32
	Data    []byte
}

// Device is an in-memory serial modem application speaking the AT DFU
// protocol. It implements io.ReadWriter: the host writes commands and chunk
// payloads and reads replies.
//
// Failure behavior is scripted ahead of time with Reject, Ignore,
// FailWrites, DropNotifications, ApplyStatuses and RebootSilence. Every
// command and chunk is recorded for later inspection.
//
// Device is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	out     bytes.Buffer
	line    []byte
	pending *pendingWrite

	readChunk int
	unplugged bool

	session *session
	silence int

	rejects      map[string]int
	ignores      map[string]int
	writeFaults  []int
	dropped      int
	applyResults []int
	rebootQuiet  int

	commands []string
	writes   []Write
	applies  []protocol.DFUType
}

type session struct {
	dfuType     protocol.DFUType
	bootApplied bool
}

type pendingWrite struct {
	dfuType protocol.DFUType
	addr    uint32
	want    int
	data    []byte
}

// Option configures a Device.
type Option func(*Device)

// WithReadChunk limits how many bytes a single Read returns, to exercise
// line reassembly on the host.
func WithReadChunk(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.readChunk = n
		}
	}
}

// New creates an idle device.
//
// Example:
//
//	dev := simulator.New()
//	dev.FailWrites(-1, -1) // first two chunk writes fail
//	conn := transport.New(dev)
func New(opts ...Option) *Device {
	d := &Device{
		rejects: make(map[string]int),
		ignores: make(map[string]int),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Reject makes the device answer the next n commands with the given
// mnemonic (for example "AT#XDFUINIT") with ERROR.
func (d *Device) Reject(mnemonic string, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rejects[mnemonic] += n
}

// Ignore makes the device stay silent on the next n commands with the given
// mnemonic.
func (d *Device) Ignore(mnemonic string, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ignores[mnemonic] += n
}

// FailWrites queues statuses for the next chunk notifications, one per
// received chunk. Zero means success.
func (d *Device) FailWrites(statuses ...int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeFaults = append(d.writeFaults, statuses...)
}

// DropNotifications suppresses the next n chunk notifications.
func (d *Device) DropNotifications(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropped += n
}

// ApplyStatuses queues statuses for the next apply notifications.
func (d *Device) ApplyStatuses(statuses ...int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.applyResults = append(d.applyResults, statuses...)
}

// RebootSilence sets how many commands the device ignores after a reboot
// (reset, modem reset, or a completed full modem update).
func (d *Device) RebootSilence(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rebootQuiet = n
}

// Unplug makes every later Read and Write fail.
func (d *Device) Unplug() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unplugged = true
}

// Commands returns every command line received, in order.
func (d *Device) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

// Writes returns every chunk payload received, in order. Retried chunks
// appear once per attempt.
func (d *Device) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Write(nil), d.writes...)
}

// Applies returns the DFU type of every apply command received.
func (d *Device) Applies() []protocol.DFUType {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]protocol.DFUType(nil), d.applies...)
}

// Image reassembles the received chunks of one DFU type into a map from
// address to data. Later writes to the same address win.
func (d *Device) Image(t protocol.DFUType) map[uint32][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	image := make(map[uint32][]byte)
	for _, w := range d.writes {
		if w.Type == t {
			image[w.Address] = w.Data
		}
	}
	return image
}

// Read returns pending device output, or (0, nil) when there is none.
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.unplugged {
		return 0, ErrUnplugged
	}

	if d.readChunk > 0 && len(p) > d.readChunk {
		p = p[:d.readChunk]
	}
	if d.out.Len() == 0 {
		return 0, nil
	}
	return d.out.Read(p)
}

// Write feeds host bytes to the device.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.unplugged {
		return 0, ErrUnplugged
	}

	data := p
	for len(data) > 0 {
		if d.pending != nil {
			n := d.pending.want - len(d.pending.data)
			if n > len(data) {
				n = len(data)
			}
			d.pending.data = append(d.pending.data, data[:n]...)
			data = data[n:]
			if len(d.pending.data) == d.pending.want {
				d.completeWrite()
			}
			continue
		}

		i := bytes.IndexByte(data, '\r')
		if i < 0 {
			d.line = append(d.line, data...)
			break
		}

		d.line = append(d.line, data[:i]...)
		data = data[i+1:]

		cmd := strings.TrimSpace(string(d.line))
		d.line = d.line[:0]
		if cmd != "" {
			d.handle(cmd)
		}
	}

	return len(p), nil
}

func (d *Device) handle(cmd string) {
	d.commands = append(d.commands, cmd)

	if d.silence > 0 {
		d.silence--
		return
	}

	mnemonic := protocol.Mnemonic(cmd)

	if d.ignores[mnemonic] > 0 {
		d.ignores[mnemonic]--
		return
	}

	if d.rejects[mnemonic] > 0 {
		d.rejects[mnemonic]--
		d.reply(protocol.ResponseError)
		return
	}

	switch mnemonic {
	case protocol.CmdAttention:
		d.reply(protocol.ResponseOK)
	case protocol.CmdDFUInit:
		d.handleInit(cmd)
	case protocol.CmdDFUWrite:
		d.handleWrite(cmd)
	case protocol.CmdDFUApply:
		d.handleApply(cmd)
	case protocol.CmdReset, protocol.CmdModemReset:
		d.reply(protocol.ResponseOK)
		d.reboot()
	default:
		d.reply(protocol.ResponseError)
	}
}

func (d *Device) handleInit(cmd string) {
	params, err := parseParams(cmd, 1)
	if err != nil {
		d.reply(protocol.ResponseError)
		return
	}

	t := protocol.DFUType(params[0])
	switch t {
	case protocol.Application, protocol.ModemDelta:
		if len(params) < 2 || params[1] <= 0 {
			d.reply(protocol.ResponseError)
			return
		}
		d.session = &session{dfuType: t}
		d.reply(protocol.ResponseOK)
	case protocol.ModemFull:
		// The device reboots into bootloader mode instead of answering OK.
		d.session = &session{dfuType: t}
		d.reply("Ready")
		d.reply(protocol.BootloaderReady)
	default:
		d.reply(protocol.ResponseError)
	}
}

func (d *Device) handleWrite(cmd string) {
	t, addr, length, err := parseWrite(cmd)
	if err != nil || d.session == nil || d.session.dfuType != t {
		d.reply(protocol.ResponseError)
		return
	}

	d.pending = &pendingWrite{dfuType: t, addr: addr, want: length}
	d.reply(protocol.ResponseOK)
}

// completeWrite records the finished chunk and reports it.
func (d *Device) completeWrite() {
	w := d.pending
	d.pending = nil

	d.writes = append(d.writes, Write{Type: w.dfuType, Address: w.addr, Data: w.data})

	status := 0
	if len(d.writeFaults) > 0 {
		status = d.writeFaults[0]
		d.writeFaults = d.writeFaults[1:]
	}

	if d.dropped > 0 {
		d.dropped--
		return
	}

	d.notify(w.dfuType, protocol.OpWrite, status)
}

// handleApply reports the commit before the final result code, as the
// firmware does. Committing the full modem firmware reboots the device
// before it can answer.
func (d *Device) handleApply(cmd string) {
	params, err := parseParams(cmd, 1)
	if err != nil || d.session == nil || d.session.dfuType != protocol.DFUType(params[0]) {
		d.reply(protocol.ResponseError)
		return
	}

	t := d.session.dfuType
	d.applies = append(d.applies, t)

	if t == protocol.ModemFull && d.session.bootApplied {
		d.session = nil
		d.reboot()
		return
	}

	status := 0
	if len(d.applyResults) > 0 {
		status = d.applyResults[0]
		d.applyResults = d.applyResults[1:]
	}

	d.notify(t, protocol.OpApply, status)
	d.reply(protocol.ResponseOK)

	if t == protocol.ModemFull && status == protocol.StatusSuccess {
		d.session.bootApplied = true
		return
	}
	d.session = nil
}

func (d *Device) reboot() {
	d.silence = d.rebootQuiet
}

func (d *Device) reply(line string) {
	d.out.WriteString("\r\n" + line + "\r\n")
}

func (d *Device) notify(t protocol.DFUType, op protocol.Operation, status int) {
	d.reply(fmt.Sprintf("%s %d,%d,%d", protocol.NotificationPrefix, int(t), int(op), status))
}

func parseWrite(cmd string) (protocol.DFUType, uint32, int, error) {
	params, err := parseParams(cmd, 3)
	if err != nil {
		return 0, 0, 0, err
	}
	if params[1] < 0 || params[1] > 0xFFFFFFFF || params[2] <= 0 {
		return 0, 0, 0, fmt.Errorf("bad write parameters %v", params)
	}
	return protocol.DFUType(params[0]), uint32(params[1]), int(params[2]), nil
}

// parseParams splits the numeric parameters after '='.
func parseParams(cmd string, min int) ([]int64, error) {
	_, args, ok := strings.Cut(cmd, "=")
	if !ok {
		return nil, fmt.Errorf("%s: missing parameters", cmd)
	}

	fields := strings.Split(args, ",")
	if len(fields) < min {
		return nil, fmt.Errorf("%s: want %d parameters", cmd, min)
	}

	params := make([]int64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: parameter %d: %w", cmd, i, err)
		}
		params[i] = v
	}
	return params, nil
}
