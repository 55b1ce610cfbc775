// Package dfu performs firmware updates over the AT DFU command set of the
// serial modem application.
//
// # Overview
//
// An Updater owns a transport.Conn on top of the device channel and runs
// one DFU session at a time. Three update types are supported:
//
//   - Application: a raw image written to the secondary slot, active after reset
//   - ModemDelta: a raw delta patch applied by the modem
//   - ModemFull: a signed package with a bootloader segment and firmware segments
//
// # Session
//
// Every session walks Idle, Initializing, Transferring, Applying and ends in
// Completed or Failed. A full modem update transfers and applies twice, once
// for the bootloader segment and once for the firmware segments, then waits
// for the device to answer AT after it reboots.
//
// # Retry
//
// A chunk that times out, is rejected, or is acknowledged with a non-zero
// status is sent again from its announce, up to the configured number of
// attempts. Bootloader segment chunks get a single attempt. A lost channel
// or a cancelled context ends the session at once.
//
// # Basic Usage
//
//	port, err := transport.OpenSerial(ctx, "/dev/ttyACM0", 115200)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	upd := dfu.New(port, dfu.WithProgressCallback(func(p dfu.Progress) {
//	    fmt.Printf("\r%s [%d/%d] %.1f%%", p.Label, p.Chunk, p.TotalChunks, p.Percentage)
//	}))
//
//	if err := upd.Run(ctx, protocol.Application, "app_update.bin"); err != nil {
//	    log.Fatal(err)
//	}
//
// # Errors
//
//   - *PhaseError: which step failed; wraps the cause
//   - *ChunkWriteExhaustedError: a chunk failed on every attempt
//   - *protocol.ProtocolError: a notification carried a failure status
//   - *protocol.DeviceError: the device answered ERROR
//   - transport.ErrTimeout, ErrNoNotification: the device did not answer in time
//   - *transport.ChannelLostError, *transport.AbortError: fatal, never retried
//   - firmware.ErrFormat: the input file is malformed
package dfu
