package dfu

import (
	"context"
	"fmt"
	"time"

	"github.com/moffa90/go-atdfu/firmware"
	"github.com/moffa90/go-atdfu/protocol"
)

// SendChunks writes chunks in order and returns the number of payload bytes
// delivered.
//
// Each chunk is announced with AT#XDFUWRITE, answered with OK, followed by
// its raw bytes and acknowledged by a write notification with status 0. A
// failed step restarts the chunk from the announce, up to attempts tries in
// total. When a chunk runs out of attempts SendChunks returns a
// *ChunkWriteExhaustedError and sends nothing more. Lost channels and
// aborts are returned at once.
//
// Example:
//
//	chunks := firmware.Split(0, image, firmware.DefaultChunkSize)
//	sent, err := upd.SendChunks(ctx, protocol.Application, "Application", chunks, 3)
func (u *Updater) SendChunks(ctx context.Context, t protocol.DFUType, label string, chunks []firmware.Chunk, attempts int) (int, error) {
	if attempts < 1 {
		attempts = 1
	}

	total := firmware.TotalSize(chunks)
	sent := 0
	start := time.Now()

	for i, chunk := range chunks {
		var lastErr error
		delivered := false

		for attempt := 1; attempt <= attempts; attempt++ {
			cmd, n, err := u.writeChunk(ctx, t, chunk)
			if err == nil {
				sent += chunk.Len()
				delivered = true

				u.reportProgress(Progress{
					Label:        label,
					Chunk:        i + 1,
					TotalChunks:  len(chunks),
					BytesSent:    sent,
					TotalBytes:   total,
					Elapsed:      time.Since(start),
					Percentage:   float64(i+1) / float64(len(chunks)) * 100,
					Command:      cmd,
					Notification: n.Raw,
				})
				break
			}

			if !IsRetryable(err) {
				return sent, fmt.Errorf("%s chunk %d: %w", label, i, err)
			}

			lastErr = err
			u.logWarn("chunk write failed",
				"label", label,
				"chunk", i,
				"addr", fmt.Sprintf("0x%X", chunk.Address),
				"attempt", attempt,
				"attempts", attempts,
				"error", err,
			)
		}

		if !delivered {
			return sent, &ChunkWriteExhaustedError{
				Label:    label,
				Index:    i,
				Address:  chunk.Address,
				Attempts: attempts,
				Err:      lastErr,
			}
		}
	}

	u.logDebug("transfer complete",
		"label", label,
		"chunks", len(chunks),
		"bytes", sent,
		"elapsed", time.Since(start).String(),
	)

	return sent, nil
}

// writeChunk makes one attempt at delivering chunk.
func (u *Updater) writeChunk(ctx context.Context, t protocol.DFUType, chunk firmware.Chunk) (string, protocol.Notification, error) {
	cmd, err := protocol.BuildWriteCmd(t, chunk.Address, chunk.Len())
	if err != nil {
		return "", protocol.Notification{}, err
	}

	if _, err := u.conn.Transact(ctx, cmd, protocol.TerminalOK, u.config.Timeouts.WriteAck); err != nil {
		return cmd, protocol.Notification{}, err
	}

	if err := u.conn.WriteRaw(ctx, chunk.Data); err != nil {
		return cmd, protocol.Notification{}, err
	}

	n, err := u.awaitStatus(ctx, protocol.OpWrite)
	return cmd, n, err
}

// awaitStatus waits for the notification of op and checks its status.
func (u *Updater) awaitStatus(ctx context.Context, op protocol.Operation) (protocol.Notification, error) {
	timeout := u.config.Timeouts.Notification

	n, ok, err := u.conn.AwaitNotification(ctx, timeout)
	if err != nil {
		return n, err
	}
	if !ok {
		return n, &NotificationTimeoutError{Operation: op, Timeout: timeout}
	}
	if n.Operation != op {
		return n, &UnexpectedNotificationError{Want: op, Notification: n}
	}
	if !n.OK() {
		return n, protocol.NewProtocolError(n)
	}

	return n, nil
}
