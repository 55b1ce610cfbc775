// Package simulator provides an in-memory device that speaks the AT DFU
// protocol of the serial modem application.
//
// The Device implements io.ReadWriter and can stand in for a serial port
// anywhere a transport.Conn is used. It answers AT, AT#XDFUINIT,
// AT#XDFUWRITE (followed by the raw chunk), AT#XDFUAPPLY, AT#XRESET and
// AT#XMODEMRESET the way the firmware does, and records what it receives.
//
// Faults are scripted before the run:
//
//	dev := simulator.New(simulator.WithReadChunk(7))
//	dev.Reject("AT#XDFUINIT", 1) // ERROR on the first init
//	dev.DropNotifications(1)     // first chunk goes unacknowledged
//	dev.FailWrites(0, -1)        // second chunk reports status -1
//	dev.ApplyStatuses(-5)        // first apply fails
//	dev.RebootSilence(2)         // two pings go unanswered after reboot
//
// BuildPackage generates a signed modem package lookalike for full modem
// updates.
package simulator
