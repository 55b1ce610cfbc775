package protocol

// LineEnding terminates every command sent to the device.
const LineEnding = "\r"

// Command mnemonics understood by the serial modem application.
const (
	// CmdAttention is the liveness probe
	CmdAttention = "AT"

	// CmdDFUInit begins a DFU session: AT#XDFUINIT=<type>[,<size>]
	CmdDFUInit = "AT#XDFUINIT"

	// CmdDFUWrite announces one chunk: AT#XDFUWRITE=<type>,<addr>,<len>
	CmdDFUWrite = "AT#XDFUWRITE"

	// CmdDFUApply commits the current phase: AT#XDFUAPPLY=<type>
	CmdDFUApply = "AT#XDFUAPPLY"

	// CmdReset resets the application core
	CmdReset = "AT#XRESET"

	// CmdModemReset resets the modem
	CmdModemReset = "AT#XMODEMRESET"
)

// Response markers.
const (
	// ResponseOK is the final result code of a successful command
	ResponseOK = "OK"

	// ResponseError is the final result code of a failed command
	ResponseError = "ERROR"

	// ResponseCMEError prefixes extended equipment error results
	ResponseCMEError = "+CME ERROR"

	// ResponseCMSError prefixes extended message service error results
	ResponseCMSError = "+CMS ERROR"

	// BootloaderReady is printed by the device after it rebooted into bootloader mode
	BootloaderReady = "Bootloader mode ready"

	// NotificationPrefix starts every DFU unsolicited result code
	NotificationPrefix = "#XDFU:"
)

// StatusSuccess is the notification status reported for a successful operation.
const StatusSuccess = 0

// notificationFields is the number of comma-separated fields in a notification.
const notificationFields = 3
