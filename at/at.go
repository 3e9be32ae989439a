package at

const (
	// Terminal Control
	CR     = "\r"
	CRLF   = "\r\n"
	Prompt = "> "
	CtrlZ  = "\x1a"
	Escape = "\x1b"

	// Response Codes
	OK         = "OK"
	ERROR      = "ERROR"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	// URCs (Unsolicited Result Codes)
	UrcNewMsg = "+CMTI:"
	UrcCall   = "RING"

	// Information responses
	ReadMsgHeader = "+CMGR:"
	SimReady      = "+CPIN: READY"
	SimPin        = "+CPIN: SIM PIN"
)

// Commands issued by the gateway. Format strings take the argument
// named in the comment.
const (
	CmdAt            = "AT"
	CmdEchoOff       = "ATE0"
	CmdVerboseErrors = "AT+CMEE=2"
	CmdSimStatus     = "AT+CPIN?"
	CmdEnterPIN      = `AT+CPIN="%s"` // PIN
	CmdSetTextMode   = "AT+CMGF=1"
	CmdCharsetGSM    = `AT+CSCS="GSM"`
	// CmdNotifyNewMsg routes new message indications to the terminal
	// as +CMTI: <mem>,<index> without storing a copy of the text.
	CmdNotifyNewMsg = "AT+CNMI=2,1,0,0,0"
	CmdReadMsg      = "AT+CMGR=%s"   // storage index
	CmdDeleteMsg    = "AT+CMGD=%s"   // storage index
	CmdSendMsg      = `AT+CMGS="%s"` // destination address
)

type ResponseType int

const (
	TypeFinal  ResponseType = iota // OK, ERROR
	TypeURC                        // Asynchronous notifications
	TypeData                       // Intermediate command output (+CSQ: ...)
	TypePrompt                     // SMS input prompt
)
