package atp

import (
	"fmt"
	"strings"
)

// CmdType tells the handler which form of a command was received.
type CmdType byte

// All command types
const (
	// Set is AT+CMD=<params> or a basic command with a numeric argument, e.g. ATE1
	Set CmdType = iota
	// Read is AT+CMD?
	Read
	// Test is AT+CMD=?
	Test
	// Exec is AT+CMD without any suffix
	Exec
	// NoParams is a basic command without argument, e.g. ATZ
	NoParams
)

func (t CmdType) String() string {
	switch t {
	case Set:
		return "SET"
	case Read:
		return "READ"
	case Test:
		return "TEST"
	case Exec:
		return "EXEC"
	case NoParams:
		return "NOPARAMS"
	default:
		return "UNKNOWN"
	}
}

// State of an AT instance.
type State int32

// All instance states
const (
	Idle State = iota
	Dispatched
	Delegated
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Dispatched:
		return "DISPATCHED"
	case Delegated:
		return "DELEGATED"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// InputMode selects how the raw bytes received by an instance are interpreted.
type InputMode byte

// All supported input modes
const (
	// InputModeCommand parses command lines, this is the default.
	InputModeCommand InputMode = iota
	// InputModeSMSText collects text terminated by Ctrl-Z, ESC aborts.
	InputModeSMSText
	// InputModeM2MWrite collects an exact number of raw bytes.
	InputModeM2MWrite
	// InputModeWLAN is a transparent data mode for WLAN payloads.
	InputModeWLAN
	// InputModeBLE is a transparent data mode for BLE payloads.
	InputModeBLE
	// InputModeOnline is a transparent data mode that is left with the escape sequence.
	InputModeOnline
	// InputModeSilent is a transparent data mode without escape sequence.
	InputModeSilent
)

// InputModesByName maps all input modes by their string representation
var InputModesByName = map[string]InputMode{
	"COMMAND":   InputModeCommand,
	"SMS_TEXT":  InputModeSMSText,
	"M2M_WRITE": InputModeM2MWrite,
	"WLAN":      InputModeWLAN,
	"BLE":       InputModeBLE,
	"ONLINE":    InputModeOnline,
	"SILENT":    InputModeSilent,
}

// InputModeByName returns the InputMode with the given name
func InputModeByName(name string) (InputMode, error) {
	sanitized := strings.ToUpper(strings.TrimSpace(name))
	result, ok := InputModesByName[sanitized]
	if !ok {
		return 0, fmt.Errorf("invalid input mode %s", name)
	}
	return result, nil
}

func (m InputMode) String() string {
	for k, v := range InputModesByName {
		if v == m {
			return k
		}
	}
	return "UNKNOWN"
}

func (m InputMode) valid() bool {
	return m <= InputModeSilent
}

func (m InputMode) transparent() bool {
	switch m {
	case InputModeWLAN, InputModeBLE, InputModeOnline, InputModeSilent:
		return true
	default:
		return false
	}
}

func (m InputMode) escapable() bool {
	return m.transparent() && m != InputModeSilent
}

// EventKind discriminates the events a handler receives.
type EventKind byte

// All event kinds
const (
	// CallbackInd is delivered once per dispatched command.
	CallbackInd EventKind = iota
	// DelegationInd carries input received while the instance is delegated.
	DelegationInd
)

func (k EventKind) String() string {
	switch k {
	case CallbackInd:
		return "CALLBACK_IND"
	case DelegationInd:
		return "DELEGATION_IND"
	default:
		return "UNKNOWN"
	}
}

// DelegationKind is the sub event of a DelegationInd.
type DelegationKind byte

// All delegation sub events
const (
	// DataInd carries a complete input unit of the active input mode.
	DataInd DelegationKind = iota
	// EscapeInd signals that the user left the input mode (ESC or escape sequence).
	EscapeInd
	// BufferEmptyInd signals that data written with WriteData has been sent.
	BufferEmptyInd
	// CloseConInd signals that the transport was closed while delegated.
	CloseConInd
)

func (k DelegationKind) String() string {
	switch k {
	case DataInd:
		return "DATA_IND"
	case EscapeInd:
		return "ESCAPE_IND"
	case BufferEmptyInd:
		return "BUFFER_EMPTY_IND"
	case CloseConInd:
		return "CLOSE_CON_IND"
	default:
		return "UNKNOWN"
	}
}

// Event is delivered to the handler of the command it belongs to.
type Event struct {
	Kind    EventKind
	Request *Request

	// Delegation, Data and Text are only set for DelegationInd.
	Delegation DelegationKind
	Data       []byte
	Text       string
}

func (e Event) String() string {
	if e.Kind == CallbackInd {
		return fmt.Sprintf("%s %s", e.Kind, e.Request)
	}
	return fmt.Sprintf("%s/%s %s (%d bytes)", e.Kind, e.Delegation, e.Request.Name, len(e.Data))
}
