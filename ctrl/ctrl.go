// Package ctrl contains the DTE side of the command set served by the ATP: functions that build
// command lines and functions that send a request and parse its response.
package ctrl

import (
	"context"
	"fmt"
	"strings"
)

// Requester sends a command line and returns the information text lines of the response.
type Requester interface {
	Request(ctx context.Context, request string) ([]string, error)
}

// TextSender sends a command that prompts for text input, followed by the text.
type TextSender interface {
	SendText(ctx context.Context, request string, text string) ([]string, error)
}

// ErrorMode selects how +CME ERROR and +CMS ERROR are reported, according to [27.007] 9.1
type ErrorMode byte

// All error modes
const (
	ErrorsDisabled ErrorMode = iota
	ErrorsNumeric
	ErrorsVerbose
)

// ErrorModesByName maps all error modes by their string representation
var ErrorModesByName = map[string]ErrorMode{
	"DISABLED": ErrorsDisabled,
	"NUMERIC":  ErrorsNumeric,
	"VERBOSE":  ErrorsVerbose,
}

// ErrorModeByName returns the ErrorMode with the given name
func ErrorModeByName(name string) (ErrorMode, error) {
	sanitized := strings.ToUpper(strings.TrimSpace(name))
	result, ok := ErrorModesByName[sanitized]
	if !ok {
		return 0, fmt.Errorf("invalid error mode %s", name)
	}
	return result, nil
}

func (m ErrorMode) String() string {
	for k, v := range ErrorModesByName {
		if v == m {
			return k
		}
	}
	return "UNKNOWN"
}

// MessageFormat is the short message format according to [27.005] 3.2.3
type MessageFormat byte

// All message formats
const (
	PDUFormat MessageFormat = iota
	TextFormat
)

// Identification of the device
type Identification struct {
	Manufacturer string
	Model        string
	Revision     string
	Serial       string
}

// Message is a short message as reported by +CMGL and +CMGR.
type Message struct {
	Index   int
	Status  string
	Address string
	// Timestamp is the service centre time stamp of received messages in the format "yy/MM/dd,hh:mm:ss±zz".
	Timestamp string
	Text      string
}
