package atp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FinalResult is the kind of final result code that terminates a command.
type FinalResult byte

// All final result kinds
const (
	OK FinalResult = iota
	Error
	CMEError
	CMSError
	// Silent terminates the command without any output.
	Silent
)

func (r FinalResult) String() string {
	switch r {
	case OK:
		return "OK"
	case Error:
		return "ERROR"
	case CMEError:
		return "+CME ERROR"
	case CMSError:
		return "+CMS ERROR"
	case Silent:
		return "SILENT"
	default:
		return "UNKNOWN"
	}
}

// numeric result codes according to [V.250] 5.7.1
const (
	numericOK    = "0"
	numericError = "4"
)

// Result is passed to Release to terminate a command.
type Result struct {
	Final FinalResult
	// Code is the CME or CMS error number.
	Code int
	// Text overrides the verbose error text.
	Text string
}

// Predefined results
var (
	ResultOK     = Result{Final: OK}
	ResultError  = Result{Final: Error}
	ResultSilent = Result{Final: Silent}
)

// CMEResult returns a +CME ERROR result with the given code.
func CMEResult(code CME) Result {
	return Result{Final: CMEError, Code: int(code)}
}

// CMSResult returns a +CMS ERROR result with the given code.
func CMSResult(code CMS) Result {
	return Result{Final: CMSError, Code: int(code)}
}

// Successful reports if the result lets a command line continue.
func (r Result) Successful() bool {
	return r.Final == OK || r.Final == Silent
}

func (r Result) String() string {
	switch r.Final {
	case CMEError, CMSError:
		return fmt.Sprintf("%s: %d", r.Final, r.Code)
	default:
		return r.Final.String()
	}
}

// ResultFormat holds the profile settings that influence how results are printed.
type ResultFormat struct {
	Verbose bool
	Quiet   bool
	// ErrorMode is the +CMEE setting: 0 plain ERROR, 1 numeric, 2 verbose.
	ErrorMode int
	CR        byte
	LF        byte
}

// DefaultResultFormat is the factory setting (V1, Q0, +CMEE=0, CR LF)
var DefaultResultFormat = ResultFormat{
	Verbose:   true,
	ErrorMode: 0,
	CR:        '\r',
	LF:        '\n',
}

// FormatResult renders the final result code. It returns nil if nothing is to be printed.
func (f ResultFormat) FormatResult(r Result) []byte {
	if r.Final == Silent || f.Quiet {
		return nil
	}

	var text, numeric string
	switch r.Final {
	case OK:
		text, numeric = "OK", numericOK
	case CMEError, CMSError:
		text, numeric = "ERROR", numericError
		switch f.ErrorMode {
		case 1:
			text = fmt.Sprintf("%s: %d", r.Final, r.Code)
			numeric = text
		case 2:
			text = fmt.Sprintf("%s: %s", r.Final, r.errorText())
			numeric = fmt.Sprintf("%s: %d", r.Final, r.Code)
		}
	default:
		text, numeric = "ERROR", numericError
	}

	if !f.Verbose {
		return []byte(numeric + string(f.CR))
	}
	return f.frame(text)
}

// FormatInfo renders an information text or an unsolicited result line.
func (f ResultFormat) FormatInfo(msg string) []byte {
	if !f.Verbose {
		return []byte(msg + string([]byte{f.CR, f.LF}))
	}
	return f.frame(msg)
}

func (f ResultFormat) frame(text string) []byte {
	result := make([]byte, 0, len(text)+4)
	result = append(result, f.CR, f.LF)
	result = append(result, text...)
	result = append(result, f.CR, f.LF)
	return result
}

func (r Result) errorText() string {
	if r.Text != "" {
		return r.Text
	}
	switch r.Final {
	case CMEError:
		return CME(r.Code).String()
	case CMSError:
		return CMS(r.Code).String()
	default:
		return ""
	}
}

// FinalResultError is returned by AT clients when a command ended with an error result code.
type FinalResultError struct {
	Result Result
	Line   string
}

func (e *FinalResultError) Error() string {
	return e.Line
}

var extendedErrorLine = regexp.MustCompile(`(?i)^\+(CME|CMS) ERROR:\s*(.*)$`)

// ParseResultLine recognizes a final result code line as it is sent by a DCE in verbose mode.
// It returns false if the line is not a final result code.
func ParseResultLine(line string) (Result, bool) {
	saniLine := strings.ToUpper(strings.TrimSpace(line))
	switch {
	case saniLine == "OK":
		return ResultOK, true
	case strings.HasPrefix(saniLine, "ERROR"):
		return ResultError, true
	}

	parts := extendedErrorLine.FindStringSubmatch(strings.TrimSpace(line))
	if len(parts) != 3 {
		return Result{}, false
	}

	result := Result{Final: CMEError}
	if strings.ToUpper(parts[1]) == "CMS" {
		result.Final = CMSError
	}
	code, err := strconv.Atoi(parts[2])
	if err == nil {
		result.Code = code
		return result, true
	}

	// verbose mode, keep the original text and look up the code
	text := strings.TrimSpace(parts[2])
	result.Text = text
	if result.Final == CMEError {
		if cme, ok := CMEByText(text); ok {
			result.Code = int(cme)
		}
	} else {
		if cms, ok := CMSByText(text); ok {
			result.Code = int(cms)
		}
	}
	return result, true
}
