// Package serial opens the serial port an AT instance is served on.
package serial

import (
	"errors"
	"io"

	"github.com/jacobsa/go-serial/serial"
)

// ErrNoPortFound is returned if no serial port matches the requested description.
var ErrNoPortFound = errors.New("no matching serial port found")

// DefaultBaudRate is the baud rate of the AT interface after power up.
const DefaultBaudRate = 115200

// Port describes a serial port.
type Port struct {
	// PortName is the device file, e.g. /dev/ttyUSB0.
	PortName string
	BaudRate uint
	// FlowControl enables RTS/CTS hardware flow control.
	FlowControl bool
}

// Open the given serial port with 8N1 framing.
func Open(port Port) (io.ReadWriteCloser, error) {
	baudRate := port.BaudRate
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	options := serial.OpenOptions{
		PortName:              port.PortName,
		BaudRate:              baudRate,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		RTSCTSFlowControl:     port.FlowControl,
		MinimumReadSize:       1,
		InterCharacterTimeout: 100,
	}

	return serial.Open(options)
}
