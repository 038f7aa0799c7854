package serialmux

import (
	"io"
)

// SerialPorter is the minimal interface needed for the sensor link. It lets
// tests and dev mode run without sensor hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}
