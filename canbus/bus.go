package canbus

import (
	"errors"
	"fmt"
)

// Bus represents a CAN bus connection which can send and receive CAN frames.
// Implementations must be safe for concurrent use by multiple goroutines;
// in particular, Send may be called while another goroutine blocks in Receive.
type Bus interface {
	// Send transmits a frame. It may block until the frame is queued or sent.
	Send(frame Frame) error

	// Receive blocks until the next frame is available or the bus is closed.
	Receive() (Frame, error)

	// Close releases resources and unblocks pending Receive calls.
	Close() error
}

// ErrClosed indicates the bus or endpoint has been closed.
var ErrClosed = errors.New("canbus: closed")

// Dial opens a Bus for the named driver. Supported drivers:
//
//	"socketcan" — channel is a CAN network device (e.g. "can0"); Linux only.
//	              A non-zero bitrate reconfigures the device via iproute2,
//	              which requires CAP_NET_ADMIN.
//	"slcan"     — channel is a serial port (e.g. "/dev/ttyACM0") speaking the
//	              Lawicel slcan ASCII protocol.
func Dial(driver, channel string, bitrate int) (Bus, error) {
	switch driver {
	case "socketcan", "can":
		return dialSocketCAN(channel, bitrate)
	case "slcan", "serial":
		return DialSLCAN(channel, bitrate)
	default:
		return nil, fmt.Errorf("canbus: unknown driver %q", driver)
	}
}
