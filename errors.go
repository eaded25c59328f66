package cubemars

import "errors"

var (
	// ErrConnectTimeout indicates the transport did not come up within the
	// registry's connect timeout.
	ErrConnectTimeout = errors.New("cubemars: connect timed out")

	// ErrClosed indicates a command was issued on a closed motor handle.
	ErrClosed = errors.New("cubemars: motor closed")

	// ErrAddressInUse indicates a motor with the same address is already
	// open on the bus.
	ErrAddressInUse = errors.New("cubemars: motor address already open")

	// ErrInvalidArgument indicates an out-of-domain command argument; the
	// command is rejected before any frame is sent.
	ErrInvalidArgument = errors.New("cubemars: invalid argument")
)
