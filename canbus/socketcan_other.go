//go:build !linux

package canbus

import "errors"

// SocketCAN is a Linux kernel facility; on other platforms use the slcan
// driver with a serial adapter.
func dialSocketCAN(iface string, bitrate int) (Bus, error) {
	return nil, errors.New("canbus: socketcan is only available on linux")
}
