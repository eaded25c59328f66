package canbus

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// slcanBus implements Bus over a serial adapter speaking the Lawicel slcan
// ASCII protocol (as used by CANable, USBtin and similar dongles).
type slcanBus struct {
	port serial.Port
	rd   *bufio.Reader

	wmu sync.Mutex // serializes writes to the port

	mu     sync.Mutex
	closed bool
}

// slcan speed codes per the Lawicel command set.
var slcanSpeeds = map[int]byte{
	10000:   '0',
	20000:   '1',
	50000:   '2',
	100000:  '3',
	125000:  '4',
	250000:  '5',
	500000:  '6',
	800000:  '7',
	1000000: '8',
}

// DialSLCAN opens the serial port and configures the adapter for the given
// CAN bitrate (default 1 Mbit/s when zero). The serial link itself runs at
// 115200 baud, which slcan adapters ignore on native USB.
func DialSLCAN(portName string, bitrate int) (Bus, error) {
	if bitrate == 0 {
		bitrate = 1000000
	}
	code, ok := slcanSpeeds[bitrate]
	if !ok {
		return nil, fmt.Errorf("canbus: unsupported slcan bitrate %d", bitrate)
	}
	port, err := serial.Open(portName, &serial.Mode{BaudRate: 115200})
	if err != nil {
		return nil, fmt.Errorf("canbus: open %s: %w", portName, err)
	}
	b := &slcanBus{port: port, rd: bufio.NewReader(port)}
	// Close any stale channel, set speed, open.
	for _, cmd := range []string{"C\r", "S" + string(code) + "\r", "O\r"} {
		if _, err := port.Write([]byte(cmd)); err != nil {
			port.Close()
			return nil, fmt.Errorf("canbus: slcan setup: %w", err)
		}
	}
	return b, nil
}

func (b *slcanBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	b.wmu.Lock()
	b.port.Write([]byte("C\r")) // best effort
	b.wmu.Unlock()
	return b.port.Close()
}

func (b *slcanBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Send transmits one frame as a single slcan line.
func (b *slcanBus) Send(frame Frame) error {
	line, err := marshalSLCAN(frame)
	if err != nil {
		return err
	}
	if b.isClosed() {
		return ErrClosed
	}
	b.wmu.Lock()
	defer b.wmu.Unlock()
	if _, err := b.port.Write([]byte(line)); err != nil {
		if b.isClosed() {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Receive reads lines until one parses as a frame. Command acks ("\r", "z")
// and error bells ("\a") are skipped.
func (b *slcanBus) Receive() (Frame, error) {
	for {
		line, err := b.rd.ReadString('\r')
		if err != nil {
			if b.isClosed() {
				return Frame{}, ErrClosed
			}
			return Frame{}, err
		}
		f, err := unmarshalSLCAN(strings.TrimRight(line, "\r"))
		if err != nil {
			// Not a frame line; keep reading.
			continue
		}
		return f, nil
	}
}

// marshalSLCAN renders a frame as an slcan line including the trailing CR.
// Data frames use t/T, remote frames r/R; uppercase means extended id.
func marshalSLCAN(f Frame) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	var sb strings.Builder
	switch {
	case f.Extended && f.RTR:
		fmt.Fprintf(&sb, "R%08X", f.ID)
	case f.Extended:
		fmt.Fprintf(&sb, "T%08X", f.ID)
	case f.RTR:
		fmt.Fprintf(&sb, "r%03X", f.ID)
	default:
		fmt.Fprintf(&sb, "t%03X", f.ID)
	}
	fmt.Fprintf(&sb, "%d", f.Len)
	if !f.RTR {
		for _, d := range f.Data[:f.Len] {
			fmt.Fprintf(&sb, "%02X", d)
		}
	}
	sb.WriteByte('\r')
	return sb.String(), nil
}

// unmarshalSLCAN parses one slcan line (without the trailing CR).
func unmarshalSLCAN(line string) (Frame, error) {
	if len(line) < 2 {
		return Frame{}, fmt.Errorf("canbus: short slcan line %q", line)
	}
	var f Frame
	idLen := 3
	switch line[0] {
	case 'T':
		f.Extended = true
		idLen = 8
	case 'R':
		f.Extended = true
		f.RTR = true
		idLen = 8
	case 't':
	case 'r':
		f.RTR = true
	default:
		return Frame{}, fmt.Errorf("canbus: not an slcan frame line %q", line)
	}
	if len(line) < 1+idLen+1 {
		return Frame{}, fmt.Errorf("canbus: truncated slcan line %q", line)
	}
	id, err := strconv.ParseUint(line[1:1+idLen], 16, 32)
	if err != nil {
		return Frame{}, fmt.Errorf("canbus: bad slcan id in %q: %w", line, err)
	}
	f.ID = uint32(id)
	n := int(line[1+idLen] - '0')
	if n < 0 || n > 8 {
		return Frame{}, fmt.Errorf("canbus: bad slcan dlc in %q", line)
	}
	f.Len = uint8(n)
	if !f.RTR {
		hexData := line[1+idLen+1:]
		if len(hexData) < 2*n {
			return Frame{}, fmt.Errorf("canbus: truncated slcan data in %q", line)
		}
		for i := 0; i < n; i++ {
			v, err := strconv.ParseUint(hexData[2*i:2*i+2], 16, 8)
			if err != nil {
				return Frame{}, fmt.Errorf("canbus: bad slcan data in %q: %w", line, err)
			}
			f.Data[i] = byte(v)
		}
	}
	return f, f.Validate()
}
