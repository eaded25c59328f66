package cubemars

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/notnil/cubemars/canbus"
)

// CommandKind enumerates the CAN packet ids of the CubeMars servo protocol.
// The kind is carried in bits 8..15 of the 29-bit arbitration id.
type CommandKind uint8

const (
	KindSetDuty          CommandKind = 0 // duty cycle loop
	KindSetCurrent       CommandKind = 1 // current loop
	KindSetCurrentBrake  CommandKind = 2 // current brake
	KindSetRPM           CommandKind = 3 // velocity loop
	KindSetPosition      CommandKind = 4 // position loop
	KindSetOriginHere    CommandKind = 5 // set origin
	KindSetPositionSpeed CommandKind = 6 // position + velocity loop
)

func (k CommandKind) String() string {
	switch k {
	case KindSetDuty:
		return "duty"
	case KindSetCurrent:
		return "current"
	case KindSetCurrentBrake:
		return "current-brake"
	case KindSetRPM:
		return "rpm"
	case KindSetPosition:
		return "position"
	case KindSetOriginHere:
		return "set-origin"
	case KindSetPositionSpeed:
		return "position-speed"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// OriginMode selects how KindSetOriginHere fixes the current position.
type OriginMode uint8

const (
	OriginTemporary      OriginMode = 0 // lost on power cycle
	OriginPermanent      OriginMode = 1 // stored in the controller
	OriginRestoreDefault OriginMode = 2 // restore factory origin
)

// Command is one motor setpoint: a kind plus its arguments. Value carries the
// duty cycle, amperes, electrical RPM or degrees depending on Kind; Speed,
// Accel and Origin are only meaningful for the kinds that use them.
type Command struct {
	Kind   CommandKind
	Value  float64
	Speed  int32
	Accel  int32
	Origin OriginMode
}

// Command argument scalings fixed by the controller firmware.
const (
	dutyScale     = 100000.0 // duty cycle -> int32
	ampScale      = 1000.0   // amperes -> int32 milliamps
	degreeScale   = 10000.0  // degrees -> int32/uint32
	positionScale = 0.1      // feedback int16 -> degrees
	velocityScale = 10.0     // feedback int16 -> electrical RPM
	currentScale  = 0.01     // feedback int16 -> amperes
)

// Defaults applied by SetPosition, matching the controller documentation.
const (
	DefaultSpeed int32 = 12000
	DefaultAccel int32 = 40000
)

// payload packs the command arguments into the frame payload. An unknown
// kind yields an empty payload; callers are expected to pass valid kinds.
func (c Command) payload() []byte {
	switch c.Kind {
	case KindSetDuty:
		return packInt32(int32(math.Round(c.Value * dutyScale)))
	case KindSetCurrent, KindSetCurrentBrake:
		return packInt32(int32(math.Round(c.Value * ampScale)))
	case KindSetRPM:
		return packInt32(int32(math.Round(c.Value)))
	case KindSetPosition:
		return packInt32(int32(math.Round(c.Value * degreeScale)))
	case KindSetOriginHere:
		return []byte{byte(c.Origin)}
	case KindSetPositionSpeed:
		// Position is truncated to uint32 and speed/accel to uint16,
		// wrapping on overflow exactly as the controller firmware does.
		buf := make([]byte, 8)
		binary.BigEndian.PutUint32(buf[0:4], uint32(int64(math.Round(c.Value*degreeScale))))
		binary.BigEndian.PutUint16(buf[4:6], uint16(c.Speed))
		binary.BigEndian.PutUint16(buf[6:8], uint16(c.Accel))
		return buf
	default:
		return nil
	}
}

func packInt32(v int32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(v))
	return buf
}

// commandFrame builds the outbound frame for a motor: the controller address
// in the low 8 bits, the command kind shifted left by 8, 29-bit identifier.
func commandFrame(motor uint8, c Command) canbus.Frame {
	var f canbus.Frame
	f.ID = uint32(motor) | uint32(c.Kind)<<8
	f.Extended = true
	p := c.payload()
	f.Len = uint8(len(p))
	copy(f.Data[:], p)
	return f
}

// frameAddress extracts the motor address from an inbound frame identifier.
func frameAddress(f canbus.Frame) uint8 {
	return uint8(f.ID & 0xFF)
}

// Feedback is the periodic telemetry broadcast by the controller.
// The zero value means no feedback has been received yet.
type Feedback struct {
	Position    float64 // degrees
	Velocity    float64 // electrical RPM
	Current     float64 // amperes
	Temperature int8    // °C
	ErrorCode   int8
}

// feedbackLen is the wire size of a feedback payload.
const feedbackLen = 8

// parseFeedback decodes a feedback payload: three big-endian int16 values
// (position, velocity, current) followed by two signed bytes (temperature,
// error code). Any payload length other than 8 yields the zero snapshot.
func parseFeedback(f canbus.Frame) Feedback {
	if f.Len != feedbackLen {
		return Feedback{}
	}
	return Feedback{
		Position:    float64(int16(binary.BigEndian.Uint16(f.Data[0:2]))) * positionScale,
		Velocity:    float64(int16(binary.BigEndian.Uint16(f.Data[2:4]))) * velocityScale,
		Current:     float64(int16(binary.BigEndian.Uint16(f.Data[4:6]))) * currentScale,
		Temperature: int8(f.Data[6]),
		ErrorCode:   int8(f.Data[7]),
	}
}
