package cubemars

import (
	"bytes"
	"math"
	"testing"

	"github.com/notnil/cubemars/canbus"
)

func TestCommandPayloadEncoding(t *testing.T) {
	cases := []struct {
		name string
		cmd  Command
		want []byte
	}{
		{
			name: "duty half",
			cmd:  Command{Kind: KindSetDuty, Value: 0.5},
			want: []byte{0x00, 0x00, 0xC3, 0x50}, // 50000
		},
		{
			name: "current 5 amps",
			cmd:  Command{Kind: KindSetCurrent, Value: 5.0},
			want: []byte{0x00, 0x00, 0x13, 0x88}, // 5000
		},
		{
			name: "current negative",
			cmd:  Command{Kind: KindSetCurrent, Value: -1.5},
			want: []byte{0xFF, 0xFF, 0xFA, 0x24}, // -1500
		},
		{
			name: "brake current",
			cmd:  Command{Kind: KindSetCurrentBrake, Value: 2.0},
			want: []byte{0x00, 0x00, 0x07, 0xD0}, // 2000
		},
		{
			name: "rpm rounds, no scaling",
			cmd:  Command{Kind: KindSetRPM, Value: 2000.4},
			want: []byte{0x00, 0x00, 0x07, 0xD0}, // 2000
		},
		{
			name: "position degrees",
			cmd:  Command{Kind: KindSetPosition, Value: 90.0},
			want: []byte{0x00, 0x0D, 0xBB, 0xA0}, // 900000
		},
		{
			name: "origin single byte",
			cmd:  Command{Kind: KindSetOriginHere, Origin: OriginPermanent},
			want: []byte{0x01},
		},
		{
			name: "position speed accel",
			cmd:  Command{Kind: KindSetPositionSpeed, Value: 180.0, Speed: 12000, Accel: 40000},
			want: []byte{
				0x00, 0x1B, 0x77, 0x40, // 1800000
				0x2E, 0xE0, // 12000
				0x9C, 0x40, // 40000
			},
		},
		{
			name: "unknown kind empty",
			cmd:  Command{Kind: CommandKind(9), Value: 1},
			want: nil,
		},
	}

	for _, tc := range cases {
		got := tc.cmd.payload()
		if !bytes.Equal(got, tc.want) {
			t.Fatalf("%s: payload = % X, want % X", tc.name, got, tc.want)
		}
	}
}

func TestPositionSpeedWrapsOnOverflow(t *testing.T) {
	// 500000° × 10000 = 5e9, past the uint32 range; the controller expects
	// modulo-2^32 truncation, not an error.
	cmd := Command{Kind: KindSetPositionSpeed, Value: 500000.0, Speed: -1, Accel: 70000}
	got := cmd.payload()
	want := []byte{
		0x2A, 0x05, 0xF2, 0x00, // 5000000000 mod 2^32 = 705032704
		0xFF, 0xFF, // -1 as uint16
		0x11, 0x70, // 70000 mod 2^16 = 4464
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("payload = % X, want % X", got, want)
	}
}

func TestCommandFrameAddressing(t *testing.T) {
	f := commandFrame(20, Command{Kind: KindSetRPM, Value: 2000})
	if f.ID != 0x314 {
		t.Fatalf("id = 0x%X, want 0x314", f.ID)
	}
	if !f.Extended {
		t.Fatalf("command frames must use extended identifiers")
	}
	if f.Len != 4 {
		t.Fatalf("len = %d, want 4", f.Len)
	}
	if frameAddress(f) != 20 {
		t.Fatalf("frameAddress = %d, want 20", frameAddress(f))
	}
}

func TestParseFeedback(t *testing.T) {
	f := canbus.Frame{ID: 0x2914, Extended: true, Len: 8}
	// pos 1800 (180.0°), vel 150 (1500 RPM), cur 250 (2.50 A), 30 °C, err -1
	copy(f.Data[:], []byte{0x07, 0x08, 0x00, 0x96, 0x00, 0xFA, 0x1E, 0xFF})
	fb := parseFeedback(f)
	want := Feedback{Position: 180.0, Velocity: 1500.0, Current: 2.5, Temperature: 30, ErrorCode: -1}
	if fb != want {
		t.Fatalf("feedback = %+v, want %+v", fb, want)
	}

	// Negative position: -300 -> -30.0°
	copy(f.Data[:], []byte{0xFE, 0xD4, 0, 0, 0, 0, 0, 0})
	if got := parseFeedback(f).Position; math.Abs(got-(-30.0)) > 1e-9 {
		t.Fatalf("position = %v, want -30.0", got)
	}
}

func TestParseFeedbackWrongLength(t *testing.T) {
	for _, n := range []uint8{0, 4, 7} {
		f := canbus.Frame{ID: 0x2914, Extended: true, Len: n}
		f.Data = [8]byte{0x07, 0x08, 0x00, 0x96, 0x00, 0xFA, 0x1E, 0x01}
		if got := parseFeedback(f); got != (Feedback{}) {
			t.Fatalf("len %d: feedback = %+v, want zero value", n, got)
		}
	}
	// Eight zero bytes decode to the all-zero snapshot.
	f := canbus.Frame{ID: 0x2914, Extended: true, Len: 8}
	if got := parseFeedback(f); got != (Feedback{}) {
		t.Fatalf("zero payload: feedback = %+v, want zero value", got)
	}
}

func TestFeedbackRoundTripResolution(t *testing.T) {
	// Feedback values survive the wire encoding within a scaling step:
	// 0.1° position, 10 RPM velocity, 0.01 A current.
	cases := []struct {
		pos, vel, cur float64
	}{
		{0, 0, 0},
		{180.0, 1500, 2.5},
		{-30.05, -1234, -0.333},
		{359.94, 12345, 12.34},
	}
	for _, tc := range cases {
		f := canbus.Frame{ID: 0x2901, Extended: true, Len: 8}
		putInt16 := func(off int, v float64) {
			iv := int16(math.Round(v))
			f.Data[off] = byte(uint16(iv) >> 8)
			f.Data[off+1] = byte(uint16(iv))
		}
		putInt16(0, tc.pos/positionScale)
		putInt16(2, tc.vel/velocityScale)
		putInt16(4, tc.cur/currentScale)
		fb := parseFeedback(f)
		if math.Abs(fb.Position-tc.pos) > positionScale/2 {
			t.Fatalf("position %v -> %v", tc.pos, fb.Position)
		}
		if math.Abs(fb.Velocity-tc.vel) > velocityScale/2 {
			t.Fatalf("velocity %v -> %v", tc.vel, fb.Velocity)
		}
		if math.Abs(fb.Current-tc.cur) > currentScale/2 {
			t.Fatalf("current %v -> %v", tc.cur, fb.Current)
		}
	}
}
