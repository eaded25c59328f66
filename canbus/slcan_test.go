package canbus

import (
	"testing"
)

func TestSLCAN_MarshalUnmarshal(t *testing.T) {
	cases := []struct {
		name  string
		frame Frame
		line  string
	}{
		{
			name:  "standard data",
			frame: MustFrame(0x123, []byte{0xDE, 0xAD}),
			line:  "t1232DEAD\r",
		},
		{
			name:  "extended data",
			frame: Frame{ID: 0x314, Extended: true, Len: 4, Data: [8]byte{0x00, 0x00, 0x07, 0xD0}},
			line:  "T000003144000007D0\r",
		},
		{
			name:  "extended empty",
			frame: Frame{ID: 0x1ABCDEFF, Extended: true, Len: 0},
			line:  "T1ABCDEFF0\r",
		},
		{
			name:  "standard rtr",
			frame: Frame{ID: 0x7FF, RTR: true, Len: 2},
			line:  "r7FF2\r",
		},
	}

	for _, tc := range cases {
		got, err := marshalSLCAN(tc.frame)
		if err != nil {
			t.Fatalf("%s: marshal: %v", tc.name, err)
		}
		if got != tc.line {
			t.Fatalf("%s: marshal = %q, want %q", tc.name, got, tc.line)
		}
		back, err := unmarshalSLCAN(tc.line[:len(tc.line)-1])
		if err != nil {
			t.Fatalf("%s: unmarshal: %v", tc.name, err)
		}
		if back != tc.frame {
			t.Fatalf("%s: roundtrip mismatch: got %+v want %+v", tc.name, back, tc.frame)
		}
	}
}

func TestSLCAN_UnmarshalRejectsGarbage(t *testing.T) {
	for _, line := range []string{
		"",
		"z",        // command ack
		"\a",       // error bell
		"t12",      // truncated id
		"t1239",    // dlc out of range
		"t1232DE",  // truncated data
		"T0003144", // short extended id
		"x1231FF",  // unknown type
	} {
		if _, err := unmarshalSLCAN(line); err == nil {
			t.Fatalf("expected error for %q", line)
		}
	}
}

func TestDial_UnknownDriver(t *testing.T) {
	if _, err := Dial("pigeon", "coop0", 0); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
