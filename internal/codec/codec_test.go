package codec

import (
	"errors"
	"math"
	"testing"
)

func TestEncodeSetpoint(t *testing.T) {
	cases := []struct {
		in        float64
		high, low uint16
	}{
		{30.5, 0, 30500},
		{0, 0, 0},
		{70, 1, 4464},
		{-1, 0xFFFF, 0xFC18},
		{1.9999, 0, 1999},
		{-0.0005, 0, 0},
	}
	for _, c := range cases {
		h, l, err := EncodeSetpoint(c.in)
		if err != nil {
			t.Fatalf("EncodeSetpoint(%v) err: %v", c.in, err)
		}
		if h != c.high || l != c.low {
			t.Fatalf("EncodeSetpoint(%v) = (%d,%d), want (%d,%d)", c.in, h, l, c.high, c.low)
		}
	}
}

func TestEncodeSetpointRoundTrip(t *testing.T) {
	for _, v := range []float64{0, 12.345, -12.345, 2000, 2147483.647, -2147483.648} {
		h, l, err := EncodeSetpoint(v)
		if err != nil {
			t.Fatalf("EncodeSetpoint(%v) err: %v", v, err)
		}
		n := int32(uint32(h)<<16 | uint32(l))
		if want := int32(math.Trunc(v * 1000)); n != want {
			t.Fatalf("reassembled %d, want %d", n, want)
		}
		if got := DecodeSetpoint(h, l); math.Abs(got-float64(n)/1000) > 1e-9 {
			t.Fatalf("DecodeSetpoint = %v", got)
		}
	}
}

func TestEncodeSetpointRejectsOverflow(t *testing.T) {
	for _, v := range []float64{2147483.65, -2147483.65, 1e12, math.Inf(1), math.NaN()} {
		if _, _, err := EncodeSetpoint(v); !errors.Is(err, ErrSetpointRange) {
			t.Fatalf("EncodeSetpoint(%v) err = %v, want ErrSetpointRange", v, err)
		}
	}
}

func TestDecodeFlow(t *testing.T) {
	cases := []struct {
		raw  uint16
		want float64
	}{
		{300, 30.0},
		{0xFFFF, -0.1},
		{0, 0},
		{0x8000, -3276.8},
		{0x7FFF, 3276.7},
	}
	for _, c := range cases {
		if got := DecodeFlow(c.raw, FlowScale); math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("DecodeFlow(%#x) = %v, want %v", c.raw, got, c.want)
		}
	}
	if got := DecodeFlow(300, 0); got != 30 {
		t.Fatalf("zero scale should fall back to FlowScale, got %v", got)
	}
}

func TestUnpackRegisters(t *testing.T) {
	words := UnpackRegisters([]byte{0x01, 0x2C, 0xFF, 0xFF, 0x07})
	if len(words) != 2 || words[0] != 300 || words[1] != 0xFFFF {
		t.Fatalf("UnpackRegisters = %v", words)
	}
}
