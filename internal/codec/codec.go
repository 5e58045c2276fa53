// Package codec converts between engineering values and 16-bit Modbus registers.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// SetpointScale is the fixed-point factor of the two-register setpoint.
	SetpointScale = 1000.0
	// FlowScale is the default divisor for the signed flow register.
	FlowScale = 10.0
)

var ErrSetpointRange = errors.New("setpoint out of range")

// EncodeSetpoint truncates v*1000 toward zero to a signed 32-bit integer and
// splits it into high and low words. Negative values come out in two's complement.
func EncodeSetpoint(v float64) (high, low uint16, err error) {
	scaled := math.Trunc(v * SetpointScale)
	if math.IsNaN(scaled) || scaled >= math.MaxInt32+1 || scaled < math.MinInt32 {
		return 0, 0, fmt.Errorf("%w: %v", ErrSetpointRange, v)
	}
	n := int32(scaled)
	return uint16(n >> 16), uint16(n & 0xFFFF), nil
}

func DecodeSetpoint(high, low uint16) float64 {
	n := int32(uint32(high)<<16 | uint32(low))
	return float64(n) / SetpointScale
}

func Signed16(raw uint16) int16 {
	return int16(raw)
}

// DecodeFlow reinterprets raw as int16 and divides by scale.
func DecodeFlow(raw uint16, scale float64) float64 {
	if scale == 0 {
		scale = FlowScale
	}
	return float64(Signed16(raw)) / scale
}

// UnpackRegisters turns a big-endian register payload into words.
// A trailing odd byte is ignored.
func UnpackRegisters(b []byte) []uint16 {
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(b[i*2:])
	}
	return out
}
