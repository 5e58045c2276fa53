package util

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ToFloat64 accepts the loosely typed numbers that arrive in JSON commands.
func ToFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("value is required")
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}

// ToUint16 is ToFloat64 restricted to whole numbers in 0..65535.
func ToUint16(v any) (uint16, error) {
	f, err := ToFloat64(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f < 0 || f > math.MaxUint16 {
		return 0, fmt.Errorf("value %v is not a register value", v)
	}
	return uint16(f), nil
}

// WordsToHex renders registers as "0x0000 0x7530" for logs and CLI output.
func WordsToHex(words []uint16) string {
	var s strings.Builder
	for i, w := range words {
		if i > 0 {
			s.WriteByte(' ')
		}
		fmt.Fprintf(&s, "0x%04X", w)
	}
	return s.String()
}
