package filesdb

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ColumnType is a column's declared type tag as stored in the meta document.
type ColumnType string

const (
	// TypeInt columns hold signed 64-bit integers.
	TypeInt ColumnType = "INT"

	// TypeText columns hold strings.
	TypeText ColumnType = "TEXT"
)

// ColumnTypes lists the supported tags.
var ColumnTypes = []ColumnType{TypeInt, TypeText}

// ParseColumnType returns the tag for s. Tags are case-sensitive.
func ParseColumnType(s string) (ColumnType, error) {
	t := ColumnType(s)
	if err := t.validate(); err != nil {
		return "", err
	}

	return t, nil
}

func (t ColumnType) validate() error {
	switch t {
	case TypeInt, TypeText:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownColumnType, string(t))
	}
}

// coerce validates a record value for the column and returns its stored form
// (int64 for INT, string for TEXT).
func (t ColumnType) coerce(v any) (any, error) {
	switch t {
	case TypeInt:
		n, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("%w: %v (%T) is not INT", ErrRecordTypeMismatch, v, v)
		}

		return n, nil
	case TypeText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %v (%T) is not TEXT", ErrRecordTypeMismatch, v, v)
		}

		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumnType, string(t))
	}
}

// parseLiteral coerces a query literal to the column type.
func (t ColumnType) parseLiteral(s string) (any, error) {
	switch t {
	case TypeInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not INT", ErrTypeCoercion, s)
		}

		return n, nil
	case TypeText:
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumnType, string(t))
	}
}

// matches reports whether a decoded record value equals a coerced literal.
// Values of any other JSON type never match.
func (t ColumnType) matches(stored any, literal any) bool {
	switch t {
	case TypeInt:
		want, ok := literal.(int64)
		if !ok {
			return false
		}

		got, ok := toInt64(stored)

		return ok && got == want
	case TypeText:
		got, ok := stored.(string)
		if !ok {
			return false
		}

		want, ok := literal.(string)

		return ok && got == want
	default:
		return false
	}
}

// keyString renders a coerced value as a file identifier.
func keyString(v any) string {
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// toInt64 accepts Go integer kinds, integral floats and integral json.Number.
// Booleans are rejected.
func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return uintToInt64(uint64(x))
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return uintToInt64(x)
	case float32:
		return floatToInt64(float64(x))
	case float64:
		return floatToInt64(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}

		f, err := x.Float64()
		if err != nil {
			return 0, false
		}

		return floatToInt64(f)
	default:
		return 0, false
	}
}

func uintToInt64(u uint64) (int64, bool) {
	if u > math.MaxInt64 {
		return 0, false
	}

	return int64(u), true
}

func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}

	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}

	return int64(f), true
}
