package factory

import (
	"math"
	"time"
)

// args reads typed fields out of an untyped config map, as decoded from JSON,
// YAML or built by hand.
type args map[string]any

func (a args) lookup(field string, required bool) (any, bool, error) {
	v, ok := a[field]
	if !ok || v == nil {
		if required {
			return nil, false, missing(field)
		}
		return nil, false, nil
	}
	return v, true, nil
}

func (a args) str(field string, required bool) (string, bool, error) {
	v, ok, err := a.lookup(field, required)
	if !ok {
		return "", false, err
	}
	s, isStr := v.(string)
	if !isStr {
		return "", false, invalid(field, "string", v)
	}
	if s == "" && required {
		return "", false, missing(field)
	}
	return s, true, nil
}

// integer accepts any Go integer, and floats without a fractional part since
// encoding/json decodes every number as float64.
func (a args) integer(field string, required bool) (int, bool, error) {
	v, ok, err := a.lookup(field, required)
	if !ok {
		return 0, false, err
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int8:
		return int(n), true, nil
	case int16:
		return int(n), true, nil
	case int32:
		return int(n), true, nil
	case int64:
		if n >= math.MinInt && n <= math.MaxInt {
			return int(n), true, nil
		}
	case uint:
		if n <= math.MaxInt {
			return int(n), true, nil
		}
	case uint8:
		return int(n), true, nil
	case uint16:
		return int(n), true, nil
	case uint32:
		if uint64(n) <= math.MaxInt {
			return int(n), true, nil
		}
	case uint64:
		if n <= math.MaxInt {
			return int(n), true, nil
		}
	case float32:
		if i, ok := intFromFloat(float64(n)); ok {
			return i, true, nil
		}
	case float64:
		if i, ok := intFromFloat(n); ok {
			return i, true, nil
		}
	}
	return 0, false, invalid(field, "int", v)
}

func (a args) boolean(field string, required bool) (bool, bool, error) {
	v, ok, err := a.lookup(field, required)
	if !ok {
		return false, false, err
	}
	b, isBool := v.(bool)
	if !isBool {
		return false, false, invalid(field, "bool", v)
	}
	return b, true, nil
}

// duration accepts a time.Duration or a string for time.ParseDuration.
func (a args) duration(field string, required bool) (time.Duration, bool, error) {
	v, ok, err := a.lookup(field, required)
	if !ok {
		return 0, false, err
	}
	switch d := v.(type) {
	case time.Duration:
		return d, true, nil
	case string:
		parsed, perr := time.ParseDuration(d)
		if perr == nil {
			return parsed, true, nil
		}
	}
	return 0, false, invalid(field, "duration", v)
}

func (a args) object(field string, required bool) (args, bool, error) {
	v, ok, err := a.lookup(field, required)
	if !ok {
		return nil, false, err
	}
	m, isMap := v.(map[string]any)
	if !isMap {
		return nil, false, invalid(field, "object", v)
	}
	return args(m), true, nil
}

// intFromFloat rejects fractions and anything outside int's range.
// float64(math.MaxInt) rounds up to 2^63, hence the strict upper bound.
func intFromFloat(f float64) (int, bool) {
	if f != math.Trunc(f) || f < math.MinInt || f >= math.MaxInt {
		return 0, false
	}
	return int(f), true
}
