package claims

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

var (
	// ErrClaimNotFound is returned by the typed accessors when no claim has the key.
	ErrClaimNotFound = errors.New("claim not found")

	// ErrClaimType is returned when a claim exists but cannot be represented as the requested type.
	ErrClaimType = errors.New("claim has unexpected type")
)

// String returns a single-valued claim as a string.
func (s *Set) String(key string) (string, error) {
	v, err := s.single(key, "string")
	if err != nil {
		return "", err
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	}
	return "", typeError(key, v, "string")
}

// Strings returns a claim as a string slice. A single string yields a
// one-element slice; duplicate keys and JSON arrays are flattened in order.
func (s *Set) Strings(key string) ([]string, error) {
	lookup := s.Lookup(key)
	if lookup.Kind() == Absent {
		return nil, fmt.Errorf("%w: %q", ErrClaimNotFound, key)
	}
	var out []string
	for _, v := range lookup.values {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case []string:
			out = append(out, t...)
		case []any:
			for _, item := range t {
				str, ok := item.(string)
				if !ok {
					return nil, typeError(key, item, "[]string")
				}
				out = append(out, str)
			}
		default:
			return nil, typeError(key, v, "[]string")
		}
	}
	return out, nil
}

// Int64 returns a single-valued claim as an int64. Floats are accepted only
// when they hold an integral value.
func (s *Set) Int64(key string) (int64, error) {
	v, err := s.single(key, "int64")
	if err != nil {
		return 0, err
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, typeError(key, v, "int64")
	}
	return n, nil
}

// Float64 returns a single-valued claim as a float64.
func (s *Set) Float64(key string) (float64, error) {
	v, err := s.single(key, "float64")
	if err != nil {
		return 0, err
	}
	f, ok := toFloat64(v)
	if !ok {
		return 0, typeError(key, v, "float64")
	}
	return f, nil
}

// Bool returns a single-valued claim as a bool.
func (s *Set) Bool(key string) (bool, error) {
	v, err := s.single(key, "bool")
	if err != nil {
		return false, err
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		if b, perr := strconv.ParseBool(t); perr == nil {
			return b, nil
		}
	}
	return false, typeError(key, v, "bool")
}

// Time returns a single-valued claim as a time. Numeric values are read as
// seconds since the Unix epoch (JWT NumericDate); strings must be RFC 3339.
func (s *Set) Time(key string) (time.Time, error) {
	v, err := s.single(key, "time")
	if err != nil {
		return time.Time{}, err
	}
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, perr := time.Parse(time.RFC3339Nano, t)
		if perr != nil {
			return time.Time{}, typeError(key, v, "time")
		}
		return parsed, nil
	}
	f, ok := toFloat64(v)
	if !ok {
		return time.Time{}, typeError(key, v, "time")
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)), nil
}

// As returns the claim for key converted to T. Common scalar targets use the
// typed accessors; any other T must match the stored value exactly, or be
// []any for a multi-valued claim.
func As[T any](s *Set, key string) (T, error) {
	var zero T
	var (
		out any
		err error
	)
	switch any(zero).(type) {
	case string:
		out, err = s.String(key)
	case []string:
		out, err = s.Strings(key)
	case int64:
		out, err = s.Int64(key)
	case int:
		var n int64
		n, err = s.Int64(key)
		if err == nil && (n < math.MinInt || n > math.MaxInt) {
			err = typeError(key, n, "int")
		}
		out = int(n)
	case float64:
		out, err = s.Float64(key)
	case bool:
		out, err = s.Bool(key)
	case time.Time:
		out, err = s.Time(key)
	case []any:
		lookup := s.Lookup(key)
		if lookup.Kind() == Absent {
			return zero, fmt.Errorf("%w: %q", ErrClaimNotFound, key)
		}
		out = lookup.All()
	default:
		var v any
		v, err = s.single(key, fmt.Sprintf("%T", zero))
		if err != nil {
			return zero, err
		}
		t, ok := v.(T)
		if !ok {
			return zero, typeError(key, v, fmt.Sprintf("%T", zero))
		}
		return t, nil
	}
	if err != nil {
		return zero, err
	}
	return out.(T), nil
}

// single returns the only value for key, or an error when the key is absent
// or multi-valued.
func (s *Set) single(key, want string) (any, error) {
	lookup := s.Lookup(key)
	switch lookup.Kind() {
	case Absent:
		return nil, fmt.Errorf("%w: %q", ErrClaimNotFound, key)
	case Multiple:
		return nil, fmt.Errorf("%w: %q has %d values, want a single %s", ErrClaimType, key, len(lookup.values), want)
	}
	return lookup.values[0], nil
}

func typeError(key string, v any, want string) error {
	return fmt.Errorf("%w: %q is %T, want %s", ErrClaimType, key, v, want)
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return uintToInt64(uint64(t))
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return uintToInt64(t)
	case float32:
		return floatToInt64(float64(t))
	case float64:
		return floatToInt64(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return floatToInt64(f)
		}
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	if n, ok := toInt64(v); ok {
		return float64(n), true
	}
	return 0, false
}

func uintToInt64(u uint64) (int64, bool) {
	if u > math.MaxInt64 {
		return 0, false
	}
	return int64(u), true
}

func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
