package vending

import (
	"encoding/json"
	"fmt"
	"math"
)

// paramReader reads typed command parameters with defaults. The first
// type mismatch is kept in err and later reads return their defaults.
type paramReader struct {
	params map[string]any
	err    error
}

func (r *paramReader) str(key, def string) string {
	v, ok := r.params[key]
	if !ok || v == nil || r.err != nil {
		return def
	}
	s, ok := v.(string)
	if !ok {
		r.err = fmt.Errorf("%w: %s must be a string", ErrInvalidParams, key)
		return def
	}
	return s
}

// requiredStr reads a non-empty string parameter.
func (r *paramReader) requiredStr(key string) string {
	s := r.str(key, "")
	if s == "" && r.err == nil {
		r.err = fmt.Errorf("%w: %s is required", ErrInvalidParams, key)
	}
	return s
}

// maxParamInt bounds integer parameters so conversions cannot overflow.
const maxParamInt = math.MaxInt32

func (r *paramReader) int(key string, def int) int {
	v, ok := r.params[key]
	if !ok || v == nil || r.err != nil {
		return def
	}
	var (
		n     int64
		valid bool
	)
	switch x := v.(type) {
	case float64:
		if x == math.Trunc(x) && math.Abs(x) <= maxParamInt {
			n, valid = int64(x), true
		}
	case int:
		n, valid = int64(x), true
	case int64:
		n, valid = x, true
	case json.Number:
		if i, err := x.Int64(); err == nil {
			n, valid = i, true
		}
	}
	if !valid || n > maxParamInt || n < -maxParamInt {
		r.err = fmt.Errorf("%w: %s must be an integer", ErrInvalidParams, key)
		return def
	}
	return int(n)
}
