package cell

import (
	"fmt"
	"math"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"

	"github.com/mesh-intelligence/kvsync/pkg/types"
)

// decode converts a raw store value to T. It reports false when raw is not
// compatible with T, in which case callers fall back to the default.
//
// Compatible means one of:
//   - raw already has type T
//   - raw and T share a basic kind (string, bool, []byte) and T is a named type
//   - raw is a number T holds exactly, at the top level or nested
//   - raw is a map[string]any or []any that decodes into T with strict typing
func decode[T any](raw any) (T, bool) {
	var zero T
	if raw == nil {
		return zero, false
	}
	if v, ok := raw.(T); ok {
		return v, true
	}

	target := reflect.TypeFor[T]()
	out := reflect.New(target).Elem()

	switch target.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		if !setNumber(out, raw) {
			return zero, false
		}
	case reflect.String:
		s, ok := raw.(string)
		if !ok {
			return zero, false
		}
		out.SetString(s)
	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return zero, false
		}
		out.SetBool(b)
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		if b, ok := raw.([]byte); ok && target.Kind() == reflect.Slice && target.Elem().Kind() == reflect.Uint8 {
			out.SetBytes(append([]byte(nil), b...))
			break
		}
		return decodeComposite[T](raw)
	case reflect.Pointer:
		if target.Elem().Kind() != reflect.Struct {
			return zero, false
		}
		return decodeComposite[T](raw)
	default:
		return zero, false
	}
	return out.Interface().(T), true
}

func decodeComposite[T any](raw any) (T, bool) {
	var zero T
	switch raw.(type) {
	case map[string]any, []any:
	default:
		return zero, false
	}

	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &out,
		TagName:    "json",
		DecodeHook: strictNumbers,
	})
	if err != nil {
		return zero, false
	}
	if err := dec.Decode(raw); err != nil {
		return zero, false
	}
	return out, true
}

// encode converts v to a value a store accepts. Structs become
// map[string]any keyed by their json field names; everything else passes
// through for the store to normalize.
func encode[T any](v T) (any, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, fmt.Errorf("%w: nil", types.ErrInvalidValue)
	}
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("%w: nil %s", types.ErrInvalidValue, rv.Type())
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return v, nil
	}

	var m map[string]any
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &m,
		TagName: "json",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(rv.Interface()); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidValue, err)
	}
	return m, nil
}

// strictNumbers is a mapstructure decode hook that applies the lossless
// number rules of decode to nested fields.
func strictNumbers(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if !isNumber(data) || !isNumeric(to.Kind()) {
		return data, nil
	}
	out := reflect.New(to).Elem()
	if !setNumber(out, data) {
		return nil, fmt.Errorf("%v does not fit %s without loss", data, to)
	}
	return out.Interface(), nil
}

// setNumber stores raw in the numeric value out. It reports false when raw
// is not a number or out cannot hold it exactly.
func setNumber(out reflect.Value, raw any) bool {
	switch out.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := toInt64(raw)
		if !ok || out.OverflowInt(n) {
			return false
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, ok := toUint64(raw)
		if !ok || out.OverflowUint(n) {
			return false
		}
		out.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, ok := toFloat64(raw)
		if !ok || out.OverflowFloat(f) {
			return false
		}
		if out.Kind() == reflect.Float32 && !math.IsNaN(f) && float64(float32(f)) != f {
			return false
		}
		out.SetFloat(f)
	default:
		return false
	}
	return true
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isNumber(raw any) bool {
	switch raw.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

func toInt64(raw any) (int64, bool) {
	if !isNumber(raw) {
		return 0, false
	}
	switch x := raw.(type) {
	case float32, float64:
		f := cast.ToFloat64(x)
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, false
		}
	case uint, uint64:
		if cast.ToUint64(x) > math.MaxInt64 {
			return 0, false
		}
	}
	n, err := cast.ToInt64E(raw)
	return n, err == nil
}

func toUint64(raw any) (uint64, bool) {
	if !isNumber(raw) {
		return 0, false
	}
	switch x := raw.(type) {
	case float32, float64:
		f := cast.ToFloat64(x)
		if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
			return 0, false
		}
	case int, int8, int16, int32, int64:
		if cast.ToInt64(x) < 0 {
			return 0, false
		}
	}
	n, err := cast.ToUint64E(raw)
	return n, err == nil
}

// toFloat64 converts raw to float64, rejecting integers beyond 2^53 that
// would round.
func toFloat64(raw any) (float64, bool) {
	switch x := raw.(type) {
	case float32, float64:
		return cast.ToFloat64(x), true
	case int, int8, int16, int32, int64:
		n := cast.ToInt64(x)
		f := float64(n)
		if f >= math.MaxInt64 || int64(f) != n {
			return 0, false
		}
		return f, true
	case uint, uint8, uint16, uint32, uint64:
		u := cast.ToUint64(x)
		f := float64(u)
		if f >= math.MaxUint64 || uint64(f) != u {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
