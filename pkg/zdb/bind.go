package zdb

import (
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// bindParams coerces params positionally according to the type signature. An empty signature
// passes the parameters through untouched; an empty parameter list binds nothing.
func bindParams(types string, params []any) ([]any, error) {
	if len(params) == 0 {
		return nil, nil
	}

	if types == "" {
		return params, nil
	}

	if len(types) != len(params) {
		return nil, fmt.Errorf("%w: %q for %d parameters", ErrBindParams, types, len(params))
	}

	args := make([]any, len(params))

	for i, p := range params {
		v, err := coerce(types[i], p)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %d: %w", ErrBindParams, i+1, err)
		}

		args[i] = v
	}

	return args, nil
}

func coerce(t byte, v any) (any, error) {
	if valuer, ok := v.(driver.Valuer); ok {
		resolved, err := valuer.Value()
		if err != nil {
			return nil, err
		}

		v = resolved
	}

	if v == nil {
		return nil, nil
	}

	switch t {
	case 'i':
		return toInt64(v)
	case 'd':
		return toFloat64(v)
	case 's':
		return toString(v), nil
	case 'b':
		return toBytes(v), nil
	default:
		return nil, fmt.Errorf("unknown type %q", t)
	}
}

func toInt64(v any) (any, error) {
	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("%d overflows integer", u)
		}

		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
			return nil, fmt.Errorf("%v overflows integer", f)
		}

		return int64(f), nil
	case reflect.Bool:
		if rv.Bool() {
			return int64(1), nil
		}

		return int64(0), nil
	case reflect.String:
		return strconv.ParseInt(rv.String(), 10, 64)
	default:
		return nil, fmt.Errorf("cannot bind %T as integer", v)
	}
}

func toFloat64(v any) (any, error) {
	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return strconv.ParseFloat(rv.String(), 64)
	default:
		return nil, fmt.Errorf("cannot bind %T as double", v)
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(v)
	}
}

func toBytes(v any) []byte {
	switch t := v.(type) {
	case []byte:
		return t
	case string:
		return []byte(t)
	default:
		return []byte(fmt.Sprint(v))
	}
}
