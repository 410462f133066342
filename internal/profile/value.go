package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	spoterrors "github.com/spot-perf/spot/internal/errors"
)

var errNotFinite = errors.New("not a finite number")

// Coerce converts a raw global value to the Go type of its datatype: int to
// int64, uint to uint64, double to float64. Values of any other datatype are
// returned unchanged. A value that cannot be converted yields a
// *errors.ValidationError.
func Coerce(datatype Datatype, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch datatype {
	case TypeInt:
		n, err := toInt(v)
		if err != nil {
			return nil, invalid(datatype, v, err)
		}
		return n, nil
	case TypeUint:
		n, err := toUint(v)
		if err != nil {
			return nil, invalid(datatype, v, err)
		}
		return n, nil
	case TypeDouble:
		f, err := ToFloat(v)
		if err != nil {
			return nil, invalid(datatype, v, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, invalid(datatype, v, errNotFinite)
		}
		return f, nil
	default:
		if n, ok := v.(json.Number); ok {
			return n.String(), nil
		}
		return v, nil
	}
}

func invalid(datatype Datatype, v any, err error) error {
	return &spoterrors.ValidationError{
		Value:    FormatValue(v),
		Datatype: string(datatype),
		Err:      err,
	}
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not integral", n)
		}
		return int64(n), nil
	case json.Number:
		return toInt(string(n))
	case string:
		s := strings.TrimSpace(n)
		i, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return i, nil
		}
		// Some producers write integral values in float notation ("3.0").
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != math.Trunc(f) {
			return 0, err
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func toUint(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("%d is negative", n)
		}
		return uint64(n), nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("%d is negative", n)
		}
		return uint64(n), nil
	case float64:
		if n < 0 || n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not a non-negative integer", n)
		}
		return uint64(n), nil
	case json.Number:
		return toUint(string(n))
	case string:
		return strconv.ParseUint(strings.TrimSpace(n), 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// ToFloat converts a numeric value, or a string holding one, to float64.
func ToFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// FormatValue renders a value the way it is written to the key-value index.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case uint64:
		return strconv.FormatUint(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
