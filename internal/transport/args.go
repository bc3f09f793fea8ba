package transport

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"oscgate/util"
)

// Args is the ordered argument list of a Command.  Each element is a
// string, int32, float32 or bool as decoded off the wire; the accessors
// coerce between numeric and textual forms.
type Args []interface{}

// Len returns the number of arguments.
func (a Args) Len() int { return len(a) }

func (a Args) at(i int) (interface{}, error) {
	if i < 0 || i >= len(a) {
		return nil, fmt.Errorf("missing argument %d (have %d)", i, len(a))
	}
	return a[i], nil
}

// String returns argument i as text with invalid UTF-8 repaired.
// Numbers are formatted in their shortest form.
func (a Args) String(i int) (string, error) {
	v, err := a.at(i)
	if err != nil {
		return "", err
	}
	switch x := v.(type) {
	case string:
		return util.ToValidUTF8(x), nil
	case []byte:
		return util.ToValidUTF8(string(x)), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("argument %d: cannot use %T as text", i, v)
	}
}

// Float returns argument i as a number.  Numeric strings are parsed.
func (a Args) Float(i int) (float64, error) {
	v, err := a.at(i)
	if err != nil {
		return 0, err
	}
	var f float64
	switch x := v.(type) {
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case int:
		f = float64(x)
	case float32:
		f = float64(x)
	case float64:
		f = x
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("argument %d: %q is not a number", i, x)
		}
	default:
		return 0, fmt.Errorf("argument %d: cannot use %T as a number", i, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("argument %d: %v is not finite", i, f)
	}
	return f, nil
}

// Int returns argument i as an integer, truncating fractional values.
func (a Args) Int(i int) (int, error) {
	f, err := a.Float(i)
	if err != nil {
		return 0, err
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("argument %d: %v out of range", i, f)
	}
	return int(f), nil
}

// Flag reports whether argument i equals 1.  A missing or non-numeric
// argument is false.
func (a Args) Flag(i int) bool {
	if i >= 0 && i < len(a) {
		if b, ok := a[i].(bool); ok {
			return b
		}
	}
	f, err := a.Float(i)
	return err == nil && f == 1
}
