package mapview

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Feature is the evaluation input of an expression.
type Feature struct {
	Zoom       float64
	Properties map[string]any
}

var ErrExpression = errors.New("invalid expression")

// Evaluate computes a style expression. Supported operators are literal, get,
// zoom, interpolate (linear and exponential), ==, != and all.
func Evaluate(expr any, f Feature) (any, error) {
	arr, ok := expr.([]any)
	if !ok {
		return expr, nil
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrExpression)
	}
	op, ok := arr[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: operator %v", ErrExpression, arr[0])
	}

	switch op {
	case "literal":
		if len(arr) != 2 {
			return nil, fmt.Errorf("%w: literal takes one argument", ErrExpression)
		}
		return arr[1], nil
	case "zoom":
		return f.Zoom, nil
	case "get":
		if len(arr) != 2 {
			return nil, fmt.Errorf("%w: get takes one argument", ErrExpression)
		}
		key, ok := arr[1].(string)
		if !ok {
			return nil, fmt.Errorf("%w: get key %v", ErrExpression, arr[1])
		}
		return f.Properties[key], nil
	case "interpolate":
		return interpolate(arr, f)
	case "==", "!=":
		if len(arr) != 3 {
			return nil, fmt.Errorf("%w: %s takes two arguments", ErrExpression, op)
		}
		a, b, err := comparands(arr[1], arr[2], f)
		if err != nil {
			return nil, err
		}
		eq := a == b
		if op == "!=" {
			eq = !eq
		}
		return eq, nil
	case "all":
		for _, sub := range arr[1:] {
			v, err := Evaluate(sub, f)
			if err != nil {
				return nil, err
			}
			if b, _ := v.(bool); !b {
				return false, nil
			}
		}
		return true, nil
	default:
		return nil, fmt.Errorf("%w: unsupported operator %q", ErrExpression, op)
	}
}

// EvaluateNumber evaluates expr and converts the result to a number. Missing
// values count as zero.
func EvaluateNumber(expr any, f Feature) (float64, error) {
	v, err := Evaluate(expr, f)
	if err != nil {
		return 0, err
	}
	return toNumber(v)
}

// Matches reports whether a layer filter accepts the feature. A nil filter
// matches everything. The legacy ["==", key, value] form compares the named
// property.
func Matches(filter any, f Feature) (bool, error) {
	if filter == nil {
		return true, nil
	}
	v, err := Evaluate(filter, f)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

// comparands resolves both sides of a comparison. A bare string on the left
// is a property name, as in legacy filters.
func comparands(left, right any, f Feature) (string, string, error) {
	var a any
	if key, ok := left.(string); ok {
		a = f.Properties[key]
	} else {
		v, err := Evaluate(left, f)
		if err != nil {
			return "", "", err
		}
		a = v
	}
	b, err := Evaluate(right, f)
	if err != nil {
		return "", "", err
	}
	return stringify(a), stringify(b), nil
}

func interpolate(arr []any, f Feature) (any, error) {
	if len(arr) < 5 || len(arr)%2 != 1 {
		return nil, fmt.Errorf("%w: interpolate needs a type, an input and stop pairs", ErrExpression)
	}
	kind, ok := arr[1].([]any)
	if !ok || len(kind) == 0 {
		return nil, fmt.Errorf("%w: interpolation type", ErrExpression)
	}
	base := 1.0
	switch kind[0] {
	case "linear":
	case "exponential":
		if len(kind) != 2 {
			return nil, fmt.Errorf("%w: exponential needs a base", ErrExpression)
		}
		b, err := toNumber(kind[1])
		if err != nil {
			return nil, err
		}
		base = b
	default:
		return nil, fmt.Errorf("%w: interpolation %v", ErrExpression, kind[0])
	}

	x, err := EvaluateNumber(arr[2], f)
	if err != nil {
		return nil, err
	}

	stops := arr[3:]
	inputs := make([]float64, 0, len(stops)/2)
	for i := 0; i < len(stops); i += 2 {
		in, err := toNumber(stops[i])
		if err != nil {
			return nil, err
		}
		if len(inputs) > 0 && in <= inputs[len(inputs)-1] {
			return nil, fmt.Errorf("%w: stop inputs must increase", ErrExpression)
		}
		inputs = append(inputs, in)
	}

	last := len(inputs) - 1
	switch {
	case x <= inputs[0]:
		return EvaluateNumber(stops[1], f)
	case x >= inputs[last]:
		return EvaluateNumber(stops[2*last+1], f)
	}

	i := 0
	for x >= inputs[i+1] {
		i++
	}
	lo, err := EvaluateNumber(stops[2*i+1], f)
	if err != nil {
		return nil, err
	}
	hi, err := EvaluateNumber(stops[2*i+3], f)
	if err != nil {
		return nil, err
	}
	t := interpolationFactor(x, inputs[i], inputs[i+1], base)
	return lo + t*(hi-lo), nil
}

func interpolationFactor(x, lo, hi, base float64) float64 {
	d := hi - lo
	p := x - lo
	if base == 1 {
		return p / d
	}
	return (math.Pow(base, p) - 1) / (math.Pow(base, d) - 1)
}

func toNumber(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrExpression, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %v is not a number", ErrExpression, v)
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(s)
	}
}
