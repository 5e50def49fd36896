package features

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// InvalidFeatureError reports a payload value that cannot be read as a
// number.
type InvalidFeatureError struct {
	Feature string
	Value   any
	Reason  string
}

func (e *InvalidFeatureError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Feature, e.Reason, e.Value)
}

// Extract builds the ordered vector from a decoded JSON object. Missing
// features count as 0; keys that are not features are ignored.
func Extract(payload map[string]any) (Vector, error) {
	var v Vector
	for i, name := range Names {
		raw, ok := payload[name]
		if !ok {
			continue
		}
		f, err := toFloat(raw)
		if err != nil {
			return Vector{}, &InvalidFeatureError{Feature: name, Value: raw, Reason: err.Error()}
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Vector{}, &InvalidFeatureError{Feature: name, Value: raw, Reason: "value must be finite"}
		}
		v[i] = f
	}
	return v, nil
}

func toFloat(raw any) (float64, error) {
	switch x := raw.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("could not convert string to float: %q", x)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("value is null")
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
}
