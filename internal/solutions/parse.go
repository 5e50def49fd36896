// Package solutions reads the optimizer output and extracts the rank-1
// operating point.
package solutions

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/cementai/plant-core/internal/features"
	"github.com/cementai/plant-core/pkg/logger"
	"github.com/cementai/plant-core/pkg/models"
)

// Parse extracts the rank-1 solution from the contents of a solutions file.
func Parse(data []byte) (*models.OptimalSolution, error) {
	if !gjson.ValidBytes(data) {
		var v any
		msg := "invalid JSON"
		if err := json.Unmarshal(data, &v); err != nil {
			msg = err.Error()
		}
		return nil, formatErrorf("JSON parse error: %s", msg)
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, formatErrorf("Expected dict but got %s", kindOf(root))
	}

	var keys []string
	root.ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	logger.Info("solutions file parsed", "keys", keys)

	top := root.Get("top_solutions")
	if !top.Exists() {
		return nil, formatErrorf(`"top_solutions" key not found. Available keys: %s`, pyList(keys))
	}
	if !top.IsArray() {
		return nil, formatErrorf("top_solutions should be non-empty list")
	}
	entries := top.Array()
	if len(entries) == 0 {
		return nil, formatErrorf("top_solutions should be non-empty list")
	}
	logger.Info("found top_solutions", "total", len(entries))

	var best *gjson.Result
	for i := range entries {
		e := entries[i]
		if !e.IsObject() {
			continue
		}
		// only a numeric rank counts; a boolean true is not rank 1
		if r := e.Get("rank"); r.Type == gjson.Number && r.Num == 1 {
			best = &e
			break
		}
	}
	if best == nil {
		return nil, formatErrorf("No solution with rank=1 found")
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(best.Raw), &record); err != nil {
		return nil, formatErrorf("JSON parse error: %s", err)
	}
	params, shadowed := features.Rename(record)
	if len(shadowed) > 0 {
		logger.Warn("rank 1 solution names features twice, keeping the named values", "features", shadowed)
	}

	sol := &models.OptimalSolution{
		Rank:           1,
		Solution:       json.RawMessage(best.Raw),
		Parameters:     params,
		TotalSolutions: len(entries),
	}
	if eff, ok := sol.Efficiency(); ok {
		logger.Info("extracted rank 1 solution", "efficiency", eff)
	} else {
		logger.Info("extracted rank 1 solution", "efficiency", "N/A")
	}
	return sol, nil
}

// kindOf names a JSON value the way the optimizer's own tooling does.
func kindOf(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return "str"
	case gjson.Number:
		if strings.ContainsAny(r.Raw, ".eE") {
			return "float"
		}
		return "int"
	case gjson.True, gjson.False:
		return "bool"
	case gjson.Null:
		return "NoneType"
	}
	if r.IsArray() {
		return "list"
	}
	return "dict"
}

// pyList renders keys as ['a', 'b'].
func pyList(keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = "'" + k + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// fieldOrder returns the keys of the verbatim solution in file order.
func fieldOrder(raw json.RawMessage) []string {
	var keys []string
	gjson.ParseBytes(raw).ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	return keys
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', 2, 64)
	case string:
		return x
	case nil:
		return "null"
	default:
		data, _ := json.Marshal(x)
		return string(data)
	}
}
