package solutions

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSolutions = `{
  "generated_at": "2026-01-10",
  "top_solutions": [
    {"rank": 2, "efficiency": 94.2, "F1": 850, "F2": 20.1},
    {"rank": 1, "efficiency": 95.456, "F1": 1000.126, "F2": 21, "F15": 12.5},
    {"rank": 3, "efficiency": 93.8, "F1": 920}
  ]
}`

func TestParse(t *testing.T) {
	sol, err := Parse([]byte(sampleSolutions))
	require.NoError(t, err)

	assert.Equal(t, 1, sol.Rank)
	assert.Equal(t, 3, sol.TotalSolutions)
	assert.JSONEq(t, `{"rank": 1, "efficiency": 95.456, "F1": 1000.126, "F2": 21, "F15": 12.5}`, string(sol.Solution))
	assert.Equal(t, 1000.126, sol.Parameters["FeedSize"])
	assert.Equal(t, 21.0, sol.Parameters["ProductSize"])
	assert.Equal(t, 12.5, sol.Parameters["PackingRate"])
	assert.Equal(t, 1.0, sol.Parameters["rank"])
	assert.NotContains(t, sol.Parameters, "F1")

	eff, ok := sol.Efficiency()
	require.True(t, ok)
	assert.Equal(t, 95.456, eff)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"invalid json", `{"top_solutions": [`, "JSON parse error: "},
		{"list root", `[{"rank": 1}]`, "Expected dict but got list"},
		{"string root", `"hello"`, "Expected dict but got str"},
		{"int root", `42`, "Expected dict but got int"},
		{"float root", `4.2`, "Expected dict but got float"},
		{"null root", `null`, "Expected dict but got NoneType"},
		{"missing key", `{"solutions": [], "meta": {}}`, `"top_solutions" key not found. Available keys: ['solutions', 'meta']`},
		{"not a list", `{"top_solutions": {"rank": 1}}`, "top_solutions should be non-empty list"},
		{"empty list", `{"top_solutions": []}`, "top_solutions should be non-empty list"},
		{"no rank 1", `{"top_solutions": [{"rank": 2}, {"rank": "1"}, 1]}`, "No solution with rank=1 found"},
		{"rank true", `{"top_solutions": [{"rank": true}]}`, "No solution with rank=1 found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			var fe *FormatError
			require.True(t, errors.As(err, &fe), "expected FormatError, got %v", err)
			assert.Contains(t, fe.Msg, tt.want)
		})
	}
}

func TestParseAliasAndNameTogether(t *testing.T) {
	const entry = `{"rank":1,"efficiency":95.5,"F1":900,"FeedSize":910,"F2":21}`
	sol, err := Parse([]byte(`{"top_solutions":[` + entry + `]}`))
	require.NoError(t, err)

	assert.JSONEq(t, entry, string(sol.Solution), "solution is served verbatim")
	assert.Equal(t, 910.0, sol.Parameters["FeedSize"], "the named value wins over F1")
	assert.Equal(t, 21.0, sol.Parameters["ProductSize"])
	assert.NotContains(t, sol.Parameters, "F1")

	resp := Response(sol, time.Now())
	assert.Equal(t, true, resp["success"])
}

func TestParseRankAsFloat(t *testing.T) {
	sol, err := Parse([]byte(`{"top_solutions": [{"rank": 1.0, "predicted_efficiency": 91}]}`))
	require.NoError(t, err)
	eff, ok := sol.Efficiency()
	require.True(t, ok)
	assert.Equal(t, 91.0, eff)
}

func TestSourceLocateOrder(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "notebooks", "top_nonlinear_solutions.json")
	second := filepath.Join(dir, "top_nonlinear_solutions.json")
	require.NoError(t, os.WriteFile(second, []byte(sampleSolutions), 0o644))

	src := NewSource([]string{first, second})
	path, _, err := src.Locate()
	require.NoError(t, err)
	assert.Equal(t, second, path)

	require.NoError(t, os.MkdirAll(filepath.Dir(first), 0o755))
	require.NoError(t, os.WriteFile(first, []byte(sampleSolutions), 0o644))
	path, _, err = src.Locate()
	require.NoError(t, err)
	assert.Equal(t, first, path)
}

func TestSourceNotFound(t *testing.T) {
	dir := t.TempDir()
	src := NewSource([]string{filepath.Join(dir, "a.json"), dir})

	_, err := src.Load()
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	cwd, _ := os.Getwd()
	assert.Equal(t, cwd, nf.Cwd)
	assert.Contains(t, nf.Error(), "Current dir: "+cwd)
	assert.Len(t, nf.Tried, 2)
}

func TestSourceCachesUntilFileChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "top_nonlinear_solutions.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleSolutions), 0o644))

	src := NewSource([]string{path})
	first, err := src.Load()
	require.NoError(t, err)
	assert.Equal(t, path, first.SourcePath)

	again, err := src.Load()
	require.NoError(t, err)
	assert.Same(t, first, again)

	src.Invalidate()
	again, err = src.Load()
	require.NoError(t, err)
	assert.NotSame(t, first, again)

	updated := `{"top_solutions": [{"rank": 1, "efficiency": 97.1, "F1": 950}]}`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	changed, err := src.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, changed.TotalSolutions)
	assert.Equal(t, 950.0, changed.Parameters["FeedSize"])
}

func TestSourceInvalidFileIsNotCached(t *testing.T) {
	path := filepath.Join(t.TempDir(), "top_nonlinear_solutions.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"top_solutions": []}`), 0o644))

	src := NewSource([]string{path})
	_, err := src.Load()
	var fe *FormatError
	require.True(t, errors.As(err, &fe))

	require.NoError(t, os.WriteFile(path, []byte(sampleSolutions), 0o644))
	sol, err := src.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, sol.TotalSolutions)
}

func TestWriteCSV(t *testing.T) {
	sol, err := Parse([]byte(sampleSolutions))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sol))

	want := "Feature,Optimal Value\n" +
		"Feed Size,1000.13\n" +
		"Product Size,21.00\n" +
		"Packing Rate,12.50\n" +
		"\nMaximum Efficiency,95.46%\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSVWithoutEfficiency(t *testing.T) {
	sol, err := Parse([]byte(`{"top_solutions": [{"rank": 1, "F3": 1700, "note": "manual"}]}`))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sol))
	assert.Equal(t, "Feature,Optimal Value\nMill Power Consumption 1,1700.00\nnote,manual\n\nMaximum Efficiency,N/A\n", buf.String())
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Feed Size", Label("F1"))
	assert.Equal(t, "Packing Rate", Label("PackingRate"))
	assert.Equal(t, "Secondary Air Temperature", Label("F10"))
	assert.Equal(t, "F16", Label("F16"))
}

func TestToStruct(t *testing.T) {
	sol, err := Parse([]byte(sampleSolutions))
	require.NoError(t, err)

	now := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	st, err := ToStruct(sol, now)
	require.NoError(t, err)

	m := st.AsMap()
	assert.Equal(t, true, m["success"])
	assert.Equal(t, 1.0, m["rank"])
	assert.Equal(t, 3.0, m["total_solutions"])
	assert.Equal(t, "2026-01-10T09:30:00Z", m["timestamp"])
	solution := m["solution"].(map[string]any)
	assert.Equal(t, 1000.126, solution["F1"])
	params := m["parameters"].(map[string]any)
	assert.Equal(t, 12.5, params["PackingRate"])
}
