//go:build integration
// +build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cementai/plant-core/internal/server"
	"github.com/cementai/plant-core/internal/solutions"
	"github.com/cementai/plant-core/internal/watch"
)

func getSolution(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url + "/get-optimal-solution")
	if err != nil {
		t.Fatalf("GET /get-optimal-solution: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, body
}

func TestIntegration_OptimalSolutionLifecycle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "top_nonlinear_solutions.json")
	source := solutions.NewSource([]string{path})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	w, err := watch.New(source.Paths(), 50*time.Millisecond, func([]string) {
		source.Invalidate()
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("watch.New: %v", err)
	}
	go func() {
		_ = w.Run(ctx)
	}()

	ts := httptest.NewServer(server.NewOptimizerServer(source, nil).Handler())
	defer ts.Close()

	status, body := getSolution(t, ts.URL)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 before the file exists, got %d", status)
	}
	if msg, _ := body["error"].(string); !strings.HasPrefix(msg, "JSON file not found") {
		t.Fatalf("unexpected error %q", msg)
	}

	time.Sleep(100 * time.Millisecond)
	writeJSONFile(t, path, map[string]any{
		"top_solutions": []map[string]any{
			{"rank": 1, "efficiency": 91.5, "F1": 1000},
		},
	})
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the solutions file event")
	}

	status, body = getSolution(t, ts.URL)
	if status != http.StatusOK || body["rank"] != float64(1) {
		t.Fatalf("unexpected response %d %v", status, body)
	}

	resp, err := http.Get(ts.URL + "/get-optimal-solution.csv")
	if err != nil {
		t.Fatalf("GET csv: %v", err)
	}
	defer resp.Body.Close()
	csv, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(csv), "Maximum Efficiency,91.50%") {
		t.Fatalf("unexpected CSV %q", csv)
	}
}
