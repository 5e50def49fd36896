//go:build integration
// +build integration

package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cementai/plant-core/internal/cache"
	"github.com/cementai/plant-core/internal/features"
	"github.com/cementai/plant-core/internal/history"
	"github.com/cementai/plant-core/internal/predict"
	"github.com/cementai/plant-core/internal/server"
	"github.com/cementai/plant-core/internal/watch"
	"github.com/cementai/plant-core/pkg/config"
)

func writeJSONFile(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	// write to a temp name and rename so the watcher never sees a partial file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename %s: %v", tmp, err)
	}
}

func constantModel(value float64) map[string]any {
	return map[string]any{
		"type":          "linear",
		"model_type":    "RandomForestRegressor",
		"n_features_in": features.Count,
		"coef":          make([]float64, features.Count),
		"intercept":     value,
	}
}

func identityScaler() map[string]any {
	ones := make([]float64, features.Count)
	for i := range ones {
		ones[i] = 1
	}
	return map[string]any{
		"type":          "standard",
		"mean":          make([]float64, features.Count),
		"scale":         ones,
		"feature_names": features.Names[:],
	}
}

func postPredict(t *testing.T, url string, payload map[string]any) map[string]any {
	t.Helper()
	body, _ := json.Marshal(payload)
	resp, err := http.Post(url+"/predict", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /predict: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /predict: expected status 200, got %d", resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode /predict: %v", err)
	}
	return out
}

func TestIntegration_ConfigLoadSmoke(t *testing.T) {
	cfgPath := filepath.Join("..", "..", "config", "config.yaml")

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig(%s) failed: %v", cfgPath, err)
	}
	if cfg.Predictor.HTTPAddr != ":5000" || cfg.Optimizer.HTTPAddr != ":5001" {
		t.Fatalf("unexpected listen addresses %q %q", cfg.Predictor.HTTPAddr, cfg.Optimizer.HTTPAddr)
	}
	if len(cfg.Optimizer.SolutionPaths) == 0 {
		t.Fatalf("expected solution paths to be configured")
	}
}

func TestIntegration_PredictRecordReload(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "best_nonlinear_model.json")
	scalerPath := filepath.Join(dir, "feature_scaler.json")
	writeJSONFile(t, modelPath, constantModel(82.5))
	writeJSONFile(t, scalerPath, identityScaler())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := history.Open(ctx, &config.History{
		Enabled: true,
		Driver:  "sqlite3",
		DSN:     "file:" + filepath.Join(dir, "predictions.db"),
	})
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	defer store.Close()

	svc := predict.NewService(predict.Options{
		ModelPath:  modelPath,
		ScalerPath: scalerPath,
		Cache:      cache.NewMemory(time.Minute),
		History:    store,
	})
	if err := svc.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	reloaded := make(chan struct{}, 1)
	w, err := watch.New(svc.Watched(), 50*time.Millisecond, func([]string) {
		if err := svc.Reload(); err != nil {
			t.Errorf("Reload: %v", err)
		}
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("watch.New: %v", err)
	}
	go func() {
		_ = w.Run(ctx)
	}()

	ts := httptest.NewServer(server.NewPredictorServer(svc, store, nil).Handler())
	defer ts.Close()

	payload := map[string]any{"FeedSize": 1000, "ProductSize": 21}
	first := postPredict(t, ts.URL, payload)
	if first["prediction"] != 82.5 {
		t.Fatalf("expected prediction 82.5, got %v", first["prediction"])
	}
	if first["model_type"] != "RandomForestRegressor" {
		t.Fatalf("unexpected model_type %v", first["model_type"])
	}

	// give the watcher time to register before changing the model
	time.Sleep(100 * time.Millisecond)
	writeJSONFile(t, modelPath, constantModel(120))
	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for artifact reload")
	}

	second := postPredict(t, ts.URL, payload)
	if second["prediction"] != 100.0 {
		t.Fatalf("expected the reloaded model clamped to 100, got %v", second["prediction"])
	}

	resp, err := http.Get(ts.URL + "/predictions?limit=10")
	if err != nil {
		t.Fatalf("GET /predictions: %v", err)
	}
	defer resp.Body.Close()
	var listed struct {
		Success bool `json:"success"`
		Count   int  `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode /predictions: %v", err)
	}
	if !listed.Success || listed.Count != 2 {
		t.Fatalf("expected two recorded predictions, got %+v", listed)
	}
}
