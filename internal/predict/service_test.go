package predict

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cementai/plant-core/internal/cache"
	"github.com/cementai/plant-core/internal/features"
	"github.com/cementai/plant-core/internal/model"
	"github.com/cementai/plant-core/pkg/config"
	"github.com/cementai/plant-core/pkg/models"
)

type recorder struct {
	mu   sync.Mutex
	seen []models.Prediction
	err  error
}

func (r *recorder) Record(_ context.Context, p *models.Prediction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, *p)
	return r.err
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func repeat(v float64) []float64 {
	out := make([]float64, features.Count)
	for i := range out {
		out[i] = v
	}
	return out
}

// writeArtifacts writes an identity scaler and a linear model that
// returns ProductSize + intercept.
func writeArtifacts(t *testing.T, dir string, intercept float64) (modelPath, scalerPath string) {
	t.Helper()
	modelPath = filepath.Join(dir, "best_nonlinear_model.json")
	scalerPath = filepath.Join(dir, "feature_scaler.json")
	coef := repeat(0)
	coef[1] = 1
	writeJSON(t, modelPath, map[string]any{
		"type":       "linear",
		"model_type": "RandomForestRegressor",
		"coef":       coef,
		"intercept":  intercept,
	})
	writeJSON(t, scalerPath, map[string]any{
		"type":          "standard",
		"mean":          repeat(0),
		"scale":         repeat(1),
		"feature_names": features.Names[:],
	})
	return modelPath, scalerPath
}

// validPayload puts every feature in the middle of its operating window.
func validPayload() map[string]any {
	p := make(map[string]any, features.Count)
	for _, name := range features.Names {
		r := features.Ranges[name]
		p[name] = (r.Min + r.Max) / 2
	}
	return p
}

func loadedService(t *testing.T, opts Options) *Service {
	t.Helper()
	modelPath, scalerPath := writeArtifacts(t, t.TempDir(), 0)
	opts.ModelPath, opts.ScalerPath = modelPath, scalerPath
	s := NewService(opts)
	require.NoError(t, s.Load())
	return s
}

func TestPredictNotLoaded(t *testing.T) {
	s := NewService(Options{ModelPath: "missing.json", ScalerPath: "missing.json"})
	assert.False(t, s.Loaded())

	_, err := s.Predict(context.Background(), validPayload())
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestLoadMissingFiles(t *testing.T) {
	dir := t.TempDir()
	modelPath, scalerPath := writeArtifacts(t, dir, 0)

	s := NewService(Options{ModelPath: filepath.Join(dir, "nope.json"), ScalerPath: scalerPath})
	err := s.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model file not found")
	assert.False(t, s.Loaded())

	s = NewService(Options{ModelPath: modelPath, ScalerPath: filepath.Join(dir, "nope.json")})
	err = s.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scaler file not found")
	assert.False(t, s.Loaded())
}

func TestPredict(t *testing.T) {
	s := loadedService(t, Options{})
	payload := validPayload()
	payload["ProductSize"] = 20.5

	p, err := s.Predict(context.Background(), payload)
	require.NoError(t, err)
	assert.InDelta(t, 20.5, p.Prediction, 1e-9)
	assert.InDelta(t, 20.5, p.RawPrediction, 1e-9)
	assert.Equal(t, 15, p.FeaturesReceived)
	assert.Equal(t, "RandomForestRegressor", p.ModelType)
	assert.True(t, p.ScalerUsed)
	assert.False(t, p.Cached)
	assert.Empty(t, p.OutOfRange)
	assert.True(t, strings.HasPrefix(p.ID, "pred-"))
	assert.False(t, p.Timestamp.IsZero())
	assert.Equal(t, 20.5, p.Features["ProductSize"])
}

func TestPredictClamps(t *testing.T) {
	s := loadedService(t, Options{})

	tests := []struct {
		name        string
		productSize any
		want        float64
		raw         float64
	}{
		{"above range", 150.0, 100, 150},
		{"below range", -5.0, 0, -5},
		{"string value", "42", 42, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := validPayload()
			payload["ProductSize"] = tt.productSize
			p, err := s.Predict(context.Background(), payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Prediction)
			assert.Equal(t, tt.raw, p.RawPrediction)
			assert.Equal(t, tt.want != tt.raw, p.Clamped())
			require.Len(t, p.OutOfRange, 1)
			assert.Equal(t, "ProductSize", p.OutOfRange[0].Feature)
		})
	}
}

func TestPredictMissingFeaturesDefaultToZero(t *testing.T) {
	s := loadedService(t, Options{})
	p, err := s.Predict(context.Background(), map[string]any{"FeedSize": 1000.0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Prediction)
	assert.Equal(t, 15, p.FeaturesReceived)
	assert.Len(t, p.OutOfRange, features.Count-1)
}

func TestPredictInputErrors(t *testing.T) {
	s := loadedService(t, Options{})

	_, err := s.Predict(context.Background(), map[string]any{})
	assert.ErrorIs(t, err, ErrNoInput)
	_, err = s.Predict(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoInput)

	payload := validPayload()
	payload["FeedSize"] = "abc"
	_, err = s.Predict(context.Background(), payload)
	var invalid *features.InvalidFeatureError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "FeedSize", invalid.Feature)
}

func TestPredictNonFinite(t *testing.T) {
	dir := t.TempDir()
	modelPath, scalerPath := writeArtifacts(t, dir, 0)
	coef := repeat(0)
	coef[1] = 10
	writeJSON(t, modelPath, map[string]any{"type": "linear", "coef": coef})

	s := NewService(Options{ModelPath: modelPath, ScalerPath: scalerPath})
	require.NoError(t, s.Load())

	payload := validPayload()
	payload["ProductSize"] = 1e308
	_, err := s.Predict(context.Background(), payload)
	assert.ErrorIs(t, err, ErrNonFinite)
}

func TestPredictUsesCache(t *testing.T) {
	hist := &recorder{}
	s := loadedService(t, Options{Cache: cache.NewMemory(0), History: hist})

	first, err := s.Predict(context.Background(), validPayload())
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := s.Predict(context.Background(), validPayload())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Prediction, second.Prediction)
	assert.NotEqual(t, first.ID, second.ID)

	hist.mu.Lock()
	defer hist.mu.Unlock()
	require.Len(t, hist.seen, 2)
	assert.Equal(t, first.ID, hist.seen[0].ID)
	assert.True(t, hist.seen[1].Cached)
}

func TestPredictHistoryFailureIsNotFatal(t *testing.T) {
	s := loadedService(t, Options{History: &recorder{err: errors.New("db down")}})
	_, err := s.Predict(context.Background(), validPayload())
	assert.NoError(t, err)
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	modelPath, scalerPath := writeArtifacts(t, dir, 0)
	s := NewService(Options{ModelPath: modelPath, ScalerPath: scalerPath, Cache: cache.NewMemory(0)})
	require.NoError(t, s.Load())

	payload := validPayload()
	payload["ProductSize"] = 20.0
	p, err := s.Predict(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, 20.0, p.Prediction)

	writeArtifacts(t, dir, 5)
	require.NoError(t, s.Reload())
	p, err = s.Predict(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, 25.0, p.Prediction)
	assert.False(t, p.Cached, "a new model fingerprint must miss the cache")

	// a broken artifact keeps the previous model serving
	require.NoError(t, os.WriteFile(modelPath, []byte("{broken"), 0o644))
	require.Error(t, s.Reload())
	assert.True(t, s.Loaded())
	p, err = s.Predict(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, 25.0, p.Prediction)
}

func TestRemoteModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"outputs":[{"name":"output0","shape":[1],"datatype":"FP64","data":[104.5]}]}`))
	}))
	defer srv.Close()

	_, scalerPath := writeArtifacts(t, t.TempDir(), 0)
	s := NewService(Options{
		ScalerPath: scalerPath,
		Remote:     &config.RemoteModel{Endpoint: srv.URL, ModelName: "cement-efficiency"},
	})
	require.NoError(t, s.Load())
	assert.Equal(t, srv.URL, s.ModelPath())
	assert.Equal(t, []string{scalerPath}, s.Watched())

	p, err := s.Predict(context.Background(), validPayload())
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.Prediction)
	assert.Equal(t, 104.5, p.RawPrediction)
	assert.Equal(t, "KServe:cement-efficiency", p.ModelType)
}

func TestRemoteBreakerSurvivesReload(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, scalerPath := writeArtifacts(t, dir, 0)
	s := NewService(Options{
		ScalerPath: scalerPath,
		Remote: &config.RemoteModel{
			Endpoint:  srv.URL,
			ModelName: "cement-efficiency",
			CircuitBreaker: &config.CircuitBreaker{
				Enabled:          true,
				FailureThreshold: 1,
				SuccessThreshold: 1,
				TimeoutMs:        60000,
			},
		},
	})
	require.NoError(t, s.Load())

	_, err := s.Predict(context.Background(), validPayload())
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrCircuitOpen)

	// a scaler change reloads artifacts but must keep the open breaker
	writeArtifacts(t, dir, 0)
	require.NoError(t, s.Reload())

	_, err = s.Predict(context.Background(), validPayload())
	require.ErrorIs(t, err, model.ErrCircuitOpen)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls, "the open breaker must short-circuit after reload")
}
