// Package predict turns a JSON feature payload into a clamped efficiency
// prediction using the loaded scaler and regressor.
package predict

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/cementai/plant-core/internal/cache"
	"github.com/cementai/plant-core/internal/features"
	"github.com/cementai/plant-core/internal/metrics"
	"github.com/cementai/plant-core/internal/model"
	"github.com/cementai/plant-core/pkg/config"
	"github.com/cementai/plant-core/pkg/logger"
	"github.com/cementai/plant-core/pkg/models"
	"github.com/cementai/plant-core/pkg/utils"
)

// Efficiency bounds of a prediction, in percent.
const (
	MinEfficiency = 0.0
	MaxEfficiency = 100.0
)

var (
	// ErrNotLoaded is returned while the model or the scaler is missing.
	ErrNotLoaded = errors.New("model or scaler not loaded")
	// ErrNoInput is returned for an empty payload.
	ErrNoInput = errors.New("no input data provided")
	// ErrNonFinite is returned when the model produces NaN or an infinity.
	ErrNonFinite = errors.New("model produced a non-finite prediction")
)

// Recorder persists served predictions.
type Recorder interface {
	Record(ctx context.Context, p *models.Prediction) error
}

// Options configures a Service.
type Options struct {
	ModelPath  string
	ScalerPath string
	// Remote replaces the local model file with an inference server.
	Remote  *config.RemoteModel
	Cache   cache.Cache
	History Recorder
}

// artifacts is swapped as a unit so a request never sees a model paired
// with a scaler from another load.
type artifacts struct {
	model    model.Regressor
	scaler   model.Scaler
	modelFP  model.Fingerprint
	scalerFP model.Fingerprint
}

// Service serves predictions.
type Service struct {
	opts    Options
	remote  *model.Remote // nil for a local model file
	current atomic.Pointer[artifacts]
	now     func() time.Time
}

// NewService creates a service without loading anything.
func NewService(opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.Nop{}
	}
	s := &Service{opts: opts, now: time.Now}
	if opts.Remote != nil {
		s.remote = model.NewRemote(opts.Remote)
	}
	return s
}

// Load loads the model, then the scaler. On failure the service keeps
// whatever it had before, which is nothing on the first call.
func (s *Service) Load() error {
	a, err := s.loadArtifacts()
	if err != nil {
		logger.Error("failed to load model/scaler", "error", err)
		metrics.SetModelLoaded(s.Loaded())
		return err
	}
	s.current.Store(a)
	metrics.SetModelLoaded(true)
	return nil
}

// Reload replaces the artifacts after a change on disk.
func (s *Service) Reload() error {
	if err := s.Load(); err != nil {
		metrics.ArtifactReloads.WithLabelValues("error").Inc()
		if s.Loaded() {
			logger.Warn("keeping previously loaded model after failed reload")
		}
		return err
	}
	metrics.ArtifactReloads.WithLabelValues("ok").Inc()
	return nil
}

func (s *Service) loadArtifacts() (*artifacts, error) {
	a := &artifacts{}

	if s.remote != nil {
		a.model, a.modelFP = s.remote, s.remote.Fingerprint()
		logger.Info("using remote model", "endpoint", s.opts.Remote.Endpoint, "model", s.opts.Remote.ModelName)
	} else {
		if _, err := os.Stat(s.opts.ModelPath); err != nil {
			logger.Error("model file not found", "path", s.opts.ModelPath)
			return nil, fmt.Errorf("model file not found: %s", s.opts.ModelPath)
		}
		m, fp, err := model.LoadRegressor(s.opts.ModelPath)
		if err != nil {
			return nil, err
		}
		a.model, a.modelFP = m, fp
		logger.Info("model loaded", "path", s.opts.ModelPath, "model_type", m.Type(), "fingerprint", fp.Short())
	}

	if _, err := os.Stat(s.opts.ScalerPath); err != nil {
		logger.Error("scaler file not found", "path", s.opts.ScalerPath)
		return nil, fmt.Errorf("scaler file not found: %s", s.opts.ScalerPath)
	}
	sc, fp, err := model.LoadScaler(s.opts.ScalerPath)
	if err != nil {
		return nil, err
	}
	a.scaler, a.scalerFP = sc, fp
	logger.Info("scaler loaded", "path", s.opts.ScalerPath, "scaler_type", sc.Type(), "fingerprint", fp.Short())
	return a, nil
}

// Loaded reports whether both the model and the scaler are available.
func (s *Service) Loaded() bool {
	return s.current.Load() != nil
}

// ModelPath returns the configured model location.
func (s *Service) ModelPath() string {
	if s.opts.Remote != nil {
		return s.opts.Remote.Endpoint
	}
	return s.opts.ModelPath
}

// Watched returns the files whose changes should trigger a reload.
func (s *Service) Watched() []string {
	if s.remote != nil {
		return []string{s.opts.ScalerPath}
	}
	return []string{s.opts.ModelPath, s.opts.ScalerPath}
}

// Predict scales the payload features, evaluates the model and clamps the
// result to [MinEfficiency, MaxEfficiency].
func (s *Service) Predict(ctx context.Context, payload map[string]any) (*models.Prediction, error) {
	a := s.current.Load()
	if a == nil {
		logger.Error("model or scaler not loaded")
		metrics.Predictions.WithLabelValues("not_loaded").Inc()
		return nil, ErrNotLoaded
	}
	if len(payload) == 0 {
		logger.Error("no input data provided")
		metrics.Predictions.WithLabelValues("no_input").Inc()
		return nil, ErrNoInput
	}

	start := s.now()
	v, err := features.Extract(payload)
	if err != nil {
		logger.Error("invalid feature values", "error", err)
		metrics.Predictions.WithLabelValues("invalid_input").Inc()
		return nil, err
	}
	for i, name := range features.Names {
		logger.Debug("raw feature", "index", i+1, "feature", name, "value", v[i])
	}

	key := cache.Key(string(a.modelFP), string(a.scalerFP), v[:])
	if p := s.lookup(ctx, key); p != nil {
		return s.finish(ctx, p, start), nil
	}

	scaled, err := a.scaler.Transform(v.Slice())
	if err != nil {
		metrics.Predictions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("scale features: %w", err)
	}
	for i, name := range features.Names {
		logger.Debug("scaled feature", "index", i+1, "feature", name, "value", utils.Round(scaled[i], 4))
	}

	raw, err := a.model.Predict(ctx, scaled)
	if err != nil {
		logger.Error("prediction error", "error", err)
		metrics.Predictions.WithLabelValues("error").Inc()
		return nil, err
	}
	if !utils.IsFinite(raw) {
		logger.Error("non-finite prediction", "raw", raw)
		metrics.Predictions.WithLabelValues("error").Inc()
		return nil, ErrNonFinite
	}
	clamped := utils.ClampFloat64(raw, MinEfficiency, MaxEfficiency)
	logger.Info("prediction computed", "raw", raw, "clamped", clamped, "model_type", a.model.Type())

	p := &models.Prediction{
		Prediction:       clamped,
		RawPrediction:    raw,
		FeaturesReceived: features.Count,
		ModelType:        a.model.Type(),
		ScalerUsed:       true,
		OutOfRange:       features.CheckRanges(v),
		Features:         v.Map(),
	}
	for _, r := range p.OutOfRange {
		logger.Warn("feature outside operating range", "feature", r.Feature, "value", r.Value, "min", r.Min, "max", r.Max)
	}
	if err := s.opts.Cache.Set(ctx, key, p); err != nil {
		logger.Warn("failed to cache prediction", "error", err)
	}
	return s.finish(ctx, p, start), nil
}

func (s *Service) lookup(ctx context.Context, key string) *models.Prediction {
	p, ok, err := s.opts.Cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		logger.Warn("prediction cache lookup failed", "error", err)
		return nil
	case !ok:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	p.Cached = true
	return p
}

// finish stamps the prediction and records it.
func (s *Service) finish(ctx context.Context, p *models.Prediction, start time.Time) *models.Prediction {
	p.ID = utils.GeneratePredictionID()
	p.Timestamp = s.now()
	metrics.RecordPrediction(p.Prediction, p.Clamped(), p.Timestamp.Sub(start))
	if s.opts.History != nil {
		if err := s.opts.History.Record(ctx, p); err != nil {
			logger.Warn("failed to record prediction", "id", p.ID, "error", err)
		}
	}
	return p
}
