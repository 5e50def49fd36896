package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cementai/plant-core/internal/features"
	"github.com/cementai/plant-core/internal/policy"
	"github.com/cementai/plant-core/internal/predict"
	"github.com/cementai/plant-core/pkg/logger"
	"github.com/cementai/plant-core/pkg/models"
)

const (
	// PredictorServiceName is reported as "service" by GET /.
	PredictorServiceName = "cement-simulator-api"

	maxBodyBytes        = 1 << 20
	defaultHistoryLimit = 20
)

// Predictor is the subset of predict.Service the HTTP layer needs.
type Predictor interface {
	Loaded() bool
	ModelPath() string
	Predict(ctx context.Context, payload map[string]any) (*models.Prediction, error)
}

// HistoryReader lists recent predictions.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]models.Prediction, error)
}

// PredictorServer serves the prediction API.
type PredictorServer struct {
	mux     *http.ServeMux
	handler http.Handler
	svc     Predictor
	history HistoryReader
	now     func() time.Time
}

var predictorRoutes = map[string]bool{
	"/":            true,
	"/health":      true,
	"/predict":     true,
	"/predictions": true,
	"/metrics":     true,
}

// NewPredictorServer wires the prediction routes. history and limiter may
// be nil.
func NewPredictorServer(svc Predictor, history HistoryReader, limiter policy.RateLimitingPolicy) *PredictorServer {
	s := &PredictorServer{
		mux:     http.NewServeMux(),
		svc:     svc,
		history: history,
		now:     time.Now,
	}

	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/predict", s.handlePredict)
	s.mux.HandleFunc("/predictions", s.handlePredictions)
	s.mux.Handle("/metrics", promhttp.Handler())

	s.handler = chain(s.mux,
		withRecovery,
		withRequestID,
		withMetrics("predictor", predictorRoutes),
		withRateLimit("predictor", limiter),
	)
	return s
}

func (s *PredictorServer) Handler() http.Handler {
	return s.handler
}

func (s *PredictorServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		notFound(w)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":      PredictorServiceName,
		"status":       "running",
		"model_loaded": s.svc.Loaded(),
		"model_path":   s.svc.ModelPath(),
		"timestamp":    timestamp(s.now()),
	})
}

func (s *PredictorServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"model_loaded": s.svc.Loaded(),
		"timestamp":    timestamp(s.now()),
	})
}

// handlePredict handles POST /predict
func (s *PredictorServer) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.svc.Loaded() {
		logger.Error("model or scaler not loaded")
		writeError(w, http.StatusInternalServerError, "Model or scaler not loaded")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	payload, err := decodePayload(body)
	switch {
	case errors.Is(err, errNotObject):
		writeError(w, http.StatusBadRequest, "Invalid JSON body: expected an object")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	p, err := s.svc.Predict(r.Context(), payload)
	if err != nil {
		var invalid *features.InvalidFeatureError
		switch {
		case errors.Is(err, predict.ErrNotLoaded):
			writeError(w, http.StatusInternalServerError, "Model or scaler not loaded")
		case errors.Is(err, predict.ErrNoInput):
			writeError(w, http.StatusBadRequest, "No input data provided")
		case errors.As(err, &invalid):
			writeError(w, http.StatusBadRequest, "Invalid feature values: "+invalid.Error())
		default:
			logger.Error("prediction error", "error", err, "request_id", r.Header.Get(RequestIDHeader))
			writeError(w, http.StatusInternalServerError, "Prediction failed: "+err.Error())
		}
		return
	}

	resp := map[string]any{
		"prediction":        p.Prediction,
		"features_received": p.FeaturesReceived,
		"timestamp":         timestamp(p.Timestamp),
		"model_type":        p.ModelType,
		"scaler_used":       p.ScalerUsed,
	}
	if len(p.OutOfRange) > 0 {
		resp["out_of_range"] = p.OutOfRange
	}
	logger.Info("prediction served",
		"id", p.ID,
		"prediction", p.Prediction,
		"cached", p.Cached,
		"request_id", r.Header.Get(RequestIDHeader))
	writeJSON(w, http.StatusOK, resp)
}

var (
	errInvalidJSON = errors.New("invalid JSON body")
	errNotObject   = errors.New("JSON body is not an object")
)

// decodePayload reads the request body as a JSON object. An empty body or
// a JSON null yields a nil payload, which the service rejects as empty.
func decodePayload(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errInvalidJSON
	}
	if dec.More() {
		return nil, errInvalidJSON
	}
	switch x := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return x, nil
	default:
		return nil, errNotObject
	}
}

// handlePredictions handles GET /predictions
func (s *PredictorServer) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.history == nil {
		writeError(w, http.StatusNotFound, "prediction history is disabled")
		return
	}

	limit := defaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	preds, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		logger.Error("failed to list predictions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list predictions")
		return
	}
	if preds == nil {
		preds = []models.Prediction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"count":       len(preds),
		"predictions": preds,
	})
}
