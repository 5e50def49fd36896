package server

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/protobuf/proto"

	"github.com/cementai/plant-core/internal/policy"
	"github.com/cementai/plant-core/internal/solutions"
	"github.com/cementai/plant-core/pkg/logger"
	"github.com/cementai/plant-core/pkg/models"
)

const (
	// OptimizerServiceName is reported as "service" by GET /.
	OptimizerServiceName = "cement-optimizer-api"

	protobufContentType = "application/x-protobuf"
	csvFilename         = "cement_optimal_solution.csv"
)

// SolutionLoader returns the current rank-1 solution.
type SolutionLoader interface {
	Load() (*models.OptimalSolution, error)
}

// OptimizerServer serves the optimal solution API.
type OptimizerServer struct {
	mux     *http.ServeMux
	handler http.Handler
	source  SolutionLoader
	now     func() time.Time
}

var optimizerRoutes = map[string]bool{
	"/":                         true,
	"/health":                   true,
	"/get-optimal-solution":     true,
	"/get-optimal-solution.csv": true,
	"/metrics":                  true,
}

// NewOptimizerServer wires the optimizer routes. limiter may be nil.
func NewOptimizerServer(source SolutionLoader, limiter policy.RateLimitingPolicy) *OptimizerServer {
	s := &OptimizerServer{
		mux:    http.NewServeMux(),
		source: source,
		now:    time.Now,
	}

	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/get-optimal-solution", s.handleSolution)
	s.mux.HandleFunc("/get-optimal-solution.csv", s.handleSolutionCSV)
	s.mux.Handle("/metrics", promhttp.Handler())

	s.handler = chain(s.mux,
		withRecovery,
		withRequestID,
		withMetrics("optimizer", optimizerRoutes),
		withRateLimit("optimizer", limiter),
	)
	return s
}

func (s *OptimizerServer) Handler() http.Handler {
	return s.handler
}

func (s *OptimizerServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		notFound(w)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": OptimizerServiceName,
		"status":  "running",
	})
}

func (s *OptimizerServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

// handleSolution handles GET /get-optimal-solution
func (s *OptimizerServer) handleSolution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	sol, ok := s.load(w)
	if !ok {
		return
	}

	now := s.now()
	if strings.Contains(r.Header.Get("Accept"), protobufContentType) {
		st, err := solutions.ToStruct(sol, now)
		if err != nil {
			logger.Error("failed to build protobuf solution", "error", err)
			writeError(w, http.StatusInternalServerError, "Error: "+err.Error())
			return
		}
		data, err := proto.Marshal(st)
		if err != nil {
			logger.Error("failed to marshal protobuf solution", "error", err)
			writeError(w, http.StatusInternalServerError, "Error: "+err.Error())
			return
		}
		w.Header().Set("Content-Type", protobufContentType)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			logger.Error("failed to write protobuf response", "error", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, solutions.Response(sol, now))
}

// handleSolutionCSV handles GET /get-optimal-solution.csv
func (s *OptimizerServer) handleSolutionCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	sol, ok := s.load(w)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := solutions.WriteCSV(&buf, sol); err != nil {
		logger.Error("failed to render CSV solution", "error", err)
		writeError(w, http.StatusInternalServerError, "Error: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+csvFilename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Error("failed to write CSV response", "error", err)
	}
}

// load fetches the solution and writes the error response on failure.
func (s *OptimizerServer) load(w http.ResponseWriter) (*models.OptimalSolution, bool) {
	sol, err := s.source.Load()
	if err == nil {
		return sol, true
	}

	var missing *solutions.NotFoundError
	var invalid *solutions.FormatError
	switch {
	case errors.As(err, &missing):
		writeError(w, http.StatusNotFound, missing.Error())
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, invalid.Error())
	default:
		logger.Error("failed to load optimal solution", "error", err)
		writeError(w, http.StatusInternalServerError, "Error: "+err.Error())
	}
	return nil, false
}
