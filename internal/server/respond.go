// Package server exposes the predictor and optimizer over HTTP and the
// predictor's readiness over gRPC health checking.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cementai/plant-core/pkg/logger"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": message,
	})
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "Endpoint not found")
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func timestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
