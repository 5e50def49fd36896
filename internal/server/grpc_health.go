package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cementai/plant-core/pkg/logger"
)

// PredictorHealthService is the gRPC health service name of the predictor.
const PredictorHealthService = "cement.Predictor"

// LoadedChecker reports whether a model and scaler are loaded.
type LoadedChecker interface {
	Loaded() bool
}

// HealthServer publishes predictor readiness through grpc.health.v1.
type HealthServer struct {
	health *health.Server
	svc    LoadedChecker
}

// NewHealthServer creates a health server whose status follows svc.
func NewHealthServer(svc LoadedChecker) *HealthServer {
	h := &HealthServer{
		health: health.NewServer(),
		svc:    svc,
	}
	h.Sync()
	return h
}

// Register attaches the health service to a gRPC server.
func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
}

// Sync updates the serving status from the current load state. The
// overall ("") status mirrors the predictor's.
func (h *HealthServer) Sync() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.svc.Loaded() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(PredictorHealthService, status)
	h.health.SetServingStatus("", status)
	logger.Debug("grpc health updated", "service", PredictorHealthService, "status", status.String())
}

// Shutdown marks every service NOT_SERVING.
func (h *HealthServer) Shutdown() {
	h.health.Shutdown()
}

// Server returns the underlying health implementation.
func (h *HealthServer) Server() healthpb.HealthServer {
	return h.health
}
