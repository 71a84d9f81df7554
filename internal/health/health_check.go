package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sayfpack13/TrustQuery-sub002/internal/registry"
	"go.uber.org/zap"
)

// HealthChecker provides health check endpoints
type HealthChecker struct {
	registry registry.Registry
	baseDir  string
	logger   *zap.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(reg registry.Registry, baseDir string, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		registry: reg,
		baseDir:  baseDir,
		logger:   logger,
	}
}

// LivenessHandler handles liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// ReadinessHandler handles readiness probe requests
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	// Check the node registry backend
	if err := h.checkRegistry(ctx); err != nil {
		h.logger.Error("Registry health check failed", zap.Error(err))
		checks["registry"] = "unhealthy: " + err.Error()
		allHealthy = false
	} else {
		checks["registry"] = "healthy"
	}

	// Check the node base directory is writable
	if err := h.checkBaseDir(); err != nil {
		h.logger.Error("Base directory health check failed", zap.Error(err))
		checks["base_dir"] = "unhealthy: " + err.Error()
		allHealthy = false
	} else {
		checks["base_dir"] = "healthy"
	}

	status := HealthStatus{
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")
	if allHealthy {
		status.Status = "ready"
		w.WriteHeader(http.StatusOK)
	} else {
		status.Status = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

func (h *HealthChecker) checkRegistry(ctx context.Context) error {
	if h.registry == nil {
		return fmt.Errorf("registry not initialized")
	}
	return h.registry.Ping(ctx)
}

// checkBaseDir verifies node layouts can actually be materialized
func (h *HealthChecker) checkBaseDir() error {
	if err := os.MkdirAll(h.baseDir, 0o755); err != nil {
		return fmt.Errorf("base directory not creatable: %w", err)
	}

	probe := filepath.Join(h.baseDir, ".health-probe")
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("base directory not writable: %w", err)
	}
	f.Close()
	return os.Remove(probe)
}
