package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the overall health of the process
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check result statuses
const (
	CheckHealthy  = "healthy"
	CheckWarning  = "warning"
	CheckCritical = "critical"
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckFunc runs a single named check
type CheckFunc func() CheckResult

// HealthChecker aggregates named checks into liveness and readiness
type HealthChecker struct {
	logger      *zap.Logger
	mu          sync.RWMutex
	lastCheck   time.Time
	status      Status
	checks      map[string]CheckResult
	funcs       []CheckFunc
	livenessOK  bool
	readinessOK bool
	manualReady bool
}

// NewHealthChecker creates a checker that is live but not ready. Callers
// mark it ready once their work is loaded.
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthChecker{
		logger:     logger,
		checks:     make(map[string]CheckResult),
		livenessOK: true,
		status:     StatusHealthy,
	}
}

// Register adds a check that runs on every call to RunChecks
func (h *HealthChecker) Register(fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.funcs = append(h.funcs, fn)
}

// RunChecks runs all registered checks and updates the overall status
func (h *HealthChecker) RunChecks() Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastCheck = time.Now()

	allHealthy := true
	noCritical := true
	for _, fn := range h.funcs {
		result := fn()
		h.checks[result.Name] = result

		if result.Status != CheckHealthy {
			allHealthy = false
			if result.Status == CheckCritical {
				noCritical = false
			}
		}
	}

	switch {
	case allHealthy:
		h.status = StatusHealthy
	case noCritical:
		h.status = StatusDegraded
	default:
		h.status = StatusUnhealthy
	}

	h.readinessOK = h.manualReady && noCritical

	h.logger.Debug("Health check completed",
		zap.String("status", string(h.status)),
		zap.Bool("liveness", h.livenessOK),
		zap.Bool("readiness", h.readinessOK))

	return h.status
}

// GoroutineCheck reports a warning once the goroutine count exceeds limit
func GoroutineCheck(limit int) CheckFunc {
	return func() CheckResult {
		n := runtime.NumGoroutine()
		result := CheckResult{
			Name:      "goroutines",
			Status:    CheckHealthy,
			Message:   fmt.Sprintf("%d goroutines", n),
			Timestamp: time.Now(),
		}
		if n > limit {
			result.Status = CheckWarning
			result.Message = fmt.Sprintf("%d goroutines exceeds %d", n, limit)
		}
		return result
	}
}

// IsLive returns whether the process is live (liveness probe)
func (h *HealthChecker) IsLive() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.livenessOK
}

// IsReady returns whether the process is ready (readiness probe)
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.readinessOK
}

// Status returns the status computed by the last RunChecks
func (h *HealthChecker) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// GetChecks returns all check results sorted by name
func (h *HealthChecker) GetChecks() []CheckResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	checks := make([]CheckResult, 0, len(h.checks))
	for _, c := range h.checks {
		checks = append(checks, c)
	}
	sort.Slice(checks, func(i, j int) bool { return checks[i].Name < checks[j].Name })
	return checks
}

// SetReadiness marks the process ready or not; critical checks still veto
// readiness on the next RunChecks
func (h *HealthChecker) SetReadiness(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.manualReady = ready
	h.readinessOK = ready
	for _, c := range h.checks {
		if c.Status == CheckCritical {
			h.readinessOK = false
		}
	}
}

// LivenessHandler handles HTTP liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	live := h.IsLive()
	writeProbe(w, live, map[string]interface{}{
		"healthy": live,
		"status":  h.Status(),
	})
}

// ReadinessHandler handles HTTP readiness probe requests
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	h.RunChecks()
	ready := h.IsReady()
	writeProbe(w, ready, map[string]interface{}{
		"ready":  ready,
		"status": h.Status(),
		"checks": h.GetChecks(),
	})
}

func writeProbe(w http.ResponseWriter, ok bool, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}
