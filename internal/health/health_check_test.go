package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func staticCheck(name, status string) CheckFunc {
	return func() CheckResult {
		return CheckResult{Name: name, Status: status, Timestamp: time.Now()}
	}
}

func TestHealthChecker_Status(t *testing.T) {
	h := NewHealthChecker(zap.NewNop())
	assert.True(t, h.IsLive())
	assert.False(t, h.IsReady())

	h.Register(staticCheck("a", CheckHealthy))
	assert.Equal(t, StatusHealthy, h.RunChecks())

	h.Register(staticCheck("b", CheckWarning))
	assert.Equal(t, StatusDegraded, h.RunChecks())

	h.Register(staticCheck("c", CheckCritical))
	assert.Equal(t, StatusUnhealthy, h.RunChecks())

	checks := h.GetChecks()
	require.Len(t, checks, 3)
	assert.Equal(t, "a", checks[0].Name)
	assert.Equal(t, "c", checks[2].Name)
}

func TestHealthChecker_Readiness(t *testing.T) {
	h := NewHealthChecker(nil)
	h.Register(staticCheck("ok", CheckHealthy))

	h.SetReadiness(true)
	h.RunChecks()
	assert.True(t, h.IsReady())

	h.SetReadiness(false)
	assert.False(t, h.IsReady())

	h.Register(staticCheck("bad", CheckCritical))
	h.SetReadiness(true)
	h.RunChecks()
	assert.False(t, h.IsReady())
}

func TestGoroutineCheck(t *testing.T) {
	assert.Equal(t, CheckHealthy, GoroutineCheck(1<<20)().Status)
	assert.Equal(t, CheckWarning, GoroutineCheck(0)().Status)
}

func TestHealthChecker_Handlers(t *testing.T) {
	h := NewHealthChecker(zap.NewNop())
	h.Register(GoroutineCheck(1 << 20))

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.SetReadiness(true)
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Ready  bool          `json:"ready"`
		Status string        `json:"status"`
		Checks []CheckResult `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Ready)
	assert.Equal(t, "healthy", body.Status)
	require.Len(t, body.Checks, 1)
	assert.Equal(t, "goroutines", body.Checks[0].Name)

	rec = httptest.NewRecorder()
	h.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy":true`)
}
