package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealth(t *testing.T) {
	t.Helper()
	healthChecker = newHealthChecker()
}

func TestRegisterComponent(t *testing.T) {
	resetHealth(t)

	RegisterComponent(ComponentSync, true, "manifest fetched")

	require.Len(t, healthChecker.components, 1)
	comp := healthChecker.components[ComponentSync]
	assert.True(t, comp.Healthy)
	assert.Equal(t, "manifest fetched", comp.Message)
	assert.False(t, comp.Updated.IsZero())
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		setup      func()
		wantStatus string
		wantSync   string
	}{
		{
			name: "all healthy",
			setup: func() {
				RegisterComponent(ComponentSync, true, "")
				RegisterComponent(ComponentHeartbeat, true, "")
			},
			wantStatus: "healthy",
			wantSync:   "healthy",
		},
		{
			name: "sync degraded",
			setup: func() {
				MarkDegraded(ComponentSync, "running cached manifest")
				RegisterComponent(ComponentHeartbeat, true, "")
			},
			wantStatus: "degraded",
			wantSync:   "degraded: running cached manifest",
		},
		{
			name: "unhealthy wins over degraded",
			setup: func() {
				RegisterComponent(ComponentSync, false, "no manifest available")
				MarkDegraded(ComponentHeartbeat, "control endpoint unreachable")
			},
			wantStatus: "unhealthy",
			wantSync:   "unhealthy: no manifest available",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			SetVersion("1.0.0")
			tt.setup()

			health := GetHealth()

			assert.Equal(t, tt.wantStatus, health.Status)
			assert.Equal(t, tt.wantSync, health.Components[ComponentSync])
			assert.Equal(t, "1.0.0", health.Version)
		})
	}
}

func TestGetReadiness(t *testing.T) {
	tests := []struct {
		name       string
		setup      func()
		wantStatus string
	}{
		{
			name:       "sync not registered",
			setup:      func() { RegisterComponent(ComponentAPI, true, "") },
			wantStatus: "not_ready",
		},
		{
			name:       "sync failed",
			setup:      func() { RegisterComponent(ComponentSync, false, "no manifest") },
			wantStatus: "not_ready",
		},
		{
			name:       "sync cached",
			setup:      func() { RegisterComponent(ComponentSync, true, "") },
			wantStatus: "ready",
		},
		{
			name:       "sync degraded is still ready",
			setup:      func() { MarkDegraded(ComponentSync, "fallback") },
			wantStatus: "ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			tt.setup()

			readiness := GetReadiness()

			assert.Equal(t, tt.wantStatus, readiness.Status)
			if tt.wantStatus != "ready" {
				assert.NotEmpty(t, readiness.Message)
			}
		})
	}
}

func TestHealthHandler(t *testing.T) {
	resetHealth(t)
	SetVersion("test")
	RegisterComponent(ComponentSync, true, "")

	w := httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var health HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "test", health.Version)
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	resetHealth(t)
	RegisterComponent(ComponentSync, false, "broken")

	w := httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyHandler_NotReady(t *testing.T) {
	resetHealth(t)

	w := httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var readiness HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&readiness))
	assert.Equal(t, "not_ready", readiness.Status)
}

func TestLivenessHandler(t *testing.T) {
	resetHealth(t)

	w := httptest.NewRecorder()
	LivenessHandler()(w, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "alive", response["status"])
	assert.NotEmpty(t, response["uptime"])
}

func TestUpdateComponent(t *testing.T) {
	resetHealth(t)

	RegisterComponent(ComponentHeartbeat, true, "ok")
	UpdateComponent(ComponentHeartbeat, false, "error")

	comp := healthChecker.components[ComponentHeartbeat]
	assert.False(t, comp.Healthy)
	assert.Equal(t, "error", comp.Message)
}
