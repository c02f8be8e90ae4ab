package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHealthHandler_HandleHealth(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())
	handler.RegisterCheck(NewCheck("broken", func(context.Context) error { return errors.New("down") }))

	w := httptest.NewRecorder()
	handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code, "liveness ignores readiness checks")
	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "healthy", status.Status)
	assert.False(t, status.Timestamp.IsZero())
}

func TestHealthHandler_HandleReady(t *testing.T) {
	tests := []struct {
		name           string
		checks         []HealthCheck
		expectedStatus int
		check          func(*testing.T, HealthStatus)
	}{
		{
			name:           "no checks",
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, s HealthStatus) {
				assert.Equal(t, "healthy", s.Status)
			},
		},
		{
			name: "all pass",
			checks: []HealthCheck{
				NewCheck("redis", func(context.Context) error { return nil }),
				NewCheck("database", func(context.Context) error { return nil }),
			},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, s HealthStatus) {
				assert.Len(t, s.Checks, 2)
				assert.Equal(t, "pass", s.Checks["redis"].Status)
				assert.NotEmpty(t, s.Checks["redis"].Latency)
			},
		},
		{
			name: "one fails",
			checks: []HealthCheck{
				NewCheck("redis", func(context.Context) error { return nil }),
				NewCheck("database", func(context.Context) error { return errors.New("connection refused") }),
			},
			expectedStatus: http.StatusServiceUnavailable,
			check: func(t *testing.T, s HealthStatus) {
				assert.Equal(t, "unhealthy", s.Status)
				assert.Equal(t, "pass", s.Checks["redis"].Status)
				assert.Equal(t, "fail", s.Checks["database"].Status)
				assert.Equal(t, "connection refused", s.Checks["database"].Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(nil)
			for _, c := range tt.checks {
				handler.RegisterCheck(c)
			}

			w := httptest.NewRecorder()
			handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			var status HealthStatus
			require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
			tt.check(t, status)
		})
	}
}

func TestHealthHandler_ReadyCheckGetsDeadline(t *testing.T) {
	handler := NewHealthHandler(nil)
	handler.RegisterCheck(NewCheck("deadline", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	}))

	w := httptest.NewRecorder()
	handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	handler := NewHealthHandler(nil)
	w := httptest.NewRecorder()
	handler.HandleVersion("1.2.3", "2024-01-01", "abc123")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	var info map[string]string
	resp := decodeResponse(t, w, &info)
	assert.True(t, resp.Success)
	assert.Equal(t, "1.2.3", info["version"])
	assert.Equal(t, "abc123", info["git_commit"])
}
