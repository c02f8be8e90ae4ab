package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/switchboard/config"
)

type mockConfigManager struct {
	mock.Mock
}

func (m *mockConfigManager) Sanitized() config.Config {
	return m.Called().Get(0).(config.Config)
}

func (m *mockConfigManager) ReloadFromFile() error {
	return m.Called().Error(0)
}

func (m *mockConfigManager) GetChangeLog(limit int) []config.ConfigChange {
	return m.Called(limit).Get(0).([]config.ConfigChange)
}

func newConfigMux(mgr ConfigManager) *http.ServeMux {
	mux := http.NewServeMux()
	NewConfigHandler(mgr, nil).RegisterRoutes(mux)
	return mux
}

func TestConfigHandler_HandleConfig(t *testing.T) {
	cfg := *config.DefaultConfig()
	cfg.Auth.JWTSecret = "[REDACTED]"
	mgr := new(mockConfigManager)
	mgr.On("Sanitized").Return(cfg)

	w := httptest.NewRecorder()
	newConfigMux(mgr).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/config", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var out ConfigResponse
	decodeResponse(t, w, &out)
	require.NotNil(t, out.Config)
	assert.Equal(t, "[REDACTED]", out.Config.Auth.JWTSecret)
	assert.Equal(t, cfg.Orchestrator.MaxHops, out.Config.Orchestrator.MaxHops)
}

func TestConfigHandler_HandleReload(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mgr := new(mockConfigManager)
		mgr.On("ReloadFromFile").Return(nil)
		mgr.On("Sanitized").Return(*config.DefaultConfig())

		w := httptest.NewRecorder()
		newConfigMux(mgr).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/admin/config/reload", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var out ConfigResponse
		decodeResponse(t, w, &out)
		assert.Equal(t, "configuration reloaded", out.Message)
		mgr.AssertExpectations(t)
	})

	t.Run("invalid file", func(t *testing.T) {
		mgr := new(mockConfigManager)
		mgr.On("ReloadFromFile").Return(errors.New("orchestrator.max_turns must be positive"))

		w := httptest.NewRecorder()
		newConfigMux(mgr).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/admin/config/reload", nil))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		resp := decodeResponse(t, w, nil)
		require.NotNil(t, resp.Error)
		assert.Contains(t, resp.Error.Message, "max_turns")
		mgr.AssertNotCalled(t, "Sanitized")
	})
}

func TestConfigHandler_HandleFields(t *testing.T) {
	w := httptest.NewRecorder()
	newConfigMux(new(mockConfigManager)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/config/fields", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var out ConfigResponse
	decodeResponse(t, w, &out)
	assert.Len(t, out.Fields, len(config.HotReloadableFields()))
}

func TestConfigHandler_HandleChanges(t *testing.T) {
	mgr := new(mockConfigManager)
	mgr.On("GetChangeLog", 10).Return([]config.ConfigChange{{
		Timestamp: time.Now(),
		Source:    "file",
		Path:      "log.level",
		OldValue:  "info",
		NewValue:  "debug",
		Applied:   true,
	}})
	mux := newConfigMux(mgr)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/config/changes?limit=10", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var out ConfigResponse
	decodeResponse(t, w, &out)
	require.Len(t, out.Changes, 1)
	assert.Equal(t, "log.level", out.Changes[0].Path)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/config/changes?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	mgr.AssertExpectations(t)
}
