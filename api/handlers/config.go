package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/switchboard/config"
	"github.com/BaSui01/switchboard/types"
)

// ConfigManager is the live configuration the admin endpoints expose.
// *config.HotReloadManager implements it.
type ConfigManager interface {
	Sanitized() config.Config
	ReloadFromFile() error
	GetChangeLog(limit int) []config.ConfigChange
}

// ConfigHandler serves the admin configuration endpoints.
type ConfigHandler struct {
	manager ConfigManager
	logger  *zap.Logger
}

// ConfigResponse is the data of the admin configuration endpoints.
type ConfigResponse struct {
	Message string                      `json:"message,omitempty"`
	Config  *config.Config              `json:"config,omitempty"`
	Fields  []config.HotReloadableField `json:"fields,omitempty"`
	Changes []config.ConfigChange       `json:"changes,omitempty"`
}

// NewConfigHandler creates a handler over manager.
func NewConfigHandler(manager ConfigManager, logger *zap.Logger) *ConfigHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigHandler{
		manager: manager,
		logger:  logger.With(zap.String("component", "config_handler")),
	}
}

// RegisterRoutes mounts the endpoints on mux.
func (h *ConfigHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/admin/config", h.HandleConfig)
	mux.HandleFunc("POST /v1/admin/config/reload", h.HandleReload)
	mux.HandleFunc("GET /v1/admin/config/fields", h.HandleFields)
	mux.HandleFunc("GET /v1/admin/config/changes", h.HandleChanges)
}

// HandleConfig returns the live configuration with secrets redacted.
func (h *ConfigHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.manager.Sanitized()
	WriteSuccess(w, r, ConfigResponse{Config: &cfg})
}

// HandleReload re-reads the configuration file. An invalid file leaves the
// live configuration untouched.
func (h *ConfigHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.ReloadFromFile(); err != nil {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "failed to reload configuration: "+err.Error()).
			WithCause(err).WithHTTPStatus(http.StatusUnprocessableEntity), h.logger)
		return
	}
	cfg := h.manager.Sanitized()
	WriteSuccess(w, r, ConfigResponse{Message: "configuration reloaded", Config: &cfg})
}

// HandleFields lists the fields that apply without a restart.
func (h *ConfigHandler) HandleFields(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, ConfigResponse{Fields: config.HotReloadableFields()})
}

// HandleChanges returns the most recent configuration changes.
//
//	GET /v1/admin/config/changes?limit=50
func (h *ConfigHandler) HandleChanges(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 50, 1000)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, ConfigResponse{Changes: h.manager.GetChangeLog(limit)})
}
