package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/thruflo/voiceloops/internal/catalog"
	"github.com/thruflo/voiceloops/internal/config"
	"github.com/thruflo/voiceloops/internal/engine"
	"github.com/thruflo/voiceloops/web"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Command actions accepted by POST /api/command.
const (
	ActionToggle = "toggle"
	ActionOff    = "off"
	ActionDelay  = "delay"
)

// CommandRequest is the body of POST /api/command.
type CommandRequest struct {
	Action  string `json:"action"`
	Loop    string `json:"loop,omitempty"`
	Enabled bool   `json:"enabled,omitempty"`
}

// CommandResponse reports where a loop ended up after toggle or off. Both
// fields are null when the loop has no worker.
type CommandResponse struct {
	Port     *int    `json:"port"`
	Endpoint *string `json:"endpoint"`
}

// VolumeRequest is the body of POST /api/set_volume. Volume may be a JSON
// number or a numeric string; it defaults to 1.0 when absent.
type VolumeRequest struct {
	Loop   string          `json:"loop"`
	Volume json.RawMessage `json:"volume,omitempty"`
}

// LoopsResponse is the body of GET /api/loops.
type LoopsResponse struct {
	Role  string         `json:"role"`
	Loops []catalog.Loop `json:"loops"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	Role       string `json:"role"`
	Workers    int    `json:"workers"`
	ConfigOnly bool   `json:"config_only,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func commandResponse(v engine.LoopView) CommandResponse {
	if !v.Assigned() {
		return CommandResponse{}
	}
	endpoint := v.Endpoint
	resp := CommandResponse{Endpoint: &endpoint}
	if v.Port != 0 {
		port := v.Port
		resp.Port = &port
	}
	return resp
}

// parseVolume accepts a number, a numeric string or nothing.
func parseVolume(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return engine.DefaultVolume, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, errors.New("volume must be a number or numeric string")
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid volume %q", s)
	}
	return f, nil
}

// handleStatus handles GET /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, rt *runtime) {
	writeJSON(w, http.StatusOK, rt.status.Collect(r.Context()))
}

// handleCommand handles POST /api/command. Unknown actions are accepted and
// ignored.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request, rt *runtime) {
	var req CommandRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch req.Action {
	case ActionToggle:
		res := rt.engine.Toggle(r.Context(), req.Loop)
		if res.Outcome == engine.OutcomeIgnored {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, commandResponse(res.Loop))
	case ActionOff:
		res := rt.engine.Off(r.Context(), req.Loop)
		writeJSON(w, http.StatusOK, commandResponse(res.Loop))
	case ActionDelay:
		rt.engine.SetDelay(r.Context(), req.Enabled)
		w.WriteHeader(http.StatusNoContent)
	default:
		s.logger.Debug("unknown command ignored", "action", req.Action)
		s.metrics.CommandHandled("unknown", string(engine.OutcomeIgnored))
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleSetVolume handles POST /api/set_volume.
func (s *Server) handleSetVolume(w http.ResponseWriter, r *http.Request, rt *runtime) {
	var req VolumeRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	vol, err := parseVolume(req.Volume)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rt.engine.SetVolume(r.Context(), req.Loop, vol)
	w.WriteHeader(http.StatusNoContent)
}

// handleLoops handles GET /api/loops.
func (s *Server) handleLoops(w http.ResponseWriter, _ *http.Request, rt *runtime) {
	cat := rt.engine.Catalog()
	writeJSON(w, http.StatusOK, LoopsResponse{Role: cat.Role(), Loops: cat.Loops()})
}

// handleRoles handles GET /api/roles.
func (s *Server) handleRoles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, config.Roles)
}

// handleGetConfig handles GET /api/get_config.
func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Config())
}

// handleSaveConfig handles POST /api/save_config. The body is merged over
// the current configuration, so the setup page can send just the fields it
// edits. Saving always reloads the catalog, which releases every worker.
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config()
	if err := decodeJSON(r, &cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := config.SaveConfig(s.configPath, &cfg); err != nil {
		if config.IsValidationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("failed to save config", "path", s.configPath, "error", err)
		http.Error(w, "failed to save config", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	rt := s.rt
	created := rt == nil
	if created {
		rt = s.newRuntime(&cfg)
		s.rt = rt
	}
	s.mu.Unlock()

	s.logger.Info("config saved", "path", s.configPath, "role", cfg.Role)
	if created {
		// A fresh engine already holds the new catalog; reloading it
		// still clears whatever the workers joined before.
		rt.engine.Reload(r.Context(), rt.engine.Catalog())
	} else {
		if !slices.Equal(prev.Workers, cfg.Workers) {
			s.logger.Warn("worker list changed; restart to apply")
		}
		rt.engine.Reload(r.Context(), LoadCatalog(&cfg, s.logger))
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	cfg := s.Config()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Role:       cfg.Role,
		Workers:    len(cfg.Workers),
		ConfigOnly: s.runtime() == nil,
	})
}

// handleIndex serves the console page, or redirects to setup while
// unconfigured.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.runtime() == nil {
		http.Redirect(w, r, "/config", http.StatusFound)
		return
	}
	s.servePage(w, r, web.IndexPage)
}

// handleConfigPage serves the setup page.
func (s *Server) handleConfigPage(w http.ResponseWriter, r *http.Request) {
	s.servePage(w, r, web.ConfigPage)
}

func (s *Server) servePage(w http.ResponseWriter, r *http.Request, name string) {
	data, err := fs.ReadFile(s.assets, name)
	if err != nil {
		s.logger.Error("page missing", "page", name, "error", err)
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
