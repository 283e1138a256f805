package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"melcloud-bridge/internal/automation"
)

// inlineScriptID runs the request body's lua_code instead of a saved script.
const inlineScriptID = "_inline"

// automationView is a stored script plus whether it is loaded right now.
type automationView struct {
	*automation.Script
	Running bool `json:"running"`
}

func (s *Server) automationView(script *automation.Script) automationView {
	v := automationView{Script: script}
	if s.autoEngine != nil {
		v.Running = s.autoEngine.Running(script.ID)
	}
	return v
}

// listAutomations returns the scripts that receive events from device, or
// every script when device is empty.
func (s *Server) listAutomations(w http.ResponseWriter, device string) {
	views := []automationView{}
	if s.scriptMgr != nil {
		scripts, err := s.scriptMgr.List()
		if err != nil {
			s.logger.Error("list scripts", "err", err)
			s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		for _, script := range scripts {
			if script.Watches(device) {
				views = append(views, s.automationView(script))
			}
		}
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIListAutomations(w http.ResponseWriter, r *http.Request) {
	device := r.URL.Query().Get("device")
	if device != "" {
		if _, ok := s.devices.Device(device); !ok {
			s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
			return
		}
	}
	s.listAutomations(w, device)
}

func (s *Server) handleAPIDeviceAutomations(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.devices.Device(id); !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
		return
	}
	s.listAutomations(w, id)
}

func (s *Server) handleAPIGetAutomation(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	script, err := s.scriptMgr.Get(r.PathValue("id"))
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "script not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, s.automationView(script))
}

// saveAutomationRequest carries a create or a partial update. Fields left
// out of an update keep their stored values.
type saveAutomationRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	LuaCode     *string   `json:"lua_code"`
	Enabled     *bool     `json:"enabled"`
	Devices     *[]string `json:"devices"`
}

func (req saveAutomationRequest) applyTo(script *automation.Script) {
	if req.Name != nil {
		script.Meta.Name = *req.Name
	}
	if req.Description != nil {
		script.Meta.Description = *req.Description
	}
	if req.LuaCode != nil {
		script.LuaCode = *req.LuaCode
	}
	if req.Enabled != nil {
		script.Meta.Enabled = *req.Enabled
	}
	if req.Devices != nil {
		script.Meta.Devices = *req.Devices
	}
}

// unknownDevices returns the ids a script lists that the engine does not know.
func (s *Server) unknownDevices(ids []string) []string {
	var missing []string
	for _, id := range ids {
		if _, ok := s.devices.Device(id); !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v alone
// when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	err := json.NewDecoder(r.Body).Decode(v)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// storeAutomation persists script and loads or stops it to match its
// enabled flag.
func (s *Server) storeAutomation(w http.ResponseWriter, script *automation.Script, status int) {
	if missing := s.unknownDevices(script.Meta.Devices); len(missing) > 0 {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown devices", "devices": missing})
		return
	}
	saved, err := s.scriptMgr.Save(script)
	if err != nil {
		s.logger.Error("save script", "id", script.ID, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if s.autoEngine != nil {
		if saved.Meta.Enabled {
			if err := s.autoEngine.ReloadScript(saved.ID); err != nil {
				s.logger.Error("reload script", "id", saved.ID, "err", err)
			}
		} else {
			s.autoEngine.StopScript(saved.ID)
		}
	}
	s.writeJSON(w, status, s.automationView(saved))
}

func (s *Server) handleAPICreateAutomation(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "automations not available"})
		return
	}

	var req saveAutomationRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == nil || *req.Name == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	script := &automation.Script{}
	req.applyTo(script)
	s.storeAutomation(w, script, http.StatusCreated)
}

func (s *Server) handleAPIUpdateAutomation(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "automations not available"})
		return
	}

	existing, err := s.scriptMgr.Get(r.PathValue("id"))
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "script not found"})
		return
	}

	var req saveAutomationRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name != nil && *req.Name == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name cannot be empty"})
		return
	}

	req.applyTo(existing)
	s.storeAutomation(w, existing, http.StatusOK)
}

func (s *Server) handleAPIDeleteAutomation(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "automations not available"})
		return
	}

	id := r.PathValue("id")
	if s.autoEngine != nil {
		s.autoEngine.StopScript(id)
	}

	if err := s.scriptMgr.Delete(id); err != nil {
		if errors.Is(err, automation.ErrScriptNotFound) {
			s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "script not found"})
			return
		}
		s.logger.Error("delete script", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAPIRunAutomation dry-runs a script once. The target device comes from
// the body or the ?device= query; its current state feeds the script's state
// handlers.
func (s *Server) handleAPIRunAutomation(w http.ResponseWriter, r *http.Request) {
	if s.autoEngine == nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "automation engine not available"})
		return
	}

	id := r.PathValue("id")
	var req struct {
		LuaCode string `json:"lua_code"`
		Device  string `json:"device"`
	}
	if err := decodeJSON(w, r, &req, id != inlineScriptID); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	opt := automation.RunOptions{Device: req.Device}
	if q := r.URL.Query().Get("device"); q != "" {
		opt.Device = q
	}
	if opt.Device != "" {
		if _, ok := s.devices.Device(opt.Device); !ok {
			s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
			return
		}
	}

	var result *automation.RunResult
	if id == inlineScriptID {
		result = s.autoEngine.RunLuaCode(req.LuaCode, opt)
	} else {
		result = s.autoEngine.RunScript(id, opt)
	}
	for _, c := range result.Commands {
		s.logger.Debug("dry-run command", "script", id, "device", c.Device, "intent", c.Intent, "request", c.RequestID, "err", c.Error)
	}
	s.writeJSON(w, http.StatusOK, result)
}
