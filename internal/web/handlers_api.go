package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"melcloud-bridge/internal/command"
	"melcloud-bridge/internal/engine"
)

func (s *Server) handleAPIListDevices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.devices.Devices())
}

func (s *Server) handleAPIGetDevice(w http.ResponseWriter, r *http.Request) {
	v, ok := s.devices.Device(r.PathValue("id"))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

type rawResponse struct {
	Info  map[string]any `json:"info"`
	State map[string]any `json:"state"`
}

func (s *Server) handleAPIRawDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.devices.Device(id); !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
		return
	}
	snap, ok := s.devices.Raw(id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no data yet"})
		return
	}
	s.writeJSON(w, http.StatusOK, rawResponse{Info: snap.Info(), State: snap.Device})
}

type commandResult struct {
	Intent    string `json:"intent"`
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleAPICommand accepts one intent object or an array of them. Intents
// are applied in order; the first failure stops the batch.
func (s *Server) handleAPICommand(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.devices.Device(id); !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	intents, err := command.DecodeIntents(body)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	results := make([]commandResult, 0, len(intents))
	for _, in := range intents {
		reqID, err := s.devices.Apply(r.Context(), id, in)
		if err != nil {
			results = append(results, commandResult{Intent: in.String(), Error: err.Error()})
			s.writeJSON(w, commandStatus(err), results)
			return
		}
		results = append(results, commandResult{Intent: in.String(), RequestID: reqID})
	}
	s.writeJSON(w, http.StatusOK, results)
}

func commandStatus(err error) int {
	var verr *command.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrUnknownDevice):
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

func (s *Server) handleAPIRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.devices.Refresh(r.PathValue("id")) {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}
