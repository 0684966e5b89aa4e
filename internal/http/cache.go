package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"lobby/internal/model"
	"lobby/internal/service"
)

func (s *Server) handleGetRawOrders(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.svc.RawOrders()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, raw)
}

func (s *Server) handleSaveRawOrders(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "cannot read request body")
		return
	}

	if err := s.svc.OverwriteRawOrders(r.Context(), body); err != nil {
		if errors.Is(err, service.ErrInvalidJSON) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type cacheStatus struct {
	FirstLoad  bool            `json:"firstLoad"`
	HasChanges bool            `json:"hasChanges"`
	Data       json.RawMessage `json:"data,omitempty"`
}

func (s *Server) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.svc.RawOrders()
	if !ok {
		s.writeJSON(w, http.StatusOK, cacheStatus{FirstLoad: true})
		return
	}
	s.writeJSON(w, http.StatusOK, cacheStatus{HasChanges: true, Data: raw})
}

func (s *Server) handleGetAnimationConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.AnimationConfig())
}

func (s *Server) handleSaveAnimationConfig(w http.ResponseWriter, r *http.Request) {
	// Keys the client leaves out take their defaults.
	cfg := model.DefaultAnimationConfig()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	if err := s.svc.SaveAnimationConfig(cfg); err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleCacheDirectory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"directory": s.svc.CacheDirectory()})
}
