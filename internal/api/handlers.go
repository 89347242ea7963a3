package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/duskwatch/duskwatch/internal/model"
	"github.com/duskwatch/duskwatch/internal/store"
)

type scanRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validTargetURL(req.URL) {
		writeError(w, http.StatusBadRequest, "invalid URL")
		return
	}

	record, err := s.orchestrator.Scan(r.Context(), req.URL)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func validTargetURL(target string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	fingerprint := r.PathValue("fingerprint")
	result, err := s.store.Compare(r.Context(), fingerprint)
	if err != nil {
		writeError(w, http.StatusNotFound, "insufficient history")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	records, err := s.store.History(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": records})
}

func (s *Server) handleHistoryByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	record, err := s.store.ScanByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	monitors, err := s.store.ListMonitors(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"monitors": monitors})
}

type createMonitorRequest struct {
	URL      string `json:"url"`
	Interval int    `json:"interval"`
}

func (s *Server) handleCreateMonitor(w http.ResponseWriter, r *http.Request) {
	var req createMonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validTargetURL(req.URL) {
		writeError(w, http.StatusBadRequest, "invalid URL")
		return
	}
	if req.Interval < 1 || req.Interval > 1440 {
		writeError(w, http.StatusBadRequest, "interval must be between 1 and 1440 minutes")
		return
	}

	monitor, err := s.store.CreateMonitor(r.Context(), defaultOwner, req.URL, req.Interval)
	if err != nil {
		if err == store.ErrMonitorCapReached {
			writeError(w, http.StatusConflict, "monitor cap reached")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, monitor)
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	monitor, err := s.store.GetMonitor(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	writeJSON(w, http.StatusOK, monitor)
}

func (s *Server) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteMonitor(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleDeleteAllMonitors(w http.ResponseWriter, r *http.Request) {
	n := s.store.DeleteAllMonitors(r.Context(), defaultOwner)
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) handlePauseMonitor(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	monitor, err := s.store.SetPaused(r.Context(), id, true)
	if err != nil {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	writeJSON(w, http.StatusOK, monitor)
}

func (s *Server) handleResumeMonitor(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	monitor, err := s.store.SetPaused(r.Context(), id, false)
	if err != nil {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	writeJSON(w, http.StatusOK, monitor)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	statusFilter := model.AlertStatus(r.URL.Query().Get("status"))
	alerts, err := s.store.ListAlerts(r.Context(), statusFilter)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	alert, err := s.store.Acknowledge(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
