// Package api implements the API surface (C11): a thin typed layer over
// the Store and Scan Orchestrator, built on stdlib net/http and its
// pattern-matching ServeMux rather than a web framework, following the
// plain http.HandleFunc REST style this project's dashboard backend uses
// for its own JSON endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/duskwatch/duskwatch/internal/fileanalysis"
	"github.com/duskwatch/duskwatch/internal/logging"
	"github.com/duskwatch/duskwatch/internal/model"
)

// defaultOwner is the single logical owner every Monitor is created
// under. Monitor caps are effectively global with no authentication in
// scope; this keeps ownership pluggable without inventing an auth layer.
const defaultOwner = "global"

// Store is the subset of the persistence layer the API surfaces.
type Store interface {
	ScanByID(ctx context.Context, id string) (*model.ScanRecord, error)
	History(ctx context.Context, limit, offset int) ([]*model.ScanRecord, error)
	Compare(ctx context.Context, fingerprint string) (*model.CompareResult, error)

	CreateMonitor(ctx context.Context, owner, target string, intervalMinutes int) (*model.Monitor, error)
	GetMonitor(ctx context.Context, id string) (*model.Monitor, error)
	ListMonitors(ctx context.Context) ([]*model.Monitor, error)
	DeleteMonitor(ctx context.Context, id string) error
	DeleteAllMonitors(ctx context.Context, owner string) int
	SetPaused(ctx context.Context, id string, paused bool) (*model.Monitor, error)

	ListAlerts(ctx context.Context, statusFilter model.AlertStatus) ([]*model.Alert, error)
	Acknowledge(ctx context.Context, id string) (*model.Alert, error)
}

// Scanner is satisfied by *orchestrator.Orchestrator.
type Scanner interface {
	Scan(ctx context.Context, target string) (*model.ScanRecord, error)
}

// Server holds everything the HTTP handlers need.
type Server struct {
	store        Store
	orchestrator Scanner
	analyzer     *fileanalysis.Analyzer
	logger       *logging.Logger
	mux          *http.ServeMux
}

// New builds a Server and registers every route from §6.
func New(store Store, orch Scanner, analyzer *fileanalysis.Analyzer, logger *logging.Logger) *Server {
	s := &Server{store: store, orchestrator: orch, analyzer: analyzer, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the wrapped http.Handler, ready to pass to
// http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	return withCORS(withRequestLogging(s.logger, s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /scan", s.handleScan)
	s.mux.HandleFunc("GET /compare/{fingerprint}", s.handleCompare)
	s.mux.HandleFunc("GET /history", s.handleHistory)
	s.mux.HandleFunc("GET /history/{id}", s.handleHistoryByID)
	s.mux.HandleFunc("GET /monitors", s.handleListMonitors)
	s.mux.HandleFunc("POST /monitors", s.handleCreateMonitor)
	s.mux.HandleFunc("GET /monitors/{id}", s.handleGetMonitor)
	s.mux.HandleFunc("DELETE /monitors/all", s.handleDeleteAllMonitors)
	s.mux.HandleFunc("DELETE /monitors/{id}", s.handleDeleteMonitor)
	s.mux.HandleFunc("POST /monitors/{id}/pause", s.handlePauseMonitor)
	s.mux.HandleFunc("POST /monitors/{id}/resume", s.handleResumeMonitor)
	s.mux.HandleFunc("GET /alerts", s.handleListAlerts)
	s.mux.HandleFunc("POST /alerts/{id}/acknowledge", s.handleAcknowledgeAlert)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	providers := map[string]bool{
		"signature_scanner":  false,
		"strings_extractor":  false,
		"metadata_extractor": false,
		"carving":            false,
	}
	if s.analyzer != nil {
		if s.analyzer.Signature != nil {
			providers["signature_scanner"] = s.analyzer.Signature.Available()
		}
		if s.analyzer.Strings != nil {
			providers["strings_extractor"] = s.analyzer.Strings.Available()
		}
		if s.analyzer.Metadata != nil {
			providers["metadata_extractor"] = s.analyzer.Metadata.Available()
		}
		if s.analyzer.Carving != nil {
			providers["carving"] = s.analyzer.Carving.Available()
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"providers": providers,
	})
}
