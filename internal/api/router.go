package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mpdgrab/internal/capture"
	"mpdgrab/internal/item"
	"mpdgrab/internal/logger"
	"mpdgrab/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes bounds a single observed response or post document.
const maxBodyBytes = 512 << 20

type API struct {
	sessionMgr *session.SessionManager
	logger     logger.Logger
}

type createSessionRequest struct {
	SourceURL string `json:"source_url"`
}

type createSessionResponse struct {
	ID string `json:"id"`
}

type observeResponse struct {
	Stored bool `json:"stored"`
}

// New returns the capture ingest handler.
func New(log logger.Logger, sessionMgr *session.SessionManager) http.Handler {
	api := &API{
		sessionMgr: sessionMgr,
		logger:     log,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Post("/sessions", api.handleCreateSession)
	r.Route("/sessions/{sessionId}", func(r chi.Router) {
		r.Post("/responses", api.handleObserveResponse)
		r.Post("/post", api.handleAddPost)
		r.Post("/finish", api.handleFinish)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func (a *API) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 64<<10))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read request: %v", err), http.StatusBadRequest)
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, fmt.Sprintf("Invalid session request: %v", err), http.StatusBadRequest)
			return
		}
	}

	sess := a.sessionMgr.Create(req.SourceURL)
	writeJSON(w, http.StatusCreated, createSessionResponse{ID: sess.ID})
}

func (a *API) handleObserveResponse(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.lookup(w, r)
	if !ok {
		return
	}
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		http.Error(w, "Missing url query parameter", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read response body: %v", err), http.StatusBadRequest)
		return
	}

	stored, err := sess.Observe(rawURL, r.Header.Get("Content-Type"), body)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, observeResponse{Stored: stored})
}

func (a *API) handleAddPost(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.lookup(w, r)
	if !ok {
		return
	}

	format := item.FormatJSON
	if strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "yaml") {
		format = item.FormatYAML
	}
	post, err := item.DecodePost(http.MaxBytesReader(w, r.Body, maxBodyBytes), format)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := sess.AddPost(post); err != nil {
		a.writeError(w, err)
		return
	}
	a.logger.Infof("Session %s: queued post %q with %d item(s)", sess.ID, post.Name, len(post.Items))
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleFinish(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	// Reconstruction outlives a client that stops waiting for the report.
	report, err := a.sessionMgr.Finish(context.WithoutCancel(r.Context()), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) lookup(w http.ResponseWriter, r *http.Request) (*session.CaptureSession, bool) {
	sess, err := a.sessionMgr.Get(chi.URLParam(r, "sessionId"))
	if err != nil {
		a.writeError(w, err)
		return nil, false
	}
	return sess, true
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	var decodeErr *item.DecodeError
	switch {
	case errors.Is(err, session.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, capture.ErrSealed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &decodeErr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		a.logger.Warnf("Request failed: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
