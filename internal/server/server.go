package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/youmna-rabie/socket-relay/internal/event"
	"github.com/youmna-rabie/socket-relay/internal/types"
)

const (
	defaultEventsLimit = 50
	maxEventsLimit     = 500
)

// Server exposes health and read-only admin endpoints for the relay.
type Server struct {
	store   event.Store
	targets []*types.Target
	router  chi.Router
	logger  *slog.Logger
}

// NewServer creates a Server wired with the given dependencies.
func NewServer(store event.Store, targets []*types.Target, logger *slog.Logger) *Server {
	s := &Server{
		store:   store,
		targets: targets,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logging(logger))
	r.Use(Recovery(logger))

	r.Get("/health", s.handleHealth)
	r.Get("/admin/targets", s.handleAdminTargets)
	r.Get("/admin/events", s.handleAdminEvents)
	r.Get("/admin/events/{id}", s.handleAdminEvent)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"targets":    len(s.targets),
		"dispatches": s.store.StatusCounts(),
	})
}

// targetView is a Target with the URL reduced to scheme and host, since
// webhook paths often embed secrets.
type targetView struct {
	Name               string `json:"name"`
	Endpoint           string `json:"endpoint"`
	Env                string `json:"env"`
	Route              string `json:"route"`
	Timeout            string `json:"timeout"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify"`
}

func (s *Server) handleAdminTargets(w http.ResponseWriter, _ *http.Request) {
	views := make([]targetView, 0, len(s.targets))
	for _, t := range s.targets {
		views = append(views, targetView{
			Name:               t.Name,
			Endpoint:           RedactURL(t.URL),
			Env:                string(t.Env),
			Route:              string(t.Route),
			Timeout:            t.Timeout.String(),
			InsecureSkipVerify: t.InsecureSkipVerify,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"targets": views,
		"count":   len(views),
	})
}

// handleAdminEvents responds to GET /admin/events?limit=&offset= with recent
// dispatch records, newest first.
func (s *Server) handleAdminEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultEventsLimit)
	if err != nil || limit < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		return
	}
	limit = min(limit, maxEventsLimit)

	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "offset must be a non-negative integer"})
		return
	}

	records, err := s.store.List(limit, offset)
	if err != nil {
		s.logger.Error("failed to list records", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list events"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": records,
		"count":  len(records),
		"total":  s.store.Count(),
	})
}

func (s *Server) handleAdminEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event id"})
		return
	}
	rec, err := s.store.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// RedactURL keeps only the scheme and host of raw.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<invalid>"
	}
	return u.Scheme + "://" + u.Host
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
