package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"econ-clock/internal/domain"
	"econ-clock/internal/eventcache"
	"econ-clock/internal/orchestrator"
	"econ-clock/internal/storage"
	"econ-clock/internal/timeresolve"
)

type healthResponse struct {
	Status          string               `json:"status"`
	Uptime          string               `json:"uptime"`
	SessionID       string               `json:"session_id"`
	SnapshotVersion uint64               `json:"snapshot_version"`
	Loading         bool                 `json:"loading"`
	LastError       string               `json:"last_error,omitempty"`
	Feeds           []*storage.FeedState `json:"feeds,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		SessionID: s.session.ID(),
	}
	if snap, ok := s.session.Latest(); ok {
		resp.SnapshotVersion = snap.Version
		resp.Loading = snap.Loading
		resp.LastError = snap.Error
		if snap.Error != "" {
			resp.Status = "degraded"
		}
	} else {
		resp.Status = "starting"
	}
	if s.feeds != nil {
		feeds, err := s.feeds.List(r.Context())
		if err != nil {
			s.log.Warn().Err(err).Msg("list feed states")
		}
		resp.Feeds = feeds
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.session.Latest()
	if !ok {
		s.writeError(w, http.StatusServiceUnavailable, "no snapshot published yet")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

type eventsResponse struct {
	Start    int64          `json:"start"`
	End      int64          `json:"end"`
	Timezone string         `json:"timezone"`
	Filters  domain.Filters `json:"filters"`
	Events   []domain.Event `json:"events"`
	Error    string         `json:"error,omitempty"`
}

// handleEvents serves GET /api/events?start=&end=&tz=&currencies=&impacts=&source=.
// start/end accept epoch ms or RFC3339; both omitted means today.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseQuery(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := s.events.Query(r.Context(), q)
	resp := eventsResponse{
		Start:    q.StartMs(),
		End:      q.EndMs(),
		Timezone: q.Timezone,
		Filters:  q.Filters,
		Events:   res.Events,
	}
	status := http.StatusOK
	if res.Err != nil {
		resp.Error = res.Err.Error()
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) parseQuery(r *http.Request) (eventcache.Query, error) {
	v := r.URL.Query()

	tz := v.Get("tz")
	if tz == "" {
		tz = s.session.Settings().Timezone
	}
	if _, err := timeresolve.Location(tz); err != nil {
		return eventcache.Query{}, fmt.Errorf("invalid tz %q", tz)
	}

	filters := domain.Filters{
		Currencies: splitList(v.Get("currencies")),
		Source:     v.Get("source"),
	}
	for _, imp := range splitList(v.Get("impacts")) {
		filters.Impacts = append(filters.Impacts, domain.ParseImpact(imp))
	}
	filters = filters.Normalize()

	rawStart, rawEnd := v.Get("start"), v.Get("end")
	if rawStart == "" && rawEnd == "" {
		return eventcache.DayQuery(tz, s.now(), filters), nil
	}
	if rawStart == "" || rawEnd == "" {
		return eventcache.Query{}, errors.New("start and end must be given together")
	}
	start, err := parseInstant(rawStart)
	if err != nil {
		return eventcache.Query{}, fmt.Errorf("invalid start: %w", err)
	}
	end, err := parseInstant(rawEnd)
	if err != nil {
		return eventcache.Query{}, fmt.Errorf("invalid end: %w", err)
	}
	q := eventcache.Query{Start: start, End: end, Timezone: tz, Filters: filters}
	if !q.Valid() {
		return eventcache.Query{}, errors.New("end must be after start")
	}
	return q, nil
}

func parseInstant(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Parse(time.RFC3339, s)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.session.Settings())
}

// sessionRequest is a partial settings update.
type sessionRequest struct {
	Timezone      *string         `json:"timezone"`
	Filters       *domain.Filters `json:"filters"`
	FavoritesOnly *bool           `json:"favorites_only"`
}

func (s *Server) handlePutSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	st := s.session.Settings()
	if req.Timezone != nil {
		st.Timezone = *req.Timezone
	}
	if req.Filters != nil {
		st.Filters = *req.Filters
	}
	if req.FavoritesOnly != nil {
		st.FavoritesOnly = *req.FavoritesOnly
	}
	if err := s.session.Apply(st); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.session.Settings())
}

func (s *Server) handleListAnnotations(w http.ResponseWriter, r *http.Request) {
	snap, err := s.annotations.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	list := make([]storage.Annotation, 0, len(snap))
	for _, a := range snap {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleFavorite(favorite bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if err := s.annotations.SetFavorite(r.Context(), key, favorite); err != nil {
			s.writeStoreError(w, err)
			return
		}
		s.session.Notify()
		s.writeAnnotation(w, r, key)
	}
}

type noteRequest struct {
	Note string `json:"note"`
}

func (s *Server) handlePutNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	key := chi.URLParam(r, "key")
	if err := s.annotations.SetNote(r.Context(), key, req.Note); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.session.Notify()
	s.writeAnnotation(w, r, key)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.annotations.SetNote(r.Context(), key, ""); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.session.Notify()
	s.writeAnnotation(w, r, key)
}

// writeAnnotation responds with the current annotation, empty when removed.
func (s *Server) writeAnnotation(w http.ResponseWriter, r *http.Request, key string) {
	a, err := s.annotations.Get(r.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		a = storage.Annotation{Key: key}
	} else if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}

var _ SessionController = (*orchestrator.Session)(nil)
