// Package httpapi exposes the public read-only HTTP surface
// (/health, /events.json, /calendars.json, /departures.json,
// /debug/pipeline) and the admin surface behind a static bearer
// token, in the teacher's net/http.ServeMux router style
// (internal/router/router.go) (C12).
package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomcal/roomcal/internal/artifact"
	"github.com/roomcal/roomcal/internal/csvimport"
	"github.com/roomcal/roomcal/internal/hashutil"
	"github.com/roomcal/roomcal/internal/model"
	"github.com/roomcal/roomcal/internal/query"
)

// ScheduleSource supplies the merged schedule and calendar map.
type ScheduleSource interface {
	EnsureSchedule(ctx context.Context) (model.MergedSchedule, model.CalendarMap, error)
}

// SourceStore is the admin-facing calendar source catalog.
type SourceStore interface {
	ListSources(ctx context.Context) ([]model.CalendarSource, error)
	UpsertSourceByURL(ctx context.Context, src model.CalendarSource) error
	UpdateSourceFields(ctx context.Context, id int64, src model.CalendarSource) error
	DeleteSource(ctx context.Context, id int64) error
}

// ManualEventStore is the admin-facing one-off event catalog.
type ManualEventStore interface {
	AddManualEvent(ctx context.Context, e model.ManualEvent) (int64, error)
	DeleteManualEvent(ctx context.Context, id int64) error
	ListManualEvents(ctx context.Context, start, end time.Time) ([]model.ManualEvent, error)
}

// ExtractionRunner triggers a full extraction cycle on demand.
type ExtractionRunner interface {
	Run(ctx context.Context) error
}

// RetentionCleaner deletes manual events older than a cutoff.
type RetentionCleaner interface {
	DeleteManualEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Handler wires the query layer, schedule cache, store, and
// orchestrator into one HTTP surface.
type Handler struct {
	Query        *query.Query
	Schedule     ScheduleSource
	Sources      SourceStore
	ManualEvents ManualEventStore
	CSVUpserter  csvimport.Upserter
	Extraction   ExtractionRunner
	Retention    RetentionCleaner
	Artifacts    *artifact.Dir

	AdminToken    string
	MaxCSVBytes   int64
	RetentionDays int
	Location      *time.Location
	Logger        zerolog.Logger
	Now           func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) loc() *time.Location {
	if h.Location != nil {
		return h.Location
	}
	return time.UTC
}

// New builds the process's http.Handler: every route wrapped with
// structured request logging, admin routes additionally wrapped with
// the bearer-token check.
func New(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/events.json", h.handleEvents)
	mux.HandleFunc("/calendars.json", h.handleCalendars)
	mux.HandleFunc("/departures.json", h.handleDepartures)
	mux.HandleFunc("/debug/pipeline", h.handleDebugPipeline)

	mux.HandleFunc("/admin/sources", h.requireAdmin(h.handleAdminSources))
	mux.HandleFunc("/admin/sources/", h.requireAdmin(h.handleAdminSourceByID))
	mux.HandleFunc("/admin/events", h.requireAdmin(h.handleAdminEvents))
	mux.HandleFunc("/admin/events/", h.requireAdmin(h.handleAdminEventByID))
	mux.HandleFunc("/admin/import-csv", h.requireAdmin(h.handleAdminImportCSV))
	mux.HandleFunc("/admin/extract", h.requireAdmin(h.handleAdminExtract))
	mux.HandleFunc("/admin/cleanup", h.requireAdmin(h.handleAdminCleanup))

	return withLogging(h.Logger, mux)
}

// --- public, read-only routes ---

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := query.Params{
		Subject:   q.Get("subject"),
		Professor: q.Get("professor"),
		Room:      q.Get("room"),
		Building:  q.Get("building"),
		Group:     q.Get("group"),
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid from: "+err.Error(), http.StatusBadRequest)
			return
		}
		p.Start = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid to: "+err.Error(), http.StatusBadRequest)
			return
		}
		p.End = t
	}

	events, err := h.Query.Run(r.Context(), p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) handleCalendars(w http.ResponseWriter, r *http.Request) {
	_, cm, err := h.Schedule.EnsureSchedule(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if cm == nil {
		cm = model.CalendarMap{}
	}
	writeJSON(w, http.StatusOK, cm)
}

// handleDepartures returns today's and tomorrow's events, grouped by
// room, in the server's configured timezone.
func (h *Handler) handleDepartures(w http.ResponseWriter, r *http.Request) {
	now := h.now().In(h.loc())
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc())
	windowEnd := dayStart.AddDate(0, 0, 2)

	events, err := h.Query.Run(r.Context(), query.Params{Start: dayStart, End: windowEnd})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	grouped := make(map[string][]model.Event)
	for _, e := range events {
		key := e.Room
		if key == "" {
			key = e.Building
		}
		if key == "" {
			key = "unassigned"
		}
		grouped[key] = append(grouped[key], e)
	}
	writeJSON(w, http.StatusOK, grouped)
}

func (h *Handler) handleDebugPipeline(w http.ResponseWriter, r *http.Request) {
	progress, err := h.Artifacts.ReadProgress()
	if err != nil {
		progress = model.ImportProgress{}
	}
	fp, fpErr := hashutil.Fingerprint(h.Artifacts.Root())
	out := struct {
		Progress    model.ImportProgress `json:"progress"`
		Fingerprint model.Fingerprint    `json:"fingerprint"`
		Error       string               `json:"fingerprint_error,omitempty"`
	}{Progress: progress, Fingerprint: fp}
	if fpErr != nil {
		out.Error = fpErr.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

// --- admin routes ---

func (h *Handler) handleAdminSources(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sources, err := h.Sources.ListSources(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, sources)
	case http.MethodPost:
		var src model.CalendarSource
		if !decodeJSON(w, r, &src) {
			return
		}
		if src.PrimaryURL == "" {
			http.Error(w, "primary_url is required", http.StatusBadRequest)
			return
		}
		if err := h.Sources.UpsertSourceByURL(r.Context(), src); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleAdminSourceByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "/admin/sources/")
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPut:
		var src model.CalendarSource
		if !decodeJSON(w, r, &src) {
			return
		}
		if err := h.Sources.UpdateSourceFields(r.Context(), id, src); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := h.Sources.DeleteSource(r.Context(), id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleAdminEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		start, end := h.now().AddDate(0, 0, -7), h.now().AddDate(0, 0, 7)
		events, err := h.ManualEvents.ListManualEvents(r.Context(), start, end)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, events)
	case http.MethodPost:
		var e model.ManualEvent
		if !decodeJSON(w, r, &e) {
			return
		}
		if e.End.Before(e.Start) {
			http.Error(w, "end must not precede start", http.StatusBadRequest)
			return
		}
		id, err := h.ManualEvents.AddManualEvent(r.Context(), e)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, struct {
			ID int64 `json:"id"`
		}{ID: id})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleAdminEventByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "/admin/events/")
	if !ok {
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.ManualEvents.DeleteManualEvent(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAdminImportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := h.MaxCSVBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	body := http.MaxBytesReader(w, r.Body, limit)
	res, err := csvimport.Import(r.Context(), body, h.CSVUpserter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAdminExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.Extraction.Run(r.Context()); err != nil {
		if isAlreadyRunning(err) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleAdminCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	days := h.RetentionDays
	if days <= 0 {
		days = 60
	}
	cutoff := h.now().AddDate(0, 0, -days)
	n, err := h.Retention.DeleteManualEventsBefore(r.Context(), cutoff)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Deleted int64 `json:"deleted"`
	}{Deleted: n})
}

// requireAdmin rejects requests unless they carry a bearer token
// matching the configured ADMIN_TOKEN. An unset token disables the
// admin surface entirely rather than accepting anything.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.AdminToken == "" {
			http.Error(w, "admin interface disabled", http.StatusServiceUnavailable)
			return
		}
		authz := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(authz, prefix) || strings.TrimPrefix(authz, prefix) != h.AdminToken {
			w.Header().Set("WWW-Authenticate", `Bearer realm="roomcal-admin"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func isAlreadyRunning(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already running")
}

func pathID(w http.ResponseWriter, r *http.Request, prefix string) (int64, bool) {
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	if rest == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// --- request logging, grounded on the teacher's router.statusRecorder ---

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	bytes       int
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
		r.ResponseWriter.WriteHeader(code)
	}
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

func realIP(req *http.Request) string {
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if xr := req.Header.Get("X-Real-IP"); xr != "" {
		return xr
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

func statusOrDefault(st int) int {
	if st == 0 {
		return http.StatusOK
	}
	return st
}

func withLogging(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		dur := time.Since(start)
		logEvent := logger.Debug()
		if r.Method != http.MethodGet {
			logEvent = logger.Info()
		}
		logEvent.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", statusOrDefault(rec.status)).
			Int("bytes", rec.bytes).
			Float64("duration_ms", float64(dur.Microseconds())/1000.0).
			Str("ip", realIP(r)).
			Str("user_agent", r.Header.Get("User-Agent")).
			Msg("http request")
	})
}
