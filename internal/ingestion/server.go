package ingestion

import (
	"encoding/json"
	"html/template"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/batchproc/internal/common/batcherrors"
	"github.com/G-Research/batchproc/internal/common/health"
	"github.com/G-Research/batchproc/internal/common/logging"
	"github.com/G-Research/batchproc/internal/metrics"
)

const (
	defaultPerPage  = 20
	pageViewsKey    = "page_views"
	maxRequestBytes = 16 << 20
)

var viewsTemplate = template.Must(template.New("views").Parse(`<!DOCTYPE html>
<html>
<head><title>Page Views</title></head>
<body>
    <h1>This page has been viewed {{ . }} times.</h1>
</body>
</html>
`))

type Server struct {
	store   EventStore
	db      redis.UniversalClient
	checker health.Checker
}

func NewServer(store EventStore, db redis.UniversalClient, checker health.Checker) *Server {
	return &Server{store: store, db: db, checker: checker}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Post("/events", s.postEvents)
	r.Get("/events", s.getEvents)
	r.Get("/views", s.views)
	r.Method(http.MethodGet, "/health", health.NewHealthCheckHttpHandler(s.checker, "ok"))
	return r
}

func (s *Server) postEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidJson.Error())
		return
	}
	events, err := ParseEvents(body)
	if err != nil {
		if err == ErrInvalidJson || err == ErrMissingFields {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, batcherrors.HttpStatusFromError(err), err.Error())
		return
	}

	if err := s.store.InsertEvents(r.Context(), events); err != nil {
		logging.WithStacktrace(log.WithField("events", len(events)), err).Error("Failed to insert events")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.EventsIngested.Add(float64(len(events)))
	log.Infof("Inserted %d event(s)", len(events))
	writeJson(w, http.StatusOK, map[string]int{"inserted": len(events)})
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	perPage, err := queryInt(r, "per_page", defaultPerPage)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := s.store.GetEvents(r.Context(), page, perPage)
	if err != nil {
		logging.WithStacktrace(log.WithField("page", page), err).Error("Failed to read events")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJson(w, http.StatusOK, map[string][]*Event{"events": events})
}

// queryInt reads a positive integer query parameter. Missing or non-positive values give the default.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &batcherrors.ErrInvalidArgument{Name: name, Value: raw, Message: "must be an integer"}
	}
	if value < 1 {
		return def, nil
	}
	return value, nil
}

func (s *Server) views(w http.ResponseWriter, r *http.Request) {
	count, err := s.db.Incr(pageViewsKey).Result()
	if err != nil {
		logging.WithStacktrace(log.NewEntry(log.StandardLogger()), errors.WithStack(err)).Error("Failed to count page view")
		http.Error(w, "page view counter unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := viewsTemplate.Execute(w, count); err != nil {
		log.Errorf("Failed to render page views: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJson(w, status, map[string]string{"error": message})
}

func writeJson(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("Failed to write response: %v", err)
	}
}
