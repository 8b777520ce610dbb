package batchapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/batchproc/internal/common/batcherrors"
	"github.com/G-Research/batchproc/internal/common/health"
	"github.com/G-Research/batchproc/internal/common/logging"
	"github.com/G-Research/batchproc/internal/fanout"
	"github.com/G-Research/batchproc/internal/metrics"
	"github.com/G-Research/batchproc/internal/queue"
)

const maxRequestBytes = 32 << 20

type enqueueRequest struct {
	JobType string                 `json:"job_type"`
	Data    json.RawMessage        `json:"data"`
	Options map[string]interface{} `json:"options"`
}

type jobsResponse struct {
	QueuedJobs    []queue.JobSummary `json:"queued_jobs"`
	StartedJobs   []string           `json:"started_jobs"`
	FinishedJobs  []string           `json:"finished_jobs"`
	FailedJobs    []string           `json:"failed_jobs"`
	QueuedCount   int                `json:"queued_count"`
	StartedCount  int                `json:"started_count"`
	FinishedCount int                `json:"finished_count"`
	FailedCount   int                `json:"failed_count"`
}

// Server is the HTTP front end of the job queue.
type Server struct {
	queue   queue.JobQueue
	checker health.Checker
	// Finished and failed jobs never change again, so their responses are cached by id.
	results *lru.Cache
	clock   func() time.Time
	newId   func() string
}

func NewServer(q queue.JobQueue, checker health.Checker, resultCacheSize int) (*Server, error) {
	cache, err := lru.New(resultCacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Server{
		queue:   q,
		checker: checker,
		results: cache,
		clock:   time.Now,
		newId:   func() string { return uuid.New().String() },
	}, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Post("/enqueue", s.enqueue)
	r.Get("/job/{id}", s.getJob)
	r.Get("/jobs", s.listJobs)
	r.Method(http.MethodGet, "/health", health.NewHealthCheckHttpHandler(s.checker, "healthy"))
	return r
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "No JSON data provided")
		return
	}
	var req *enqueueRequest
	if len(bytes.TrimSpace(body)) == 0 || json.Unmarshal(body, &req) != nil || req == nil {
		writeError(w, http.StatusBadRequest, "No JSON data provided")
		return
	}
	if req.JobType == "" {
		writeError(w, http.StatusBadRequest, "job_type is required")
		return
	}
	if len(req.Data) == 0 || string(req.Data) == "null" {
		writeError(w, http.StatusBadRequest, "data is required")
		return
	}
	jobType := fanout.JobType(req.JobType)
	if !jobType.Valid() {
		writeError(w, http.StatusBadRequest, (&batcherrors.ErrUnsupportedJobType{JobType: req.JobType}).Error())
		return
	}

	job := &queue.Job{
		Id:        s.newId(),
		Type:      jobType,
		Payload:   req.Data,
		Options:   req.Options,
		CreatedAt: s.clock(),
	}
	position, err := s.queue.Enqueue(job)
	if err != nil {
		logging.WithStacktrace(log.WithField("jobType", jobType), err).Error("Failed to enqueue job")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.JobsEnqueued.WithLabelValues(string(jobType)).Inc()
	log.WithFields(log.Fields{"jobId": job.Id, "jobType": jobType}).Infof("Enqueued job at position %d", position)
	writeJson(w, http.StatusAccepted, EnqueueResponse{JobId: job.Id, Status: queue.JobQueued, Position: position})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if cached, ok := s.results.Get(id); ok {
		writeJson(w, http.StatusOK, cached)
		return
	}

	info, err := s.queue.Fetch(id)
	if err != nil {
		status := batcherrors.HttpStatusFromError(err)
		if status == http.StatusNotFound {
			writeError(w, status, "Job not found")
			return
		}
		logging.WithStacktrace(log.WithField("jobId", id), err).Error("Failed to fetch job")
		writeError(w, status, err.Error())
		return
	}

	response := JobStatusResponse{
		JobId:     info.Id,
		Status:    info.Status,
		CreatedAt: info.CreatedAt,
		EndedAt:   info.EndedAt,
		Result:    info.Result,
		Error:     info.Error,
	}
	if info.Status == queue.JobQueued && info.Position >= 0 {
		position := info.Position
		response.QueuePosition = &position
	}
	if info.Status == queue.JobFinished || info.Status == queue.JobFailed {
		s.results.Add(id, response)
	}
	writeJson(w, http.StatusOK, response)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	list, err := s.queue.List()
	if err != nil {
		logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Error("Failed to list jobs")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJson(w, http.StatusOK, jobsResponse{
		QueuedJobs:    list.Queued,
		StartedJobs:   list.Started,
		FinishedJobs:  list.Finished,
		FailedJobs:    list.Failed,
		QueuedCount:   len(list.Queued),
		StartedCount:  len(list.Started),
		FinishedCount: len(list.Finished),
		FailedCount:   len(list.Failed),
	})
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
