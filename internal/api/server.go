// Package api exposes the board over HTTP and streams changes to clients
// with Server-Sent Events.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"taskboard/internal/logging"
	"taskboard/pkg/board"
	"taskboard/pkg/broadcast"
	"taskboard/pkg/task"
	"taskboard/pkg/user"
)

// ActorHeader carries the authenticated user's ID, set by the upstream
// auth proxy.
const ActorHeader = "X-User-ID"

const (
	streamPath    = "/api/events/stream"
	maxPageSize   = 100
	maxBodyLength = 1 << 20
)

// Server is the HTTP API server.
type Server struct {
	board         *board.Service
	hub           *broadcast.Hub
	log           *logging.Logger
	activityLimit int
	mux           *http.ServeMux
	handler       http.Handler
}

// New creates a Server. activityLimit is the default page size for the
// activity feed.
func New(b *board.Service, log *logging.Logger, activityLimit int) *Server {
	if log == nil {
		log = logging.Nop()
	}
	if activityLimit <= 0 {
		activityLimit = 20
	}
	s := &Server{
		board:         b,
		hub:           b.Hub(),
		log:           log.WithComponent("api"),
		activityLimit: activityLimit,
		mux:           http.NewServeMux(),
	}
	s.routes()

	gz := gzhttp.GzipHandler(s.mux)
	s.handler = s.logRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// compression buffers output, which would stall the stream
		if r.URL.Path == streamPath {
			s.mux.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	}))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	// Tasks
	s.mux.HandleFunc("GET /api/tasks", s.handleTaskList)
	s.mux.HandleFunc("POST /api/tasks", s.requireActor(s.handleTaskCreate))
	s.mux.HandleFunc("GET /api/tasks/logs", s.handleActivity)
	s.mux.HandleFunc("GET /api/tasks/{id}", s.handleTaskGet)
	s.mux.HandleFunc("PUT /api/tasks/{id}", s.requireActor(s.handleTaskUpdate))
	s.mux.HandleFunc("DELETE /api/tasks/{id}", s.requireActor(s.handleTaskDelete))
	s.mux.HandleFunc("POST /api/tasks/{id}/resolve", s.requireActor(s.handleTaskResolve))
	s.mux.HandleFunc("POST /api/tasks/{id}/smart-assign", s.requireActor(s.handleTaskSmartAssign))
	s.mux.HandleFunc("GET /api/tasks/{id}/history", s.handleTaskHistory)

	// Users
	s.mux.HandleFunc("GET /api/users", s.handleUserList)
	s.mux.HandleFunc("POST /api/users", s.handleUserRegister)

	// Real-time
	s.mux.HandleFunc("GET "+streamPath, s.handleEventStream)

	// System
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
}

// requireActor rejects mutations that arrive without an actor.
func (s *Server) requireActor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(ActorHeader) == "" {
			s.writeError(w, http.StatusUnauthorized, "missing "+ActorHeader+" header")
			return
		}
		next(w, r)
	}
}

func actorID(r *http.Request) string {
	return r.Header.Get(ActorHeader)
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps the stream handler working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"actor", actorID(r),
		)
	})
}

// fail maps a board error to a status code. Unexpected errors are logged
// and reported to the client without detail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		conflict   *board.ConflictError
		validation *task.ValidationError
	)
	switch {
	case errors.As(err, &conflict):
		s.writeJSON(w, http.StatusConflict, conflictBody{
			Message:     "Task was modified by another user",
			CurrentTask: conflict.Current,
			ClientTask:  conflict.Submitted,
		})
	case errors.As(err, &validation):
		s.writeError(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, task.ErrDuplicateTitle):
		s.writeError(w, http.StatusBadRequest, "task title must be unique")
	case errors.Is(err, task.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, user.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, board.ErrNoAssignee):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "no users available for assignment",
			"code":  "NoAssigneeAvailable",
		})
	default:
		s.log.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"actor", actorID(r),
			"error", err,
		)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type conflictBody struct {
	Message     string        `json:"message"`
	CurrentTask *task.Task    `json:"currentTask"`
	ClientTask  task.Mutation `json:"clientTask"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyLength)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write json", "status", status, "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultVal
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}
