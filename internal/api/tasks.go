package api

import (
	"net/http"

	"taskboard/pkg/board"
	"taskboard/pkg/task"
)

type updateRequest struct {
	task.Mutation
	Version *int64 `json:"version"`
}

type resolveRequest struct {
	Action    board.Policy  `json:"action"`
	MergeData task.Mutation `json:"mergeData"`
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.board.ListTasks(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	t, err := s.board.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var m task.Mutation
	if !s.decode(w, r, &m) {
		return
	}
	t, err := s.board.CreateTask(r.Context(), actorID(r), m)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Version == nil {
		s.writeError(w, http.StatusBadRequest, "version is required")
		return
	}
	t, err := s.board.AttemptUpdate(r.Context(), actorID(r), r.PathValue("id"), *req.Version, req.Mutation)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleTaskResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !s.decode(w, r, &req) {
		return
	}
	t, err := s.board.Resolve(r.Context(), actorID(r), r.PathValue("id"), req.Action, req.MergeData)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.board.DeleteTask(r.Context(), actorID(r), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Task deleted"})
}

func (s *Server) handleTaskSmartAssign(w http.ResponseWriter, r *http.Request) {
	t, err := s.board.SmartAssign(r.Context(), actorID(r), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleTaskHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.board.GetTask(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.board.History(r.Context(), id, queryInt(r, "limit", s.activityLimit))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}
