package api

import (
	"net/http"
	"strings"
)

func (s *Server) handleUserList(w http.ResponseWriter, r *http.Request) {
	users, err := s.board.ListUsers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleUserRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		s.writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	u, err := s.board.RegisterUser(r.Context(), req.Username)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, u)
}

// handleActivity serves the recent activity feed, newest first.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	acts, err := s.board.RecentActivity(r.Context(), queryInt(r, "limit", s.activityLimit))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, acts)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.board.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}
