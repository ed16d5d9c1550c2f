package api

import (
	"net/http"
	"strings"
)

func (s *Server) handleStartQuiz(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	var req struct {
		Category string `json:"category"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Category) == "" {
		writeError(w, http.StatusBadRequest, "category is required")
		return
	}
	attempt, err := s.quizzes.Start(id.UserID, req.Category)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attempt.State())
}

func (s *Server) handleQuizState(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	attempt, err := s.quizzes.Get(id.UserID, r.PathValue("attemptID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt.State())
}

func (s *Server) handleQuizAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	var req struct {
		Index  int    `json:"index"`
		Option string `json:"option"`
	}
	if !decode(w, r, &req) {
		return
	}
	attempt, err := s.quizzes.Get(id.UserID, r.PathValue("attemptID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := attempt.Answer(req.Index, req.Option); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt.State())
}

func (s *Server) handleQuizGoto(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	var req struct {
		Index int `json:"index"`
	}
	if !decode(w, r, &req) {
		return
	}
	attempt, err := s.quizzes.Get(id.UserID, r.PathValue("attemptID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt.Goto(req.Index))
}

// handleQuizSubmit grades the attempt. Submitting again returns the same
// result.
func (s *Server) handleQuizSubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	attempt, err := s.quizzes.Get(id.UserID, r.PathValue("attemptID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	result, _ := attempt.Submit()
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleQuizHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.quizzes.History(id.UserID))
}
