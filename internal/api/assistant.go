package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/p-n-ai/pai-academy/internal/assistant"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	s.metrics.ChatMessage("in")
	reply, err := s.chat.Send(r.Context(), assistant.Inbound{UserID: id.UserID, UserName: id.Name, Text: req.Text})
	if err != nil {
		fail(w, r, err)
		return
	}
	s.metrics.ChatMessage("out")
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	msgs, err := s.chat.History(r.Context(), id.UserID)
	if err != nil && !errors.Is(err, assistant.ErrConversationNotFound) {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(msgs))
}

func (s *Server) handleRoadmap(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.user(w, r); !ok {
		return
	}
	var req struct {
		Goal string `json:"goal"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Goal) == "" {
		writeError(w, http.StatusBadRequest, "goal is required")
		return
	}
	milestones, err := s.roadmaps.Generate(r.Context(), req.Goal)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, milestones)
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.news.Snapshot())
}

// handleNewsRefresh fetches a new feed. A response overtaken by a newer
// refresh is not applied, and the caller gets the feed that is current.
func (s *Server) handleNewsRefresh(w http.ResponseWriter, r *http.Request) {
	snap, applied := s.news.Refresh(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"applied": applied,
		"feed":    snap,
	})
}
