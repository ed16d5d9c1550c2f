package api

import (
	"net/http"

	"github.com/p-n-ai/pai-academy/internal/forum"
)

type contentRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleForumPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.forum.Posts(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// author resolves the poster's current profile name and avatar.
func (s *Server) author(w http.ResponseWriter, r *http.Request) (forum.Author, bool) {
	id, ok := s.user(w, r)
	if !ok {
		return forum.Author{}, false
	}
	p, err := s.app.Profile(id.UserID)
	if err != nil {
		fail(w, r, err)
		return forum.Author{}, false
	}
	return forum.Author{Name: p.Name, Avatar: p.Avatar}, true
}

func (s *Server) handlePublishPost(w http.ResponseWriter, r *http.Request) {
	author, ok := s.author(w, r)
	if !ok {
		return
	}
	var req contentRequest
	if !decode(w, r, &req) {
		return
	}
	post, err := s.forum.Publish(r.Context(), author, req.Content)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	author, ok := s.author(w, r)
	if !ok {
		return
	}
	var req contentRequest
	if !decode(w, r, &req) {
		return
	}
	reply, err := s.forum.Reply(r.Context(), r.PathValue("postID"), author, req.Content)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reply)
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.user(w, r); !ok {
		return
	}
	likes, err := s.forum.Like(r.Context(), r.PathValue("postID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"likes": likes})
}
