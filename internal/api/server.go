// Package api exposes the academy over HTTP: catalog browsing, course
// sessions, assessments, unlocks, certificates, category quizzes, the admin
// table, the community forum and the assistant.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/p-n-ai/pai-academy/internal/academy"
	"github.com/p-n-ai/pai-academy/internal/admin"
	"github.com/p-n-ai/pai-academy/internal/assistant"
	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/chat"
	"github.com/p-n-ai/pai-academy/internal/enrollment"
	"github.com/p-n-ai/pai-academy/internal/forum"
	"github.com/p-n-ai/pai-academy/internal/payment"
	"github.com/p-n-ai/pai-academy/internal/platform/clock"
	"github.com/p-n-ai/pai-academy/internal/platform/metrics"
	"github.com/p-n-ai/pai-academy/internal/progress"
	"github.com/p-n-ai/pai-academy/internal/quiz"
)

// UserHeader carries the learner id on API requests. Browsers opening the
// chat socket pass it as the "user" query parameter instead.
const UserHeader = "X-User-ID"

const maxBodyBytes = 64 << 10

// Config holds the Server's collaborators. App, Ledger and Quizzes are required.
type Config struct {
	App         *academy.App
	Ledger      enrollment.Ledger
	Quizzes     *quiz.Service
	Chat        *assistant.Chat
	Roadmaps    *assistant.Roadmaps
	News        *assistant.Feed
	Forum       *forum.Board
	Metrics     *metrics.Metrics
	Clock       clock.Clock
	Debounce    time.Duration
	ChatOptions []chat.Option
}

// Server is the HTTP surface of the academy.
type Server struct {
	app      *academy.App
	quizzes  *quiz.Service
	chat     *assistant.Chat
	roadmaps *assistant.Roadmaps
	news     *assistant.Feed
	forum    *forum.Board
	metrics  *metrics.Metrics
	table    *admin.Table
	clock    clock.Clock
	debounce time.Duration
	socket   http.Handler

	mu         sync.Mutex
	dashboards map[string]*admin.Dashboard
}

// New creates a Server. Assistant collaborators left nil get generators
// that always fall back; a nil Forum gets an empty in-memory board.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("academy app is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("enrollment ledger is required")
	}
	if cfg.Quizzes == nil {
		return nil, fmt.Errorf("quiz service is required")
	}
	s := &Server{
		app:        cfg.App,
		quizzes:    cfg.Quizzes,
		chat:       cfg.Chat,
		roadmaps:   cfg.Roadmaps,
		news:       cfg.News,
		forum:      cfg.Forum,
		metrics:    cfg.Metrics,
		table:      admin.NewTable(cfg.App.Catalog(), cfg.Ledger),
		clock:      cfg.Clock,
		debounce:   cfg.Debounce,
		dashboards: make(map[string]*admin.Dashboard),
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.debounce <= 0 {
		s.debounce = admin.DefaultDebounce
	}
	if s.chat == nil {
		s.chat = assistant.NewChat(assistant.ChatConfig{})
	}
	if s.roadmaps == nil {
		s.roadmaps = assistant.NewRoadmaps(nil)
	}
	if s.news == nil {
		s.news = assistant.NewFeed(nil)
	}
	if s.forum == nil {
		s.forum = forum.NewBoard(forum.NewMemoryStore(), s.clock)
	}
	opts := append([]chat.Option{chat.WithMetrics(s.metrics)}, cfg.ChatOptions...)
	s.socket = chat.NewHandler(s.chat, s.identify, opts...)
	return s, nil
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/courses", s.handleCourses)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("GET /api/courses/{courseID}", s.handleCourse)
	mux.HandleFunc("GET /api/courses/{courseID}/topics/{topicID}/lesson", s.handleLesson)

	mux.HandleFunc("POST /api/courses/{courseID}/session", s.handleOpenSession)
	mux.HandleFunc("GET /api/courses/{courseID}/session", s.handleGetSession)
	mux.HandleFunc("DELETE /api/courses/{courseID}/session", s.handleCloseSession)
	mux.HandleFunc("POST /api/courses/{courseID}/session/select", s.handleSelectTopic)
	mux.HandleFunc("POST /api/courses/{courseID}/session/advance", s.handleAdvance)
	mux.HandleFunc("POST /api/courses/{courseID}/topics/{topicID}/complete", s.handleComplete)
	mux.HandleFunc("PUT /api/courses/{courseID}/topics/{topicID}/draft", s.handleDraft)
	mux.HandleFunc("POST /api/courses/{courseID}/topics/{topicID}/quiz", s.handleCheckQuiz)
	mux.HandleFunc("POST /api/courses/{courseID}/topics/{topicID}/code", s.handleCheckCode)
	mux.HandleFunc("POST /api/courses/{courseID}/topics/{topicID}/explain", s.handleExplain)
	mux.HandleFunc("POST /api/courses/{courseID}/unlock", s.handleUnlock)

	mux.HandleFunc("GET /api/me", s.handleProfile)
	mux.HandleFunc("PUT /api/me", s.handleUpdateProfile)
	mux.HandleFunc("GET /api/me/enrollments", s.handleEnrollments)
	mux.HandleFunc("GET /api/me/unlocks", s.handleUnlocks)
	mux.HandleFunc("GET /api/me/certificates", s.handleCertificates)
	mux.HandleFunc("GET /api/me/certificates/{serial}", s.handleCertificate)

	mux.HandleFunc("POST /api/quizzes/attempts", s.handleStartQuiz)
	mux.HandleFunc("GET /api/quizzes/attempts/{attemptID}", s.handleQuizState)
	mux.HandleFunc("POST /api/quizzes/attempts/{attemptID}/answers", s.handleQuizAnswer)
	mux.HandleFunc("POST /api/quizzes/attempts/{attemptID}/goto", s.handleQuizGoto)
	mux.HandleFunc("POST /api/quizzes/attempts/{attemptID}/submit", s.handleQuizSubmit)
	mux.HandleFunc("GET /api/quizzes/history", s.handleQuizHistory)

	mux.HandleFunc("GET /api/admin/users", s.handleAdminUsers)
	mux.HandleFunc("GET /api/admin/users.xlsx", s.handleAdminExport)
	mux.HandleFunc("GET /api/admin/dashboard", s.handleDashboard)
	mux.HandleFunc("POST /api/admin/dashboard/search", s.handleDashboardSearch)
	mux.HandleFunc("POST /api/admin/dashboard/sort", s.handleDashboardSort)

	mux.HandleFunc("GET /api/forum/posts", s.handleForumPosts)
	mux.HandleFunc("POST /api/forum/posts", s.handlePublishPost)
	mux.HandleFunc("POST /api/forum/posts/{postID}/replies", s.handleReply)
	mux.HandleFunc("POST /api/forum/posts/{postID}/likes", s.handleLike)

	mux.HandleFunc("POST /api/assistant/chat", s.handleChat)
	mux.HandleFunc("GET /api/assistant/history", s.handleChatHistory)
	mux.HandleFunc("POST /api/assistant/roadmap", s.handleRoadmap)
	mux.HandleFunc("GET /api/assistant/news", s.handleNews)
	mux.HandleFunc("POST /api/assistant/news/refresh", s.handleNewsRefresh)
	mux.Handle("GET /ws/assistant", s.socket)
}

// Handler returns the API routes behind the request metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return s.metrics.Middleware(mux)
}

// Close cancels pending admin searches.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range s.dashboards {
		d.Close()
		delete(s.dashboards, id)
	}
}

// identify resolves the learner from the request header or query.
func (s *Server) identify(r *http.Request) (chat.Identity, bool) {
	id := strings.TrimSpace(r.Header.Get(UserHeader))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("user"))
	}
	if id == "" {
		return chat.Identity{}, false
	}
	p, err := s.app.Profile(id)
	if err != nil {
		return chat.Identity{}, false
	}
	return chat.Identity{UserID: p.ID, Name: p.Name}, true
}

// user writes 401 and returns false when the request has no known learner.
func (s *Server) user(w http.ResponseWriter, r *http.Request) (chat.Identity, bool) {
	id, ok := s.identify(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unknown or missing user")
	}
	return id, ok
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps domain errors to HTTP statuses.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func errorStatus(err error) int {
	var notFound *progress.NotFoundError
	switch {
	case errors.As(err, &notFound),
		errors.Is(err, catalog.ErrCourseNotFound),
		errors.Is(err, academy.ErrSessionNotFound),
		errors.Is(err, academy.ErrCertNotFound),
		errors.Is(err, quiz.ErrNotFound),
		errors.Is(err, forum.ErrPostNotFound):
		return http.StatusNotFound
	case errors.Is(err, progress.ErrTopicLocked):
		return http.StatusForbidden
	case errors.Is(err, academy.ErrUnknownUser):
		return http.StatusUnauthorized
	case errors.Is(err, payment.ErrDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, academy.ErrNotActive),
		errors.Is(err, quiz.ErrSubmitted):
		return http.StatusConflict
	case errors.Is(err, academy.ErrFreeCourse),
		errors.Is(err, academy.ErrNoQuiz),
		errors.Is(err, academy.ErrNoChallenge),
		errors.Is(err, academy.ErrBadSelection),
		errors.Is(err, quiz.ErrNoSelection),
		errors.Is(err, quiz.ErrInvalidAnswer),
		errors.Is(err, academy.ErrInvalidProfile),
		errors.Is(err, forum.ErrEmptyContent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
