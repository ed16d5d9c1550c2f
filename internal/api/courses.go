package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/p-n-ai/pai-academy/internal/academy"
	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/certificate"
	"github.com/p-n-ai/pai-academy/internal/enrollment"
	"github.com/p-n-ai/pai-academy/internal/payment"
	"github.com/p-n-ai/pai-academy/internal/progress"
)

// courseSummary is a catalog card without the topic bodies.
type courseSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Difficulty  string `json:"difficulty"`
	Duration    string `json:"duration"`
	IsFree      bool   `json:"isFree"`
	Price       int    `json:"price,omitempty"`
	Topics      int    `json:"topics"`
}

func summarize(c catalog.Course) courseSummary {
	return courseSummary{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Category:    c.Category,
		Difficulty:  c.Difficulty,
		Duration:    c.Duration,
		IsFree:      c.IsFree,
		Price:       c.Price,
		Topics:      len(c.Topics),
	}
}

// courseDetail is a course page: the card plus its syllabus. Answers and
// solution patterns stay server-side.
type courseDetail struct {
	courseSummary
	Syllabus []syllabusEntry `json:"syllabus"`
}

type syllabusEntry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Duration string `json:"duration"`
}

// topicState is one line of the course sidebar.
type topicState struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Duration  string `json:"duration"`
	Locked    bool   `json:"locked"`
	Completed bool   `json:"completed"`
	Active    bool   `json:"active"`
}

// sessionView is the learner's state inside an open course.
type sessionView struct {
	CourseID    string           `json:"courseId"`
	ActiveTopic string           `json:"activeTopicId"`
	Progress    int              `json:"progress"`
	Unlocked    bool             `json:"unlocked"`
	Topics      []topicState     `json:"topics"`
	Attempt     progress.Attempt `json:"attempt"`
	Lesson      *catalog.Lesson  `json:"lesson,omitempty"`
}

func viewSession(s *progress.Session) (sessionView, error) {
	course := s.Course()
	active, activeIdx := s.ActiveTopic()
	v := sessionView{
		CourseID:    course.ID,
		ActiveTopic: active.ID,
		Progress:    s.ProgressPercent(),
		Unlocked:    s.IsUnlocked(),
		Topics:      make([]topicState, len(course.Topics)),
		Attempt:     s.Attempt(),
	}
	for i, t := range course.Topics {
		v.Topics[i] = topicState{
			ID:        t.ID,
			Title:     t.Title,
			Duration:  t.Duration,
			Locked:    s.IsLocked(i),
			Completed: s.IsCompleted(t.ID),
			Active:    i == activeIdx,
		}
	}
	if !s.IsLocked(activeIdx) {
		lesson, err := catalog.RenderLesson(active)
		if err != nil {
			return sessionView{}, fmt.Errorf("rendering lesson %s: %w", active.ID, err)
		}
		v.Lesson = &lesson
	}
	return v, nil
}

func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, status int, session *progress.Session) {
	v, err := viewSession(session)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, status, v)
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	courses := s.app.Catalog().Search(q.Get("q"), q.Get("category"))
	out := make([]courseSummary, 0, len(courses))
	for _, c := range courses {
		out = append(out, summarize(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Catalog().Categories())
}

func (s *Server) handleCourse(w http.ResponseWriter, r *http.Request) {
	course, err := s.app.Catalog().FindCourse(r.PathValue("courseID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	detail := courseDetail{courseSummary: summarize(course), Syllabus: make([]syllabusEntry, len(course.Topics))}
	for i, t := range course.Topics {
		detail.Syllabus[i] = syllabusEntry{ID: t.ID, Title: t.Title, Duration: t.Duration}
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleLesson renders one topic for the learner. Premium topics of a course
// the learner has not unlocked are refused.
func (s *Server) handleLesson(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	session, err := s.app.OpenCourse(r.Context(), id.UserID, r.PathValue("courseID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	course := session.Course()
	topicID := r.PathValue("topicID")
	idx := course.TopicIndex(topicID)
	if idx < 0 {
		fail(w, r, &progress.NotFoundError{CourseID: course.ID, TopicID: topicID})
		return
	}
	if session.IsLocked(idx) {
		fail(w, r, fmt.Errorf("%w: %s", progress.ErrTopicLocked, topicID))
		return
	}
	lesson, err := catalog.RenderLesson(course.Topics[idx])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lesson)
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	session, err := s.app.OpenCourse(r.Context(), id.UserID, r.PathValue("courseID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	s.writeSession(w, r, http.StatusOK, session)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	session, err := s.app.Session(id.UserID, r.PathValue("courseID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	s.writeSession(w, r, http.StatusOK, session)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	s.app.CloseCourse(id.UserID, r.PathValue("courseID"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectTopic(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	var req struct {
		TopicID string `json:"topicId"`
	}
	if !decode(w, r, &req) {
		return
	}
	session, err := s.app.Session(id.UserID, r.PathValue("courseID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if _, err := session.SelectTopic(req.TopicID); err != nil {
		fail(w, r, err)
		return
	}
	s.writeSession(w, r, http.StatusOK, session)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	var req struct {
		Direction string `json:"direction"`
	}
	if !decode(w, r, &req) {
		return
	}
	dir, err := progress.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.app.Session(id.UserID, r.PathValue("courseID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	session.Advance(dir)
	s.writeSession(w, r, http.StatusOK, session)
}

// handleComplete sets a topic's completion, or toggles it when the body
// omits "completed".
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	var req struct {
		Completed *bool `json:"completed"`
	}
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	courseID, topicID := r.PathValue("courseID"), r.PathValue("topicID")

	var err error
	if req.Completed == nil {
		_, err = s.app.ToggleComplete(id.UserID, courseID, topicID)
	} else {
		_, err = s.app.MarkComplete(id.UserID, courseID, topicID, *req.Completed)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	session, err := s.app.Session(id.UserID, courseID)
	if err != nil {
		fail(w, r, err)
		return
	}
	s.writeSession(w, r, http.StatusOK, session)
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if !decode(w, r, &req) {
		return
	}
	session, err := s.app.Session(id.UserID, r.PathValue("courseID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	topicID := r.PathValue("topicID")
	if active, _ := session.ActiveTopic(); active.ID != topicID {
		fail(w, r, fmt.Errorf("%w: %s", academy.ErrNotActive, topicID))
		return
	}
	session.SetDraft(req.Code)
	writeJSON(w, http.StatusOK, session.Attempt())
}

func (s *Server) handleCheckQuiz(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	var req struct {
		Selection *int `json:"selection"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Selection == nil {
		writeError(w, http.StatusBadRequest, "selection is required")
		return
	}
	check, err := s.app.CheckQuiz(id.UserID, r.PathValue("courseID"), r.PathValue("topicID"), *req.Selection)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// handleCheckCode blocks for the lab run. A second submission while one is
// running is refused with 409.
func (s *Server) handleCheckCode(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if !decode(w, r, &req) {
		return
	}
	check, accepted, err := s.app.CheckCode(r.Context(), id.UserID, r.PathValue("courseID"), r.PathValue("topicID"), req.Code)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !accepted {
		writeError(w, http.StatusConflict, "a submission is already running")
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	feedback, err := s.app.ExplainError(r.Context(), id.UserID, r.PathValue("courseID"), r.PathValue("topicID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"feedback": feedback})
}

type unlockResponse struct {
	Unlocked bool             `json:"unlocked"`
	Receipt  *payment.Receipt `json:"receipt,omitempty"`
}

// handleUnlock charges for a paid course. Unlocking twice succeeds without a
// second charge; a charge still in flight answers 409.
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	courseID := r.PathValue("courseID")
	receipt, accepted, err := s.app.Unlock(r.Context(), id.UserID, courseID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if accepted {
		writeJSON(w, http.StatusOK, unlockResponse{Unlocked: true, Receipt: &receipt})
		return
	}
	unlocked, err := s.app.Unlocked(r.Context(), id.UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	for _, c := range unlocked {
		if c == courseID {
			writeJSON(w, http.StatusOK, unlockResponse{Unlocked: true})
			return
		}
	}
	writeError(w, http.StatusConflict, "payment already in progress")
}

func (s *Server) handleUnlocks(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	unlocked, err := s.app.Unlocked(r.Context(), id.UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if unlocked == nil {
		unlocked = []string{}
	}
	writeJSON(w, http.StatusOK, unlocked)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	p, err := s.app.Profile(id.UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	var req academy.ProfileUpdate
	if !decode(w, r, &req) {
		return
	}
	p, err := s.app.UpdateProfile(id.UserID, req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleEnrollments(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	list, overall, err := s.app.Enrollments(r.Context(), id.UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	stats := enrollment.Summarize(list)
	writeJSON(w, http.StatusOK, map[string]any{
		"enrollments":     list,
		"overallProgress": overall,
		"completed":       stats.Completed,
		"inProgress":      stats.InProgress,
	})
}

func (s *Server) handleCertificates(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	certs, err := s.app.Certificates(r.Context(), id.UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, certs)
}

// handleCertificate returns the printable document, as HTML when the client
// asks for it with ?format=html or an Accept header.
func (s *Server) handleCertificate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	cert, err := s.app.Certificate(r.Context(), id.UserID, r.PathValue("serial"))
	if err != nil {
		fail(w, r, err)
		return
	}
	doc := certificate.NewDocument(cert)
	if r.URL.Query().Get("format") != "html" && !strings.Contains(r.Header.Get("Accept"), "text/html") {
		writeJSON(w, http.StatusOK, doc)
		return
	}
	page, err := doc.HTML()
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}
