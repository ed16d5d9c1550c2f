// Package academy holds the application state of the learning front-end:
// learner profiles and open course sessions, wired to the enrollment ledger,
// certificate issuer, unlock store and payment processor.
package academy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/p-n-ai/pai-academy/internal/assessment"
	"github.com/p-n-ai/pai-academy/internal/assistant"
	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/certificate"
	"github.com/p-n-ai/pai-academy/internal/enrollment"
	"github.com/p-n-ai/pai-academy/internal/payment"
	"github.com/p-n-ai/pai-academy/internal/platform/clock"
	"github.com/p-n-ai/pai-academy/internal/platform/metrics"
	"github.com/p-n-ai/pai-academy/internal/progress"
	"github.com/p-n-ai/pai-academy/internal/quiz"
)

var (
	ErrUnknownUser     = errors.New("unknown user")
	ErrSessionNotFound = errors.New("course is not open")
	ErrNoQuiz          = errors.New("topic has no knowledge check")
	ErrNoChallenge     = errors.New("topic has no coding challenge")
	ErrFreeCourse      = errors.New("course is free")
	ErrNotActive       = errors.New("topic is not the active topic")
	ErrCertNotFound    = errors.New("certificate not found")
	ErrBadSelection    = errors.New("selection out of range")
	ErrInvalidProfile  = errors.New("invalid profile")
)

// DefaultRole is shown for learners who have not set one.
const DefaultRole = "Tech Enthusiast"

const maxProfileField = 120

// Profile is a learner's account as shown in the navbar and profile page.
type Profile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Role   string `json:"role"`
}

// ProfileUpdate holds the editable profile fields. Nil fields are left as they are.
type ProfileUpdate struct {
	Name   *string `json:"name"`
	Role   *string `json:"role"`
	Avatar *string `json:"avatar"`
}

// Config holds the App's collaborators. Nil stores default to in-memory ones.
type Config struct {
	Catalog   *catalog.Catalog
	Ledger    enrollment.Ledger
	Unlocks   progress.UnlockStore
	Issuer    *certificate.Issuer
	Payments  *payment.Processor
	Explainer *assistant.Explainer
	Events    EventLogger
	Metrics   *metrics.Metrics
	Clock     clock.Clock
	LabDelay  time.Duration
}

// App is the explicit application state object.
type App struct {
	catalog   *catalog.Catalog
	ledger    enrollment.Ledger
	unlocks   progress.UnlockStore
	issuer    *certificate.Issuer
	payments  *payment.Processor
	explainer *assistant.Explainer
	events    EventLogger
	metrics   *metrics.Metrics
	clock     clock.Clock
	labDelay  time.Duration

	mu        sync.Mutex
	profiles  map[string]Profile
	sessions  map[sessionKey]*openCourse
	unlocking map[sessionKey]struct{}
}

type sessionKey struct {
	userID   string
	courseID string
}

type openCourse struct {
	session *progress.Session
	lab     *assessment.Lab
}

// New creates the App with one profile per catalog user.
func New(cfg Config) (*App, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	a := &App{
		catalog:   cfg.Catalog,
		ledger:    cfg.Ledger,
		unlocks:   cfg.Unlocks,
		issuer:    cfg.Issuer,
		payments:  cfg.Payments,
		explainer: cfg.Explainer,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		clock:     cfg.Clock,
		labDelay:  cfg.LabDelay,
		profiles:  make(map[string]Profile),
		sessions:  make(map[sessionKey]*openCourse),
		unlocking: make(map[sessionKey]struct{}),
	}
	if a.clock == nil {
		a.clock = clock.Real{}
	}
	if a.ledger == nil {
		a.ledger = enrollment.NewMemoryLedger()
	}
	if a.unlocks == nil {
		a.unlocks = progress.NewMemoryUnlocks()
	}
	if a.issuer == nil {
		a.issuer = certificate.NewIssuer(certificate.NewMemoryStore())
	}
	if a.payments == nil {
		a.payments = payment.NewProcessor(a.clock, payment.DefaultDelay)
	}
	if a.explainer == nil {
		a.explainer = assistant.NewExplainer(nil)
	}
	if a.events == nil {
		a.events = NopEventLogger{}
	}
	for _, u := range cfg.Catalog.Users() {
		role := u.Role
		if role == "" {
			role = DefaultRole
		}
		a.profiles[u.ID] = Profile{ID: u.ID, Name: u.Name, Email: u.Email, Avatar: u.Avatar, Role: role}
	}
	return a, nil
}

// Catalog returns the course catalog.
func (a *App) Catalog() *catalog.Catalog {
	return a.catalog
}

// SeedEnrollments writes the catalog's sample enrollments to the ledger for
// courses the ledger does not know yet.
func (a *App) SeedEnrollments(ctx context.Context) error {
	for _, u := range a.catalog.Users() {
		for _, e := range u.Enrollments {
			_, found, err := a.ledger.Get(ctx, u.ID, e.CourseID)
			if err != nil {
				return fmt.Errorf("reading enrollment %s/%s: %w", u.ID, e.CourseID, err)
			}
			if found {
				continue
			}
			if err := a.ledger.Set(ctx, u.ID, e.CourseID, e.Progress); err != nil {
				return fmt.Errorf("seeding enrollment %s/%s: %w", u.ID, e.CourseID, err)
			}
		}
	}
	return nil
}

// Profile returns a learner's profile.
func (a *App) Profile(userID string) (Profile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.profiles[userID]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	return p, nil
}

// SetProfileName creates or renames a learner. The name is used on
// certificates awarded afterwards.
func (a *App) SetProfileName(userID, name string) (Profile, error) {
	if userID == "" {
		return Profile{}, fmt.Errorf("%w: user id is required", ErrInvalidProfile)
	}
	a.mu.Lock()
	if _, ok := a.profiles[userID]; !ok && strings.TrimSpace(name) != "" {
		a.profiles[userID] = Profile{ID: userID, Role: DefaultRole}
	}
	a.mu.Unlock()
	return a.UpdateProfile(userID, ProfileUpdate{Name: &name})
}

// UpdateProfile edits a known learner's name, role and avatar. The avatar
// must be an http(s) URL or an image data URI.
func (a *App) UpdateProfile(userID string, upd ProfileUpdate) (Profile, error) {
	var name, role, avatar string
	if upd.Name != nil {
		name = strings.TrimSpace(*upd.Name)
		if name == "" || len(name) > maxProfileField {
			return Profile{}, fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidProfile, maxProfileField)
		}
	}
	if upd.Role != nil {
		role = strings.TrimSpace(*upd.Role)
		if len(role) > maxProfileField {
			return Profile{}, fmt.Errorf("%w: role must be at most %d characters", ErrInvalidProfile, maxProfileField)
		}
		if role == "" {
			role = DefaultRole
		}
	}
	if upd.Avatar != nil {
		avatar = strings.TrimSpace(*upd.Avatar)
		if !validAvatar(avatar) {
			return Profile{}, fmt.Errorf("%w: avatar must be an http(s) URL or image data URI", ErrInvalidProfile)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.profiles[userID]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if upd.Name != nil {
		p.Name = name
	}
	if upd.Role != nil {
		p.Role = role
	}
	if upd.Avatar != nil {
		p.Avatar = avatar
	}
	a.profiles[userID] = p
	return p, nil
}

func validAvatar(s string) bool {
	if strings.HasPrefix(s, "data:image/") {
		return true
	}
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (a *App) userName(userID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.profiles[userID]; ok {
		return p.Name
	}
	return "Learner"
}

// OpenCourse returns the learner's session for courseID, creating it on
// first use. Paid courses start unlocked if the learner has paid before.
func (a *App) OpenCourse(ctx context.Context, userID, courseID string) (*progress.Session, error) {
	if _, err := a.Profile(userID); err != nil {
		return nil, err
	}
	course, err := a.catalog.FindCourse(courseID)
	if err != nil {
		return nil, err
	}

	key := sessionKey{userID, courseID}
	a.mu.Lock()
	if oc, ok := a.sessions[key]; ok {
		a.mu.Unlock()
		return oc.session, nil
	}
	a.mu.Unlock()

	unlocked := course.IsFree
	if !course.IsFree {
		unlocked, err = a.unlocks.IsUnlocked(ctx, userID, courseID)
		if err != nil {
			return nil, fmt.Errorf("reading unlock state: %w", err)
		}
	}

	session, err := progress.NewSession(course,
		progress.WithUnlocked(unlocked),
		progress.WithObserver(&observer{app: a, userID: userID}),
	)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if oc, ok := a.sessions[key]; ok {
		return oc.session, nil
	}
	a.sessions[key] = &openCourse{session: session, lab: assessment.NewLab(a.clock, a.labDelay)}
	slog.Info("course opened", "user_id", userID, "course_id", courseID, "unlocked", unlocked)
	return session, nil
}

// Session returns an already open session.
func (a *App) Session(userID, courseID string) (*progress.Session, error) {
	oc, err := a.open(userID, courseID)
	if err != nil {
		return nil, err
	}
	return oc.session, nil
}

// CloseCourse drops the session. Its completion set is discarded; the
// ledger keeps the last progress value.
func (a *App) CloseCourse(userID, courseID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sessionKey{userID, courseID})
}

func (a *App) open(userID, courseID string) (*openCourse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	oc, ok := a.sessions[sessionKey{userID, courseID}]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, courseID)
	}
	return oc, nil
}

// MarkComplete sets a topic's completion in an open session.
func (a *App) MarkComplete(userID, courseID, topicID string, completed bool) (int, error) {
	oc, err := a.open(userID, courseID)
	if err != nil {
		return 0, err
	}
	c, err := oc.session.Mark(topicID, completed)
	return a.completed(userID, oc.session, topicID, c, err)
}

// ToggleComplete flips a topic's completion in an open session.
func (a *App) ToggleComplete(userID, courseID, topicID string) (int, error) {
	oc, err := a.open(userID, courseID)
	if err != nil {
		return 0, err
	}
	c, err := oc.session.Toggle(topicID)
	return a.completed(userID, oc.session, topicID, c, err)
}

// completed records a topic that an update moved into the completion set.
func (a *App) completed(userID string, s *progress.Session, topicID string, c progress.Change, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	if c.Changed && c.Completed {
		course := s.Course()
		a.metrics.TopicCompleted(course.ID)
		a.logEvent(Event{
			UserID:    userID,
			CourseID:  course.ID,
			EventType: EventTopicCompleted,
			Data:      map[string]any{"topic_id": topicID, "progress": c.Percent},
		})
	}
	return c.Percent, nil
}

// Unlock charges the learner for a paid course and unlocks its premium
// topics. While an unlock is in progress, or once the course is unlocked, a
// repeated call returns accepted=false. The check, the charge and the record
// run as one step per learner and course.
func (a *App) Unlock(ctx context.Context, userID, courseID string) (receipt payment.Receipt, accepted bool, err error) {
	if _, err := a.Profile(userID); err != nil {
		return payment.Receipt{}, false, err
	}
	course, err := a.catalog.FindCourse(courseID)
	if err != nil {
		return payment.Receipt{}, false, err
	}
	if course.IsFree {
		return payment.Receipt{}, false, fmt.Errorf("%w: %s", ErrFreeCourse, courseID)
	}

	key := sessionKey{userID, courseID}
	a.mu.Lock()
	if _, busy := a.unlocking[key]; busy {
		a.mu.Unlock()
		return payment.Receipt{}, false, nil
	}
	a.unlocking[key] = struct{}{}
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.unlocking, key)
		a.mu.Unlock()
	}()

	if done, err := a.unlocks.IsUnlocked(ctx, userID, courseID); err != nil {
		return payment.Receipt{}, false, fmt.Errorf("reading unlock state: %w", err)
	} else if done {
		return payment.Receipt{}, false, nil
	}

	receipt, accepted, err = a.payments.Charge(ctx, userID, courseID, course.Price)
	if err != nil || !accepted {
		return receipt, accepted, err
	}
	if err := a.unlocks.Unlock(ctx, userID, courseID); err != nil {
		return receipt, true, fmt.Errorf("recording unlock: %w", err)
	}

	if oc, err := a.open(userID, courseID); err == nil {
		oc.session.Unlock()
	} else {
		a.courseUnlocked(userID, course)
	}
	return receipt, true, nil
}

// Unlocked lists the paid courses the learner has unlocked.
func (a *App) Unlocked(ctx context.Context, userID string) ([]string, error) {
	return a.unlocks.Unlocked(ctx, userID)
}

// Check is the result of a knowledge check or coding challenge.
type Check struct {
	Outcome     assessment.Outcome `json:"outcome"`
	Explanation string             `json:"explanation,omitempty"`
	Terminal    []string           `json:"terminal,omitempty"`
	Progress    int                `json:"progress"`
	Completed   bool               `json:"completed"`
}

// CheckQuiz grades a knowledge-check answer for the active topic and marks
// the topic complete on a pass.
func (a *App) CheckQuiz(userID, courseID, topicID string, selection int) (Check, error) {
	oc, topic, err := a.activeTopic(userID, courseID, topicID)
	if err != nil {
		return Check{}, err
	}
	if topic.MiniQuiz == nil {
		return Check{}, fmt.Errorf("%w: %s", ErrNoQuiz, topicID)
	}
	if selection < 0 || selection >= len(topic.MiniQuiz.Options) {
		return Check{}, fmt.Errorf("%w: %d", ErrBadSelection, selection)
	}

	res := assessment.CheckQuiz(selection, *topic.MiniQuiz)
	oc.session.RecordQuiz(topicID, selection, res.Outcome)
	return a.finishCheck(userID, oc.session, topicID, "quiz", res, nil)
}

// CheckCode runs a coding challenge submission through the lab. While a
// submission for the same session is pending the call returns accepted=false.
func (a *App) CheckCode(ctx context.Context, userID, courseID, topicID, code string) (check Check, accepted bool, err error) {
	oc, topic, err := a.activeTopic(userID, courseID, topicID)
	if err != nil {
		return Check{}, false, err
	}
	if topic.CodingChallenge == nil {
		return Check{}, false, fmt.Errorf("%w: %s", ErrNoChallenge, topicID)
	}

	run, accepted, err := oc.lab.Submit(ctx, code, *topic.CodingChallenge)
	if err != nil || !accepted {
		return Check{}, accepted, err
	}
	oc.session.RecordChallenge(topicID, code, run.Outcome)
	check, err = a.finishCheck(userID, oc.session, topicID, "code", run.Result, run.Terminal)
	return check, true, err
}

// ExplainError asks the assistant about the last failed submission for the
// active topic. The assessment outcome is unaffected.
func (a *App) ExplainError(ctx context.Context, userID, courseID, topicID string) (string, error) {
	oc, topic, err := a.activeTopic(userID, courseID, topicID)
	if err != nil {
		return "", err
	}
	if topic.CodingChallenge == nil {
		return "", fmt.Errorf("%w: %s", ErrNoChallenge, topicID)
	}
	code := oc.session.Attempt().Draft
	feedback := a.explainer.Explain(ctx, code, *topic.CodingChallenge)
	oc.session.RecordFeedback(topicID, feedback)
	return feedback, nil
}

func (a *App) activeTopic(userID, courseID, topicID string) (*openCourse, catalog.Topic, error) {
	oc, err := a.open(userID, courseID)
	if err != nil {
		return nil, catalog.Topic{}, err
	}
	course := oc.session.Course()
	idx := course.TopicIndex(topicID)
	if idx < 0 {
		return nil, catalog.Topic{}, &progress.NotFoundError{CourseID: courseID, TopicID: topicID}
	}
	if oc.session.IsLocked(idx) {
		return nil, catalog.Topic{}, fmt.Errorf("%w: %s", progress.ErrTopicLocked, topicID)
	}
	if active, _ := oc.session.ActiveTopic(); active.ID != topicID {
		return nil, catalog.Topic{}, fmt.Errorf("%w: %s", ErrNotActive, topicID)
	}
	return oc, course.Topics[idx], nil
}

func (a *App) finishCheck(userID string, s *progress.Session, topicID, kind string, res assessment.Result, terminal []string) (Check, error) {
	a.metrics.Assessment(kind, res.Passed())
	a.logEvent(Event{
		UserID:    userID,
		CourseID:  s.Course().ID,
		EventType: EventAssessment,
		Data:      map[string]any{"topic_id": topicID, "kind": kind, "outcome": string(res.Outcome)},
	})

	check := Check{Outcome: res.Outcome, Explanation: res.Explanation, Terminal: terminal}
	if res.Passed() {
		c, err := s.Mark(topicID, true)
		percent, err := a.completed(userID, s, topicID, c, err)
		if err != nil {
			return Check{}, err
		}
		check.Progress = percent
	} else {
		check.Progress = s.ProgressPercent()
	}
	check.Completed = s.IsCompleted(topicID)
	return check, nil
}

// Certificates lists the learner's certificates.
func (a *App) Certificates(ctx context.Context, userID string) ([]certificate.Certificate, error) {
	return a.issuer.List(ctx, userID)
}

// Certificate finds one certificate by its serial.
func (a *App) Certificate(ctx context.Context, userID, serial string) (certificate.Certificate, error) {
	certs, err := a.issuer.List(ctx, userID)
	if err != nil {
		return certificate.Certificate{}, err
	}
	for _, c := range certs {
		if c.Serial == serial {
			return c, nil
		}
	}
	return certificate.Certificate{}, fmt.Errorf("%w: %s", ErrCertNotFound, serial)
}

// Enrollments returns the learner's course progress and its rounded average.
func (a *App) Enrollments(ctx context.Context, userID string) ([]enrollment.Enrollment, int, error) {
	list, err := a.ledger.List(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("listing enrollments: %w", err)
	}
	return list, enrollment.OverallProgress(list), nil
}

func (a *App) courseUnlocked(userID string, course catalog.Course) {
	a.metrics.CourseUnlocked(course.ID)
	a.logEvent(Event{UserID: userID, CourseID: course.ID, EventType: EventCourseUnlocked, Data: map[string]any{"price": course.Price}})
	slog.Info("course unlocked", "user_id", userID, "course_id", course.ID)
}

func (a *App) logEvent(e Event) {
	if err := a.events.LogEvent(e); err != nil {
		slog.Warn("failed to log event", "type", e.EventType, "user_id", e.UserID, "error", err)
	}
}

// QuizSubmitted records a graded category quiz. It is registered with the
// quiz service so auto-submitted attempts are counted too.
func (a *App) QuizSubmitted(userID string, r quiz.Result) {
	a.metrics.QuizSubmitted(r.Category, r.Mastery, r.AutoSubmitted)
	a.logEvent(Event{
		UserID:    userID,
		EventType: EventQuizSubmitted,
		Data: map[string]any{
			"category":   r.Category,
			"score":      r.Score,
			"total":      r.Total,
			"percentage": r.Percentage,
			"mastery":    r.Mastery,
			"auto":       r.AutoSubmitted,
		},
	})
}
