package academy_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/p-n-ai/pai-academy/internal/academy"
	"github.com/p-n-ai/pai-academy/internal/assessment"
	"github.com/p-n-ai/pai-academy/internal/assistant"
	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/certificate"
	"github.com/p-n-ai/pai-academy/internal/enrollment"
	"github.com/p-n-ai/pai-academy/internal/payment"
	"github.com/p-n-ai/pai-academy/internal/platform/clock"
	"github.com/p-n-ai/pai-academy/internal/progress"
	"github.com/p-n-ai/pai-academy/internal/quiz"
)

type fixture struct {
	app    *academy.App
	ledger *enrollment.MemoryLedger
	events *academy.MemoryEventLogger
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default() error = %v", err)
	}
	f := fixture{
		ledger: enrollment.NewMemoryLedger(),
		events: academy.NewMemoryEventLogger(),
	}
	f.app, err = academy.New(academy.Config{
		Catalog:  cat,
		Ledger:   f.ledger,
		Payments: payment.NewProcessor(clock.Real{}, 0),
		Events:   f.events,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f
}

func TestNew_RequiresCatalog(t *testing.T) {
	if _, err := academy.New(academy.Config{}); err == nil {
		t.Error("New() without catalog should fail")
	}
}

func TestFreeCourseCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.app.OpenCourse(ctx, "1", "intro-ai-ml")
	if err != nil {
		t.Fatalf("OpenCourse() error = %v", err)
	}
	topics := s.Course().Topics
	if len(topics) != 6 {
		t.Fatalf("course has %d topics, want 6", len(topics))
	}

	var percent int
	for _, topic := range topics[:5] {
		if percent, err = f.app.MarkComplete("1", "intro-ai-ml", topic.ID, true); err != nil {
			t.Fatalf("MarkComplete(%s) error = %v", topic.ID, err)
		}
	}
	if percent != 83 {
		t.Errorf("progress after 5 topics = %d, want 83", percent)
	}
	if certs, _ := f.app.Certificates(ctx, "1"); len(certs) != 0 {
		t.Fatalf("certificates before completion = %+v", certs)
	}

	percent, err = f.app.MarkComplete("1", "intro-ai-ml", topics[5].ID, true)
	if err != nil || percent != 100 {
		t.Fatalf("MarkComplete(last) = %d, %v", percent, err)
	}

	certs, err := f.app.Certificates(ctx, "1")
	if err != nil {
		t.Fatalf("Certificates() error = %v", err)
	}
	if len(certs) != 1 || certs[0].CourseName != "Intro to AI & ML" || certs[0].UserName != "Learner" {
		t.Fatalf("certificates = %+v", certs)
	}

	got, found, _ := f.ledger.Get(ctx, "1", "intro-ai-ml")
	if !found || got.Progress != 100 {
		t.Errorf("ledger = %+v, %v, want 100", got, found)
	}

	// Leaving and re-entering 100% re-triggers completion but the issuer
	// keeps a single certificate.
	if _, err := f.app.ToggleComplete("1", "intro-ai-ml", topics[5].ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.app.ToggleComplete("1", "intro-ai-ml", topics[5].ID); err != nil {
		t.Fatal(err)
	}
	if certs, _ := f.app.Certificates(ctx, "1"); len(certs) != 1 {
		t.Errorf("certificates after re-completion = %d, want 1", len(certs))
	}
	if n := len(f.events.OfType(academy.EventCourseCompleted)); n != 2 {
		t.Errorf("course_completed events = %d, want 2", n)
	}
	if n := len(f.events.OfType(academy.EventCertificateIssued)); n != 1 {
		t.Errorf("certificate_issued events = %d, want 1", n)
	}
	if n := len(f.events.OfType(academy.EventTopicCompleted)); n != 7 {
		t.Errorf("topic_completed events = %d, want 7", n)
	}
}

func TestPaidCourseUnlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.app.OpenCourse(ctx, "1", "cloud-aws")
	if err != nil {
		t.Fatalf("OpenCourse() error = %v", err)
	}
	if !s.IsLocked(2) || s.IsLocked(1) {
		t.Fatalf("IsLocked(1)=%v IsLocked(2)=%v before unlock", s.IsLocked(1), s.IsLocked(2))
	}
	if _, err := f.app.MarkComplete("1", "cloud-aws", "cloud-aws-03", true); !errors.Is(err, progress.ErrTopicLocked) {
		t.Errorf("MarkComplete(locked) error = %v, want ErrTopicLocked", err)
	}

	receipt, accepted, err := f.app.Unlock(ctx, "1", "cloud-aws")
	if err != nil || !accepted {
		t.Fatalf("Unlock() = %v, %v", accepted, err)
	}
	if receipt.Amount != 1500 {
		t.Errorf("receipt amount = %d, want 1500", receipt.Amount)
	}
	if s.IsLocked(2) {
		t.Error("IsLocked(2) after unlock should be false")
	}

	if _, accepted, _ := f.app.Unlock(ctx, "1", "cloud-aws"); accepted {
		t.Error("second Unlock() should be a no-op")
	}
	if n := len(f.events.OfType(academy.EventCourseUnlocked)); n != 1 {
		t.Errorf("course_unlocked events = %d, want 1", n)
	}

	f.app.CloseCourse("1", "cloud-aws")
	s, err = f.app.OpenCourse(ctx, "1", "cloud-aws")
	if err != nil {
		t.Fatal(err)
	}
	if s.IsLocked(2) {
		t.Error("reopened course should stay unlocked")
	}

	unlocked, _ := f.app.Unlocked(ctx, "1")
	if len(unlocked) != 1 || unlocked[0] != "cloud-aws" {
		t.Errorf("Unlocked() = %v", unlocked)
	}
}

func TestUnlock_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, _, err := f.app.Unlock(ctx, "1", "intro-ai-ml"); !errors.Is(err, academy.ErrFreeCourse) {
		t.Errorf("Unlock(free) error = %v", err)
	}
	if _, _, err := f.app.Unlock(ctx, "1", "nope"); !errors.Is(err, catalog.ErrCourseNotFound) {
		t.Errorf("Unlock(unknown) error = %v", err)
	}
	if _, _, err := f.app.Unlock(ctx, "ghost", "cloud-aws"); !errors.Is(err, academy.ErrUnknownUser) {
		t.Errorf("Unlock(ghost) error = %v", err)
	}
}

func TestCheckQuiz(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.app.OpenCourse(ctx, "1", "intro-ai-ml"); err != nil {
		t.Fatal(err)
	}

	check, err := f.app.CheckQuiz("1", "intro-ai-ml", "ai-ml-01", 0)
	if err != nil {
		t.Fatalf("CheckQuiz() error = %v", err)
	}
	if check.Outcome != assessment.Fail || check.Completed || check.Progress != 0 {
		t.Errorf("wrong answer check = %+v", check)
	}

	check, err = f.app.CheckQuiz("1", "intro-ai-ml", "ai-ml-01", 1)
	if err != nil {
		t.Fatalf("CheckQuiz() error = %v", err)
	}
	if check.Outcome != assessment.Pass || !check.Completed || check.Progress != 17 {
		t.Errorf("right answer check = %+v", check)
	}

	tests := []struct {
		name      string
		topic     string
		selection int
		want      error
	}{
		{"not active", "ai-ml-02", 1, academy.ErrNotActive},
		{"out of range", "ai-ml-01", 9, academy.ErrBadSelection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.app.CheckQuiz("1", "intro-ai-ml", tt.topic, tt.selection)
			if err == nil {
				t.Fatal("CheckQuiz() should fail")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	var nf *progress.NotFoundError
	if _, err := f.app.CheckQuiz("1", "intro-ai-ml", "cloud-aws-01", 0); !errors.As(err, &nf) {
		t.Errorf("foreign topic error = %v, want NotFoundError", err)
	}
}

func TestCheckCode_AndExplain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s, err := f.app.OpenCourse(ctx, "1", "intro-ai-ml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SelectTopic("ai-ml-03"); err != nil {
		t.Fatal(err)
	}

	check, accepted, err := f.app.CheckCode(ctx, "1", "intro-ai-ml", "ai-ml-03", "def priority():\n  return False")
	if err != nil || !accepted {
		t.Fatalf("CheckCode() = %v, %v", accepted, err)
	}
	if check.Outcome != assessment.Fail || len(check.Terminal) == 0 {
		t.Errorf("failing check = %+v", check)
	}

	feedback, err := f.app.ExplainError(ctx, "1", "intro-ai-ml", "ai-ml-03")
	if err != nil {
		t.Fatalf("ExplainError() error = %v", err)
	}
	if !strings.HasPrefix(feedback, assistant.StaticExplanation) || !strings.Contains(feedback, "Flip the switch.") {
		t.Errorf("feedback = %q", feedback)
	}
	if got := s.Attempt(); got.Feedback != feedback || got.ChallengeResult != assessment.Fail {
		t.Errorf("attempt = %+v", got)
	}

	check, _, err = f.app.CheckCode(ctx, "1", "intro-ai-ml", "ai-ml-03", "def priority():\n  return True")
	if err != nil {
		t.Fatal(err)
	}
	if check.Outcome != assessment.Pass || !check.Completed {
		t.Errorf("passing check = %+v", check)
	}

	if _, _, err := f.app.CheckCode(ctx, "1", "intro-ai-ml", "ai-ml-04", "x"); !errors.Is(err, academy.ErrNotActive) {
		t.Errorf("CheckCode(inactive) error = %v", err)
	}
	if _, err := s.SelectTopic("ai-ml-04"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.app.CheckCode(ctx, "1", "intro-ai-ml", "ai-ml-04", "x"); !errors.Is(err, academy.ErrNoChallenge) {
		t.Errorf("CheckCode(no challenge) error = %v", err)
	}
}

func TestSessionLookup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.app.Session("1", "intro-ai-ml"); !errors.Is(err, academy.ErrSessionNotFound) {
		t.Errorf("Session() before open error = %v", err)
	}
	if _, err := f.app.OpenCourse(ctx, "ghost", "intro-ai-ml"); !errors.Is(err, academy.ErrUnknownUser) {
		t.Errorf("OpenCourse(ghost) error = %v", err)
	}

	a, _ := f.app.OpenCourse(ctx, "1", "intro-ai-ml")
	b, _ := f.app.OpenCourse(ctx, "1", "intro-ai-ml")
	if a != b {
		t.Error("OpenCourse() should return the open session")
	}
}

func TestEnrollments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.app.SeedEnrollments(ctx); err != nil {
		t.Fatalf("SeedEnrollments() error = %v", err)
	}
	list, overall, err := f.app.Enrollments(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || overall != 29 {
		t.Errorf("Enrollments() = %+v overall %d, want 2 courses at 29", list, overall)
	}

	// Seeding again leaves recorded progress alone.
	if err := f.ledger.Set(ctx, "1", "intro-ai-ml", 50); err != nil {
		t.Fatal(err)
	}
	if err := f.app.SeedEnrollments(ctx); err != nil {
		t.Fatal(err)
	}
	got, _, _ := f.ledger.Get(ctx, "1", "intro-ai-ml")
	if got.Progress != 50 {
		t.Errorf("progress after reseed = %d, want 50", got.Progress)
	}
}

func TestProfileName_OnCertificate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.app.SetProfileName("1", "  Ada Lovelace "); err != nil {
		t.Fatal(err)
	}
	s, _ := f.app.OpenCourse(ctx, "1", "software-eng")
	for _, topic := range s.Course().Topics {
		if _, err := f.app.MarkComplete("1", "software-eng", topic.ID, true); err != nil {
			t.Fatal(err)
		}
	}
	certs, _ := f.app.Certificates(ctx, "1")
	if len(certs) != 1 || certs[0].UserName != "Ada Lovelace" {
		t.Fatalf("certificates = %+v", certs)
	}

	got, err := f.app.Certificate(ctx, "1", certs[0].Serial)
	if err != nil || got.CourseName != "Mastering Software Design" {
		t.Errorf("Certificate(serial) = %+v, %v", got, err)
	}
	if _, err := f.app.Certificate(ctx, "1", "PAI-0000"); !errors.Is(err, academy.ErrCertNotFound) {
		t.Errorf("Certificate(unknown) error = %v", err)
	}
}

func TestQuizSubmitted(t *testing.T) {
	f := newFixture(t)
	f.app.QuizSubmitted("1", quiz.Result{Category: "Web Development", Score: 4, Total: 5, Percentage: 80, Mastery: true})

	events := f.events.OfType(academy.EventQuizSubmitted)
	if len(events) != 1 || events[0].Data["mastery"] != true {
		t.Errorf("events = %+v", events)
	}
}

// gatedUnlocks holds every Unlock until release is closed.
type gatedUnlocks struct {
	*progress.MemoryUnlocks
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (g *gatedUnlocks) Unlock(ctx context.Context, userID, courseID string) error {
	g.calls.Add(1)
	g.entered <- struct{}{}
	<-g.release
	return g.MemoryUnlocks.Unlock(ctx, userID, courseID)
}

func TestUnlock_OverlappingRequestsChargeOnce(t *testing.T) {
	ctx := context.Background()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatal(err)
	}
	unlocks := &gatedUnlocks{
		MemoryUnlocks: progress.NewMemoryUnlocks(),
		entered:       make(chan struct{}, 2),
		release:       make(chan struct{}),
	}
	events := academy.NewMemoryEventLogger()
	app, err := academy.New(academy.Config{
		Catalog:  cat,
		Unlocks:  unlocks,
		Payments: payment.NewProcessor(clock.Real{}, 0),
		Events:   events,
	})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var firstAccepted bool
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstAccepted, firstErr = app.Unlock(ctx, "1", "cloud-aws")
	}()
	<-unlocks.entered

	// The first charge has been taken but not yet recorded.
	if _, accepted, err := app.Unlock(ctx, "1", "cloud-aws"); accepted || err != nil {
		t.Errorf("overlapping Unlock() accepted=%v err=%v, want no-op", accepted, err)
	}

	close(unlocks.release)
	wg.Wait()
	if firstErr != nil || !firstAccepted {
		t.Fatalf("first Unlock() accepted=%v err=%v", firstAccepted, firstErr)
	}
	if _, accepted, err := app.Unlock(ctx, "1", "cloud-aws"); accepted || err != nil {
		t.Errorf("Unlock() after unlock accepted=%v err=%v, want no-op", accepted, err)
	}
	if n := unlocks.calls.Load(); n != 1 {
		t.Errorf("unlock store writes = %d, want 1", n)
	}
	if n := len(events.OfType(academy.EventCourseUnlocked)); n != 1 {
		t.Errorf("course_unlocked events = %d, want 1", n)
	}
}

// flakyCertificates fails the first Insert.
type flakyCertificates struct {
	*certificate.MemoryStore
	failures atomic.Int32
}

func (f *flakyCertificates) Insert(ctx context.Context, userID string, cert certificate.Certificate) (certificate.Certificate, bool, error) {
	if f.failures.Add(-1) >= 0 {
		return certificate.Certificate{}, false, errors.New("connection reset")
	}
	return f.MemoryStore.Insert(ctx, userID, cert)
}

func TestCertificate_RetriedAfterStoreFailure(t *testing.T) {
	ctx := context.Background()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatal(err)
	}
	store := &flakyCertificates{MemoryStore: certificate.NewMemoryStore()}
	store.failures.Store(1)
	events := academy.NewMemoryEventLogger()
	app, err := academy.New(academy.Config{
		Catalog: cat,
		Issuer:  certificate.NewIssuer(store),
		Events:  events,
	})
	if err != nil {
		t.Fatal(err)
	}

	s, err := app.OpenCourse(ctx, "1", "intro-ai-ml")
	if err != nil {
		t.Fatal(err)
	}
	topics := s.Course().Topics
	for _, topic := range topics {
		if _, err := app.MarkComplete("1", "intro-ai-ml", topic.ID, true); err != nil {
			t.Fatal(err)
		}
	}
	if certs, _ := app.Certificates(ctx, "1"); len(certs) != 0 {
		t.Fatalf("certificates after failed award = %+v", certs)
	}

	percent, err := app.MarkComplete("1", "intro-ai-ml", topics[len(topics)-1].ID, true)
	if err != nil || percent != 100 {
		t.Fatalf("MarkComplete() = %d, %v", percent, err)
	}
	certs, _ := app.Certificates(ctx, "1")
	if len(certs) != 1 || certs[0].CourseName != s.Course().Title {
		t.Fatalf("certificates after retry = %+v", certs)
	}

	app.MarkComplete("1", "intro-ai-ml", topics[0].ID, true)
	if n := len(events.OfType(academy.EventCourseCompleted)); n != 1 {
		t.Errorf("course_completed events = %d, want 1", n)
	}
}

func TestToggleComplete_ConcurrentKeepsLedgerCurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.app.OpenCourse(ctx, "1", "intro-ai-ml")
	if err != nil {
		t.Fatal(err)
	}
	topics := s.Course().Topics

	var wg sync.WaitGroup
	for i := range 39 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.app.ToggleComplete("1", "intro-ai-ml", topics[i%3].ID); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	// 13 toggles each leave the first three topics complete.
	if got := s.CompletedTopics(); len(got) != 3 {
		t.Errorf("CompletedTopics() = %v", got)
	}
	got, _, _ := f.ledger.Get(ctx, "1", "intro-ai-ml")
	if got.Progress != s.ProgressPercent() || got.Progress != 50 {
		t.Errorf("ledger progress = %d, session = %d, want 50", got.Progress, s.ProgressPercent())
	}
	if n := len(f.events.OfType(academy.EventTopicCompleted)); n != 21 {
		t.Errorf("topic_completed events = %d, want 21", n)
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)

	p, err := f.app.Profile("1")
	if err != nil || p.Role != academy.DefaultRole {
		t.Fatalf("Profile() = %+v, %v", p, err)
	}

	str := func(s string) *string { return &s }
	tests := []struct {
		name    string
		upd     academy.ProfileUpdate
		wantErr error
		check   func(academy.Profile) bool
	}{
		{"role", academy.ProfileUpdate{Role: str(" AI Specialist ")}, nil, func(p academy.Profile) bool { return p.Role == "AI Specialist" && p.Name == "Learner" }},
		{"blank role resets", academy.ProfileUpdate{Role: str("")}, nil, func(p academy.Profile) bool { return p.Role == academy.DefaultRole }},
		{"avatar url", academy.ProfileUpdate{Avatar: str("https://api.dicebear.com/7.x/avataaars/svg?seed=Zoe")}, nil, func(p academy.Profile) bool { return strings.HasSuffix(p.Avatar, "seed=Zoe") }},
		{"avatar data uri", academy.ProfileUpdate{Avatar: str("data:image/png;base64,iVBORw0KGgo=")}, nil, func(p academy.Profile) bool { return strings.HasPrefix(p.Avatar, "data:image/png") }},
		{"name", academy.ProfileUpdate{Name: str("Ada")}, nil, func(p academy.Profile) bool { return p.Name == "Ada" }},
		{"blank name", academy.ProfileUpdate{Name: str("  ")}, academy.ErrInvalidProfile, nil},
		{"long role", academy.ProfileUpdate{Role: str(strings.Repeat("x", 121))}, academy.ErrInvalidProfile, nil},
		{"script avatar", academy.ProfileUpdate{Avatar: str("javascript:alert(1)")}, academy.ErrInvalidProfile, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := f.app.UpdateProfile("1", tt.upd)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("UpdateProfile() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || !tt.check(p) {
				t.Errorf("UpdateProfile() = %+v, %v", p, err)
			}
		})
	}

	if _, err := f.app.UpdateProfile("nobody", academy.ProfileUpdate{Role: str("x")}); !errors.Is(err, academy.ErrUnknownUser) {
		t.Errorf("UpdateProfile(unknown) error = %v, want ErrUnknownUser", err)
	}
}
