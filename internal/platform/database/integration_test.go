package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/pai-academy/internal/academy"
	"github.com/p-n-ai/pai-academy/internal/assistant"
	"github.com/p-n-ai/pai-academy/internal/certificate"
	"github.com/p-n-ai/pai-academy/internal/enrollment"
	"github.com/p-n-ai/pai-academy/internal/forum"
	"github.com/p-n-ai/pai-academy/internal/platform/clock"
	"github.com/p-n-ai/pai-academy/internal/platform/database"
)

func startPostgres(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("academy"),
		postgres.WithUsername("pai"),
		postgres.WithPassword("pai"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	db, err := database.New(ctx, url, 4, 1)
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// Running twice must be harmless.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	return db
}

func TestPostgresStores(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	t.Run("enrollments", func(t *testing.T) {
		ledger, err := enrollment.NewPostgresLedger(db.Pool)
		if err != nil {
			t.Fatal(err)
		}
		if err := ledger.Set(ctx, "1", "intro-ai-ml", 45); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if err := ledger.Set(ctx, "1", "fullstack-web", 12); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if err := ledger.Set(ctx, "1", "intro-ai-ml", 140); err != nil {
			t.Fatalf("Set() error = %v", err)
		}

		list, err := ledger.List(ctx, "1")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(list) != 2 || list[0].CourseID != "intro-ai-ml" || list[0].Progress != 100 {
			t.Errorf("List() = %+v", list)
		}
		if _, found, _ := ledger.Get(ctx, "1", "cloud-aws"); found {
			t.Error("Get() found an enrollment that was never set")
		}
	})

	t.Run("certificates", func(t *testing.T) {
		store, err := certificate.NewPostgresStore(db.Pool)
		if err != nil {
			t.Fatal(err)
		}
		issuer := certificate.NewIssuer(store)

		first, created, err := issuer.Award(ctx, "1", "Intro to AI & ML", "Learner")
		if err != nil || !created {
			t.Fatalf("Award() = %v, %v", created, err)
		}
		again, created, err := issuer.Award(ctx, "1", "Intro to AI & ML", "Someone Else")
		if err != nil || created {
			t.Fatalf("second Award() = %v, %v", created, err)
		}
		if again != first {
			t.Errorf("second Award() = %+v, want %+v", again, first)
		}
		if !certificate.Verify("1", again) {
			t.Error("stored certificate does not verify")
		}
		certs, _ := issuer.List(ctx, "1")
		if len(certs) != 1 {
			t.Errorf("List() = %d certificates, want 1", len(certs))
		}
	})

	t.Run("conversations", func(t *testing.T) {
		store, err := assistant.NewPostgresStore(db.Pool)
		if err != nil {
			t.Fatal(err)
		}
		conv, err := store.CreateConversation(ctx, "1")
		if err != nil {
			t.Fatalf("CreateConversation() error = %v", err)
		}
		for _, m := range []assistant.StoredMessage{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello", Model: "gemini-2.5-flash", InputTokens: 3, OutputTokens: 2},
		} {
			if err := store.AddMessage(ctx, conv.ID, m); err != nil {
				t.Fatalf("AddMessage() error = %v", err)
			}
		}
		if err := store.SetSummary(ctx, conv.ID, "greetings", 1); err != nil {
			t.Fatalf("SetSummary() error = %v", err)
		}

		active, found, err := store.GetActiveConversation(ctx, "1")
		if err != nil || !found {
			t.Fatalf("GetActiveConversation() = %v, %v", found, err)
		}
		if len(active.Messages) != 2 || active.Summary != "greetings" || active.CompactedAt != 1 {
			t.Errorf("active conversation = %+v", active)
		}

		if err := store.EndConversation(ctx, conv.ID); err != nil {
			t.Fatal(err)
		}
		if _, found, _ := store.GetActiveConversation(ctx, "1"); found {
			t.Error("ended conversation is still active")
		}
	})

	t.Run("events", func(t *testing.T) {
		logger := academy.NewPostgresEventLogger(db.Pool)
		err := logger.LogEvent(academy.Event{
			UserID:    "1",
			CourseID:  "intro-ai-ml",
			EventType: academy.EventCourseCompleted,
			Data:      map[string]any{"progress": 100},
		})
		if err != nil {
			t.Fatalf("LogEvent() error = %v", err)
		}
		var n int
		if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM events WHERE user_id = '1'`).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("events = %d, want 1", n)
		}
	})

	t.Run("forum", func(t *testing.T) {
		store, err := forum.NewPostgresStore(db.Pool)
		if err != nil {
			t.Fatal(err)
		}
		clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
		board := forum.NewBoard(store, clk)
		if err := board.Seed(ctx); err != nil {
			t.Fatalf("Seed() error = %v", err)
		}
		if err := board.Seed(ctx); err != nil {
			t.Fatalf("second Seed() error = %v", err)
		}

		first, err := board.Publish(ctx, forum.Author{Name: "Learner"}, "First!")
		if err != nil {
			t.Fatal(err)
		}
		second, err := board.Publish(ctx, forum.Author{Name: "Learner"}, "Same instant")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := board.Reply(ctx, first.ID, forum.Author{Name: "Priya Nair"}, "Welcome"); err != nil {
			t.Fatalf("Reply() error = %v", err)
		}
		if likes, err := board.Like(ctx, first.ID); err != nil || likes != 1 {
			t.Errorf("Like() = %d, %v", likes, err)
		}
		if _, err := board.Reply(ctx, "00000000-0000-0000-0000-000000000000", forum.Author{Name: "x"}, "hi"); !errors.Is(err, forum.ErrPostNotFound) {
			t.Errorf("Reply(unknown) error = %v", err)
		}

		posts, err := board.Posts(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(posts) != 4 || posts[0].ID != second.ID || posts[1].ID != first.ID {
			t.Fatalf("Posts() = %+v", posts)
		}
		if len(posts[1].Replies) != 1 || posts[1].Replies[0].Content != "Welcome" {
			t.Errorf("replies = %+v", posts[1].Replies)
		}
		if posts[2].Author.Name != "Jane Smith" || posts[3].Likes != 45 || len(posts[3].Replies) != 1 {
			t.Errorf("seeded posts = %+v", posts[2:])
		}
	})
}
