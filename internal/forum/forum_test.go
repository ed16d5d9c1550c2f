package forum

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-academy/internal/platform/clock"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newBoard(t *testing.T) (*Board, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(start)
	return NewBoard(NewMemoryStore(), clk), clk
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	b, _ := newBoard(t)

	if err := b.Seed(ctx); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if err := b.Seed(ctx); err != nil {
		t.Fatalf("second Seed() error = %v", err)
	}
	posts, err := b.Posts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 2 {
		t.Fatalf("seeded %d posts, want 2", len(posts))
	}
	if posts[0].Author.Name != "Jane Smith" || posts[0].Likes != 12 || len(posts[0].Replies) != 0 {
		t.Errorf("newest seeded post = %+v", posts[0])
	}
	if posts[1].Author.Name != "John Doe" || len(posts[1].Replies) != 1 || posts[1].Replies[0].Author.Name != "Alex Demo" {
		t.Errorf("oldest seeded post = %+v", posts[1])
	}
	if !posts[1].CreatedAt.Equal(start.Add(-5 * time.Hour)) {
		t.Errorf("CreatedAt = %v", posts[1].CreatedAt)
	}
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	b, clk := newBoard(t)
	me := Author{Name: "Learner", Avatar: "https://example.com/me.png"}

	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"plain", "Hello, world", false},
		{"trimmed", "  spaced out  ", false},
		{"empty", "", true},
		{"blank", " \n\t ", true},
		{"too long", strings.Repeat("a", MaxContentLength+1), true},
		{"at limit", strings.Repeat("é", MaxContentLength), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := b.Publish(ctx, me, tt.content)
			if tt.wantErr {
				if !errors.Is(err, ErrEmptyContent) {
					t.Errorf("Publish() error = %v, want ErrEmptyContent", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Publish() error = %v", err)
			}
			if p.ID == "" || p.Author != me || p.Content != strings.TrimSpace(tt.content) || p.Likes != 0 {
				t.Errorf("Publish() = %+v", p)
			}
			if !p.CreatedAt.Equal(clk.Now()) {
				t.Errorf("CreatedAt = %v, want %v", p.CreatedAt, clk.Now())
			}
		})
	}
}

func TestPosts_NewestFirst(t *testing.T) {
	ctx := context.Background()
	b, clk := newBoard(t)
	if err := b.Seed(ctx); err != nil {
		t.Fatal(err)
	}

	a, _ := b.Publish(ctx, Author{Name: "A"}, "first")
	tie, _ := b.Publish(ctx, Author{Name: "B"}, "same instant")
	clk.Advance(time.Minute)
	latest, _ := b.Publish(ctx, Author{Name: "C"}, "later")

	posts, err := b.Posts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, p := range posts {
		got = append(got, p.Content)
	}
	want := []string{latest.Content, tie.Content, a.Content, "What are the best frameworks for AI development in 2024?", "Just finished the MERN stack modules! Feeling great."}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Posts() order = %q, want %q", got, want)
	}
}

func TestReply(t *testing.T) {
	ctx := context.Background()
	b, clk := newBoard(t)
	p, err := b.Publish(ctx, Author{Name: "Learner"}, "Question?")
	if err != nil {
		t.Fatal(err)
	}

	clk.Advance(time.Minute)
	if _, err := b.Reply(ctx, p.ID, Author{Name: "Priya Nair"}, "Answer one"); err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	clk.Advance(time.Minute)
	if _, err := b.Reply(ctx, p.ID, Author{Name: "Ángel Ortiz"}, "Answer two"); err != nil {
		t.Fatalf("Reply() error = %v", err)
	}

	if _, err := b.Reply(ctx, p.ID, Author{Name: "x"}, "   "); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("blank Reply() error = %v, want ErrEmptyContent", err)
	}
	for _, id := range []string{"not-a-uuid", "6f1c2c1e-8c1b-4f5e-9a43-4cfb8f0f5e11"} {
		if _, err := b.Reply(ctx, id, Author{Name: "x"}, "hi"); !errors.Is(err, ErrPostNotFound) {
			t.Errorf("Reply(%s) error = %v, want ErrPostNotFound", id, err)
		}
	}

	posts, _ := b.Posts(ctx)
	replies := posts[0].Replies
	if len(replies) != 2 || replies[0].Content != "Answer one" || replies[1].Content != "Answer two" {
		t.Errorf("replies = %+v", replies)
	}
	if !replies[1].CreatedAt.Equal(start.Add(2 * time.Minute)) {
		t.Errorf("reply CreatedAt = %v", replies[1].CreatedAt)
	}
}

func TestLike_Concurrent(t *testing.T) {
	ctx := context.Background()
	b, _ := newBoard(t)
	p, err := b.Publish(ctx, Author{Name: "Learner"}, "Like me")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.Like(ctx, p.ID); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if n, err := b.Like(ctx, p.ID); err != nil || n != 21 {
		t.Errorf("Like() = %d, %v, want 21", n, err)
	}
	if _, err := b.Like(ctx, "missing"); !errors.Is(err, ErrPostNotFound) {
		t.Errorf("Like(missing) error = %v, want ErrPostNotFound", err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	b, _ := newBoard(t)
	p, _ := b.Publish(ctx, Author{Name: "Learner"}, "Original")
	b.Reply(ctx, p.ID, Author{Name: "Priya Nair"}, "Reply")

	posts, _ := b.Posts(ctx)
	posts[0].Content = "edited"
	posts[0].Replies[0].Content = "edited"

	again, _ := b.Posts(ctx)
	if again[0].Content != "Original" || again[0].Replies[0].Content != "Reply" {
		t.Errorf("store was modified through a listed post: %+v", again[0])
	}
}
