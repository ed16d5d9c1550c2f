// Package forum implements the community board: learners publish posts,
// reply to them and like them. Posts are listed newest first.
package forum

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-academy/internal/platform/clock"
)

// MaxContentLength caps a post or reply, in characters.
const MaxContentLength = 2000

var (
	// ErrPostNotFound is returned for unknown post ids.
	ErrPostNotFound = errors.New("post not found")
	// ErrEmptyContent is returned for blank or oversized posts and replies.
	ErrEmptyContent = errors.New("content is required")
)

// Author is the display identity attached to posts and replies.
type Author struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Reply is a comment under a post.
type Reply struct {
	ID        string    `json:"id"`
	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Post is one discussion thread.
type Post struct {
	ID        string    `json:"id"`
	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	Likes     int       `json:"likes"`
	CreatedAt time.Time `json:"createdAt"`
	Replies   []Reply   `json:"replies"`
}

// Store persists posts. List returns posts newest first, breaking ties by
// reverse insertion order, with replies oldest first.
type Store interface {
	List(ctx context.Context) ([]Post, error)
	Count(ctx context.Context) (int, error)
	Insert(ctx context.Context, post Post) error
	AddReply(ctx context.Context, postID string, reply Reply) error
	Like(ctx context.Context, postID string) (int, error)
}

// Board validates and timestamps forum writes.
type Board struct {
	store Store
	clock clock.Clock
}

// NewBoard creates a board over store. A nil clock uses the wall clock.
func NewBoard(store Store, clk clock.Clock) *Board {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Board{store: store, clock: clk}
}

// Posts lists every post, newest first.
func (b *Board) Posts(ctx context.Context) ([]Post, error) {
	posts, err := b.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	return posts, nil
}

// Publish adds a post by author. Blank content is rejected.
func (b *Board) Publish(ctx context.Context, author Author, content string) (Post, error) {
	content, err := clean(content)
	if err != nil {
		return Post{}, err
	}
	p := Post{
		ID:        uuid.NewString(),
		Author:    author,
		Content:   content,
		CreatedAt: b.clock.Now(),
		Replies:   []Reply{},
	}
	if err := b.store.Insert(ctx, p); err != nil {
		return Post{}, fmt.Errorf("saving post: %w", err)
	}
	return p, nil
}

// Reply adds a reply by author to the post with postID.
func (b *Board) Reply(ctx context.Context, postID string, author Author, content string) (Reply, error) {
	content, err := clean(content)
	if err != nil {
		return Reply{}, err
	}
	if _, err := uuid.Parse(postID); err != nil {
		return Reply{}, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
	}
	r := Reply{
		ID:        uuid.NewString(),
		Author:    author,
		Content:   content,
		CreatedAt: b.clock.Now(),
	}
	if err := b.store.AddReply(ctx, postID, r); err != nil {
		return Reply{}, err
	}
	return r, nil
}

// Like increments a post's like count and returns the new count.
func (b *Board) Like(ctx context.Context, postID string) (int, error) {
	if _, err := uuid.Parse(postID); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
	}
	return b.store.Like(ctx, postID)
}

func clean(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", fmt.Errorf("%w: at most %d characters", ErrEmptyContent, MaxContentLength)
	}
	return content, nil
}

func avatar(seed string) string {
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + seed
}

// Seed publishes the welcome threads when the board is empty.
func (b *Board) Seed(ctx context.Context) error {
	n, err := b.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting posts: %w", err)
	}
	if n > 0 {
		return nil
	}
	now := b.clock.Now()
	seed := []Post{
		{
			ID:        uuid.NewString(),
			Author:    Author{Name: "John Doe", Avatar: avatar("John")},
			Content:   "Just finished the MERN stack modules! Feeling great.",
			Likes:     45,
			CreatedAt: now.Add(-5 * time.Hour),
			Replies: []Reply{{
				ID:        uuid.NewString(),
				Author:    Author{Name: "Alex Demo", Avatar: avatar("Alex")},
				Content:   "Great job! Which module was hardest?",
				CreatedAt: now.Add(-1 * time.Hour),
			}},
		},
		{
			ID:        uuid.NewString(),
			Author:    Author{Name: "Jane Smith", Avatar: avatar("Jane")},
			Content:   "What are the best frameworks for AI development in 2024?",
			Likes:     12,
			CreatedAt: now.Add(-2 * time.Hour),
			Replies:   []Reply{},
		},
	}
	for _, p := range seed {
		replies := p.Replies
		p.Replies = []Reply{}
		if err := b.store.Insert(ctx, p); err != nil {
			return fmt.Errorf("seeding post: %w", err)
		}
		for _, r := range replies {
			if err := b.store.AddReply(ctx, p.ID, r); err != nil {
				return fmt.Errorf("seeding reply: %w", err)
			}
		}
	}
	return nil
}
