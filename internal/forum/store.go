package forum

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu    sync.RWMutex
	posts []*Post // insertion order
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) List(_ context.Context) ([]Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Post, 0, len(s.posts))
	for i := len(s.posts) - 1; i >= 0; i-- {
		out = append(out, clonePost(s.posts[i]))
	}
	slices.SortStableFunc(out, func(a, b Post) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts), nil
}

func (s *MemoryStore) Insert(_ context.Context, post Post) error {
	if post.ID == "" {
		return fmt.Errorf("post id is required")
	}
	p := clonePost(&post)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, &p)
	return nil
}

func (s *MemoryStore) AddReply(_ context.Context, postID string, reply Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.find(postID)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrPostNotFound, postID)
	}
	p.Replies = append(p.Replies, reply)
	return nil
}

func (s *MemoryStore) Like(_ context.Context, postID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.find(postID)
	if p == nil {
		return 0, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
	}
	p.Likes++
	return p.Likes, nil
}

func (s *MemoryStore) find(id string) *Post {
	for _, p := range s.posts {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func clonePost(p *Post) Post {
	out := *p
	out.Replies = append([]Reply{}, p.Replies...)
	return out
}
