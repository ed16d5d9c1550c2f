package forum

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore persists the board in the forum_posts and forum_replies tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Post, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, author_name, author_avatar, content, likes, created_at
		 FROM forum_posts
		 ORDER BY created_at DESC, seq DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := []Post{}
	index := map[string]int{}
	var ids []string
	for rows.Next() {
		p := Post{Replies: []Reply{}}
		if err := rows.Scan(&p.ID, &p.Author.Name, &p.Author.Avatar, &p.Content, &p.Likes, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		index[p.ID] = len(posts)
		ids = append(ids, p.ID)
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	if len(ids) == 0 {
		return posts, nil
	}

	rows, err = s.pool.Query(ctx,
		`SELECT id::text, post_id::text, author_name, author_avatar, content, created_at
		 FROM forum_replies
		 WHERE post_id = ANY($1::uuid[])
		 ORDER BY seq ASC`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("query replies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r Reply
		var postID string
		if err := rows.Scan(&r.ID, &postID, &r.Author.Name, &r.Author.Avatar, &r.Content, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		if i, ok := index[postID]; ok {
			posts[i].Replies = append(posts[i].Replies, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replies: %w", err)
	}
	return posts, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM forum_posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Insert(ctx context.Context, post Post) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO forum_posts (id, author_name, author_avatar, content, likes, created_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6)`,
		post.ID,
		post.Author.Name,
		post.Author.Avatar,
		post.Content,
		post.Likes,
		post.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddReply(ctx context.Context, postID string, reply Reply) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO forum_replies (id, post_id, author_name, author_avatar, content, created_at)
		 SELECT $1::uuid, id, $3, $4, $5, $6
		 FROM forum_posts
		 WHERE id = $2::uuid`,
		reply.ID,
		postID,
		reply.Author.Name,
		reply.Author.Avatar,
		reply.Content,
		reply.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reply: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrPostNotFound, postID)
	}
	return nil
}

func (s *PostgresStore) Like(ctx context.Context, postID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var likes int
	err := s.pool.QueryRow(ctx,
		`UPDATE forum_posts SET likes = likes + 1
		 WHERE id = $1::uuid
		 RETURNING likes`,
		postID,
	).Scan(&likes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
		}
		return 0, fmt.Errorf("like post: %w", err)
	}
	return likes, nil
}
