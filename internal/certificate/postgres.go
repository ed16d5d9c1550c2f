package certificate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore persists certificates in the certificates table.
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

func (s *PostgresStore) Insert(ctx context.Context, userID string, cert Certificate) (Certificate, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO certificates (user_id, course_name, user_name, issued_on, serial)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, course_name) DO NOTHING`,
		userID,
		cert.CourseName,
		cert.UserName,
		cert.Date,
		cert.Serial,
	)
	if err != nil {
		return Certificate{}, false, fmt.Errorf("insert certificate: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return cert, true, nil
	}

	existing, ok, err := s.find(ctx, userID, cert.CourseName)
	if err != nil {
		return Certificate{}, false, err
	}
	if !ok {
		return Certificate{}, false, fmt.Errorf("certificate for %q vanished after conflict", cert.CourseName)
	}
	return existing, false, nil
}

func (s *PostgresStore) Find(ctx context.Context, userID, courseName string) (Certificate, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	return s.find(ctx, userID, courseName)
}

func (s *PostgresStore) find(ctx context.Context, userID, courseName string) (Certificate, bool, error) {
	var c Certificate
	err := s.pool.QueryRow(ctx,
		`SELECT course_name, user_name, issued_on, serial
		 FROM certificates
		 WHERE user_id = $1 AND course_name = $2`,
		userID,
		courseName,
	).Scan(&c.CourseName, &c.UserName, &c.Date, &c.Serial)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Certificate{}, false, nil
		}
		return Certificate{}, false, fmt.Errorf("get certificate: %w", err)
	}
	return c, true, nil
}

func (s *PostgresStore) List(ctx context.Context, userID string) ([]Certificate, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT course_name, user_name, issued_on, serial
		 FROM certificates
		 WHERE user_id = $1
		 ORDER BY created_at ASC, course_name ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query certificates: %w", err)
	}
	defer rows.Close()

	certs := []Certificate{}
	for rows.Next() {
		var c Certificate
		if err := rows.Scan(&c.CourseName, &c.UserName, &c.Date, &c.Serial); err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		certs = append(certs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate certificates: %w", err)
	}
	return certs, nil
}
