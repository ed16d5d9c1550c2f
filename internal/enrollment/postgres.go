package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresLedger is a PostgreSQL-backed Ledger using the enrollments table.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger creates a ledger on an existing pool.
func NewPostgresLedger(pool *pgxpool.Pool) (*PostgresLedger, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresLedger{pool: pool}, nil
}

func (l *PostgresLedger) Set(ctx context.Context, userID, courseID string, progress int) error {
	if userID == "" || courseID == "" {
		return fmt.Errorf("user_id and course_id are required")
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := l.pool.Exec(ctx,
		`INSERT INTO enrollments (user_id, course_id, progress, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (user_id, course_id)
		 DO UPDATE SET progress = EXCLUDED.progress, updated_at = NOW()`,
		userID,
		courseID,
		Clamp(progress),
	)
	if err != nil {
		return fmt.Errorf("upsert enrollment: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Get(ctx context.Context, userID, courseID string) (Enrollment, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	e := Enrollment{CourseID: courseID}
	err := l.pool.QueryRow(ctx,
		`SELECT progress FROM enrollments WHERE user_id = $1 AND course_id = $2`,
		userID,
		courseID,
	).Scan(&e.Progress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Enrollment{}, false, nil
		}
		return Enrollment{}, false, fmt.Errorf("get enrollment: %w", err)
	}
	return e, true, nil
}

func (l *PostgresLedger) List(ctx context.Context, userID string) ([]Enrollment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := l.pool.Query(ctx,
		`SELECT course_id, progress
		 FROM enrollments
		 WHERE user_id = $1
		 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}
	defer rows.Close()

	enrollments := []Enrollment{}
	for rows.Next() {
		var e Enrollment
		if err := rows.Scan(&e.CourseID, &e.Progress); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		enrollments = append(enrollments, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return enrollments, nil
}
