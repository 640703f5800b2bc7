package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/presso/internal/domain/workflow"
)

var _ workflow.CounterRepository = (*CounterRepository)(nil)

// CounterRepository implements workflow.CounterRepository backed by
// PostgreSQL. Increments are atomic at the database, so concurrent resumes
// never observe the same order number.
type CounterRepository struct {
	pool *pgxpool.Pool
}

// NewCounterRepository returns a CounterRepository that uses the given pool.
func NewCounterRepository(pool *pgxpool.Pool) *CounterRepository {
	return &CounterRepository{pool: pool}
}

// Increment adds one to the named counter and returns the new value. The
// counter starts at zero, so the first increment returns 1.
func (r *CounterRepository) Increment(ctx context.Context, key string) (int64, error) {
	var value int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO counters (key, value)
		VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET value = counters.value + 1
		RETURNING value`, key,
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("incrementing counter %q: %w", key, err)
	}
	return value, nil
}
