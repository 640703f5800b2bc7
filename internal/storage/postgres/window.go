package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/presso/internal/domain/coupon"
)

var _ coupon.Repository = (*WindowRepository)(nil)

// WindowRepository implements coupon.Repository backed by PostgreSQL.
type WindowRepository struct {
	pool *pgxpool.Pool
}

// NewWindowRepository returns a WindowRepository that uses the given pool.
func NewWindowRepository(pool *pgxpool.Pool) *WindowRepository {
	return &WindowRepository{pool: pool}
}

// Get loads one coupon window by its composite key. Returns
// coupon.ErrWindowNotFound when it does not exist.
func (r *WindowRepository) Get(ctx context.Context, key string) (*coupon.Window, error) {
	var w coupon.Window
	err := r.pool.QueryRow(ctx, `
		SELECT key, event_id, window_id, code, available_tokens, window_start, window_end
		FROM coupon_windows WHERE key = $1`, key,
	).Scan(&w.Key, &w.EventID, &w.WindowID, &w.Code, &w.AvailableTokens, &w.Start, &w.End)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrWindowNotFound
		}
		return nil, fmt.Errorf("finding coupon window %q: %w", key, err)
	}
	return &w, nil
}

// Put inserts a new window. Concurrent lazy creation of the same window is
// resolved by keeping the first row.
func (r *WindowRepository) Put(ctx context.Context, w *coupon.Window) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO coupon_windows (key, event_id, window_id, code, available_tokens, window_start, window_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO NOTHING`,
		w.Key, w.EventID, w.WindowID, w.Code, w.AvailableTokens, w.Start, w.End,
	)
	if err != nil {
		return fmt.Errorf("creating coupon window %q: %w", w.Key, err)
	}
	return nil
}

// SetTokens updates the remaining token count for a window.
func (r *WindowRepository) SetTokens(ctx context.Context, key string, tokens int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE coupon_windows SET available_tokens = $2 WHERE key = $1`,
		key, tokens,
	)
	if err != nil {
		return fmt.Errorf("updating coupon window %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrWindowNotFound
	}
	return nil
}
