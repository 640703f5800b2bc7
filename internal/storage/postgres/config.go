package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/presso/internal/domain/config"
)

var _ config.Repository = (*ConfigRepository)(nil)

// ConfigRepository implements config.Repository backed by PostgreSQL. The
// whole configuration document is stored as one JSONB value per event.
type ConfigRepository struct {
	pool *pgxpool.Pool
}

// NewConfigRepository returns a ConfigRepository that uses the given pool.
func NewConfigRepository(pool *pgxpool.Pool) *ConfigRepository {
	return &ConfigRepository{pool: pool}
}

// Get loads the configuration for one event. Returns config.ErrNotFound when
// no document exists.
func (r *ConfigRepository) Get(ctx context.Context, eventID string) (*config.EventConfig, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx,
		`SELECT doc FROM event_config WHERE event_id = $1`, eventID,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, config.ErrNotFound
		}
		return nil, fmt.Errorf("finding event config %q: %w", eventID, err)
	}

	var cfg config.EventConfig
	if err := json.Unmarshal(doc, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling event config %q: %w", eventID, err)
	}
	return &cfg, nil
}

// Put inserts or replaces the configuration document for an event.
func (r *ConfigRepository) Put(ctx context.Context, cfg *config.EventConfig) error {
	doc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling event config %q: %w", cfg.EventID, err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO event_config (event_id, doc)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO UPDATE SET doc = EXCLUDED.doc`,
		cfg.EventID, doc,
	)
	if err != nil {
		return fmt.Errorf("storing event config %q: %w", cfg.EventID, err)
	}
	return nil
}

// List returns the configuration documents for all events.
func (r *ConfigRepository) List(ctx context.Context) ([]config.EventConfig, error) {
	rows, err := r.pool.Query(ctx, `SELECT doc FROM event_config ORDER BY event_id`)
	if err != nil {
		return nil, fmt.Errorf("listing event configs: %w", err)
	}
	defer rows.Close()

	var out []config.EventConfig
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning event config row: %w", err)
		}
		var cfg config.EventConfig
		if err := json.Unmarshal(doc, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshaling event config: %w", err)
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event config rows: %w", err)
	}
	return out, nil
}
