package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/presso/internal/observer/journey"
)

var _ journey.Repository = (*JourneyRepository)(nil)

// JourneyRepository implements journey.Repository backed by PostgreSQL. The
// event payload is stored as JSONB and read back as a generic document.
type JourneyRepository struct {
	pool *pgxpool.Pool
}

// NewJourneyRepository returns a JourneyRepository that uses the given pool.
func NewJourneyRepository(pool *pgxpool.Pool) *JourneyRepository {
	return &JourneyRepository{pool: pool}
}

// Append stores one journey event.
func (r *JourneyRepository) Append(ctx context.Context, evt journey.Event) error {
	payload, err := marshalPayload(evt.Payload)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO journey_events (order_id, ts, detail_type, payload)
		VALUES ($1, $2, $3, $4)`,
		evt.OrderID, evt.Timestamp, evt.DetailType, payload,
	)
	if err != nil {
		return fmt.Errorf("appending journey event for order %q: %w", evt.OrderID, err)
	}
	return nil
}

// ListByOrder returns the journey events recorded for one order, oldest
// first.
func (r *JourneyRepository) ListByOrder(ctx context.Context, orderID string) ([]journey.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT order_id, ts, detail_type, payload
		FROM journey_events WHERE order_id = $1 ORDER BY ts ASC, id ASC`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing journey for order %q: %w", orderID, err)
	}
	return scanJourneyEvents(rows)
}

// All returns every recorded journey event, oldest first.
func (r *JourneyRepository) All(ctx context.Context) ([]journey.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT order_id, ts, detail_type, payload
		FROM journey_events ORDER BY ts ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing journey events: %w", err)
	}
	return scanJourneyEvents(rows)
}

func marshalPayload(payload any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling journey payload: %w", err)
	}
	return b, nil
}

func scanJourneyEvents(rows pgx.Rows) ([]journey.Event, error) {
	defer rows.Close()

	var out []journey.Event
	for rows.Next() {
		var (
			evt     journey.Event
			payload []byte
		)
		if err := rows.Scan(&evt.OrderID, &evt.Timestamp, &evt.DetailType, &payload); err != nil {
			return nil, fmt.Errorf("scanning journey row: %w", err)
		}
		if len(payload) > 0 {
			var doc map[string]any
			if err := json.Unmarshal(payload, &doc); err != nil {
				return nil, fmt.Errorf("unmarshaling journey payload: %w", err)
			}
			evt.Payload = doc
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journey rows: %w", err)
	}
	return out, nil
}
