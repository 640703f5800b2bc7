package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/presso/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const orderColumns = `id, user_id, event_id, state, task_token, order_number, drink_order, barista_user_id, ts`

// Put persists a new order. The drink selection is serialized to JSON for
// storage in the JSONB column.
func (r *OrderRepository) Put(ctx context.Context, o *order.Order) error {
	drinkJSON, err := marshalDrink(o.DrinkOrder)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO orders (id, user_id, event_id, state, task_token, order_number, drink_order, barista_user_id, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.UserID, o.EventID, o.State, o.TaskToken, o.OrderNumber, drinkJSON, o.BaristaUserID, o.TS,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get loads one order by id. Returns order.ErrNotFound when it does not exist.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order %q: %w", id, err)
	}
	return o, nil
}

// Update overwrites the mutable columns of an existing order.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	drinkJSON, err := marshalDrink(o.DrinkOrder)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET state = $2, task_token = $3, order_number = $4, drink_order = $5, barista_user_id = $6, ts = $7
		WHERE id = $1`,
		o.ID, o.State, o.TaskToken, o.OrderNumber, drinkJSON, o.BaristaUserID, o.TS,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// ListByState returns up to limit orders in the given composite state,
// oldest first.
func (r *OrderRepository) ListByState(ctx context.Context, state string, limit int) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE state = $1 ORDER BY ts ASC LIMIT $2`,
		state, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing orders by state %q: %w", state, err)
	}
	return scanOrders(rows)
}

// ListByUser returns all orders owned by the user, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY ts DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	return scanOrders(rows)
}

func marshalDrink(sel *order.DrinkSelection) ([]byte, error) {
	if sel == nil {
		return nil, nil
	}
	b, err := json.Marshal(sel)
	if err != nil {
		return nil, fmt.Errorf("marshaling drink order: %w", err)
	}
	return b, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o         order.Order
		drinkJSON []byte
	)
	err := row.Scan(&o.ID, &o.UserID, &o.EventID, &o.State, &o.TaskToken,
		&o.OrderNumber, &drinkJSON, &o.BaristaUserID, &o.TS)
	if err != nil {
		return nil, err
	}
	if len(drinkJSON) > 0 {
		var sel order.DrinkSelection
		if err := json.Unmarshal(drinkJSON, &sel); err != nil {
			return nil, fmt.Errorf("unmarshaling drink order: %w", err)
		}
		o.DrinkOrder = &sel
	}
	return &o, nil
}

func scanOrders(rows pgx.Rows) ([]order.Order, error) {
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order row: %w", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order rows: %w", err)
	}
	return out, nil
}
