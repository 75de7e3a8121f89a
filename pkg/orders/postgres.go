package orders

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bytebites/bytebites-core/pkg/clients/postgres"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// Schema creates the orders table. Items are stored as a JSONB array.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	customer_email   TEXT NOT NULL,
	restaurant_id    TEXT NOT NULL,
	restaurant_name  TEXT NOT NULL,
	delivery_address TEXT NOT NULL,
	items            JSONB NOT NULL,
	total_cents      BIGINT NOT NULL,
	status           TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS orders_customer_email_idx ON orders (customer_email, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS orders_restaurant_id_idx ON orders (restaurant_id, created_at DESC)`,
}

const (
	orderColumns = `id, customer_email, restaurant_id, restaurant_name, delivery_address, items, total_cents, status, created_at, updated_at`

	insertOrder = `INSERT INTO orders (` + orderColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	selectOrder              = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	selectOrdersByCustomer   = `SELECT ` + orderColumns + ` FROM orders WHERE customer_email = $1 ORDER BY created_at DESC, id`
	selectOrdersByRestaurant = `SELECT ` + orderColumns + ` FROM orders WHERE restaurant_id = $1 ORDER BY created_at DESC, id`
	updateOrderStatus        = `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
)

// DB is the subset of *postgres.Client used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Migrate(ctx context.Context, statements ...string) error
}

var _ DB = (*postgres.Client)(nil)

// PostgresStore is a Store backed by the orders table.
type PostgresStore struct {
	db DB
}

// NewPostgresStore returns a store using db.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the orders table and its indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.db.Migrate(ctx, Schema...)
}

func (s *PostgresStore) Create(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeInternal, "orders: encode items")
	}
	_, err = s.db.Exec(ctx, insertOrder,
		o.ID, o.CustomerEmail, o.RestaurantID, o.RestaurantName, o.DeliveryAddress,
		items, o.TotalCents, string(o.Status), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sserr.Conflict("order already exists").WithDetail("order_id", o.ID)
		}
		return err
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, selectOrder, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orderNotFound(id)
	}
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalDatabase, "orders: lookup failed")
	}
	return o, nil
}

func (s *PostgresStore) ListByCustomer(ctx context.Context, email string) ([]*Order, error) {
	return s.list(ctx, selectOrdersByCustomer, email)
}

func (s *PostgresStore) ListByRestaurant(ctx context.Context, restaurantID string) ([]*Order, error) {
	return s.list(ctx, selectOrdersByRestaurant, restaurantID)
}

func (s *PostgresStore) list(ctx context.Context, sql string, arg string) ([]*Order, error) {
	rows, err := s.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, sserr.Wrap(err, sserr.CodeInternalDatabase, "orders: scan failed")
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalDatabase, "orders: list failed")
	}
	return out, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, o *Order, from Status) error {
	tag, err := s.db.Exec(ctx, updateOrderStatus, o.ID, string(o.Status), o.UpdatedAt, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, o.ID); err != nil {
			return err
		}
		return concurrentUpdate(o.ID)
	}
	return nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o       Order
		items   []byte
		status  string
		created time.Time
		updated time.Time
	)
	err := row.Scan(&o.ID, &o.CustomerEmail, &o.RestaurantID, &o.RestaurantName, &o.DeliveryAddress,
		&items, &o.TotalCents, &status, &created, &updated)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, err
	}
	o.Status = Status(status)
	o.CreatedAt = created.UTC()
	o.UpdatedAt = updated.UTC()
	return &o, nil
}

var _ Store = (*PostgresStore)(nil)
