package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/irsalhamdi/storefront-checkout/database"
	"github.com/jmoiron/sqlx"
)

type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Save(ctx context.Context, o Order) error {
	const q = `
	INSERT INTO cart_orders
		(order_id, cart_id, display_id, total, currency_code, created_at)
	VALUES
		(:order_id, :cart_id, :display_id, :total, :currency_code, :created_at)`

	err := database.Transaction(p.db, func(tx sqlx.ExtContext) error {
		_, err := sqlx.NamedExecContext(ctx, tx, q, o)
		return err
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting order[%s]: %w", o.ID, err)
	}
	return nil
}

func (p *PostgresStore) ByCart(ctx context.Context, cartID string) (Order, error) {
	const q = `
	SELECT order_id, cart_id, display_id, total, currency_code, created_at
	FROM cart_orders
	WHERE cart_id = $1`

	return p.get(ctx, q, cartID)
}

func (p *PostgresStore) ByID(ctx context.Context, id string) (Order, error) {
	const q = `
	SELECT order_id, cart_id, display_id, total, currency_code, created_at
	FROM cart_orders
	WHERE order_id = $1`

	return p.get(ctx, q, id)
}

func (p *PostgresStore) get(ctx context.Context, q string, arg string) (Order, error) {
	var o Order
	if err := p.db.GetContext(ctx, &o, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("selecting order: %w", err)
	}
	return o, nil
}
