package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type PostgresLedger struct {
	db *sqlx.DB
}

func NewPostgresLedger(db *sqlx.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (p *PostgresLedger) NextAttempt(ctx context.Context, cartID string) (int64, error) {
	const q = `
	INSERT INTO payment_attempts (cart_id, attempt)
	VALUES ($1, 1)
	ON CONFLICT (cart_id) DO UPDATE SET attempt = payment_attempts.attempt + 1
	RETURNING attempt`

	var attempt int64
	if err := p.db.GetContext(ctx, &attempt, q, cartID); err != nil {
		return 0, fmt.Errorf("incrementing attempt of cart[%s]: %w", cartID, err)
	}
	return attempt, nil
}

func (p *PostgresLedger) SaveBinding(ctx context.Context, b Binding) error {
	const q = `
	INSERT INTO payment_bindings
		(cart_id, session_id, provider_id, attempt, idempotency_key, total, currency_code, region_id, confirmed, bound_at)
	VALUES
		(:cart_id, :session_id, :provider_id, :attempt, :idempotency_key, :total, :currency_code, :region_id, :confirmed, :bound_at)
	ON CONFLICT (cart_id) DO UPDATE SET
		session_id = EXCLUDED.session_id,
		provider_id = EXCLUDED.provider_id,
		attempt = EXCLUDED.attempt,
		idempotency_key = EXCLUDED.idempotency_key,
		total = EXCLUDED.total,
		currency_code = EXCLUDED.currency_code,
		region_id = EXCLUDED.region_id,
		confirmed = EXCLUDED.confirmed,
		bound_at = EXCLUDED.bound_at`

	if _, err := sqlx.NamedExecContext(ctx, p.db, q, b); err != nil {
		return fmt.Errorf("saving binding of cart[%s]: %w", b.CartID, err)
	}
	return nil
}

func (p *PostgresLedger) Binding(ctx context.Context, cartID string) (Binding, bool, error) {
	const q = `
	SELECT cart_id, session_id, provider_id, attempt, idempotency_key, total, currency_code, region_id, confirmed, bound_at
	FROM payment_bindings
	WHERE cart_id = $1`

	var b Binding
	if err := p.db.GetContext(ctx, &b, q, cartID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Binding{}, false, nil
		}
		return Binding{}, false, fmt.Errorf("selecting binding of cart[%s]: %w", cartID, err)
	}
	return b, true, nil
}

func (p *PostgresLedger) MarkConfirmed(ctx context.Context, cartID, sessionID string) error {
	const q = `
	UPDATE payment_bindings
	SET confirmed = TRUE
	WHERE cart_id = $1 AND session_id = $2`

	if _, err := p.db.ExecContext(ctx, q, cartID, sessionID); err != nil {
		return fmt.Errorf("confirming binding of cart[%s]: %w", cartID, err)
	}
	return nil
}
