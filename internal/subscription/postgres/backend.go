// Package postgres calls the subscription procedures directly over a
// PostgreSQL connection.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/sjtu-digest/internal/domain"
	"github.com/bissquit/sjtu-digest/internal/subscription"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Backend implements subscription.Backend using PostgreSQL.
type Backend struct {
	db *pgxpool.Pool
}

var _ subscription.Backend = (*Backend)(nil)

// NewBackend creates a new PostgreSQL backend.
func NewBackend(db *pgxpool.Pool) *Backend {
	return &Backend{db: db}
}

// UpsertSubscription calls manage_subscription.
func (b *Backend) UpsertSubscription(ctx context.Context, sub domain.Submission) error {
	subs := sub.Subscriptions
	if subs == nil {
		subs = []string{}
	}

	query := `SELECT manage_subscription(_email => $1, _name => $2, _subs => $3::text[])`
	if _, err := b.db.Exec(ctx, query, sub.Email, sub.Name, subs); err != nil {
		return procedureError("manage subscription", err)
	}
	return nil
}

// SubscriberCount calls get_subscriber_count. NULL is reported as 0.
func (b *Backend) SubscriberCount(ctx context.Context) (int, error) {
	var count *int64
	if err := b.db.QueryRow(ctx, `SELECT get_subscriber_count()`).Scan(&count); err != nil {
		return 0, procedureError("get subscriber count", err)
	}
	if count == nil {
		return 0, nil
	}
	return int(*count), nil
}

// procedureError returns errors raised inside the procedure unchanged so that
// their message reaches the user; anything else is wrapped with context.
func procedureError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr
	}
	return fmt.Errorf("%s: %w", op, err)
}
