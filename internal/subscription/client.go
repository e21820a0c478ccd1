// Package subscription provides the client for the remote subscription backend.
//
// The backend exposes two stored procedures: one that upserts a subscription
// and one that returns the running subscriber count. Their logic lives
// entirely on the backend side.
package subscription

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/sjtu-digest/internal/domain"
	"github.com/bissquit/sjtu-digest/internal/pkg/ctxlog"
)

// Remote procedure names.
const (
	ProcedureManageSubscription = "manage_subscription"
	ProcedureSubscriberCount    = "get_subscriber_count"
)

// Placeholder connection values that mean "not configured".
const (
	PlaceholderURL = "YOUR_URL"
	PlaceholderKey = "YOUR_KEY"
)

// ErrNotConfigured is returned by SubmitSubscription when no backend is configured.
var ErrNotConfigured = errors.New(domain.MessageNotConfigured)

// Backend is the RPC boundary to the remote subscription store.
type Backend interface {
	// UpsertSubscription calls manage_subscription(_email, _name, _subs).
	UpsertSubscription(ctx context.Context, sub domain.Submission) error
	// SubscriberCount calls get_subscriber_count().
	SubscriberCount(ctx context.Context) (int, error)
}

// IsConfigured reports whether both connection parameters are set to real values.
func IsConfigured(endpoint, key string) bool {
	endpoint = strings.TrimSpace(endpoint)
	key = strings.TrimSpace(key)
	return endpoint != "" && key != "" && endpoint != PlaceholderURL && key != PlaceholderKey
}

// Options configures a Client.
type Options struct {
	// DemoDelay delays the unconfigured-backend failure of SubmitSubscription.
	// Zero fails immediately.
	DemoDelay time.Duration
}

// Client wraps a Backend with the submission and counting contracts.
// A Client with a nil backend is unconfigured.
type Client struct {
	backend   Backend
	demoDelay time.Duration
}

// NewClient creates a client. Pass a nil backend to get an unconfigured client.
func NewClient(backend Backend, opts Options) *Client {
	return &Client{
		backend:   backend,
		demoDelay: opts.DemoDelay,
	}
}

// Configured reports whether a backend is attached.
func (c *Client) Configured() bool {
	return c.backend != nil
}

// SubmitSubscription sends a submission to the backend's upsert procedure.
// Backend errors are returned unchanged.
func (c *Client) SubmitSubscription(ctx context.Context, email, name string, subscriptions []string) error {
	if c.backend == nil {
		if c.demoDelay > 0 {
			timer := time.NewTimer(c.demoDelay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		recordRPC(ProcedureManageSubscription, resultNotConfigured, 0)
		return ErrNotConfigured
	}

	start := time.Now()
	err := c.backend.UpsertSubscription(ctx, domain.Submission{
		Email:         email,
		Name:          name,
		Subscriptions: subscriptions,
	})
	if err != nil {
		recordRPC(ProcedureManageSubscription, resultError, time.Since(start))
		return err
	}

	recordRPC(ProcedureManageSubscription, resultOK, time.Since(start))
	ctxlog.FromContext(ctx).Info("subscription submitted",
		"sources", len(subscriptions),
	)
	return nil
}

// FetchSubscriberCount returns the current subscriber count.
// It is best-effort: an unconfigured backend or a failed call yields 0.
func (c *Client) FetchSubscriberCount(ctx context.Context) int {
	if c.backend == nil {
		recordRPC(ProcedureSubscriberCount, resultNotConfigured, 0)
		return 0
	}

	start := time.Now()
	count, err := c.backend.SubscriberCount(ctx)
	if err != nil {
		recordRPC(ProcedureSubscriberCount, resultError, time.Since(start))
		ctxlog.FromContext(ctx).Warn("failed to fetch subscriber count", "error", err)
		return 0
	}

	recordRPC(ProcedureSubscriberCount, resultOK, time.Since(start))
	if count < 0 {
		slog.Debug("negative subscriber count from backend", "count", count)
		return 0
	}
	return count
}
