// Package postgrest calls the subscription procedures through a
// Supabase/PostgREST RPC endpoint.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bissquit/sjtu-digest/internal/domain"
	"github.com/bissquit/sjtu-digest/internal/subscription"
)

const (
	defaultTimeout = 10 * time.Second
	rpcPath        = "/rest/v1/rpc/"
	maxErrorBody   = 64 << 10
)

// Config holds PostgREST connection settings.
type Config struct {
	URL     string        // project URL, e.g. https://xyz.supabase.co
	Key     string        // anon or service key
	Timeout time.Duration // request timeout
}

// Backend implements subscription.Backend over HTTP.
type Backend struct {
	config     Config
	httpClient *http.Client
}

var _ subscription.Backend = (*Backend)(nil)

// NewBackend creates a PostgREST backend.
func NewBackend(config Config) (*Backend, error) {
	if !subscription.IsConfigured(config.URL, config.Key) {
		return nil, subscription.ErrNotConfigured
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	config.URL = strings.TrimRight(strings.TrimSpace(config.URL), "/")

	return &Backend{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

type manageSubscriptionArgs struct {
	Email string   `json:"_email"`
	Name  string   `json:"_name"`
	Subs  []string `json:"_subs"`
}

// UpsertSubscription calls manage_subscription.
func (b *Backend) UpsertSubscription(ctx context.Context, sub domain.Submission) error {
	subs := sub.Subscriptions
	if subs == nil {
		subs = []string{}
	}

	_, err := b.call(ctx, subscription.ProcedureManageSubscription, manageSubscriptionArgs{
		Email: sub.Email,
		Name:  sub.Name,
		Subs:  subs,
	})
	return err
}

// SubscriberCount calls get_subscriber_count. A null result is 0.
func (b *Backend) SubscriberCount(ctx context.Context) (int, error) {
	body, err := b.call(ctx, subscription.ProcedureSubscriberCount, struct{}{})
	if err != nil {
		return 0, err
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return 0, nil
	}

	var count *int
	if err := json.Unmarshal(body, &count); err != nil {
		return 0, fmt.Errorf("decode subscriber count: %w", err)
	}
	if count == nil {
		return 0, nil
	}
	return *count, nil
}

func (b *Backend) call(ctx context.Context, procedure string, args any) ([]byte, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal %s args: %w", procedure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.config.URL+rpcPath+procedure, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", b.config.Key)
	req.Header.Set("Authorization", "Bearer "+b.config.Key)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", procedure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", procedure, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		slog.Debug("rpc call succeeded", "procedure", procedure, "status", resp.StatusCode)
		return body, nil
	}

	return nil, decodeError(resp.StatusCode, body)
}

// RPCError is an error reported by the PostgREST endpoint.
type RPCError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// Error returns the backend message so it can be shown to the user as-is.
func (e *RPCError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return fmt.Sprintf("rpc error %d (%s)", e.Status, e.Code)
	}
	return ""
}

// IsRPCError reports whether err carries an RPCError.
func IsRPCError(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr)
}

func decodeError(status int, body []byte) error {
	rpcErr := &RPCError{Status: status}

	var raw struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
		Hint    json.RawMessage `json:"hint"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		rpcErr.Details = strings.TrimSpace(string(body))
		return rpcErr
	}

	rpcErr.Code = raw.Code
	rpcErr.Message = raw.Message
	rpcErr.Details = rawString(raw.Details)
	rpcErr.Hint = rawString(raw.Hint)
	return rpcErr
}

// rawString turns a JSON string or null into a plain string.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	if s == nil {
		return ""
	}
	return *s
}
