package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/sjtu-digest/internal/pkg/ctxlog"
)

// ErrorMapping defines how a domain error maps to an HTTP response.
type ErrorMapping struct {
	// Match reports whether the mapping applies. When nil, errors.Is(err, Error) is used.
	Match   func(error) bool
	Error   error
	Status  int
	Message string // if empty, uses err.Error()
}

func (m ErrorMapping) matches(err error) bool {
	if m.Match != nil {
		return m.Match(err)
	}
	return errors.Is(err, m.Error)
}

// HandleError maps an error to an HTTP response using the first matching mapping.
// If no mapping matches, logs the error and returns 500 Internal Server Error.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if m.matches(err) {
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			if m.Status >= http.StatusInternalServerError {
				ctxlog.FromContext(ctx).Warn("request failed", "status", m.Status, "error", err)
			}
			Error(w, m.Status, msg)
			return
		}
	}
	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
