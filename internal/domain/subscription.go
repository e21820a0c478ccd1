package domain

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Submission is a single subscribe request sent to the backend.
// It is built fresh for every submit attempt and never stored locally.
type Submission struct {
	Email         string   `json:"email"`
	Name          string   `json:"name"`
	Subscriptions []string `json:"subscriptions"`
}

// NormalizeEmail trims surrounding whitespace.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

// NormalizeName trims surrounding whitespace and composes the name to NFC.
// Every entry point runs names through it before submission.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ToastType is the kind of a transient message.
type ToastType string

// Toast types. ToastNone means no toast is shown.
const (
	ToastNone    ToastType = ""
	ToastSuccess ToastType = "success"
	ToastError   ToastType = "error"
)

// Toast is a transient inline message.
type Toast struct {
	Type    ToastType `json:"type"`
	Message string    `json:"message"`
}

// IsZero reports whether no toast is active.
func (t Toast) IsZero() bool {
	return t.Type == ToastNone
}

// SuccessResult is shown after a successful submission.
type SuccessResult struct {
	SubscriberCount int      `json:"subscriber_count"`
	Subscriptions   []string `json:"subscriptions"`
}
