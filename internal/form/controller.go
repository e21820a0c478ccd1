// Package form implements the subscription form: its state, the submit
// workflow, the toast notifier and the success modal.
package form

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/sjtu-digest/internal/domain"
	"github.com/bissquit/sjtu-digest/internal/pkg/ctxlog"
)

// Form errors.
var (
	ErrNoSources        = errors.New(domain.MessageNoSources)
	ErrNoEmail          = errors.New(domain.MessageNoEmail)
	ErrSubmitInProgress = errors.New("submission already in progress")
	ErrUnknownSource    = errors.New("unknown source")
)

// Submitter is the remote side of the submit workflow.
type Submitter interface {
	SubmitSubscription(ctx context.Context, email, name string, subscriptions []string) error
	FetchSubscriberCount(ctx context.Context) int
}

// Phase is the workflow state derived from the form state.
type Phase string

// Workflow phases.
const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseSuccess    Phase = "success"
	PhaseError      Phase = "error"
)

// Subscribe submits sub and, once accepted, fetches the subscriber count.
// The count is best-effort and never fails the workflow.
func Subscribe(ctx context.Context, client Submitter, sub domain.Submission) (domain.SuccessResult, error) {
	if len(sub.Subscriptions) == 0 {
		return domain.SuccessResult{}, ErrNoSources
	}
	if sub.Email == "" {
		return domain.SuccessResult{}, ErrNoEmail
	}

	if err := client.SubmitSubscription(ctx, sub.Email, sub.Name, sub.Subscriptions); err != nil {
		return domain.SuccessResult{}, err
	}

	return domain.SuccessResult{
		SubscriberCount: client.FetchSubscriberCount(ctx),
		Subscriptions:   sub.Subscriptions,
	}, nil
}

// ErrorMessage returns the text shown to the user for a failed submission.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return domain.MessageSubmitFailed
}

// Controller owns the state of one form instance.
// Field edits are kept across submissions; nothing is reset automatically.
type Controller struct {
	mu      sync.Mutex
	client  Submitter
	catalog *domain.Catalog
	toast   *Notifier

	email     string
	name      string
	selection domain.Selection
	loading   bool
	result    *domain.SuccessResult
}

// Options configures a Controller.
type Options struct {
	Clock         Clock
	ToastDuration time.Duration
}

// NewController creates a form controller.
func NewController(client Submitter, catalog *domain.Catalog, opts Options) *Controller {
	return &Controller{
		client:  client,
		catalog: catalog,
		toast:   NewNotifier(opts.Clock, opts.ToastDuration),
	}
}

// SetEmail updates the email field.
func (c *Controller) SetEmail(email string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.email = domain.NormalizeEmail(email)
}

// SetName updates the display name field.
func (c *Controller) SetName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = domain.NormalizeName(name)
}

// Toggle flips the selection state of the source with the given label.
// Returns whether the source is selected afterwards.
func (c *Controller) Toggle(label string) (bool, error) {
	if !c.catalog.HasLabel(label) {
		return false, ErrUnknownSource
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection.Toggle(label), nil
}

// SetSelected selects or deselects the source with the given label.
// Unlike Toggle, repeating the call leaves the selection unchanged.
func (c *Controller) SetSelected(label string, selected bool) error {
	if !c.catalog.HasLabel(label) {
		return ErrUnknownSource
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if selected {
		c.selection.Add(label)
	} else {
		c.selection.Remove(label)
	}
	return nil
}

// ApplyForm sets all fields from a posted form. Sources that stay
// checked keep their position; newly checked ones are appended.
func (c *Controller) ApplyForm(email, name string, labels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.email = domain.NormalizeEmail(email)
	c.name = domain.NormalizeName(name)
	c.selection.Reconcile(labels, c.catalog.HasLabel)
}

// Submit runs the submit workflow.
//
// An empty selection or a blank email shows a validation toast without
// contacting the backend. A failed submission shows an error toast and
// returns the error. On success the modal state is populated with the fetched count.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return ErrSubmitInProgress
	}
	if c.selection.IsEmpty() {
		c.mu.Unlock()
		c.toast.Error(domain.MessageNoSources)
		return ErrNoSources
	}
	if c.email == "" {
		c.mu.Unlock()
		c.toast.Error(domain.MessageNoEmail)
		return ErrNoEmail
	}

	c.loading = true
	c.toast.Dismiss()
	sub := domain.Submission{
		Email:         c.email,
		Name:          c.name,
		Subscriptions: c.selection.Labels(),
	}
	c.mu.Unlock()

	result, err := Subscribe(ctx, c.client, sub)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false

	if err != nil {
		ctxlog.FromContext(ctx).Error("subscription failed", "error", err)
		c.toast.Error(ErrorMessage(err))
		return err
	}

	c.result = &result
	return nil
}

// DismissModal clears the success state. Form fields are left as they are.
func (c *Controller) DismissModal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = nil
}

// ShowError replaces the toast with an error message.
func (c *Controller) ShowError(message string) {
	c.toast.Error(message)
}

// DismissToast clears the toast immediately.
func (c *Controller) DismissToast() {
	c.toast.Dismiss()
}

// Close releases the pending toast timer.
func (c *Controller) Close() {
	c.toast.Dismiss()
}

// Snapshot is an immutable view of the form for rendering.
type Snapshot struct {
	Email          string
	Name           string
	Selected       []string
	Loading        bool
	Toast          domain.Toast
	ToastRemaining time.Duration
	Modal          *SuccessModal
	Phase          Phase
}

// IsSelected reports whether label is in the selection.
func (s Snapshot) IsSelected(label string) bool {
	for _, l := range s.Selected {
		if l == label {
			return true
		}
	}
	return false
}

// Snapshot returns the current form state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Email:          c.email,
		Name:           c.name,
		Selected:       c.selection.Labels(),
		Loading:        c.loading,
		Toast:          c.toast.Current(),
		ToastRemaining: c.toast.Remaining(),
	}
	if c.result != nil {
		s.Modal = NewSuccessModal(c.result.SubscriberCount, c.result.Subscriptions, c.DismissModal)
	}

	switch {
	case s.Loading:
		s.Phase = PhaseSubmitting
	case s.Modal != nil:
		s.Phase = PhaseSuccess
	case s.Toast.Type == domain.ToastError:
		s.Phase = PhaseError
	default:
		s.Phase = PhaseIdle
	}
	return s
}
