package form

import (
	"sync"
	"time"

	"github.com/bissquit/sjtu-digest/internal/domain"
)

// Notifier holds at most one toast and clears it after a fixed duration.
// A newer toast replaces the current one and re-arms the timer.
type Notifier struct {
	mu       sync.Mutex
	clock    Clock
	duration time.Duration

	current domain.Toast
	shownAt time.Time
	gen     uint64
	timer   Timer
}

// NewNotifier creates a notifier. A non-positive duration falls back to
// domain.DefaultToastDuration.
func NewNotifier(clock Clock, duration time.Duration) *Notifier {
	if clock == nil {
		clock = SystemClock()
	}
	if duration <= 0 {
		duration = domain.DefaultToastDuration
	}
	return &Notifier{
		clock:    clock,
		duration: duration,
	}
}

// Show replaces the current toast. Showing ToastNone is a dismissal.
func (n *Notifier) Show(t domain.Toast) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if t.IsZero() {
		n.clearLocked()
		return
	}

	n.stopTimerLocked()
	n.gen++
	gen := n.gen
	n.current = t
	n.shownAt = n.clock.Now()
	n.timer = n.clock.AfterFunc(n.duration, func() { n.expire(gen) })
}

// Error shows an error toast.
func (n *Notifier) Error(message string) {
	n.Show(domain.Toast{Type: domain.ToastError, Message: message})
}

// Success shows a success toast.
func (n *Notifier) Success(message string) {
	n.Show(domain.Toast{Type: domain.ToastSuccess, Message: message})
}

// Dismiss clears the toast immediately and cancels its timer.
func (n *Notifier) Dismiss() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.clearLocked()
}

// Current returns the active toast, or the zero Toast if none.
func (n *Notifier) Current() domain.Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Remaining returns how long the active toast stays visible.
// Zero when no toast is active.
func (n *Notifier) Remaining() time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.current.IsZero() {
		return 0
	}
	left := n.duration - n.clock.Now().Sub(n.shownAt)
	if left < 0 {
		return 0
	}
	return left
}

// Duration returns the configured auto-dismiss delay.
func (n *Notifier) Duration() time.Duration {
	return n.duration
}

func (n *Notifier) expire(gen uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	// A newer toast owns the slot.
	if gen != n.gen {
		return
	}
	n.current = domain.Toast{}
	n.timer = nil
}

func (n *Notifier) clearLocked() {
	n.stopTimerLocked()
	n.gen++
	n.current = domain.Toast{}
	n.shownAt = time.Time{}
}

func (n *Notifier) stopTimerLocked() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}
