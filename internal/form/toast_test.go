package form

import (
	"testing"
	"time"

	"github.com/bissquit/sjtu-digest/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestNotifier_AutoDismiss(t *testing.T) {
	clock := newManualClock()
	n := NewNotifier(clock, 0)
	assert.Equal(t, domain.DefaultToastDuration, n.Duration())

	n.Error("boom")
	assert.Equal(t, domain.Toast{Type: domain.ToastError, Message: "boom"}, n.Current())
	assert.Equal(t, 3*time.Second, n.Remaining())

	clock.Advance(2999 * time.Millisecond)
	assert.Equal(t, "boom", n.Current().Message)
	assert.Equal(t, time.Millisecond, n.Remaining())

	clock.Advance(time.Millisecond)
	assert.True(t, n.Current().IsZero())
	assert.Zero(t, n.Remaining())
}

func TestNotifier_NewToastResetsTimer(t *testing.T) {
	clock := newManualClock()
	n := NewNotifier(clock, 3*time.Second)

	n.Error("first")
	clock.Advance(2 * time.Second)

	n.Error("second")
	assert.Equal(t, 1, clock.Pending())

	// The first toast's deadline passes without clearing the second one.
	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, "second", n.Current().Message)

	clock.Advance(1500 * time.Millisecond)
	assert.True(t, n.Current().IsZero())
}

func TestNotifier_ReplacesRatherThanQueues(t *testing.T) {
	clock := newManualClock()
	n := NewNotifier(clock, 3*time.Second)

	n.Error("first")
	n.Success("second")

	assert.Equal(t, domain.Toast{Type: domain.ToastSuccess, Message: "second"}, n.Current())
	clock.Advance(3 * time.Second)
	assert.True(t, n.Current().IsZero())
}

func TestNotifier_ManualDismissCancelsTimer(t *testing.T) {
	clock := newManualClock()
	n := NewNotifier(clock, 3*time.Second)

	n.Error("boom")
	n.Dismiss()

	assert.True(t, n.Current().IsZero())
	assert.Equal(t, 0, clock.Pending())
}

func TestNotifier_ShowNoneDismisses(t *testing.T) {
	clock := newManualClock()
	n := NewNotifier(clock, 3*time.Second)

	n.Error("boom")
	n.Show(domain.Toast{})

	assert.True(t, n.Current().IsZero())
	assert.Equal(t, 0, clock.Pending())
}

func TestNotifier_StaleTimerIgnored(t *testing.T) {
	clock := newManualClock()
	n := NewNotifier(clock, 3*time.Second)

	n.Error("first")
	stale := n.gen
	n.Error("second")

	// Simulate a timer that fired after Stop lost the race.
	n.expire(stale)
	assert.Equal(t, "second", n.Current().Message)
}

func TestNotifier_SystemClock(t *testing.T) {
	n := NewNotifier(nil, 20*time.Millisecond)
	n.Error("boom")

	assert.Eventually(t, func() bool {
		return n.Current().IsZero()
	}, time.Second, 5*time.Millisecond)
}
