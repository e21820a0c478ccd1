package form

import "slices"

// SuccessModal is the confirmation shown after a successful submission.
type SuccessModal struct {
	SubscriberCount int
	Subscriptions   []string

	onClose func()
}

// NewSuccessModal builds a modal view that calls onClose when dismissed.
func NewSuccessModal(count int, subscriptions []string, onClose func()) *SuccessModal {
	return &SuccessModal{
		SubscriberCount: count,
		Subscriptions:   slices.Clone(subscriptions),
		onClose:         onClose,
	}
}

// Close invokes the dismiss callback.
func (m *SuccessModal) Close() {
	if m.onClose != nil {
		m.onClose()
	}
}
