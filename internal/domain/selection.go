package domain

import "slices"

// Selection is an ordered set of source labels.
// Labels are unique; insertion order is preserved for display.
type Selection struct {
	labels []string
}

// NewSelection builds a selection from labels, dropping duplicates.
func NewSelection(labels ...string) Selection {
	var s Selection
	for _, l := range labels {
		s.Add(l)
	}
	return s
}

// Add appends label if it is not already selected. Reports whether it was added.
func (s *Selection) Add(label string) bool {
	if s.Contains(label) {
		return false
	}
	s.labels = append(s.labels, label)
	return true
}

// Remove drops label from the selection. Reports whether it was present.
func (s *Selection) Remove(label string) bool {
	i := slices.Index(s.labels, label)
	if i < 0 {
		return false
	}
	s.labels = slices.Delete(s.labels, i, i+1)
	return true
}

// Toggle removes label if present, otherwise appends it.
// Returns true if the label is selected afterwards.
func (s *Selection) Toggle(label string) bool {
	if s.Remove(label) {
		return false
	}
	s.labels = append(s.labels, label)
	return true
}

// Contains reports whether label is selected.
func (s Selection) Contains(label string) bool {
	return slices.Contains(s.labels, label)
}

// Len returns the number of selected labels.
func (s Selection) Len() int {
	return len(s.labels)
}

// IsEmpty reports whether nothing is selected.
func (s Selection) IsEmpty() bool {
	return len(s.labels) == 0
}

// Labels returns a copy of the selected labels in insertion order.
func (s Selection) Labels() []string {
	return slices.Clone(s.labels)
}

// Reconcile replaces the selection with the posted set of labels.
// Labels that stay selected keep their position, new ones are appended in
// the order given. Labels rejected by keep are ignored.
func (s *Selection) Reconcile(posted []string, keep func(string) bool) {
	want := make(map[string]struct{}, len(posted))
	for _, l := range posted {
		if keep == nil || keep(l) {
			want[l] = struct{}{}
		}
	}

	next := make([]string, 0, len(want))
	for _, l := range s.labels {
		if _, ok := want[l]; ok {
			next = append(next, l)
		}
	}
	for _, l := range posted {
		if _, ok := want[l]; ok && !slices.Contains(next, l) {
			next = append(next, l)
		}
	}
	s.labels = next
}
