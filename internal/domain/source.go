// Package domain contains the core types of the subscription form.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Source represents a campus unit whose notices can be subscribed to.
// Identity is by ID; selection and backend submission use Label.
type Source struct {
	ID    string `json:"id" koanf:"id"`
	Label string `json:"label" koanf:"label"`
}

// DefaultToastDuration is how long a toast stays visible before it clears itself.
const DefaultToastDuration = 3000 * time.Millisecond

// User-facing messages.
const (
	MessageNoSources      = "请至少选择一个订阅源"
	MessageNoEmail        = "请填写邮箱地址"
	MessageSubmitFailed   = "提交失败，请稍后重试"
	MessageNotConfigured  = "Supabase 未配置。请在代码中填写您的 URL 和 Key。"
	MessageSubmitInFlight = "正在同步，请稍候"
	MessageRateLimited    = "提交过于频繁，请稍后再试"
)

// DefaultSources returns the built-in list of selectable sources.
func DefaultSources() []Source {
	return []Source{
		{ID: "cs", Label: "计算机学院"},
		{ID: "automation", Label: "自动化与感知学院"},
		{ID: "ee", Label: "电气工程学院"},
		{ID: "ic", Label: "集成电路学院"},
		{ID: "jwc", Label: "教务处"},
	}
}

// Catalog is a read-only, ordered list of sources with lookups by ID and label.
type Catalog struct {
	sources []Source
	byID    map[string]Source
	labels  map[string]struct{}
}

// Source catalog errors.
var (
	ErrEmptySourceList = errors.New("source list is empty")
	ErrInvalidSource   = errors.New("invalid source")
)

// NewCatalog builds a catalog. IDs and labels must be non-empty and unique.
func NewCatalog(sources []Source) (*Catalog, error) {
	if len(sources) == 0 {
		return nil, ErrEmptySourceList
	}

	c := &Catalog{
		sources: make([]Source, 0, len(sources)),
		byID:    make(map[string]Source, len(sources)),
		labels:  make(map[string]struct{}, len(sources)),
	}

	for i, s := range sources {
		if s.ID == "" || s.Label == "" {
			return nil, fmt.Errorf("%w: entry %d has empty id or label", ErrInvalidSource, i)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidSource, s.ID)
		}
		if _, dup := c.labels[s.Label]; dup {
			return nil, fmt.Errorf("%w: duplicate label %q", ErrInvalidSource, s.Label)
		}
		c.byID[s.ID] = s
		c.labels[s.Label] = struct{}{}
		c.sources = append(c.sources, s)
	}

	return c, nil
}

// MustCatalog is like NewCatalog but panics on error. Intended for static lists.
func MustCatalog(sources []Source) *Catalog {
	c, err := NewCatalog(sources)
	if err != nil {
		panic(err)
	}
	return c
}

// Sources returns a copy of the catalog in display order.
func (c *Catalog) Sources() []Source {
	out := make([]Source, len(c.sources))
	copy(out, c.sources)
	return out
}

// ByID looks up a source by its identifier.
func (c *Catalog) ByID(id string) (Source, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// HasLabel reports whether label belongs to a known source.
func (c *Catalog) HasLabel(label string) bool {
	_, ok := c.labels[label]
	return ok
}
