package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bissquit/sjtu-digest/internal/form"
	"github.com/bissquit/sjtu-digest/internal/pkg/metrics"
	"github.com/google/uuid"
)

// SessionCookie is the cookie that binds a browser page session to its form.
const SessionCookie = "sd_session"

// SessionConfig configures a SessionStore.
type SessionConfig struct {
	TTL          time.Duration
	CookieSecure bool
}

// SessionStore keeps one form controller per browser session in memory.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	newForm  func() *form.Controller
	config   SessionConfig
	now      func() time.Time
}

type session struct {
	form     *form.Controller
	lastSeen time.Time
}

// NewSessionStore creates a store. newForm builds the controller of a new session.
func NewSessionStore(config SessionConfig, newForm func() *form.Controller) *SessionStore {
	if config.TTL <= 0 {
		config.TTL = 30 * time.Minute
	}
	return &SessionStore{
		sessions: make(map[string]*session),
		newForm:  newForm,
		config:   config,
		now:      time.Now,
	}
}

// Acquire returns the form of the request's session, creating a session
// and setting its cookie when the request has none or it has expired.
func (s *SessionStore) Acquire(w http.ResponseWriter, r *http.Request) (string, *form.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if sess, ok := s.sessions[cookie.Value]; ok && now.Sub(sess.lastSeen) < s.config.TTL {
			sess.lastSeen = now
			return cookie.Value, sess.form
		}
	}

	id := uuid.NewString()
	s.sessions[id] = &session{form: s.newForm(), lastSeen: now}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.config.TTL.Seconds()),
	})
	return id, s.sessions[id].form
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many were removed.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) >= s.config.TTL {
			sess.form.Close()
			delete(s.sessions, id)
			removed++
		}
	}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return removed
}

// Run sweeps expired sessions every interval until ctx is done.
func (s *SessionStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Debug("evicted idle form sessions", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close drops every session.
func (s *SessionStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.sessions {
		sess.form.Close()
		delete(s.sessions, id)
	}
	metrics.ActiveSessions.Set(0)
}
