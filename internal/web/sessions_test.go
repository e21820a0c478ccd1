package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bissquit/sjtu-digest/internal/domain"
	"github.com/bissquit/sjtu-digest/internal/form"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(ttl time.Duration) (*SessionStore, *time.Time) {
	catalog := domain.MustCatalog(domain.DefaultSources())
	store := NewSessionStore(SessionConfig{TTL: ttl}, func() *form.Controller {
		return form.NewController(&fakeSubmitter{}, catalog, form.Options{})
	})
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, &now
}

func acquire(store *SessionStore, cookie *http.Cookie) (string, *form.Controller, *http.Cookie) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	id, c := store.Acquire(rec, req)

	var set *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == SessionCookie {
			set = ck
		}
	}
	return id, c, set
}

func TestSessionStore_AcquireReusesSession(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	defer store.Close()

	id, c1, cookie := acquire(store, nil)
	require.NotNil(t, cookie)
	assert.Equal(t, id, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	id2, c2, set := acquire(store, cookie)
	assert.Equal(t, id, id2)
	assert.Same(t, c1, c2)
	assert.Nil(t, set, "no new cookie for a live session")
}

func TestSessionStore_UnknownCookieStartsNewSession(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	defer store.Close()

	id, _, cookie := acquire(store, &http.Cookie{Name: SessionCookie, Value: "forged"})
	require.NotNil(t, cookie)
	assert.NotEqual(t, "forged", id)
	assert.Equal(t, 1, store.Len())
}

func TestSessionStore_ExpiredSessionReplaced(t *testing.T) {
	store, now := newTestStore(time.Minute)
	defer store.Close()

	_, c1, cookie := acquire(store, nil)
	*now = now.Add(2 * time.Minute)

	_, c2, set := acquire(store, cookie)
	assert.NotSame(t, c1, c2)
	assert.NotNil(t, set)
}

func TestSessionStore_Sweep(t *testing.T) {
	store, now := newTestStore(time.Minute)
	defer store.Close()

	_, _, old := acquire(store, nil)
	*now = now.Add(45 * time.Second)
	acquire(store, nil)
	*now = now.Add(30 * time.Second)

	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())

	_, _, set := acquire(store, old)
	assert.NotNil(t, set, "swept session is gone")
}

func TestSessionStore_RunStopsOnCancel(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSessionStore_Close(t *testing.T) {
	store, _ := newTestStore(time.Minute)

	acquire(store, nil)
	acquire(store, nil)
	require.Equal(t, 2, store.Len())

	store.Close()
	assert.Zero(t, store.Len())
}
