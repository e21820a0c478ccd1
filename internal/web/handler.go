// Package web serves the server-rendered subscription page.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"

	"github.com/bissquit/sjtu-digest/internal/domain"
	"github.com/bissquit/sjtu-digest/internal/form"
	"github.com/bissquit/sjtu-digest/internal/pkg/ctxlog"
	"github.com/bissquit/sjtu-digest/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Handler serves the subscription page and its form actions.
type Handler struct {
	sessions *SessionStore
	catalog  *domain.Catalog
}

// NewHandler creates a new web handler.
func NewHandler(sessions *SessionStore, catalog *domain.Catalog) *Handler {
	return &Handler{sessions: sessions, catalog: catalog}
}

// RegisterRoutes registers the page routes. The submit route goes through
// limiter; a nil limiter disables rate limiting.
func (h *Handler) RegisterRoutes(r chi.Router, limiter *httputil.RateLimiter) {
	r.Get("/", h.Page)
	r.With(httputil.RateLimit(limiter, h.rateLimited)).Post("/subscribe", h.Subscribe)
	r.Post("/sources/{id}/toggle", h.ToggleSource)
	r.Post("/toast/dismiss", h.DismissToast)
	r.Post("/modal/dismiss", h.DismissModal)
}

type sourceView struct {
	ID       string
	Label    string
	Selected bool
}

type pageView struct {
	Form       form.Snapshot
	Sources    []sourceView
	ToastTTLMs int64
	Notice     string
}

// Page handles GET /.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	_, c := h.sessions.Acquire(w, r)
	h.render(w, http.StatusOK, c, "")
}

// Subscribe handles POST /subscribe.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.Text(w, http.StatusBadRequest, "invalid form")
		return
	}

	id, c := h.sessions.Acquire(w, r)
	c.ApplyForm(r.PostForm.Get("email"), r.PostForm.Get("name"), h.labels(r.PostForm["source"]))

	// Leaving the page does not abort a submission already sent.
	ctx := ctxlog.With(context.WithoutCancel(r.Context()), "session_id", id)
	err := c.Submit(ctx)
	if errors.Is(err, form.ErrSubmitInProgress) {
		// The running submission owns the toast; report on the page only.
		h.render(w, http.StatusConflict, c, domain.MessageSubmitInFlight)
		return
	}

	// Other failures are already on the toast.
	redirectHome(w, r)
}

// ToggleSource handles POST /sources/{id}/toggle. A "selected" field of
// true or false sets the state instead of flipping it.
func (h *Handler) ToggleSource(w http.ResponseWriter, r *http.Request) {
	source, ok := h.catalog.ByID(chi.URLParam(r, "id"))
	if !ok {
		httputil.Text(w, http.StatusNotFound, "source not found")
		return
	}
	if err := r.ParseForm(); err != nil {
		httputil.Text(w, http.StatusBadRequest, "invalid form")
		return
	}

	_, c := h.sessions.Acquire(w, r)
	if r.PostForm.Has("email") {
		c.SetEmail(r.PostForm.Get("email"))
	}
	if r.PostForm.Has("name") {
		c.SetName(r.PostForm.Get("name"))
	}

	var err error
	if r.PostForm.Has("selected") {
		err = c.SetSelected(source.Label, r.PostForm.Get("selected") == "true")
	} else {
		_, err = c.Toggle(source.Label)
	}
	if err != nil {
		httputil.Text(w, http.StatusNotFound, "source not found")
		return
	}

	redirectHome(w, r)
}

// DismissToast handles POST /toast/dismiss.
func (h *Handler) DismissToast(w http.ResponseWriter, r *http.Request) {
	_, c := h.sessions.Acquire(w, r)
	c.DismissToast()
	redirectHome(w, r)
}

// DismissModal handles POST /modal/dismiss.
func (h *Handler) DismissModal(w http.ResponseWriter, r *http.Request) {
	_, c := h.sessions.Acquire(w, r)
	if modal := c.Snapshot().Modal; modal != nil {
		modal.Close()
	}
	redirectHome(w, r)
}

// rateLimited shows the limit as an error toast on a 429 page.
func (h *Handler) rateLimited(w http.ResponseWriter, r *http.Request) {
	_, c := h.sessions.Acquire(w, r)
	c.ShowError(domain.MessageRateLimited)
	h.render(w, http.StatusTooManyRequests, c, "")
}

func (h *Handler) render(w http.ResponseWriter, status int, c *form.Controller, notice string) {
	snap := c.Snapshot()

	sources := h.catalog.Sources()
	views := make([]sourceView, 0, len(sources))
	for _, s := range sources {
		views = append(views, sourceView{ID: s.ID, Label: s.Label, Selected: snap.IsSelected(s.Label)})
	}

	httputil.HTML(w, status, pageTemplate, "page", pageView{
		Form:       snap,
		Sources:    views,
		ToastTTLMs: snap.ToastRemaining.Milliseconds(),
		Notice:     notice,
	})
}

// labels maps posted source ids to catalog labels, dropping unknown ids.
func (h *Handler) labels(ids []string) []string {
	labels := make([]string, 0, len(ids))
	for _, id := range ids {
		if s, ok := h.catalog.ByID(id); ok {
			labels = append(labels, s.Label)
		}
	}
	return labels
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
