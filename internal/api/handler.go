// Package api provides the JSON HTTP API for sources and subscriptions.
package api

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"

	"github.com/bissquit/sjtu-digest/internal/domain"
	"github.com/bissquit/sjtu-digest/internal/form"
	"github.com/bissquit/sjtu-digest/internal/pkg/httputil"
	"github.com/bissquit/sjtu-digest/internal/subscription"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 64 << 10

// Handler handles HTTP requests for the subscription API.
type Handler struct {
	client    form.Submitter
	catalog   *domain.Catalog
	validator *validator.Validate
}

// NewHandler creates a new API handler.
func NewHandler(client form.Submitter, catalog *domain.Catalog) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	// Registration fails only for an empty tag.
	_ = v.RegisterValidation("source", func(fl validator.FieldLevel) bool {
		return catalog.HasLabel(fl.Field().String())
	})

	return &Handler{
		client:    client,
		catalog:   catalog,
		validator: v,
	}
}

// RegisterRoutes registers the API routes. Subscription creation goes
// through limiter; a nil limiter disables rate limiting.
func (h *Handler) RegisterRoutes(r chi.Router, limiter *httputil.RateLimiter) {
	r.Get("/sources", h.ListSources)
	r.With(httputil.RateLimitMiddleware(limiter)).Post("/subscriptions", h.CreateSubscription)
	r.Get("/subscribers/count", h.GetSubscriberCount)
}

// SubscriptionRequest represents the request body for creating a subscription.
type SubscriptionRequest struct {
	Email         string   `json:"email" validate:"required,email,max=254"`
	Name          string   `json:"name" validate:"max=100"`
	Subscriptions []string `json:"subscriptions" validate:"required,min=1,dive,source"`
}

// ToDomain converts the request into a submission. Repeated sources are
// dropped, keeping the first occurrence.
func (r SubscriptionRequest) ToDomain() domain.Submission {
	sel := domain.NewSelection()
	for _, label := range r.Subscriptions {
		sel.Add(label)
	}
	return domain.Submission{
		Email:         domain.NormalizeEmail(r.Email),
		Name:          domain.NormalizeName(r.Name),
		Subscriptions: sel.Labels(),
	}
}

// ListSources handles GET /sources request.
func (h *Handler) ListSources(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, h.catalog.Sources())
}

// CreateSubscription handles POST /subscriptions request.
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	result, err := form.Subscribe(r.Context(), h.client, req.ToDomain())
	if err != nil {
		h.handleSubmitError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, result)
}

// GetSubscriberCount handles GET /subscribers/count request.
func (h *Handler) GetSubscriberCount(w http.ResponseWriter, r *http.Request) {
	httputil.Success(w, http.StatusOK, map[string]int{
		"subscriber_count": h.client.FetchSubscriberCount(r.Context()),
	})
}

func (h *Handler) handleSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
		{Error: form.ErrNoSources, Status: http.StatusBadRequest},
		{Error: form.ErrNoEmail, Status: http.StatusBadRequest},
		{Error: subscription.ErrNotConfigured, Status: http.StatusServiceUnavailable},
		// Anything else came from the backend.
		{Match: anyError, Status: http.StatusBadGateway, Message: form.ErrorMessage(err)},
	})
}

func anyError(error) bool { return true }

func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}
