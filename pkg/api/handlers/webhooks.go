package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/zipcase/zipcase/internal/logger"
	"github.com/zipcase/zipcase/pkg/kvstore"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

// WebhookStore is the slice of the user store the webhook endpoints
// consume. *userstore.Store implements it.
type WebhookStore interface {
	GetWebhookSettings(ctx context.Context, userID string) (*zipcase.WebhookSettings, error)
	SaveWebhookSettings(ctx context.Context, userID string, settings zipcase.WebhookSettings) error
}

// WebhookHandler handles webhook registration endpoints.
type WebhookHandler struct {
	users WebhookStore
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(users WebhookStore) *WebhookHandler {
	return &WebhookHandler{users: users}
}

// Get handles GET /webhook-settings.
//
// A user with no registration gets empty settings rather than 404 so
// the client can render the form without special-casing.
func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrUnauthorized(w, r)
	if !ok {
		return
	}

	settings, err := h.users.GetWebhookSettings(r.Context(), userID)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			WriteJSONOK(w, zipcase.WebhookSettings{})
			return
		}
		logger.ErrorCtx(r.Context(), "Webhook settings lookup failed", "user_id", userID, "error", err)
		InternalServerError(w, "Failed to look up webhook settings")
		return
	}

	WriteJSONOK(w, settings)
}

// Save handles POST /webhook-settings.
//
// An empty webhook URL clears the registration; a non-empty one must be
// an absolute http(s) URL.
func (h *WebhookHandler) Save(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrUnauthorized(w, r)
	if !ok {
		return
	}

	var settings zipcase.WebhookSettings
	if !decodeJSONBody(w, r, &settings) {
		return
	}

	if settings.WebhookURL != "" {
		u, err := url.Parse(settings.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			BadRequest(w, "Webhook URL must be an absolute http(s) URL")
			return
		}
	}

	if err := h.users.SaveWebhookSettings(r.Context(), userID, settings); err != nil {
		logger.ErrorCtx(r.Context(), "Webhook settings save failed", "user_id", userID, "error", err)
		InternalServerError(w, "Failed to save webhook settings")
		return
	}

	WriteJSONOK(w, settings)
}
