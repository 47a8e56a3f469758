package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/zipcase/zipcase/internal/logger"
	"github.com/zipcase/zipcase/pkg/portal"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

// Authenticator performs a live portal login with candidate credentials,
// bypassing the session cache. *portal.SessionManager implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, userID string, creds *zipcase.PortalCredentials) (*zipcase.PortalSession, error)
}

// CredentialsWriter is the slice of the user store the credentials
// endpoint consumes. *userstore.Store implements it.
type CredentialsWriter interface {
	SaveCredentials(ctx context.Context, userID, username, password string) error
	SaveSession(ctx context.Context, userID, cookieJar string, expiresAt time.Time) error
}

// CredentialsHandler handles the portal credential endpoint.
//
// The plaintext password lives only in the request struct for the
// duration of the call; it is passed to the portal for verification and
// to the user store for encryption, and is never logged.
type CredentialsHandler struct {
	sessions Authenticator
	users    CredentialsWriter
}

// NewCredentialsHandler creates a new CredentialsHandler.
func NewCredentialsHandler(sessions Authenticator, users CredentialsWriter) *CredentialsHandler {
	return &CredentialsHandler{sessions: sessions, users: users}
}

// SaveCredentialsRequest is the request body for POST /portal-credentials.
type SaveCredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SaveCredentialsResponse is the response body for POST /portal-credentials.
// The password is never echoed back.
type SaveCredentialsResponse struct {
	Username string `json:"username"`
	Verified bool   `json:"verified"`
}

// Save handles POST /portal-credentials.
//
// Credentials are verified against the portal with a live login before
// being stored; ones the portal rejects are never persisted. On success
// the fresh session is cached so the user's next search skips the login.
func (h *CredentialsHandler) Save(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req SaveCredentialsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Username == "" {
		BadRequest(w, "Missing username parameter")
		return
	}
	if req.Password == "" {
		BadRequest(w, "Missing password parameter")
		return
	}

	creds := &zipcase.PortalCredentials{Username: req.Username, Password: req.Password}
	session, err := h.sessions.Authenticate(r.Context(), userID, creds)
	if err != nil {
		if errors.Is(err, portal.ErrInvalidCredentials) {
			Unauthorized(w, portal.InvalidCredentialsMessage)
			return
		}
		logger.ErrorCtx(r.Context(), "Credential verification failed", "user_id", userID, "error", err)
		InternalServerError(w, "Failed to verify credentials")
		return
	}

	if err := h.users.SaveCredentials(r.Context(), userID, req.Username, req.Password); err != nil {
		logger.ErrorCtx(r.Context(), "Credential save failed", "user_id", userID, "error", err)
		InternalServerError(w, "Failed to save credentials")
		return
	}

	// SaveCredentials dropped the session minted under the previous
	// password; cache the one the verification login just produced.
	// Failing to cache it only costs the next search a fresh login.
	if err := h.users.SaveSession(r.Context(), userID, session.CookieJar, session.ExpiresAt); err != nil {
		logger.WarnCtx(r.Context(), "Failed to cache verified portal session", "user_id", userID, "error", err)
	}

	WriteJSONCreated(w, SaveCredentialsResponse{Username: req.Username, Verified: true})
}
