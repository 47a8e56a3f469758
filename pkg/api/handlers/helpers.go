package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zipcase/zipcase/pkg/api/middleware"
)

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns true if successful, false if decoding fails (error response is
// written automatically).
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// userIDOrUnauthorized pulls the authenticated user ID out of the request
// context. Returns the user ID and true if present; writes 401 and returns
// false otherwise. Absence means the route was wired without the Auth
// middleware.
func userIDOrUnauthorized(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		Unauthorized(w, "Authentication required")
		return "", false
	}
	return userID, true
}
