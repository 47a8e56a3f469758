// Package handlers provides HTTP handlers for the ZipCase API.
package handlers

import (
	"encoding/json"
	"net/http"
)

// errorBody is the wire shape of every API error response.
type errorBody struct {
	Error string `json:"error"`
}

// WriteError writes a JSON error response with the given status code.
func WriteError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: detail})
}

// Common error helper functions for standard HTTP statuses.

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, detail)
}

// Unauthorized writes a 401 Unauthorized error response.
func Unauthorized(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusUnauthorized, detail)
}

// Forbidden writes a 403 Forbidden error response.
func Forbidden(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusForbidden, detail)
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, detail)
}

// Conflict writes a 409 Conflict error response.
func Conflict(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusConflict, detail)
}

// InternalServerError writes a 500 Internal Server Error error response.
func InternalServerError(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusInternalServerError, detail)
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteJSONOK writes a 200 OK JSON response.
func WriteJSONOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}

// WriteJSONAccepted writes a 202 Accepted JSON response. The search
// endpoints answer 202 because fetching runs asynchronously; clients
// poll for completion.
func WriteJSONAccepted(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusAccepted, data)
}

// WriteJSONCreated writes a 201 Created JSON response.
func WriteJSONCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a 204 No Content response.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
