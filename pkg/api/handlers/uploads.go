package handlers

import (
	"context"
	"net/http"

	"github.com/zipcase/zipcase/internal/logger"
	"github.com/zipcase/zipcase/pkg/uploads"
)

// UploadSigner mints presigned upload URLs. *uploads.Signer implements
// it.
type UploadSigner interface {
	PresignPut(ctx context.Context, userID, filename, contentType string, size int64) (*uploads.PresignedUpload, error)
}

// UploadsHandler handles the presigned upload URL endpoint.
type UploadsHandler struct {
	signer  UploadSigner
	maxSize int64
}

// NewUploadsHandler creates a new UploadsHandler. maxSize caps the
// declared size of a requested upload, in bytes; zero selects 25 MiB.
func NewUploadsHandler(signer UploadSigner, maxSize int64) *UploadsHandler {
	if maxSize <= 0 {
		maxSize = 25 << 20
	}
	return &UploadsHandler{signer: signer, maxSize: maxSize}
}

// UploadURLRequest is the request body for POST /upload-url.
type UploadURLRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
}

// UploadURLResponse is the response body for POST /upload-url.
type UploadURLResponse struct {
	UploadURL string `json:"uploadUrl"`
	Key       string `json:"key"`
}

// Create handles POST /upload-url.
//
// Returns a presigned PUT URL scoped to the caller's prefix. The
// declared size is validated here, but enforcement is the bucket
// policy's job; the URL only authorizes a single key.
func (h *UploadsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req UploadURLRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Filename == "" {
		BadRequest(w, "Missing filename parameter")
		return
	}
	if req.Size <= 0 {
		BadRequest(w, "Missing or invalid size parameter")
		return
	}
	if req.Size > h.maxSize {
		BadRequest(w, "File exceeds the maximum upload size")
		return
	}

	presigned, err := h.signer.PresignPut(r.Context(), userID, req.Filename, req.ContentType, req.Size)
	if err != nil {
		logger.ErrorCtx(r.Context(), "Upload URL generation failed", "user_id", userID, "error", err)
		InternalServerError(w, "Failed to generate upload URL")
		return
	}

	WriteJSONOK(w, UploadURLResponse{UploadURL: presigned.URL, Key: presigned.Key})
}
