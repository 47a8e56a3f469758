package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zipcase/zipcase/internal/logger"
	"github.com/zipcase/zipcase/pkg/api/handlers"
	apimiddleware "github.com/zipcase/zipcase/pkg/api/middleware"
	"github.com/zipcase/zipcase/pkg/kvstore"
	"github.com/zipcase/zipcase/pkg/pipeline"
	"github.com/zipcase/zipcase/pkg/userstore"
)

// Deps carries everything the API routes need. Auth, Pipeline and Users
// are required; nil Sessions disables POST /portal-credentials, nil
// Uploads disables POST /upload-url (both respond 503 so clients can
// tell a disabled feature from a missing route).
type Deps struct {
	// Auth verifies bearer tokens on every route except health checks.
	Auth apimiddleware.TokenVerifier

	// Pipeline is the search ingest and poll surface.
	Pipeline *pipeline.Coordinator

	// Users is the per-user store behind the credential, webhook and
	// case endpoints.
	Users *userstore.Store

	// Sessions verifies candidate portal credentials with a live login.
	Sessions handlers.Authenticator

	// Uploads mints presigned upload URLs.
	Uploads handlers.UploadSigner

	// UploadMaxSize caps the declared size of a requested upload.
	UploadMaxSize int64

	// Store, when non-nil, is probed by the readiness endpoint.
	Store kvstore.Store

	// Version is reported by the health endpoints.
	Version string

	// Metrics, when non-nil, receives per-request observations.
	Metrics Metrics
}

// NewRouter creates and configures the chi router with all middleware
// and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Every route except the health checks requires a bearer token.
func NewRouter(config Config, deps Deps) http.Handler {
	config.applyDefaults()

	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	if deps.Metrics != nil {
		r.Use(requestMetrics(deps.Metrics))
	}
	r.Use(middleware.Recoverer)
	// Saving portal credentials runs a live portal login, so the
	// request timeout follows the write timeout instead of the usual
	// 30 seconds.
	r.Use(middleware.Timeout(config.WriteTimeout))

	healthHandler := handlers.NewHealthHandler(deps.Version, deps.Store)
	searchHandler := handlers.NewSearchHandler(deps.Pipeline, deps.Users)
	nameSearchHandler := handlers.NewNameSearchHandler(deps.Pipeline)
	webhookHandler := handlers.NewWebhookHandler(deps.Users)

	// Health routes - unauthenticated
	r.Route("/healthz", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	// Everything else requires a bearer token
	r.Group(func(r chi.Router) {
		r.Use(apimiddleware.Auth(deps.Auth))

		r.Post("/search", searchHandler.Search)
		r.Post("/status", searchHandler.Status)
		r.Get("/case/{caseNumber}", searchHandler.GetCase)

		r.Post("/name-search", nameSearchHandler.Submit)
		r.Get("/name-search/{searchId}", nameSearchHandler.Get)

		if deps.Sessions != nil {
			credentialsHandler := handlers.NewCredentialsHandler(deps.Sessions, deps.Users)
			r.Post("/portal-credentials", credentialsHandler.Save)
		} else {
			r.Post("/portal-credentials", featureDisabled("Portal verification is not configured"))
		}

		r.Get("/webhook-settings", webhookHandler.Get)
		r.Post("/webhook-settings", webhookHandler.Save)

		if deps.Uploads != nil {
			uploadsHandler := handlers.NewUploadsHandler(deps.Uploads, deps.UploadMaxSize)
			r.Post("/upload-url", uploadsHandler.Create)
		} else {
			r.Post("/upload-url", featureDisabled("Uploads are not configured"))
		}
	})

	return http.MaxBytesHandler(r, config.MaxBody)
}

// featureDisabled answers for routes whose backing component is not
// configured.
func featureDisabled(detail string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteError(w, http.StatusServiceUnavailable, detail)
	}
}

// isHealthPath reports whether the path is polled by orchestration.
// Completion logs for these are demoted to DEBUG to keep INFO output
// readable.
func isHealthPath(path string) bool {
	return path == "/healthz" || strings.HasPrefix(path, "/healthz/")
}

// requestLogger is a custom middleware that logs requests using the
// internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logFn := logger.Info
		if isHealthPath(r.URL.Path) {
			logFn = logger.Debug
		}
		logFn("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		)
	})
}

// requestMetrics observes every request with the route pattern rather
// than the raw path, so /case/{caseNumber} is one label value.
func requestMetrics(m Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequest(r.Method, route, ww.Status(), time.Since(start))
		})
	}
}
