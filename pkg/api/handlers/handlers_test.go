package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zipcase/zipcase/pkg/api/middleware"
	"github.com/zipcase/zipcase/pkg/casestore"
	"github.com/zipcase/zipcase/pkg/kvstore"
	kvmemory "github.com/zipcase/zipcase/pkg/kvstore/memory"
	"github.com/zipcase/zipcase/pkg/pipeline"
	qmemory "github.com/zipcase/zipcase/pkg/queue/memory"
	"github.com/zipcase/zipcase/pkg/secrets/local"
	"github.com/zipcase/zipcase/pkg/userstore"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

const testUserID = "user-1"

// fakeSessionProvider satisfies pipeline.SessionProvider. A nil err
// hands out a healthy session; otherwise every lookup fails with err.
type fakeSessionProvider struct {
	err error
}

func (f *fakeSessionProvider) GetOrCreate(_ context.Context, _ string) (*zipcase.PortalSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &zipcase.PortalSession{
		CookieJar: `[{"name":"session","value":"test"}]`,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

// testEnv is the real component stack the handler tests run against:
// memory store and queues, local encrypter, live coordinator.
type testEnv struct {
	kv       kvstore.Store
	cases    *casestore.Store
	users    *userstore.Store
	sessions *fakeSessionProvider
	co       *pipeline.Coordinator
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	kv := kvmemory.NewMemoryStore()
	t.Cleanup(func() { _ = kv.Close() })

	enc, err := local.New(local.Config{Passphrase: "test-passphrase", Salt: "0123456789abcdef"})
	if err != nil {
		t.Fatalf("Failed to create encrypter: %v", err)
	}

	cases := casestore.New(kv)
	users := userstore.New(kv, enc)
	sessions := &fakeSessionProvider{}

	searchQ := qmemory.NewMemoryQueue()
	dataQ := qmemory.NewMemoryQueue()
	t.Cleanup(func() {
		_ = searchQ.Close()
		_ = dataQ.Close()
	})

	co := pipeline.NewCoordinator(pipeline.Config{}, cases, sessions, searchQ, dataQ)

	return &testEnv{kv: kv, cases: cases, users: users, sessions: sessions, co: co}
}

// authedRequest builds a JSON request carrying the authenticated user ID
// the way the Auth middleware would.
func authedRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.WithUserID(req.Context(), testUserID))
}

// withURLParam attaches a chi route parameter to the request, as the
// router would when dispatching.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to unmarshal response %q: %v", w.Body.String(), err)
	}
	return v
}
