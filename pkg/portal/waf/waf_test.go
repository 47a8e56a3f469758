package waf

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const challengePage = `<html><head>
<script src="https://token.awswaf.com/challenge/challenge.js" defer></script>
<script>window.gokuProps = {"key":"AQID","iv":"BAUG","context":"b2s="};</script>
</head><body></body></html>`

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"method not allowed", http.StatusMethodNotAllowed, "", true},
		{"goku props", http.StatusOK, `<script>window.gokuProps = {}</script>`, true},
		{"challenge script", http.StatusOK, `<script src="/x/challenge.js">`, true},
		{"captcha script", http.StatusOK, `<script src="/x/captcha.js">`, true},
		{"visual solutions", http.StatusOK, `{"visualSolutionsRequired":true}`, true},
		{"waf host", http.StatusOK, `fetch("https://foo.awswaf.com/verify")`, true},
		{"token marker", http.StatusOK, `document.cookie="aws-waf-token=x"`, true},
		{"plain page", http.StatusOK, `<html><body>Welcome, Jane</body></html>`, false},
		{"plain 403", http.StatusForbidden, `<html>forbidden</html>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.status, []byte(tt.body)))
		})
	}
}

func TestExtractChallenge(t *testing.T) {
	props, script := extractChallenge([]byte(challengePage))
	assert.Equal(t, "AQID", props.Key)
	assert.Equal(t, "BAUG", props.IV)
	assert.Equal(t, "b2s=", props.Context)
	assert.Equal(t, "https://token.awswaf.com/challenge/challenge.js", script)

	props, script = extractChallenge([]byte("<html>no challenge here</html>"))
	assert.Empty(t, props.Key)
	assert.Empty(t, script)
}

// newProvider runs a fake solve provider that reports the task as
// processing for pendingPolls polls before returning the token.
func newProvider(t *testing.T, pendingPolls int32, token string) (*httptest.Server, *int32) {
	t.Helper()

	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/createTask", func(w http.ResponseWriter, r *http.Request) {
		var req createTaskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-key", req.ClientKey)
		assert.Equal(t, "AntiAwsWafTaskProxyLess", req.Task.Type)

		_ = json.NewEncoder(w).Encode(createTaskResponse{TaskID: "task-1"})
	})
	mux.HandleFunc("/getTaskResult", func(w http.ResponseWriter, r *http.Request) {
		var req taskResultRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "task-1", req.TaskID)

		resp := taskResultResponse{Status: "processing"}
		if atomic.AddInt32(&polls, 1) > pendingPolls {
			resp.Status = "ready"
			resp.Solution.Cookie = token
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &polls
}

func TestSolvePollsUntilReady(t *testing.T) {
	srv, polls := newProvider(t, 2, "waf-token-value")

	solver, err := NewHTTPSolver(Config{
		Endpoint:   srv.URL,
		APIKey:     "test-key",
		MaxRetries: 5,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)

	token, err := solver.Solve(context.Background(), "https://portal.example/login", []byte(challengePage), Options{})
	require.NoError(t, err)
	assert.Equal(t, "waf-token-value", token)
	assert.Equal(t, int32(3), atomic.LoadInt32(polls))
}

func TestSolveGivesUpAfterMaxRetries(t *testing.T) {
	srv, _ := newProvider(t, 1000, "never")

	solver, err := NewHTTPSolver(Config{
		Endpoint:   srv.URL,
		APIKey:     "test-key",
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)

	_, err = solver.Solve(context.Background(), "https://portal.example/login", []byte(challengePage), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsolved after 3 polls")
}

func TestSolveSurfacesProviderRejection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/createTask", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(createTaskResponse{
			ErrorID:          1,
			ErrorCode:        "ERROR_KEY_DENIED",
			ErrorDescription: "key not recognized",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	solver, err := NewHTTPSolver(Config{Endpoint: srv.URL, APIKey: "bad-key"})
	require.NoError(t, err)

	_, err = solver.Solve(context.Background(), "https://portal.example/login", nil, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERROR_KEY_DENIED")
}

func TestLazyAPIKeyFetchedOnceAndCached(t *testing.T) {
	srv, _ := newProvider(t, 0, "tok")

	var fetches int32
	solver, err := NewHTTPSolver(Config{
		Endpoint:   srv.URL,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	solver.WithKeyFunc(func(context.Context) (string, error) {
		atomic.AddInt32(&fetches, 1)
		return "test-key", nil
	})

	ctx := context.Background()
	_, err = solver.Solve(ctx, "https://portal.example", nil, Options{})
	require.NoError(t, err)
	_, err = solver.Solve(ctx, "https://portal.example", nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))
}

func TestSolveWithoutKeyFails(t *testing.T) {
	solver, err := NewHTTPSolver(Config{Endpoint: "http://provider.example"})
	require.NoError(t, err)

	_, err = solver.Solve(context.Background(), "https://portal.example", nil, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestNewHTTPSolverRequiresEndpoint(t *testing.T) {
	_, err := NewHTTPSolver(Config{})
	assert.Error(t, err)
}
