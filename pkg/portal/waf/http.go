package waf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/zipcase/zipcase/internal/logger"
)

// Defaults for the provider polling loop.
const (
	DefaultMaxRetries  = 30
	DefaultRetryDelay  = 5 * time.Second
	DefaultPollTimeout = 10 * time.Second
)

// Config configures the HTTP solve provider.
type Config struct {
	// Endpoint is the provider API base URL.
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`

	// APIKey authenticates to the provider. Leave empty when the key is
	// supplied lazily through a KeyFunc.
	APIKey string `mapstructure:"api_key"`

	// MaxRetries bounds result polling attempts.
	MaxRetries int `mapstructure:"max_retries"`

	// RetryDelay spaces result polling attempts.
	RetryDelay time.Duration `mapstructure:"retry_delay"`

	// PollTimeout bounds each individual provider request.
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// KeyFunc supplies the provider API key on first use, typically from a
// secret store. The solver caches the result for the process lifetime.
type KeyFunc func(ctx context.Context) (string, error)

// HTTPSolver solves challenges through a token-farm provider speaking
// the createTask/getTaskResult protocol.
type HTTPSolver struct {
	cfg     Config
	httpc   *http.Client
	keyFunc KeyFunc

	mu  sync.Mutex
	key string
}

// NewHTTPSolver creates a solver for the given provider.
func NewHTTPSolver(cfg Config) (*HTTPSolver, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("waf solver requires a provider endpoint")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	return &HTTPSolver{
		cfg:   cfg,
		httpc: &http.Client{Timeout: cfg.PollTimeout},
		key:   cfg.APIKey,
	}, nil
}

// WithKeyFunc wires a lazy API key source. A key already present in the
// config takes precedence.
func (s *HTTPSolver) WithKeyFunc(fn KeyFunc) *HTTPSolver {
	s.keyFunc = fn
	return s
}

// Detect implements Solver using the shared heuristic.
func (s *HTTPSolver) Detect(statusCode int, body []byte) bool {
	return Detect(statusCode, body)
}

// gokuProps is the inline challenge state the interstitial embeds; the
// provider needs it to compute a token valid for this exact challenge.
var (
	gokuPropsRe       = regexp.MustCompile(`(?s)window\.gokuProps\s*=\s*(\{.*?\})`)
	challengeScriptRe = regexp.MustCompile(`src="(https://[^"]+/challenge\.js[^"]*)"`)
)

type challengeProps struct {
	Key     string `json:"key"`
	IV      string `json:"iv"`
	Context string `json:"context"`
}

// extractChallenge pulls the gokuProps blob and the challenge script URL
// out of the interstitial body. Either may be absent; the provider can
// still solve from the page URL alone.
func extractChallenge(body []byte) (challengeProps, string) {
	var props challengeProps
	if m := gokuPropsRe.FindSubmatch(body); m != nil {
		if err := json.Unmarshal(m[1], &props); err != nil {
			logger.Debug("Unparseable gokuProps on challenge page", "error", err)
		}
	}
	var script string
	if m := challengeScriptRe.FindSubmatch(body); m != nil {
		script = string(m[1])
	}
	return props, script
}

type createTaskRequest struct {
	ClientKey string       `json:"clientKey"`
	Task      providerTask `json:"task"`
}

type providerTask struct {
	Type           string `json:"type"`
	WebsiteURL     string `json:"websiteURL"`
	AwsKey         string `json:"awsKey,omitempty"`
	AwsIv          string `json:"awsIv,omitempty"`
	AwsContext     string `json:"awsContext,omitempty"`
	AwsChallengeJS string `json:"awsChallengeJS,omitempty"`
	UserAgent      string `json:"userAgent,omitempty"`
}

type createTaskResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           string `json:"taskId"`
}

type taskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    string `json:"taskId"`
}

type taskResultResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	Status           string `json:"status"`
	Solution         struct {
		Cookie string `json:"cookie"`
	} `json:"solution"`
}

// errPending marks a poll that found the task still processing.
var errPending = errors.New("task still processing")

// Solve submits the challenge and polls for the token.
func (s *HTTPSolver) Solve(ctx context.Context, pageURL string, body []byte, opts Options) (string, error) {
	key, err := s.apiKey(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to obtain solver API key: %w", err)
	}

	props, script := extractChallenge(body)
	taskID, err := s.createTask(ctx, key, providerTask{
		Type:           "AntiAwsWafTaskProxyLess",
		WebsiteURL:     pageURL,
		AwsKey:         props.Key,
		AwsIv:          props.IV,
		AwsContext:     props.Context,
		AwsChallengeJS: script,
		UserAgent:      opts.UserAgent,
	})
	if err != nil {
		return "", err
	}

	logger.Debug("Submitted challenge to solve provider",
		"task_id", taskID,
		"page_url", pageURL)

	var token string
	poll := func() error {
		result, err := s.taskResult(ctx, key, taskID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if result.Status != "ready" {
			return errPending
		}
		if result.Solution.Cookie == "" {
			return backoff.Permanent(errors.New("provider returned an empty token"))
		}
		token = result.Solution.Cookie
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.RetryDelay), uint64(s.cfg.MaxRetries)),
		ctx)
	if err := backoff.Retry(poll, policy); err != nil {
		if errors.Is(err, errPending) {
			return "", fmt.Errorf("challenge unsolved after %d polls", s.cfg.MaxRetries)
		}
		return "", err
	}
	return token, nil
}

// apiKey returns the cached key, fetching it through the KeyFunc once.
func (s *HTTPSolver) apiKey(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != "" {
		return s.key, nil
	}
	if s.keyFunc == nil {
		return "", errors.New("no API key configured")
	}
	key, err := s.keyFunc(ctx)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", errors.New("key source returned an empty key")
	}
	s.key = key
	return key, nil
}

func (s *HTTPSolver) createTask(ctx context.Context, key string, task providerTask) (string, error) {
	var out createTaskResponse
	if err := s.post(ctx, "/createTask", createTaskRequest{ClientKey: key, Task: task}, &out); err != nil {
		return "", fmt.Errorf("failed to create solve task: %w", err)
	}
	if out.ErrorID != 0 {
		return "", fmt.Errorf("provider rejected task: %s (%s)", out.ErrorDescription, out.ErrorCode)
	}
	if out.TaskID == "" {
		return "", errors.New("provider returned no task id")
	}
	return out.TaskID, nil
}

func (s *HTTPSolver) taskResult(ctx context.Context, key, taskID string) (*taskResultResponse, error) {
	var out taskResultResponse
	if err := s.post(ctx, "/getTaskResult", taskResultRequest{ClientKey: key, TaskID: taskID}, &out); err != nil {
		return nil, fmt.Errorf("failed to poll solve task: %w", err)
	}
	if out.ErrorID != 0 {
		return nil, fmt.Errorf("provider failed task: %s (%s)", out.ErrorDescription, out.ErrorCode)
	}
	return &out, nil
}

func (s *HTTPSolver) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}
