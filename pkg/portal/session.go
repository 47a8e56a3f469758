package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/zipcase/zipcase/internal/logger"
	"github.com/zipcase/zipcase/internal/telemetry"
	"github.com/zipcase/zipcase/pkg/kvstore"
	"github.com/zipcase/zipcase/pkg/portal/waf"
	"github.com/zipcase/zipcase/pkg/userstore"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

const (
	loginPath      = "/Portal/Account/Login"
	portalHomePath = "/Portal"

	csrfTokenField = "__RequestVerificationToken"
	wresultField   = "wresult"
	wsFedAction    = "wsignin1.0"
	wsFedContext   = "rm=0&id=passive&ru=%2fPortal%2fAccount%2fLogin"

	fedAuthCookie  = "FedAuth"
	fedAuth1Cookie = "FedAuth1"
	wafTokenCookie = "aws-waf-token"

	invalidCredentialsMarker = "Invalid Email or password."
	greetingMarker           = "Welcome, "

	// sessionExpirySafety is subtracted from the earliest cookie expiry
	// so a session is never replayed in its final moments.
	sessionExpirySafety = 5 * time.Minute
)

// SessionManager authenticates users against the portal's federated
// identity provider and caches the resulting sessions per user.
type SessionManager struct {
	cfg     Config
	users   *userstore.Store
	solver  waf.Solver
	clock   clockwork.Clock
	metrics Metrics
}

// NewSessionManager creates a session manager. The solver may be nil
// when no challenge provider is configured; challenges then fail hard.
func NewSessionManager(cfg Config, users *userstore.Store, solver waf.Solver) *SessionManager {
	return &SessionManager{
		cfg:    cfg.withDefaults(),
		users:  users,
		solver: solver,
		clock:  clockwork.NewRealClock(),
	}
}

// WithClock replaces the manager's clock. Used by tests.
func (m *SessionManager) WithClock(clock clockwork.Clock) *SessionManager {
	m.clock = clock
	return m
}

// WithMetrics wires operation metrics.
func (m *SessionManager) WithMetrics(metrics Metrics) *SessionManager {
	m.metrics = metrics
	return m
}

// GetOrCreate returns the user's cached session when one is live, and
// authenticates otherwise. Credentials already marked invalid fail fast
// with userstore.ErrCredentialsMarkedBad; a rejected login marks them.
func (m *SessionManager) GetOrCreate(ctx context.Context, userID string) (*zipcase.PortalSession, error) {
	sess, err := m.users.GetSession(ctx, userID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, kvstore.ErrNotFound) {
		return nil, err
	}

	creds, err := m.users.GetSensitiveCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}

	sess, err = m.Authenticate(ctx, userID, creds)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			if markErr := m.users.MarkCredentialsBad(ctx, userID, true); markErr != nil {
				logger.WarnCtx(ctx, "Failed to mark credentials invalid",
					"user_id", userID,
					"error", markErr)
			}
		}
		return nil, err
	}

	if err := m.users.SaveSession(ctx, userID, sess.CookieJar, sess.ExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to cache portal session: %w", err)
	}
	return sess, nil
}

// Authenticate runs the WS-Federation handshake and returns a fresh
// session. It never touches the session cache; GetOrCreate does.
func (m *SessionManager) Authenticate(ctx context.Context, userID string, creds *zipcase.PortalCredentials) (*zipcase.PortalSession, error) {
	ctx, span := telemetry.StartPortalSpan(ctx, "login", telemetry.UserID(userID))
	defer span.End()

	start := m.clock.Now()
	sess, err := m.authenticate(ctx, userID, creds)
	m.observeLogin(err, m.clock.Since(start))
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	logger.InfoCtx(ctx, "Authenticated portal session",
		"user_id", userID,
		"expires_at", sess.ExpiresAt)
	return sess, nil
}

func (m *SessionManager) authenticate(ctx context.Context, userID string, creds *zipcase.PortalCredentials) (*zipcase.PortalSession, error) {
	jar := NewJar()
	client := newHTTPClient(jar, m.cfg.Timeout)

	ua, err := m.users.EnsureUserAgent(ctx, userID)
	if err != nil {
		logger.WarnCtx(ctx, "Failed to resolve user agent, continuing without",
			"user_id", userID,
			"error", err)
	}

	// The login page redirects out to the identity provider; its final
	// URL is where credentials go, and its form carries the CSRF token.
	loginPage, err := m.loadLoginPage(ctx, client, jar, ua)
	if err != nil {
		return nil, err
	}
	loginURL := loginPage.URL

	csrf := findInputValue(loginPage.Body, csrfTokenField)
	if csrf == "" {
		return nil, errors.New("login page carried no request verification token")
	}

	idpHeaders := m.headers(ua)
	idpHeaders["Origin"] = origin(loginURL)
	idpHeaders["Referer"] = loginURL.String()

	form := url.Values{
		csrfTokenField: {csrf},
		"UserName":     {creds.Username},
		"Password":     {creds.Password},
	}
	signIn, err := postForm(ctx, client, loginURL.String(), form, idpHeaders)
	if err != nil {
		return nil, fmt.Errorf("failed to submit credentials: %w", err)
	}

	// The CDN sometimes challenges the POST rather than the page load.
	challenged, err := m.handleChallenge(ctx, jar, signIn, ua)
	if err != nil {
		return nil, err
	}
	if challenged {
		if signIn, err = postForm(ctx, client, loginURL.String(), form, idpHeaders); err != nil {
			return nil, fmt.Errorf("failed to resubmit credentials: %w", err)
		}
	}

	if signIn.Contains(invalidCredentialsMarker) {
		return nil, ErrInvalidCredentials
	}

	wresult := findInputValue(signIn.Body, wresultField)
	if wresult == "" {
		return nil, errors.New("identity provider returned no federation token")
	}

	// Exchange the signed token for the portal's own session cookies.
	relay := url.Values{
		"wa":      {wsFedAction},
		"wresult": {wresult},
		"wctx":    {wsFedContext},
	}
	home, err := postForm(ctx, client, m.cfg.BaseURL+portalHomePath, relay, m.headers(ua))
	if err != nil {
		return nil, fmt.Errorf("failed to relay federation token: %w", err)
	}

	// Both signals are required: cookies prove the exchange happened,
	// the greeting proves the portal accepted it.
	if !jar.Has(fedAuthCookie, fedAuth1Cookie) {
		return nil, errors.New("portal did not issue session cookies")
	}
	if !home.Contains(greetingMarker) {
		return nil, errors.New("portal did not confirm the signed-in state")
	}

	serialized, err := jar.Serialize()
	if err != nil {
		return nil, err
	}
	return &zipcase.PortalSession{
		CookieJar: serialized,
		ExpiresAt: m.sessionExpiry(jar),
	}, nil
}

// Verify checks a cached session against the portal without side
// effects: the home page renders the greeting only for signed-in jars.
func (m *SessionManager) Verify(ctx context.Context, userID string, session *zipcase.PortalSession) (bool, error) {
	jar, err := RestoreJar(session.CookieJar)
	if err != nil {
		return false, err
	}

	ua, err := m.users.GetUserAgent(ctx, userID)
	if err != nil {
		ua = ""
	}

	client := newHTTPClient(jar, m.cfg.Timeout)
	home, err := getPage(ctx, client, m.cfg.BaseURL+portalHomePath, m.headers(ua))
	if err != nil {
		return false, err
	}
	return home.Contains(greetingMarker), nil
}

// loadLoginPage GETs the login entry point, solving at most one
// challenge along the way.
func (m *SessionManager) loadLoginPage(ctx context.Context, client *http.Client, jar *Jar, ua string) (*page, error) {
	loginURL := m.cfg.BaseURL + loginPath

	p, err := getPage(ctx, client, loginURL, m.headers(ua))
	if err != nil {
		return nil, fmt.Errorf("failed to load login page: %w", err)
	}

	challenged, err := m.handleChallenge(ctx, jar, p, ua)
	if err != nil {
		return nil, err
	}
	if challenged {
		if p, err = getPage(ctx, client, loginURL, m.headers(ua)); err != nil {
			return nil, fmt.Errorf("failed to reload login page: %w", err)
		}
		if waf.Detect(p.Status, p.Body) {
			return nil, errors.New("bot challenge persisted after solve")
		}
	}
	return p, nil
}

// handleChallenge detects a bot interstitial and, when one is present,
// solves it and installs the token cookie for both the page origin and
// the portal origin. The caller re-issues its request on true.
func (m *SessionManager) handleChallenge(ctx context.Context, jar *Jar, p *page, ua string) (bool, error) {
	if !waf.Detect(p.Status, p.Body) {
		return false, nil
	}
	if m.solver == nil {
		return true, errors.New("bot challenge encountered and no solver is configured")
	}

	logger.InfoCtx(ctx, "Solving bot challenge", "page_url", p.URL.String())

	start := m.clock.Now()
	token, err := m.solver.Solve(ctx, p.URL.String(), p.Body, waf.Options{UserAgent: ua})
	m.observeChallenge(err == nil, m.clock.Since(start))
	if err != nil {
		return true, fmt.Errorf("failed to solve bot challenge: %w", err)
	}

	cookie := &http.Cookie{Name: wafTokenCookie, Value: token, Path: "/"}
	jar.SetCookies(p.URL, []*http.Cookie{cookie})
	if base, parseErr := url.Parse(m.cfg.BaseURL); parseErr == nil && base.Hostname() != p.URL.Hostname() {
		jar.SetCookies(base, []*http.Cookie{cookie})
	}
	return true, nil
}

// sessionExpiry picks the sooner of now+TTL and the earliest cookie
// expiry minus the safety buffer.
func (m *SessionManager) sessionExpiry(jar *Jar) time.Time {
	expiry := m.clock.Now().UTC().Add(m.cfg.SessionTTL)
	if earliest, ok := jar.EarliestExpiry(); ok {
		if buffered := earliest.Add(-sessionExpirySafety).UTC(); buffered.Before(expiry) {
			expiry = buffered
		}
	}
	return expiry
}

func (m *SessionManager) headers(ua string) map[string]string {
	h := map[string]string{}
	if ua != "" {
		h["User-Agent"] = ua
	}
	return h
}

func (m *SessionManager) observeLogin(err error, d time.Duration) {
	if m.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		outcome = "invalid_credentials"
	case err != nil:
		outcome = "error"
	}
	m.metrics.ObserveLogin(outcome, d)
}

func (m *SessionManager) observeChallenge(solved bool, d time.Duration) {
	if m.metrics == nil {
		return
	}
	m.metrics.ObserveChallenge(solved, d)
}

func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}
