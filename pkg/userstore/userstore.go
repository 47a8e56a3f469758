// Package userstore persists per-user state: portal credentials,
// cached portal sessions, the sticky user agent and webhook settings.
//
// Key layout (one kvstore record per row):
//
//	USER#<id> / PORTAL_CREDENTIALS   encrypted username+password, isBad
//	USER#<id> / SESSION              serialized cookie jar + expiry
//	USER#<id> / USER-AGENT           sticky user agent string
//	USER#<id> / WEBHOOK_SETTINGS     webhook url + shared secret
//	USERAGENTS / COLLECTION          pool new users draw an agent from
//
// Credential fields are encrypted with the configured secrets backend
// before they reach the store; the ciphertext is the only form at
// rest. Reads come in two tiers: GetCredentials returns the username
// and the isBad flag, GetSensitiveCredentials additionally decrypts
// the password and exists for the session manager alone.
package userstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/zipcase/zipcase/internal/logger"
	"github.com/zipcase/zipcase/pkg/kvstore"
	"github.com/zipcase/zipcase/pkg/secrets"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

// ErrNoCredentials is returned when a user has no stored portal
// credentials.
var ErrNoCredentials = errors.New("userstore: no portal credentials on file")

// ErrCredentialsMarkedBad is returned by the sensitive read when the
// stored credentials are flagged invalid; callers must not attempt
// authentication with them.
var ErrCredentialsMarkedBad = errors.New("userstore: credentials marked invalid")

// Sort keys under USER#<id>.
const (
	skPortalCredentials = "PORTAL_CREDENTIALS"
	skSession           = "SESSION"
	skUserAgent         = "USER-AGENT"
	skWebhookSettings   = "WEBHOOK_SETTINGS"
)

// The shared user-agent pool record.
var userAgentPoolKey = kvstore.Key{PK: "USERAGENTS", SK: "COLLECTION"}

// defaultUserAgents seeds the pool when no USERAGENTS/COLLECTION record
// exists. Current desktop browser strings; the portal's WAF scores
// obviously stale agents higher.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
}

func userKey(userID, sk string) kvstore.Key {
	return kvstore.Key{PK: "USER#" + userID, SK: sk}
}

// credentialsRecord is the at-rest form: both fields ciphertext.
type credentialsRecord struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IsBad    bool   `json:"isBad"`
}

// Store reads and writes per-user records.
type Store struct {
	kv    kvstore.Store
	enc   secrets.Encrypter
	clock clockwork.Clock
}

// New creates a user store over the given backends.
func New(kv kvstore.Store, enc secrets.Encrypter) *Store {
	return &Store{
		kv:    kv,
		enc:   enc,
		clock: clockwork.NewRealClock(),
	}
}

// WithClock replaces the store's clock. Used by tests to control expiry.
func (s *Store) WithClock(clock clockwork.Clock) *Store {
	s.clock = clock
	return s
}

// SaveCredentials encrypts and persists portal credentials, clearing
// any isBad flag. The caller is expected to have verified them against
// the portal first; the stale session is deleted here because it was
// minted under the previous password.
func (s *Store) SaveCredentials(ctx context.Context, userID, username, password string) error {
	encUsername, err := secrets.EncryptString(ctx, s.enc, username)
	if err != nil {
		return fmt.Errorf("failed to encrypt username: %w", err)
	}
	encPassword, err := secrets.EncryptString(ctx, s.enc, password)
	if err != nil {
		return fmt.Errorf("failed to encrypt password: %w", err)
	}

	doc, err := json.Marshal(credentialsRecord{
		Username: encUsername,
		Password: encPassword,
		IsBad:    false,
	})
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	if err := s.kv.Put(ctx, userKey(userID, skPortalCredentials), doc); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	if err := s.kv.Delete(ctx, userKey(userID, skSession)); err != nil {
		logger.Warn("Failed to drop cached session after credential change",
			"user_id", userID, "error", err)
	}
	return nil
}

func (s *Store) loadCredentials(ctx context.Context, userID string) (*credentialsRecord, error) {
	doc, err := s.kv.Get(ctx, userKey(userID, skPortalCredentials))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var rec credentialsRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return &rec, nil
}

// GetCredentials returns the username and isBad flag. The password is
// never decrypted on this path.
func (s *Store) GetCredentials(ctx context.Context, userID string) (*zipcase.PortalCredentials, error) {
	rec, err := s.loadCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}

	username, err := secrets.DecryptString(ctx, s.enc, rec.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt username: %w", err)
	}

	return &zipcase.PortalCredentials{Username: username, IsBad: rec.IsBad}, nil
}

// GetSensitiveCredentials returns the full credentials including the
// plaintext password. Only the session manager calls this, and only
// when it is about to authenticate. Credentials flagged isBad return
// ErrCredentialsMarkedBad without decrypting the password.
func (s *Store) GetSensitiveCredentials(ctx context.Context, userID string) (*zipcase.PortalCredentials, error) {
	rec, err := s.loadCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec.IsBad {
		return nil, ErrCredentialsMarkedBad
	}

	username, err := secrets.DecryptString(ctx, s.enc, rec.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt username: %w", err)
	}
	password, err := secrets.DecryptString(ctx, s.enc, rec.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt password: %w", err)
	}

	return &zipcase.PortalCredentials{Username: username, Password: password, IsBad: false}, nil
}

// MarkCredentialsBad flips the isBad flag in place, preserving the
// stored ciphertext so the user can be shown which username failed.
func (s *Store) MarkCredentialsBad(ctx context.Context, userID string, bad bool) error {
	rec, err := s.loadCredentials(ctx, userID)
	if err != nil {
		return err
	}
	rec.IsBad = bad

	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := s.kv.Put(ctx, userKey(userID, skPortalCredentials), doc); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	return nil
}

// GetSession returns the cached portal session, or kvstore.ErrNotFound
// when none exists or the cached one is past its expiry. Expiry is
// decided here, at the read site; the storage TTL is best effort.
func (s *Store) GetSession(ctx context.Context, userID string) (*zipcase.PortalSession, error) {
	doc, err := s.kv.Get(ctx, userKey(userID, skSession))
	if err != nil {
		return nil, err
	}

	var session zipcase.PortalSession
	if err := json.Unmarshal(doc, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if session.Expired(s.clock.Now()) {
		return nil, kvstore.ErrNotFound
	}
	return &session, nil
}

// SaveSession persists a session with the given absolute expiry. The
// record also carries a storage TTL so abandoned sessions eventually
// leave the table.
func (s *Store) SaveSession(ctx context.Context, userID, cookieJar string, expiresAt time.Time) error {
	doc, err := json.Marshal(zipcase.PortalSession{
		CookieJar: cookieJar,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	ttl := expiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return fmt.Errorf("session expiry %s is in the past", expiresAt)
	}
	if err := s.kv.PutWithTTL(ctx, userKey(userID, skSession), doc, ttl); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// DeleteSession drops the cached session.
func (s *Store) DeleteSession(ctx context.Context, userID string) error {
	return s.kv.Delete(ctx, userKey(userID, skSession))
}

type userAgentRecord struct {
	UserAgent string `json:"userAgent"`
}

type userAgentPool struct {
	UserAgents []string `json:"userAgents"`
}

// GetUserAgent returns the user's sticky agent, or "" when none has
// been assigned yet.
func (s *Store) GetUserAgent(ctx context.Context, userID string) (string, error) {
	doc, err := s.kv.Get(ctx, userKey(userID, skUserAgent))
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read user agent: %w", err)
	}

	var rec userAgentRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return "", fmt.Errorf("failed to decode user agent: %w", err)
	}
	return rec.UserAgent, nil
}

// SaveUserAgent pins the agent the user's sessions will present from
// now on. An empty agent is ignored.
func (s *Store) SaveUserAgent(ctx context.Context, userID, userAgent string) error {
	if userAgent == "" {
		return nil
	}

	doc, err := json.Marshal(userAgentRecord{UserAgent: userAgent})
	if err != nil {
		return fmt.Errorf("failed to encode user agent: %w", err)
	}
	if err := s.kv.Put(ctx, userKey(userID, skUserAgent), doc); err != nil {
		return fmt.Errorf("failed to store user agent: %w", err)
	}
	return nil
}

// EnsureUserAgent returns the sticky agent, assigning one from the
// pool on first use. Sessions keep presenting a stable agent because
// rotating it mid-session is a bot signal to the portal's WAF.
func (s *Store) EnsureUserAgent(ctx context.Context, userID string) (string, error) {
	agent, err := s.GetUserAgent(ctx, userID)
	if err != nil {
		return "", err
	}
	if agent != "" {
		return agent, nil
	}

	pool, err := s.userAgentPool(ctx)
	if err != nil {
		return "", err
	}
	// rand/v2's top-level generator is safe for concurrent use; the
	// session manager calls this from every worker goroutine.
	agent = pool[rand.IntN(len(pool))]

	if err := s.SaveUserAgent(ctx, userID, agent); err != nil {
		return "", err
	}
	logger.Debug("Assigned user agent", "user_id", userID)
	return agent, nil
}

// userAgentPool reads USERAGENTS/COLLECTION, falling back to the
// built-in list when the record is absent or empty.
func (s *Store) userAgentPool(ctx context.Context) ([]string, error) {
	doc, err := s.kv.Get(ctx, userAgentPoolKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return defaultUserAgents, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user agent pool: %w", err)
	}

	var pool userAgentPool
	if err := json.Unmarshal(doc, &pool); err != nil {
		return nil, fmt.Errorf("failed to decode user agent pool: %w", err)
	}
	if len(pool.UserAgents) == 0 {
		return defaultUserAgents, nil
	}
	return pool.UserAgents, nil
}

// SaveUserAgentPool replaces USERAGENTS/COLLECTION.
func (s *Store) SaveUserAgentPool(ctx context.Context, agents []string) error {
	doc, err := json.Marshal(userAgentPool{UserAgents: agents})
	if err != nil {
		return fmt.Errorf("failed to encode user agent pool: %w", err)
	}
	if err := s.kv.Put(ctx, userAgentPoolKey, doc); err != nil {
		return fmt.Errorf("failed to store user agent pool: %w", err)
	}
	return nil
}

// GetWebhookSettings returns the user's webhook registration, or
// kvstore.ErrNotFound.
func (s *Store) GetWebhookSettings(ctx context.Context, userID string) (*zipcase.WebhookSettings, error) {
	doc, err := s.kv.Get(ctx, userKey(userID, skWebhookSettings))
	if err != nil {
		return nil, err
	}

	var settings zipcase.WebhookSettings
	if err := json.Unmarshal(doc, &settings); err != nil {
		return nil, fmt.Errorf("failed to decode webhook settings: %w", err)
	}
	return &settings, nil
}

// SaveWebhookSettings persists the webhook registration.
func (s *Store) SaveWebhookSettings(ctx context.Context, userID string, settings zipcase.WebhookSettings) error {
	doc, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode webhook settings: %w", err)
	}
	if err := s.kv.Put(ctx, userKey(userID, skWebhookSettings), doc); err != nil {
		return fmt.Errorf("failed to store webhook settings: %w", err)
	}
	return nil
}
