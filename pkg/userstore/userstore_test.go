package userstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipcase/zipcase/pkg/kvstore"
	"github.com/zipcase/zipcase/pkg/kvstore/memory"
	"github.com/zipcase/zipcase/pkg/secrets/local"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

func newTestStore(t *testing.T) (*Store, *memory.MemoryStore, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	kv := memory.NewMemoryStoreWithClock(clock)
	enc, err := local.New(local.Config{Passphrase: "test passphrase", Salt: "userstore-test"})
	require.NoError(t, err)

	return New(kv, enc).WithClock(clock), kv, clock
}

func TestCredentialsRoundTrip(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCredentials(ctx, "user-1", "jane@example.com", "hunter2"))

	creds, err := store.GetCredentials(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", creds.Username)
	assert.Empty(t, creds.Password, "plain read must not expose the password")
	assert.False(t, creds.IsBad)

	sensitive, err := store.GetSensitiveCredentials(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", sensitive.Username)
	assert.Equal(t, "hunter2", sensitive.Password)
}

func TestCredentialsEncryptedAtRest(t *testing.T) {
	store, kv, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCredentials(ctx, "user-1", "jane@example.com", "hunter2"))

	raw, err := kv.Get(ctx, kvstore.Key{PK: "USER#user-1", SK: "PORTAL_CREDENTIALS"})
	require.NoError(t, err)

	assert.NotContains(t, string(raw), "jane@example.com")
	assert.NotContains(t, string(raw), "hunter2")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Contains(t, rec, "username")
	assert.Contains(t, rec, "password")
}

func TestNoCredentials(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetCredentials(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNoCredentials)

	_, err = store.GetSensitiveCredentials(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNoCredentials)

	err = store.MarkCredentialsBad(ctx, "nobody", true)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestMarkCredentialsBad(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCredentials(ctx, "user-1", "jane@example.com", "hunter2"))
	require.NoError(t, store.MarkCredentialsBad(ctx, "user-1", true))

	// Plain read still works and reports the flag.
	creds, err := store.GetCredentials(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, creds.IsBad)
	assert.Equal(t, "jane@example.com", creds.Username)

	// Sensitive read refuses.
	_, err = store.GetSensitiveCredentials(ctx, "user-1")
	assert.ErrorIs(t, err, ErrCredentialsMarkedBad)

	// Saving fresh credentials clears the flag.
	require.NoError(t, store.SaveCredentials(ctx, "user-1", "jane@example.com", "newpass"))
	sensitive, err := store.GetSensitiveCredentials(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "newpass", sensitive.Password)
}

func TestSaveCredentialsDropsCachedSession(t *testing.T) {
	store, _, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, "user-1", `{"cookies":[]}`, clock.Now().Add(23*time.Hour)))
	_, err := store.GetSession(ctx, "user-1")
	require.NoError(t, err)

	require.NoError(t, store.SaveCredentials(ctx, "user-1", "jane@example.com", "changed"))

	_, err = store.GetSession(ctx, "user-1")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestSessionExpiryEnforcedOnRead(t *testing.T) {
	store, _, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, "user-1", `{"cookies":[]}`, clock.Now().Add(time.Hour)))

	session, err := store.GetSession(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, `{"cookies":[]}`, session.CookieJar)

	clock.Advance(time.Hour)

	_, err = store.GetSession(ctx, "user-1")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestSaveSessionRejectsPastExpiry(t *testing.T) {
	store, _, clock := newTestStore(t)

	err := store.SaveSession(context.Background(), "user-1", `{}`, clock.Now().Add(-time.Minute))
	assert.Error(t, err)
}

func TestUserAgentStickiness(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	agent, err := store.GetUserAgent(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, agent)

	assigned, err := store.EnsureUserAgent(ctx, "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, assigned)

	// Every later call returns the same agent.
	for i := 0; i < 5; i++ {
		again, err := store.EnsureUserAgent(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, assigned, again)
	}
}

func TestEnsureUserAgentDrawsFromStoredPool(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveUserAgentPool(ctx, []string{"agent-under-test/1.0"}))

	agent, err := store.EnsureUserAgent(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-under-test/1.0", agent)
}

func TestEnsureUserAgentConcurrent(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	// Every worker goroutine resolves an agent through the session
	// manager; the draw must hold up under the race detector.
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				userID := fmt.Sprintf("user-%d-%d", g, i)
				agent, err := store.EnsureUserAgent(ctx, userID)
				assert.NoError(t, err)
				assert.NotEmpty(t, agent)
			}
		}(g)
	}
	wg.Wait()
}

func TestSaveUserAgentIgnoresEmpty(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveUserAgent(ctx, "user-1", ""))

	agent, err := store.GetUserAgent(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, agent)
}

func TestWebhookSettingsRoundTrip(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetWebhookSettings(ctx, "user-1")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)

	in := zipcase.WebhookSettings{
		WebhookURL:   "https://example.com/hook",
		SharedSecret: "s3cret",
	}
	require.NoError(t, store.SaveWebhookSettings(ctx, "user-1", in))

	got, err := store.GetWebhookSettings(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, in, *got)
}
