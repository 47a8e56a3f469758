//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipcase/zipcase/pkg/apiclient"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

// pollAPI polls the status endpoint through the API client until the
// case reaches the wanted status, failing fast on a terminal failure.
func pollAPI(t *testing.T, client *apiclient.Client, caseNumber string, want zipcase.Status, timeout time.Duration) zipcase.SearchResult {
	t.Helper()

	deadline := time.Now().Add(timeout)
	var last zipcase.SearchResult
	for time.Now().Before(deadline) {
		results, err := client.Status([]string{caseNumber})
		require.NoError(t, err)
		if r, ok := results[caseNumber]; ok {
			last = r
			st := r.ZipCase.FetchStatus.Status
			if st == want {
				return r
			}
			if st == zipcase.StatusFailed && want != zipcase.StatusFailed {
				t.Fatalf("case %s failed: %s", caseNumber, r.ZipCase.FetchStatus.Message)
			}
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("case %s never reached %q over the API (last status %q)", caseNumber, want, last.ZipCase.FetchStatus.Status)
	return zipcase.SearchResult{}
}

// TestAPICaseSearchRoundTrip exercises the public search surface the way
// a client does: submit, poll, fetch, all over HTTP with a bearer token.
func TestAPICaseSearchRoundTrip(t *testing.T) {
	stack := newTestStack(t, "api-search", stackOptions{})

	const caseNumber = "22CR714844-590"
	stack.Portal.AddCase(caseNumber, "enc-api", caseDetail("STATE VERSUS ALEX SMITH", "Wake County District Court"))

	t.Run("RejectsAnonymousClients", func(t *testing.T) {
		anon := apiclient.New(stack.Server.URL)
		_, err := anon.Search(caseNumber, "")
		require.Error(t, err)

		var apiErr *apiclient.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.True(t, apiErr.IsAuthError())
	})

	t.Run("SubmitPollFetch", func(t *testing.T) {
		results, err := stack.Client.Search("found this on the citation: "+caseNumber, "")
		require.NoError(t, err)
		require.Contains(t, results, caseNumber)
		assert.Equal(t, zipcase.StatusQueued, results[caseNumber].ZipCase.FetchStatus.Status)

		final := pollAPI(t, stack.Client, caseNumber, zipcase.StatusComplete, caseWait)
		require.NotNil(t, final.CaseSummary)
		assert.Equal(t, "STATE VERSUS ALEX SMITH", final.CaseSummary.CaseName)

		status, err := stack.Client.GetCase(caseNumber)
		require.NoError(t, err)
		assert.False(t, status.Pending)
		require.NotNil(t, status.Result.CaseSummary)
		assert.Equal(t, "Wake County District Court", status.Result.CaseSummary.Court)
	})

	t.Run("UploadsReportUnconfigured", func(t *testing.T) {
		// This stack has no bucket; the endpoint must say so rather than 404.
		_, err := stack.Client.CreateUploadURL("notes.pdf", "application/pdf", 1024)
		require.Error(t, err)

		var apiErr *apiclient.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	})
}

// TestAPINameSearchRoundTrip submits a party-name search over HTTP and
// polls it to completion.
func TestAPINameSearchRoundTrip(t *testing.T) {
	stack := newTestStack(t, "api-namesearch", stackOptions{})

	hits := []partyHit{
		{CaseNumber: "23CR444444-444", CaseID: "enc-api-ns-1"},
		{CaseNumber: "23CR555555-555", CaseID: "enc-api-ns-2"},
	}
	stack.Portal.AddParty("Roe, Richard", hits...)
	for _, h := range hits {
		stack.Portal.AddCase(h.CaseNumber, h.CaseID, caseDetail("STATE VERSUS RICHARD ROE", "Wake County Superior Court"))
	}

	submitted, err := stack.Client.NameSearch(apiclient.NameSearchRequest{
		Name:        "Richard Roe",
		DateOfBirth: "1974-11-02",
		SoundsLike:  false,
	})
	require.NoError(t, err)
	require.NotEmpty(t, submitted.SearchID)

	deadline := time.Now().Add(caseWait)
	var result *apiclient.NameSearchResult
	for time.Now().Before(deadline) {
		result, err = stack.Client.GetNameSearch(submitted.SearchID)
		require.NoError(t, err)
		if result.Error != "" {
			t.Fatalf("name search failed: %s", result.Error)
		}
		if result.Success && allComplete(result.Results) {
			break
		}
		time.Sleep(250 * time.Millisecond)
	}

	require.NotNil(t, result)
	require.True(t, result.Success, "name search never completed")
	require.Len(t, result.Results, 2)
	for _, h := range hits {
		require.Contains(t, result.Results, h.CaseNumber)
		r := result.Results[h.CaseNumber]
		assert.Equal(t, zipcase.StatusComplete, r.ZipCase.FetchStatus.Status)
		require.NotNil(t, r.CaseSummary)
		assert.Equal(t, "Wake County Superior Court", r.CaseSummary.Court)
	}
}

// TestAPICredentialsAndWebhooks covers the account-surface endpoints:
// verified credential storage and the webhook registration round trip.
func TestAPICredentialsAndWebhooks(t *testing.T) {
	stack := newTestStack(t, "api-account", stackOptions{})

	t.Run("RejectedCredentialsAreNotSaved", func(t *testing.T) {
		_, err := stack.Client.SaveCredentials(portalUsername, "wrong-password")
		require.Error(t, err)

		var apiErr *apiclient.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.True(t, apiErr.IsAuthError())
	})

	t.Run("VerifiedCredentialsAreSaved", func(t *testing.T) {
		resp, err := stack.Client.SaveCredentials(portalUsername, portalPassword)
		require.NoError(t, err)
		assert.True(t, resp.Verified)
		assert.Equal(t, portalUsername, resp.Username)

		// Verification performed live logins; both attempts hit the IdP.
		assert.Equal(t, int32(2), stack.Portal.Logins())
	})

	t.Run("WebhookRegistrationRoundTrip", func(t *testing.T) {
		settings, err := stack.Client.GetWebhookSettings()
		require.NoError(t, err)
		assert.Empty(t, settings.WebhookURL, "fresh account must have no webhook")

		saved, err := stack.Client.SaveWebhookSettings(zipcase.WebhookSettings{
			WebhookURL:   "https://hooks.example.com/zipcase",
			SharedSecret: "s3cret",
		})
		require.NoError(t, err)
		assert.Equal(t, "https://hooks.example.com/zipcase", saved.WebhookURL)

		settings, err = stack.Client.GetWebhookSettings()
		require.NoError(t, err)
		assert.Equal(t, "https://hooks.example.com/zipcase", settings.WebhookURL)
		assert.Equal(t, "s3cret", settings.SharedSecret)

		_, err = stack.Client.SaveWebhookSettings(zipcase.WebhookSettings{})
		require.NoError(t, err)

		settings, err = stack.Client.GetWebhookSettings()
		require.NoError(t, err)
		assert.Empty(t, settings.WebhookURL)
		assert.Empty(t, settings.SharedSecret)
	})
}

// TestAPIUploadFlow mints a presigned URL over the API and pushes real
// bytes through it into the Localstack bucket.
func TestAPIUploadFlow(t *testing.T) {
	stack := newTestStack(t, "api-upload", stackOptions{uploads: true})
	helper := NewLocalstackHelper(t)
	content := []byte("ZipCase e2e upload body: " + strings.Repeat("x", 512))

	up, err := stack.Client.CreateUploadURL("court filing.pdf", "application/pdf", int64(len(content)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(up.Key, "uploads/"+stackUserID+"/"), "keys are scoped per user, got %s", up.Key)

	req, err := http.NewRequest(http.MethodPut, up.UploadURL, bytes.NewReader(content))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/pdf")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored := helper.GetObject(context.Background(), stack.Bucket, up.Key)
	assert.Equal(t, content, stored)

	t.Run("OversizeDeclarationsAreRejected", func(t *testing.T) {
		_, err := stack.Client.CreateUploadURL("huge.bin", "application/octet-stream", 11<<20)
		require.Error(t, err)

		var apiErr *apiclient.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	})
}

// TestAPIHealth checks both probes against the live stack.
func TestAPIHealth(t *testing.T) {
	stack := newTestStack(t, "api-health", stackOptions{})

	health, err := stack.Client.Health()
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "e2e", health.Version)

	ready, err := stack.Client.Ready()
	require.NoError(t, err)
	assert.Equal(t, "ok", ready.Status)
	assert.Equal(t, "ok", ready.Store, "readiness must prove a store round trip")
}
