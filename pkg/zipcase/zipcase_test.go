package zipcase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCaseCheckInvariants(t *testing.T) {
	tests := []struct {
		name    string
		c       Case
		wantErr bool
	}{
		{
			name: "queued without case id",
			c:    Case{CaseNumber: "22CR714844-590", FetchStatus: Queued()},
		},
		{
			name: "found with case id",
			c:    Case{CaseNumber: "22CR714844-590", CaseID: "abc123", FetchStatus: Found()},
		},
		{
			name:    "found without case id",
			c:       Case{CaseNumber: "22CR714844-590", FetchStatus: Found()},
			wantErr: true,
		},
		{
			name:    "complete without case id",
			c:       Case{CaseNumber: "22CR714844-590", FetchStatus: Complete()},
			wantErr: true,
		},
		{
			name:    "reprocessing without case id",
			c:       Case{CaseNumber: "22CR714844-590", FetchStatus: Reprocessing(1)},
			wantErr: true,
		},
		{
			name: "failed keeps its message",
			c:    Case{CaseNumber: "22CR714844-590", FetchStatus: Failed("portal unreachable")},
		},
		{
			name:    "unknown status",
			c:       Case{CaseNumber: "22CR714844-590", FetchStatus: FetchStatus{Status: "exploded"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.CheckInvariants()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPortalSessionExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	live := &PortalSession{CookieJar: "{}", ExpiresAt: now.Add(time.Hour)}
	assert.False(t, live.Expired(now))

	stale := &PortalSession{CookieJar: "{}", ExpiresAt: now.Add(-time.Minute)}
	assert.True(t, stale.Expired(now))

	boundary := &PortalSession{CookieJar: "{}", ExpiresAt: now}
	assert.True(t, boundary.Expired(now))

	var missing *PortalSession
	assert.True(t, missing.Expired(now))

	empty := &PortalSession{ExpiresAt: now.Add(time.Hour)}
	assert.True(t, empty.Expired(now))
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"first last", "John Doe", "Doe, John"},
		{"first middle last", "John Quincy Doe", "Doe, John Quincy"},
		{"already comma separated", "Doe, John", "Doe, John"},
		{"extra whitespace", "  John   Doe  ", "Doe, John"},
		{"single token", "Doe", "Doe"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.input))
		})
	}
}
