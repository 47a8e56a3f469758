package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-must-be-32-chars!"

func TestNewTokenService_ValidSecret(t *testing.T) {
	service, err := NewTokenService(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if service == nil {
		t.Fatal("Expected service to be non-nil")
	}
}

func TestNewTokenService_EmptySecret(t *testing.T) {
	_, err := NewTokenService("", time.Hour)
	if !errors.Is(err, ErrInvalidSecretLength) {
		t.Fatalf("Expected ErrInvalidSecretLength, got: %v", err)
	}
}

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short", time.Hour)
	if !errors.Is(err, ErrInvalidSecretLength) {
		t.Fatalf("Expected ErrInvalidSecretLength, got: %v", err)
	}
}

func TestIssueAndVerify(t *testing.T) {
	service, err := NewTokenService(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	token, err := service.Issue("user-123")
	if err != nil {
		t.Fatalf("Expected no error issuing token, got: %v", err)
	}
	if token == "" {
		t.Fatal("Expected non-empty token")
	}

	userID, err := service.Verify(token)
	if err != nil {
		t.Fatalf("Expected token to verify, got: %v", err)
	}
	if userID != "user-123" {
		t.Errorf("Expected user ID %q, got %q", "user-123", userID)
	}
}

func TestIssue_EmptyUserID(t *testing.T) {
	service, _ := NewTokenService(testSecret, time.Hour)

	_, err := service.Issue("")
	if err == nil {
		t.Fatal("Expected error for empty user ID")
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	service, _ := NewTokenService(testSecret, time.Hour)
	service.duration = -time.Minute

	token, err := service.Issue("user-123")
	if err != nil {
		t.Fatalf("Expected no error issuing token, got: %v", err)
	}

	_, err = service.Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("Expected ErrExpiredToken, got: %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	service, _ := NewTokenService(testSecret, time.Hour)
	other, _ := NewTokenService("another-secret-that-is-32-chars!!", time.Hour)

	token, err := other.Issue("user-123")
	if err != nil {
		t.Fatalf("Expected no error issuing token, got: %v", err)
	}

	_, err = service.Verify(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Expected ErrInvalidToken, got: %v", err)
	}
}

func TestVerify_Garbage(t *testing.T) {
	service, _ := NewTokenService(testSecret, time.Hour)

	_, err := service.Verify("not-a-token")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Expected ErrInvalidToken, got: %v", err)
	}
}

func TestVerify_MissingSubject(t *testing.T) {
	service, _ := NewTokenService(testSecret, time.Hour)

	// Issue refuses empty user IDs, so hand-build a token without a
	// subject claim to exercise the check in Verify.
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "zipcase",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("Expected no error signing token, got: %v", err)
	}

	_, err = service.Verify(signed)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Expected ErrInvalidToken, got: %v", err)
	}
}

func TestVerify_RejectsUnsignedToken(t *testing.T) {
	service, _ := NewTokenService(testSecret, time.Hour)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-123",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("Expected no error signing token, got: %v", err)
	}

	_, err = service.Verify(signed)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Expected ErrInvalidToken for alg=none, got: %v", err)
	}
}
