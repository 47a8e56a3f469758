// Package secrets defines the envelope encrypter used for credential
// fields at rest. Portal usernames and passwords never reach a store
// unencrypted; the ciphertext is the only form persisted.
//
// Two backends exist: kms (production, AWS KMS) and local (dev and
// single-node, AES-256-GCM with an scrypt-derived key).
package secrets

import (
	"context"
	"encoding/base64"
	"fmt"
)

// Encrypter encrypts and decrypts small secret values. Implementations
// must be safe for concurrent use.
type Encrypter interface {
	// Encrypt returns the ciphertext for plaintext.
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)

	// Decrypt reverses Encrypt. Ciphertext produced under a different
	// key or tampered with is an error.
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// EncryptString encrypts s and wraps the ciphertext in base64 so it can
// live inside a JSON document.
func EncryptString(ctx context.Context, enc Encrypter, s string) (string, error) {
	ciphertext, err := enc.Encrypt(ctx, []byte(s))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptString reverses EncryptString.
func DecryptString(ctx context.Context, enc Encrypter, s string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	plaintext, err := enc.Decrypt(ctx, ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
