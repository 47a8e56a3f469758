// Package local implements the secrets contract with AES-256-GCM under
// a key derived from a passphrase via scrypt. Meant for development and
// single-node deployments where no KMS is reachable; the passphrase
// comes from configuration and the salt is stored alongside it, so this
// protects against casual inspection of the store, not against an
// attacker holding the config.
package local

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters. N=32768 keeps derivation under ~100ms while still
// costing an attacker real work.
const (
	scryptN     = 32768
	scryptR     = 8
	scryptP     = 1
	keyLen      = 32
	nonceLen    = 12
	minSaltLen  = 8
	versionByte = 0x01
	headerLen   = 1 // version
)

// Config holds local encrypter configuration.
type Config struct {
	// Passphrase is the secret the key is derived from. Required.
	Passphrase string `mapstructure:"passphrase"`

	// Salt feeds the KDF. Required, at least 8 bytes; changing it
	// invalidates all existing ciphertext.
	Salt string `mapstructure:"salt"`
}

// LocalEncrypter implements secrets.Encrypter with one derived key.
type LocalEncrypter struct {
	aead cipher.AEAD
}

// New derives the key and prepares the AEAD.
func New(cfg Config) (*LocalEncrypter, error) {
	if cfg.Passphrase == "" {
		return nil, fmt.Errorf("local encrypter requires passphrase to be set")
	}
	if len(cfg.Salt) < minSaltLen {
		return nil, fmt.Errorf("local encrypter requires a salt of at least %d bytes", minSaltLen)
	}

	key, err := scrypt.Key([]byte(cfg.Passphrase), []byte(cfg.Salt), scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCM: %w", err)
	}

	return &LocalEncrypter{aead: aead}, nil
}

// Encrypt seals plaintext as version || nonce || ciphertext.
func (e *LocalEncrypter) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, headerLen+nonceLen+len(plaintext)+e.aead.Overhead())
	out = append(out, versionByte)
	out = append(out, nonce...)
	return e.aead.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt.
func (e *LocalEncrypter) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(ciphertext) < headerLen+nonceLen+e.aead.Overhead() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	if ciphertext[0] != versionByte {
		return nil, fmt.Errorf("unsupported ciphertext version %d", ciphertext[0])
	}

	nonce := ciphertext[headerLen : headerLen+nonceLen]
	sealed := ciphertext[headerLen+nonceLen:]

	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
