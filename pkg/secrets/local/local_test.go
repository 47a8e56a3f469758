package local

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipcase/zipcase/pkg/secrets"
)

func newTestEncrypter(t *testing.T) *LocalEncrypter {
	t.Helper()
	enc, err := New(Config{Passphrase: "correct horse battery staple", Salt: "zipcase-test-salt"})
	require.NoError(t, err)
	return enc
}

func TestRoundTrip(t *testing.T) {
	enc := newTestEncrypter(t)
	ctx := context.Background()

	ciphertext, err := enc.Encrypt(ctx, []byte("hunter2"))
	require.NoError(t, err)
	assert.NotContains(t, string(ciphertext), "hunter2")

	plaintext, err := enc.Decrypt(ctx, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(plaintext))
}

func TestNonceVariesPerEncrypt(t *testing.T) {
	enc := newTestEncrypter(t)
	ctx := context.Background()

	a, err := enc.Encrypt(ctx, []byte("same input"))
	require.NoError(t, err)
	b, err := enc.Encrypt(ctx, []byte("same input"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestTamperedCiphertextFails(t *testing.T) {
	enc := newTestEncrypter(t)
	ctx := context.Background()

	ciphertext, err := enc.Encrypt(ctx, []byte("secret"))
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0xFF
	_, err = enc.Decrypt(ctx, ciphertext)
	assert.Error(t, err)
}

func TestWrongPassphraseFails(t *testing.T) {
	ctx := context.Background()

	enc := newTestEncrypter(t)
	ciphertext, err := enc.Encrypt(ctx, []byte("secret"))
	require.NoError(t, err)

	other, err := New(Config{Passphrase: "different passphrase", Salt: "zipcase-test-salt"})
	require.NoError(t, err)

	_, err = other.Decrypt(ctx, ciphertext)
	assert.Error(t, err)
}

func TestDecryptRejectsShortAndUnversioned(t *testing.T) {
	enc := newTestEncrypter(t)
	ctx := context.Background()

	_, err := enc.Decrypt(ctx, []byte{0x01, 0x02})
	assert.Error(t, err)

	ciphertext, err := enc.Encrypt(ctx, []byte("secret"))
	require.NoError(t, err)
	ciphertext[0] = 0x7F
	_, err = enc.Decrypt(ctx, ciphertext)
	assert.ErrorContains(t, err, "unsupported ciphertext version")
}

func TestConfigValidation(t *testing.T) {
	_, err := New(Config{Salt: "zipcase-test-salt"})
	assert.ErrorContains(t, err, "passphrase")

	_, err = New(Config{Passphrase: "p", Salt: "short"})
	assert.ErrorContains(t, err, "salt")
}

func TestStringHelpers(t *testing.T) {
	enc := newTestEncrypter(t)
	ctx := context.Background()

	wrapped, err := secrets.EncryptString(ctx, enc, "pa$$word")
	require.NoError(t, err)
	assert.NotContains(t, wrapped, "pa$$word")

	got, err := secrets.DecryptString(ctx, enc, wrapped)
	require.NoError(t, err)
	assert.Equal(t, "pa$$word", got)

	_, err = secrets.DecryptString(ctx, enc, "not base64 !!!")
	assert.Error(t, err)
}
