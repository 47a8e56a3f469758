package uploads

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient implements Client with overridable behavior per test.
type fakeClient struct {
	presign func(*s3.PutObjectInput) (*v4.PresignedHTTPRequest, error)
}

func (f *fakeClient) PresignPutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return f.presign(params)
}

func newTestSigner() (*Signer, *fakeClient) {
	client := &fakeClient{
		presign: func(in *s3.PutObjectInput) (*v4.PresignedHTTPRequest, error) {
			return &v4.PresignedHTTPRequest{
				URL:    "https://zipcase-uploads.s3.amazonaws.com/" + *in.Key + "?signature=abc",
				Method: "PUT",
			}, nil
		},
	}
	return New(client, Config{Bucket: "zipcase-uploads"}), client
}

func TestPresignPut(t *testing.T) {
	signer, client := newTestSigner()

	var gotInput *s3.PutObjectInput
	client.presign = func(in *s3.PutObjectInput) (*v4.PresignedHTTPRequest, error) {
		gotInput = in
		return &v4.PresignedHTTPRequest{URL: "https://example.com/put", Method: "PUT"}, nil
	}

	presigned, err := signer.PresignPut(context.Background(), "user-1", "citation.pdf", "application/pdf", 1024)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/put", presigned.URL)
	assert.Equal(t, presigned.Key, *gotInput.Key)
	assert.Equal(t, "zipcase-uploads", *gotInput.Bucket)
	assert.Equal(t, int64(1024), *gotInput.ContentLength)
	assert.Equal(t, "application/pdf", *gotInput.ContentType)
}

func TestPresignPut_KeyShape(t *testing.T) {
	signer, _ := newTestSigner()

	presigned, err := signer.PresignPut(context.Background(), "user-1", "citation.pdf", "", 1024)
	require.NoError(t, err)

	parts := strings.Split(presigned.Key, "/")
	require.Len(t, parts, 4)
	assert.Equal(t, "uploads", parts[0])
	assert.Equal(t, "user-1", parts[1])
	assert.NotEmpty(t, parts[2])
	assert.Equal(t, "citation.pdf", parts[3])
}

func TestPresignPut_KeysAreUnique(t *testing.T) {
	signer, _ := newTestSigner()

	first, err := signer.PresignPut(context.Background(), "user-1", "citation.pdf", "", 1024)
	require.NoError(t, err)
	second, err := signer.PresignPut(context.Background(), "user-1", "citation.pdf", "", 1024)
	require.NoError(t, err)

	assert.NotEqual(t, first.Key, second.Key)
}

func TestPresignPut_OmitsEmptyContentType(t *testing.T) {
	signer, client := newTestSigner()

	var gotInput *s3.PutObjectInput
	client.presign = func(in *s3.PutObjectInput) (*v4.PresignedHTTPRequest, error) {
		gotInput = in
		return &v4.PresignedHTTPRequest{URL: "https://example.com/put"}, nil
	}

	_, err := signer.PresignPut(context.Background(), "user-1", "citation.pdf", "", 1024)
	require.NoError(t, err)
	assert.Nil(t, gotInput.ContentType)
}

func TestPresignPut_ExpiresAt(t *testing.T) {
	signer, _ := newTestSigner()
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return now }

	presigned, err := signer.PresignPut(context.Background(), "user-1", "citation.pdf", "", 1024)
	require.NoError(t, err)

	assert.Equal(t, now.Add(DefaultExpiry), presigned.ExpiresAt)
}

func TestPresignPut_RequiresUserID(t *testing.T) {
	signer, _ := newTestSigner()

	_, err := signer.PresignPut(context.Background(), "", "citation.pdf", "", 1024)
	assert.Error(t, err)
}

func TestPresignPut_RequiresFilename(t *testing.T) {
	signer, _ := newTestSigner()

	_, err := signer.PresignPut(context.Background(), "user-1", "", "", 1024)
	assert.Error(t, err)
}

func TestPresignPut_ClientError(t *testing.T) {
	signer, client := newTestSigner()
	client.presign = func(*s3.PutObjectInput) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("no such bucket")
	}

	_, err := signer.PresignPut(context.Background(), "user-1", "citation.pdf", "", 1024)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to presign upload")
}

func TestNewFromConfig_RequiresBucket(t *testing.T) {
	_, err := NewFromConfig(context.Background(), Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "citation.pdf", "citation.pdf"},
		{"strips directories", "../../etc/passwd", "passwd"},
		{"strips windows directories", `C:\Users\me\scan.pdf`, "scan.pdf"},
		{"replaces spaces", "my citation.pdf", "my_citation.pdf"},
		{"replaces unicode", "citación.pdf", "citaci_n.pdf"},
		{"empty becomes placeholder", "", "upload"},
		{"dot becomes placeholder", ".", "upload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeFilename(tt.in))
		})
	}
}
