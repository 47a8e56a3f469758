// Package uploads mints presigned S3 PUT URLs so clients push documents
// straight to the bucket without the file bytes transiting the API.
// Presigning is a local signature computation; no AWS call happens until
// the client uses the URL.
package uploads

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// DefaultExpiry is how long a presigned URL stays usable when the
// config does not say otherwise.
const DefaultExpiry = 15 * time.Minute

// Client is the subset of the S3 presign API the signer uses. Production
// code passes *s3.PresignClient; tests pass a fake.
type Client interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config holds upload signer configuration.
type Config struct {
	// Bucket is the S3 bucket uploads are presigned into. Required.
	Bucket string `mapstructure:"bucket"`

	// Region is the AWS region. Defaults to the SDK's resolution chain.
	Region string `mapstructure:"region"`

	// Endpoint overrides the S3 endpoint (localstack). Path-style
	// addressing is enabled alongside, since localstack does not route
	// virtual-host buckets.
	Endpoint string `mapstructure:"endpoint"`

	// AccessKeyID and SecretAccessKey provide static credentials,
	// used with localstack. Production deployments leave them empty and
	// rely on the default credential chain.
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	// Expiry is how long a presigned URL stays usable. Defaults to
	// DefaultExpiry.
	Expiry time.Duration `mapstructure:"expiry"`
}

// PresignedUpload is one minted upload slot.
type PresignedUpload struct {
	// URL accepts a single PUT of the object.
	URL string

	// Key is where the object will land in the bucket.
	Key string

	// ExpiresAt is when the URL stops working.
	ExpiresAt time.Time
}

// Signer mints presigned PUT URLs scoped to per-user key prefixes.
type Signer struct {
	client Client
	bucket string
	expiry time.Duration
	now    func() time.Time
}

// New creates a signer around an existing presign client.
func New(client Client, cfg Config) *Signer {
	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = DefaultExpiry
	}

	return &Signer{
		client: client,
		bucket: cfg.Bucket,
		expiry: expiry,
		now:    time.Now,
	}
}

// NewFromConfig loads AWS configuration and creates the signer.
func NewFromConfig(ctx context.Context, cfg Config) (*Signer, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("upload signer requires bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return New(s3.NewPresignClient(client), cfg), nil
}

// PresignPut mints an upload URL for one document.
//
// The object key is uploads/<userID>/<uuid>/<filename>, so users can
// never collide with or overwrite each other's documents and repeated
// uploads of the same filename stay distinct. The declared size is
// baked into the signature; a PUT with a different Content-Length is
// rejected by S3.
func (s *Signer) PresignPut(ctx context.Context, userID, filename, contentType string, size int64) (*PresignedUpload, error) {
	if userID == "" {
		return nil, fmt.Errorf("presign requires a user ID")
	}
	if filename == "" {
		return nil, fmt.Errorf("presign requires a filename")
	}

	key := fmt.Sprintf("uploads/%s/%s/%s", userID, uuid.NewString(), sanitizeFilename(filename))

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := s.client.PresignPutObject(ctx, input, func(o *s3.PresignOptions) {
		o.Expires = s.expiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	return &PresignedUpload{
		URL:       req.URL,
		Key:       key,
		ExpiresAt: s.now().Add(s.expiry),
	}, nil
}

// sanitizeFilename strips directories and replaces characters that make
// awkward S3 keys. The original name only matters for human readability
// of the key; the uuid segment carries uniqueness.
func sanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if base == "." || base == "/" || base == "" {
		return "upload"
	}

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
