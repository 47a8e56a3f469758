//go:build e2e

package e2e

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamotypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	localstackRegion    = "us-east-1"
	localstackAccessKey = "test"
	localstackSecretKey = "test"
)

// LocalstackHelper manages the Localstack container backing the E2E
// suite and holds clients for every AWS service the stack uses.
type LocalstackHelper struct {
	T         *testing.T
	Container testcontainers.Container
	Endpoint  string

	Dynamo *dynamodb.Client
	SQS    *sqs.Client
	KMS    *kms.Client
	S3     *s3.Client

	Buckets []string
}

// Shared Localstack container for E2E tests (started once per test run)
var sharedLocalstackHelper *LocalstackHelper

// NewLocalstackHelper returns the shared Localstack helper, starting a
// container on first use. Set LOCALSTACK_ENDPOINT to target an external
// instance instead.
func NewLocalstackHelper(t *testing.T) *LocalstackHelper {
	t.Helper()

	// Reuse shared container if available
	if sharedLocalstackHelper != nil {
		sharedLocalstackHelper.T = t
		return sharedLocalstackHelper
	}

	ctx := context.Background()

	// Check if external Localstack is configured via environment
	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		helper := &LocalstackHelper{
			T:        t,
			Endpoint: endpoint,
			Buckets:  make([]string, 0),
		}
		helper.createClients()
		sharedLocalstackHelper = helper
		return helper
	}

	// Start Localstack container using testcontainers
	req := testcontainers.ContainerRequest{
		Image:        "localstack/localstack:3.0",
		ExposedPorts: []string{"4566/tcp"},
		Env: map[string]string{
			"SERVICES":              "dynamodb,sqs,kms,s3",
			"DEFAULT_REGION":        localstackRegion,
			"EAGER_SERVICE_LOADING": "1",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4566/tcp"),
			wait.ForHTTP("/_localstack/health").
				WithPort("4566/tcp").
				WithStartupTimeout(60*time.Second),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start localstack container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "4566")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get container port: %v", err)
	}

	helper := &LocalstackHelper{
		T:         t,
		Container: container,
		Endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
		Buckets:   make([]string, 0),
	}
	helper.createClients()

	// Store as shared helper for reuse
	sharedLocalstackHelper = helper

	// NOTE: We do NOT register t.Cleanup() here because:
	// 1. When called from a subtest, cleanup runs after that subtest, not the parent
	// 2. This would terminate the container before other tests can use it
	// 3. The Ryuk container (testcontainers garbage collector) will clean up
	//    containers automatically when the test process exits

	return helper
}

// createClients builds one client per service, all aimed at Localstack.
func (lh *LocalstackHelper) createClients() {
	lh.T.Helper()

	ctx := context.Background()

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion(localstackRegion),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			localstackAccessKey,
			localstackSecretKey,
			"", // SessionToken
		)),
	)
	if err != nil {
		lh.T.Fatalf("Failed to load AWS config: %v", err)
	}

	lh.Dynamo = dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = &lh.Endpoint
	})
	lh.SQS = sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		o.BaseEndpoint = &lh.Endpoint
	})
	lh.KMS = kms.NewFromConfig(cfg, func(o *kms.Options) {
		o.BaseEndpoint = &lh.Endpoint
	})
	// Path-style URLs are required for Localstack S3
	lh.S3 = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = &lh.Endpoint
		o.UsePathStyle = true
	})
}

// CreateCaseTable creates the case-state table with the composite
// PK/SK key schema and expiry enabled on the ttl attribute. An existing
// table with the same name is reused, which keeps reruns against an
// external Localstack working.
func (lh *LocalstackHelper) CreateCaseTable(ctx context.Context, tableName string) {
	lh.T.Helper()

	_, err := lh.Dynamo.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		AttributeDefinitions: []dynamotypes.AttributeDefinition{
			{AttributeName: aws.String("PK"), AttributeType: dynamotypes.ScalarAttributeTypeS},
			{AttributeName: aws.String("SK"), AttributeType: dynamotypes.ScalarAttributeTypeS},
		},
		KeySchema: []dynamotypes.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: dynamotypes.KeyTypeHash},
			{AttributeName: aws.String("SK"), KeyType: dynamotypes.KeyTypeRange},
		},
		BillingMode: dynamotypes.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *dynamotypes.ResourceInUseException
		if !errors.As(err, &inUse) {
			lh.T.Fatalf("Failed to create table %s: %v", tableName, err)
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(lh.Dynamo)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	}, 30*time.Second); err != nil {
		lh.T.Fatalf("Table %s never became active: %v", tableName, err)
	}

	// Reruns against an external Localstack hit "TTL already enabled",
	// which is fine; tests never depend on server-side reaping anyway.
	_, err = lh.Dynamo.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &dynamotypes.TimeToLiveSpecification{
			AttributeName: aws.String("ttl"),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		lh.T.Logf("UpdateTimeToLive on %s: %v (continuing)", tableName, err)
	}
}

// CreateFifoQueue creates a FIFO queue and returns its URL. The .fifo
// suffix is appended to the name. CreateQueue is idempotent for
// identical attributes, so reruns reuse the queue.
func (lh *LocalstackHelper) CreateFifoQueue(ctx context.Context, name string) string {
	lh.T.Helper()

	out, err := lh.SQS.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(name + ".fifo"),
		Attributes: map[string]string{
			string(sqstypes.QueueAttributeNameFifoQueue): "true",
			// Short visibility timeout so redelivery paths are testable
			// within the suite's polling deadlines.
			string(sqstypes.QueueAttributeNameVisibilityTimeout): "15",
		},
	})
	if err != nil {
		lh.T.Fatalf("Failed to create queue %s: %v", name, err)
	}
	return aws.ToString(out.QueueUrl)
}

// CreateKey mints a fresh symmetric KMS key and returns its ID.
func (lh *LocalstackHelper) CreateKey(ctx context.Context) string {
	lh.T.Helper()

	out, err := lh.KMS.CreateKey(ctx, &kms.CreateKeyInput{
		Description: aws.String("zipcase e2e credential key"),
	})
	if err != nil {
		lh.T.Fatalf("Failed to create KMS key: %v", err)
	}
	return aws.ToString(out.KeyMetadata.KeyId)
}

// CreateBucket creates an S3 bucket and registers it for cleanup. A
// bucket that already exists (rerun against an external Localstack) is
// emptied and reused.
func (lh *LocalstackHelper) CreateBucket(ctx context.Context, bucketName string) {
	lh.T.Helper()

	_, err := lh.S3.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		if !errors.As(err, &owned) {
			lh.T.Fatalf("Failed to create bucket %s: %v", bucketName, err)
		}
		lh.emptyBucket(ctx, bucketName)
	}

	lh.Buckets = append(lh.Buckets, bucketName)
}

// GetObject reads an object back, for asserting on uploaded content.
func (lh *LocalstackHelper) GetObject(ctx context.Context, bucket, key string) []byte {
	lh.T.Helper()

	out, err := lh.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		lh.T.Fatalf("Failed to get object %s/%s: %v", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		lh.T.Fatalf("Failed to read object %s/%s: %v", bucket, key, err)
	}
	return data
}

// emptyBucket deletes every object in a bucket.
func (lh *LocalstackHelper) emptyBucket(ctx context.Context, bucketName string) {
	listResp, err := lh.S3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucketName),
	})
	if err != nil || listResp == nil {
		return
	}
	for _, obj := range listResp.Contents {
		_, _ = lh.S3.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucketName),
			Key:    obj.Key,
		})
	}
}

// Cleanup removes all created buckets and their contents.
func (lh *LocalstackHelper) Cleanup() {
	ctx := context.Background()

	for _, bucketName := range lh.Buckets {
		lh.emptyBucket(ctx, bucketName)
		_, _ = lh.S3.DeleteBucket(ctx, &s3.DeleteBucketInput{
			Bucket: aws.String(bucketName),
		})
	}
	lh.Buckets = lh.Buckets[:0]
}
