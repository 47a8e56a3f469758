//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/zipcase/zipcase/pkg/api"
	"github.com/zipcase/zipcase/pkg/api/auth"
	"github.com/zipcase/zipcase/pkg/apiclient"
	"github.com/zipcase/zipcase/pkg/casestore"
	"github.com/zipcase/zipcase/pkg/config"
	"github.com/zipcase/zipcase/pkg/kvstore"
	"github.com/zipcase/zipcase/pkg/pipeline"
	"github.com/zipcase/zipcase/pkg/portal"
	"github.com/zipcase/zipcase/pkg/portal/waf"
	"github.com/zipcase/zipcase/pkg/uploads"
	"github.com/zipcase/zipcase/pkg/userstore"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

const (
	stackUserID    = "user-e2e"
	stackJWTSecret = "e2e-test-secret-0123456789abcdef"
)

// testStack is one fully wired service instance: DynamoDB case-state
// store, SQS FIFO stage queues, KMS credential encrypter (all on the
// shared Localstack), the session manager and case client against a
// fake portal, both pipeline workers, and the HTTP API served over
// httptest with a real bearer token.
//
// Components are built through the same config factories the daemon
// uses, so the E2E suite exercises production wiring, not test doubles.
type testStack struct {
	Portal   *courtPortal
	Store    kvstore.Store
	Cases    *casestore.Store
	Users    *userstore.Store
	Sessions *portal.SessionManager
	Pipeline *pipeline.Coordinator
	Server   *httptest.Server
	Client   *apiclient.Client

	// Bucket is set when the stack was built with uploads enabled.
	Bucket string
}

// stackOptions tunes optional stack features per test.
type stackOptions struct {
	// solver wires a bot-challenge solver into the session manager.
	solver waf.Solver

	// uploads provisions a bucket and enables the presign endpoint.
	uploads bool
}

// newTestStack provisions Localstack resources under the given name,
// wires the full service and returns it ready to serve. Resource names
// carry a random suffix so concurrent tests and reruns never collide.
func newTestStack(t *testing.T, name string, opts stackOptions) *testStack {
	t.Helper()

	helper := NewLocalstackHelper(t)
	p := newCourtPortal(t)
	ctx := context.Background()

	suffix := strings.ToLower(uuid.NewString()[:8])
	table := fmt.Sprintf("zipcase-%s-%s", name, suffix)
	helper.CreateCaseTable(ctx, table)
	searchURL := helper.CreateFifoQueue(ctx, fmt.Sprintf("zipcase-%s-search-%s", name, suffix))
	dataURL := helper.CreateFifoQueue(ctx, fmt.Sprintf("zipcase-%s-data-%s", name, suffix))
	keyID := helper.CreateKey(ctx)

	store, err := config.CreateStore(ctx, config.StoreConfig{
		Type: "dynamo",
		Dynamo: config.DynamoConfig{
			TableName:       table,
			Region:          localstackRegion,
			Endpoint:        helper.Endpoint,
			AccessKeyID:     localstackAccessKey,
			SecretAccessKey: localstackSecretKey,
		},
	}, nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	searchQ, dataQ, err := config.CreateQueues(ctx, config.QueuesConfig{
		Type:            "sqs",
		SearchURL:       searchURL,
		DataURL:         dataURL,
		Region:          localstackRegion,
		Endpoint:        helper.Endpoint,
		AccessKeyID:     localstackAccessKey,
		SecretAccessKey: localstackSecretKey,
	}, nil)
	if err != nil {
		t.Fatalf("failed to create queues: %v", err)
	}

	encrypter, err := config.CreateEncrypter(ctx, config.SecretsConfig{
		Provider: "kms",
		KMS: config.KMSConfig{
			KeyID:           keyID,
			Region:          localstackRegion,
			Endpoint:        helper.Endpoint,
			AccessKeyID:     localstackAccessKey,
			SecretAccessKey: localstackSecretKey,
		},
	})
	if err != nil {
		t.Fatalf("failed to create encrypter: %v", err)
	}

	cases := casestore.New(store)
	users := userstore.New(store, encrypter)

	portalCfg := portal.Config{BaseURL: p.URL(), CaseURL: p.CaseURL()}
	sessions := portal.NewSessionManager(portalCfg, users, opts.solver)
	portalClient := portal.NewClient(portalCfg)

	var pipeCfg pipeline.Config
	coordinator := pipeline.NewCoordinator(pipeCfg, cases, sessions, searchQ, dataQ)
	recovery := pipeline.NewRecovery(pipeCfg, cases, dataQ)
	cases.SetRecoveryHook(recovery)

	searchWorker := pipeline.NewSearchWorker(pipeCfg, cases, users, sessions, portalClient, dataQ)
	dataWorker := pipeline.NewDataWorker(pipeCfg, cases, users, sessions, portalClient, dataQ)

	// Short poll windows keep shutdown fast; long polling still returns
	// the moment a message lands.
	searchRunner := pipeline.NewRunner("search", searchQ, searchWorker, pipeline.RunnerOptions{
		Concurrency: 2,
		PollWait:    2 * time.Second,
	})
	dataRunner := pipeline.NewRunner("data", dataQ, dataWorker, pipeline.RunnerOptions{
		Concurrency: 2,
		PollWait:    2 * time.Second,
	})
	searchRunner.Start(ctx)
	dataRunner.Start(ctx)

	tokens, err := auth.NewTokenService(stackJWTSecret, 0)
	if err != nil {
		t.Fatalf("failed to create token service: %v", err)
	}

	deps := api.Deps{
		Auth:          tokens,
		Pipeline:      coordinator,
		Users:         users,
		Sessions:      sessions,
		UploadMaxSize: 10 << 20,
		Store:         store,
		Version:       "e2e",
	}

	stack := &testStack{
		Portal:   p,
		Store:    store,
		Cases:    cases,
		Users:    users,
		Sessions: sessions,
		Pipeline: coordinator,
	}

	if opts.uploads {
		stack.Bucket = fmt.Sprintf("zipcase-%s-uploads-%s", name, suffix)
		helper.CreateBucket(ctx, stack.Bucket)

		signer, err := uploads.NewFromConfig(ctx, uploads.Config{
			Bucket:          stack.Bucket,
			Region:          localstackRegion,
			Endpoint:        helper.Endpoint,
			AccessKeyID:     localstackAccessKey,
			SecretAccessKey: localstackSecretKey,
		})
		if err != nil {
			t.Fatalf("failed to create upload signer: %v", err)
		}
		deps.Uploads = signer
	}

	stack.Server = httptest.NewServer(api.NewRouter(api.Config{}, deps))

	token, err := tokens.Issue(stackUserID)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	stack.Client = apiclient.New(stack.Server.URL).WithToken(token)

	if err := users.SaveCredentials(ctx, stackUserID, portalUsername, portalPassword); err != nil {
		t.Fatalf("failed to seed portal credentials: %v", err)
	}

	t.Cleanup(func() {
		searchRunner.Stop(10 * time.Second)
		dataRunner.Stop(10 * time.Second)
		stack.Server.Close()
		_ = store.Close()
	})

	return stack
}

// waitForStatus polls the pipeline until the case reaches the wanted
// status and returns its state. A terminal failure that is not the
// wanted status fails the test immediately instead of waiting out the
// deadline.
func (s *testStack) waitForStatus(t *testing.T, caseNumber string, want zipcase.Status, timeout time.Duration) zipcase.SearchResult {
	t.Helper()

	deadline := time.Now().Add(timeout)
	var last zipcase.SearchResult
	for time.Now().Before(deadline) {
		results, err := s.Pipeline.Status(context.Background(), stackUserID, []string{caseNumber})
		if err != nil {
			t.Fatalf("status poll for %s failed: %v", caseNumber, err)
		}
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
	t.Fatalf("case %s never reached %q (last status %q)", caseNumber, want, last.ZipCase.FetchStatus.Status)
	return zipcase.SearchResult{}
}
