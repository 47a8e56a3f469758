package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/zipcase/zipcase/pkg/casestore"
	"github.com/zipcase/zipcase/pkg/kvstore"
	kvmemory "github.com/zipcase/zipcase/pkg/kvstore/memory"
	"github.com/zipcase/zipcase/pkg/portal"
	"github.com/zipcase/zipcase/pkg/queue"
	qmemory "github.com/zipcase/zipcase/pkg/queue/memory"
	"github.com/zipcase/zipcase/pkg/secrets/local"
	"github.com/zipcase/zipcase/pkg/userstore"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

// pipelineEnv wires a full in-memory pipeline: stores, queues, a fake
// portal and a fake session provider, all on one fake clock.
type pipelineEnv struct {
	clock    *clockwork.FakeClock
	kv       *kvmemory.MemoryStore
	cases    *casestore.Store
	users    *userstore.Store
	sessions *fakeSessions
	portal   *fakePortal
	searchQ  *qmemory.MemoryQueue
	dataQ    *qmemory.MemoryQueue
}

func newPipelineEnv(t *testing.T) *pipelineEnv {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	kv := kvmemory.NewMemoryStoreWithClock(clock)
	t.Cleanup(func() { _ = kv.Close() })

	enc, err := local.New(local.Config{Passphrase: "test passphrase", Salt: "pipeline-test"})
	require.NoError(t, err)

	jar, err := portal.NewJar().Serialize()
	require.NoError(t, err)

	return &pipelineEnv{
		clock:    clock,
		kv:       kv,
		cases:    casestore.New(kv).WithClock(clock),
		users:    userstore.New(kv, enc).WithClock(clock),
		sessions: &fakeSessions{jar: jar},
		portal:   newFakePortal(),
		searchQ:  qmemory.NewMemoryQueueWithClock(clock),
		dataQ:    qmemory.NewMemoryQueueWithClock(clock),
	}
}

func (e *pipelineEnv) coordinator() *Coordinator {
	return NewCoordinator(Config{}, e.cases, e.sessions, e.searchQ, e.dataQ).WithClock(e.clock)
}

func (e *pipelineEnv) searchWorker() *SearchWorker {
	return NewSearchWorker(Config{}, e.cases, e.users, e.sessions, e.portal, e.dataQ).WithClock(e.clock)
}

func (e *pipelineEnv) dataWorker() *DataWorker {
	return NewDataWorker(Config{}, e.cases, e.users, e.sessions, e.portal, e.dataQ).WithClock(e.clock)
}

func (e *pipelineEnv) recovery() *Recovery {
	return NewRecovery(Config{}, e.cases, e.dataQ).WithClock(e.clock)
}

// seedRawCase writes a case record directly to the backing store,
// bypassing SaveCase's invariant checks, the way broken historical data
// would have gotten there.
func (e *pipelineEnv) seedRawCase(t *testing.T, c zipcase.Case) {
	t.Helper()

	c.CaseNumber = zipcase.NormalizeCaseNumber(c.CaseNumber)
	if c.LastUpdated.IsZero() {
		c.LastUpdated = e.clock.Now().UTC()
	}
	doc, err := json.Marshal(c)
	require.NoError(t, err)
	key := kvstore.Key{PK: "CASE#" + c.CaseNumber, SK: "ID"}
	require.NoError(t, e.kv.Put(context.Background(), key, doc))
}

// seedRawSummary writes a summary row directly, valid or not.
func (e *pipelineEnv) seedRawSummary(t *testing.T, caseNumber string, summary *zipcase.CaseSummary) {
	t.Helper()

	doc, err := json.Marshal(summary)
	require.NoError(t, err)
	key := kvstore.Key{PK: "CASE#" + zipcase.NormalizeCaseNumber(caseNumber), SK: "SUMMARY"}
	require.NoError(t, e.kv.Put(context.Background(), key, doc))
}

// drain receives and settles everything currently in a queue.
func drain(t *testing.T, q *qmemory.MemoryQueue) []queue.ReceivedMessage {
	t.Helper()

	ctx := context.Background()
	var out []queue.ReceivedMessage
	for {
		msgs, err := q.Receive(ctx, queue.MaxBatchSize, 0)
		if errors.Is(err, queue.ErrNoMessages) {
			return out
		}
		require.NoError(t, err)
		for _, m := range msgs {
			require.NoError(t, q.Delete(ctx, m.ReceiptHandle))
			out = append(out, m)
		}
	}
}

// received wraps an encoded queue message the way a consumer would see
// it delivered.
func received(t *testing.T, qm queue.Message, err error) queue.ReceivedMessage {
	t.Helper()
	require.NoError(t, err)
	return queue.ReceivedMessage{
		ID:            "msg-1",
		Body:          qm.Body,
		GroupID:       qm.GroupID,
		ReceiptHandle: "receipt-1",
	}
}

func validSummary() *zipcase.CaseSummary {
	return &zipcase.CaseSummary{
		CaseName: "State v. Smith",
		Court:    "Wake County District Court",
		Charges: []zipcase.Charge{
			{
				Description:  "Speeding",
				Statute:      "20-141(B)",
				Dispositions: []zipcase.Disposition{},
			},
		},
		ArrestOrCitationDate: "2024-01-15",
		ArrestOrCitationType: "Citation",
	}
}

func corruptSummary() *zipcase.CaseSummary {
	return &zipcase.CaseSummary{CaseName: "State v. Smith"} // no court, no charges
}

// fakeSessions implements SessionProvider with a canned jar.
type fakeSessions struct {
	mu    sync.Mutex
	jar   string
	err   error
	calls int
}

func (f *fakeSessions) GetOrCreate(ctx context.Context, userID string) (*zipcase.PortalSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &zipcase.PortalSession{CookieJar: f.jar, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeSessions) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakePortal implements PortalClient from canned data.
type fakePortal struct {
	mu sync.Mutex

	// caseIDs maps canonical case number to portal case ID; misses
	// return the portal's definitive not-found outcome.
	caseIDs map[string]string
	caseErr error

	hits    []portal.NameSearchHit
	nameErr error

	// summaries maps portal case ID to the summary the portal returns.
	summaries  map[string]*zipcase.CaseSummary
	summaryErr error

	searches       []string
	summaryFetches []string
}

func newFakePortal() *fakePortal {
	return &fakePortal{
		caseIDs:   make(map[string]string),
		summaries: make(map[string]*zipcase.CaseSummary),
	}
}

func (f *fakePortal) FetchCaseID(ctx context.Context, jar *portal.Jar, userAgent, caseNumber string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, caseNumber)
	if f.caseErr != nil {
		return "", f.caseErr
	}
	id, ok := f.caseIDs[zipcase.NormalizeCaseNumber(caseNumber)]
	if !ok {
		return "", &portal.SearchError{Message: "no cases match your search", System: false}
	}
	return id, nil
}

func (f *fakePortal) FetchCasesByName(ctx context.Context, jar *portal.Jar, userAgent string, params portal.NameSearchParams) ([]portal.NameSearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nameErr != nil {
		return nil, f.nameErr
	}
	return f.hits, nil
}

func (f *fakePortal) FetchCaseSummary(ctx context.Context, jar *portal.Jar, userAgent, caseID string) (*zipcase.CaseSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaryFetches = append(f.summaryFetches, caseID)
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	summary, ok := f.summaries[caseID]
	if !ok {
		return nil, &portal.SearchError{Message: "case detail unavailable", System: true}
	}
	return summary, nil
}

func (f *fakePortal) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

func (f *fakePortal) summaryFetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.summaryFetches)
}
