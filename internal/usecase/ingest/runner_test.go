package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lorehound/lorehound/internal/chunker"
	"github.com/lorehound/lorehound/internal/domain"
	"github.com/lorehound/lorehound/internal/storage/memory"
)

// --- Mocks ---

type stubFetcher struct {
	mu       sync.Mutex
	content  map[string]domain.ScrapedContent
	fetchErr map[string]error
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		content:  make(map[string]domain.ScrapedContent),
		fetchErr: make(map[string]error),
	}
}

func (f *stubFetcher) Canonicalize(raw string) (string, error) {
	if strings.Contains(raw, " ") || raw == "" {
		return "", domain.ErrInvalidURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	return raw, nil
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (domain.ScrapedContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr[url]; err != nil {
		return domain.ScrapedContent{}, err
	}
	c, ok := f.content[url]
	if !ok {
		return domain.ScrapedContent{}, domain.ErrFetchFailed
	}
	return c, nil
}

func (f *stubFetcher) set(url, title, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.fetchErr, url)
	f.content[url] = domain.ScrapedContent{URL: url, Title: title, Text: text}
}

func (f *stubFetcher) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr[url] = err
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{1, 0}, TotalTokens: 1}, nil
}

type flakyEmbedder struct {
	mu   sync.Mutex
	fail bool
}

func (e *flakyEmbedder) setFail(v bool) {
	e.mu.Lock()
	e.fail = v
	e.mu.Unlock()
}

func (e *flakyEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail {
		return domain.EmbeddingResult{}, domain.ErrEmbeddingFailed
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0}, TotalTokens: 1}, nil
}

// --- Helpers ---

func newTestRunner(t *testing.T, fetcher Fetcher) (*Runner, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	r := NewRunner(
		fetcher,
		chunker.New(chunker.WithWindow(50), chunker.WithOverlap(5)),
		stubEmbedder{},
		store,
		Config{Workers: 2, QueueSize: 16, HistoryLimit: 10},
		zap.NewNop(),
	)
	r.Start()
	t.Cleanup(r.Stop)
	return r, store
}

func waitTerminal(t *testing.T, r *Runner, tenant domain.Tenant, id string) domain.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if j, ok := r.Job(tenant, id); ok && j.Status.Terminal() {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state", id)
	return domain.Job{}
}

// --- Tests ---

func TestEnqueue_MixedBatch(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set("https://valid.example", "Valid", "The capital of France is Paris. Paris is in Europe.")
	r, store := newTestRunner(t, fetcher)

	tenant := domain.Tenant("alice")
	jobs, err := r.Enqueue(context.Background(), tenant, []string{"https://valid.example", "bad url"})
	if err != nil {
		t.Fatalf("batch enqueue must succeed even with a bad URL: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}

	good := waitTerminal(t, r, tenant, jobs[0].ID)
	bad := waitTerminal(t, r, tenant, jobs[1].ID)

	if good.Status != domain.JobStatusDone {
		t.Errorf("valid URL job: expected done, got %s (%s)", good.Status, good.Error)
	}
	if bad.Status != domain.JobStatusFailed || bad.Error == "" {
		t.Errorf("bad URL job: expected failed with captured error, got %s (%q)", bad.Status, bad.Error)
	}

	pages, err := store.ListPages(context.Background(), tenant)
	if err != nil {
		t.Fatalf("list pages: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if pages[0].Status != domain.PageStatusReady {
		t.Errorf("expected ready page, got %s", pages[0].Status)
	}

	hits, err := store.SearchChunks(context.Background(), tenant, []float32{1, 0}, 5, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) == 0 || !strings.Contains(hits[0].Chunk.Text, "capital of France") {
		t.Errorf("expected indexed chunk text, got %+v", hits)
	}
}

func TestEnqueue_NoURLs(t *testing.T) {
	r, _ := newTestRunner(t, newStubFetcher())
	if _, err := r.Enqueue(context.Background(), "alice", nil); !errors.Is(err, domain.ErrNoURLs) {
		t.Fatalf("expected ErrNoURLs, got %v", err)
	}
}

func TestRescrape_ReplacesChunks(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set("https://news.example", "News", "Old headline about nothing.")
	r, store := newTestRunner(t, fetcher)
	tenant := domain.Tenant("bob")

	jobs, err := r.Enqueue(context.Background(), tenant, []string{"https://news.example"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitTerminal(t, r, tenant, jobs[0].ID)

	fetcher.set("https://news.example", "News", "Fresh headline about storms.")
	pages, _ := store.ListPages(context.Background(), tenant)
	job, page, err := r.Rescrape(context.Background(), tenant, pages[0].ID)
	if err != nil {
		t.Fatalf("rescrape: %v", err)
	}
	if page.URL != "https://news.example" {
		t.Errorf("rescrape must reuse the page URL, got %q", page.URL)
	}
	if j := waitTerminal(t, r, tenant, job.ID); j.Status != domain.JobStatusDone {
		t.Fatalf("rescrape job failed: %s", j.Error)
	}

	hits, err := store.SearchChunks(context.Background(), tenant, []float32{1, 0}, 10, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, h := range hits {
		if strings.Contains(h.Chunk.Text, "Old headline") {
			t.Errorf("old chunks must be gone after rescrape, got %q", h.Chunk.Text)
		}
	}
	if len(hits) == 0 || !strings.Contains(hits[0].Chunk.Text, "Fresh headline") {
		t.Errorf("expected replaced chunk set, got %+v", hits)
	}

	pagesAfter, _ := store.ListPages(context.Background(), tenant)
	if len(pagesAfter) != 1 || pagesAfter[0].ID != pages[0].ID {
		t.Errorf("rescrape must not create a second page: %+v", pagesAfter)
	}
}

func TestRescrape_FailureKeepsReadyPage(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set("https://stable.example", "Stable", "Durable content that stays indexed.")
	r, store := newTestRunner(t, fetcher)
	tenant := domain.Tenant("carol")

	jobs, _ := r.Enqueue(context.Background(), tenant, []string{"https://stable.example"})
	waitTerminal(t, r, tenant, jobs[0].ID)

	fetcher.fail("https://stable.example", domain.ErrFetchFailed)
	pages, _ := store.ListPages(context.Background(), tenant)
	job, _, err := r.Rescrape(context.Background(), tenant, pages[0].ID)
	if err != nil {
		t.Fatalf("rescrape: %v", err)
	}
	if j := waitTerminal(t, r, tenant, job.ID); j.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed rescrape, got %s", j.Status)
	}

	pagesAfter, _ := store.ListPages(context.Background(), tenant)
	if pagesAfter[0].Status != domain.PageStatusReady {
		t.Errorf("page with prior indexed content must stay ready, got %s", pagesAfter[0].Status)
	}
	hits, _ := store.SearchChunks(context.Background(), tenant, []float32{1, 0}, 5, 0)
	if len(hits) == 0 {
		t.Error("prior chunks must survive a failed rescrape")
	}
}

func TestRescrape_FailureAfterFetchKeepsIndexedText(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set("https://wiki.example", "Wiki", "Original text that got indexed.")
	emb := &flakyEmbedder{}
	store := memory.NewStore()
	r := NewRunner(
		fetcher,
		chunker.New(chunker.WithWindow(50), chunker.WithOverlap(5)),
		emb,
		store,
		Config{Workers: 2, QueueSize: 16, HistoryLimit: 10},
		zap.NewNop(),
	)
	r.Start()
	t.Cleanup(r.Stop)
	tenant := domain.Tenant("erin")

	jobs, _ := r.Enqueue(context.Background(), tenant, []string{"https://wiki.example"})
	waitTerminal(t, r, tenant, jobs[0].ID)

	// The rescrape fetches fresh text, then embedding fails.
	fetcher.set("https://wiki.example", "Wiki", "Fresh text that never got indexed.")
	emb.setFail(true)
	pages, _ := store.ListPages(context.Background(), tenant)
	job, _, err := r.Rescrape(context.Background(), tenant, pages[0].ID)
	if err != nil {
		t.Fatalf("rescrape: %v", err)
	}
	if j := waitTerminal(t, r, tenant, job.ID); j.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed rescrape, got %s", j.Status)
	}

	page, err := store.GetPage(context.Background(), tenant, pages[0].ID)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if page.Status != domain.PageStatusReady {
		t.Errorf("page must stay ready, got %s", page.Status)
	}
	if !strings.Contains(page.RawText, "Original text") {
		t.Errorf("raw text must match the indexed chunks, got %q", page.RawText)
	}
	hits, _ := store.SearchChunks(context.Background(), tenant, []float32{1, 0}, 5, 0)
	if len(hits) == 0 || !strings.Contains(hits[0].Chunk.Text, "Original text") {
		t.Errorf("prior chunks must survive, got %+v", hits)
	}
}

func TestEnqueue_QueueFullFailsJob(t *testing.T) {
	fetcher := newStubFetcher()
	r := NewRunner(
		fetcher,
		chunker.New(),
		stubEmbedder{},
		memory.NewStore(),
		Config{Workers: 1, QueueSize: 1, HistoryLimit: 10},
		zap.NewNop(),
	)
	// Not started: the queue only holds one task.
	tenant := domain.Tenant("dave")
	jobs, err := r.Enqueue(context.Background(), tenant, []string{"https://a.example", "https://b.example"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if jobs[0].Status != domain.JobStatusPending {
		t.Errorf("first job should queue, got %s", jobs[0].Status)
	}
	if jobs[1].Status != domain.JobStatusFailed {
		t.Errorf("overflow job must fail immediately, got %s", jobs[1].Status)
	}
}

func TestJobs_TenantScoped(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set("https://a.example", "A", "Text for tenant a.")
	fetcher.set("https://b.example", "B", "Text for tenant b.")
	r, _ := newTestRunner(t, fetcher)

	jobsA, _ := r.Enqueue(context.Background(), "tenant-a", []string{"https://a.example"})
	jobsB, _ := r.Enqueue(context.Background(), "tenant-b", []string{"https://b.example"})
	waitTerminal(t, r, "tenant-a", jobsA[0].ID)
	waitTerminal(t, r, "tenant-b", jobsB[0].ID)

	for _, j := range r.Jobs("tenant-a") {
		if j.URL != "https://a.example" {
			t.Errorf("tenant-a listing leaked %q", j.URL)
		}
	}
	if _, ok := r.Job("tenant-a", jobsB[0].ID); ok {
		t.Error("tenant-a must not see tenant-b's job")
	}
}
