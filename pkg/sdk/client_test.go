package lorehound

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lorehound/lorehound/internal/domain"
)

// --- Mocks ---

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	// Orientation depends on content so retrieval has something to rank.
	vec := []float32{1, 0}
	if strings.Contains(strings.ToLower(text), "beta") {
		vec = []float32{0, 1}
	}
	return domain.EmbeddingResult{Embedding: vec, TotalTokens: len(text) / 4}, nil
}

type stubCompleter struct {
	text string
}

func (s stubCompleter) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	return domain.CompletionResult{Text: s.text}, nil
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(context.Background(),
		WithEmbedder(stubEmbedder{}),
		WithCompleter(stubCompleter{text: "stub answer"}),
		WithWorkers(2, 16),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func jobIDs(jobs []Job) []string {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids
}

func TestNewRequiresProvider(t *testing.T) {
	_, err := New(context.Background())
	if err == nil {
		t.Fatal("New() without API key or embedder should fail")
	}
}

func TestScrapeAskRoundtrip(t *testing.T) {
	page := `<html><head><title>Alpha Notes</title></head>
<body><p>Alpha is the first letter of the Greek alphabet.</p></body></html>`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer ts.Close()

	client := newTestClient(t)
	ctx := context.Background()

	jobs, err := client.Scrape(ctx, "default", []string{ts.URL})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("len(jobs) = %d, want 1", len(jobs))
	}
	if err := client.WaitForJobs(ctx, "default", jobIDs(jobs), 5*time.Second); err != nil {
		t.Fatalf("WaitForJobs() error = %v", err)
	}

	job, ok := client.Job("default", jobs[0].ID)
	if !ok {
		t.Fatal("job disappeared")
	}
	if job.Status != JobDone {
		t.Fatalf("job status = %q (error %q), want done", job.Status, job.Error)
	}

	pages, err := client.Pages(ctx, "default")
	if err != nil {
		t.Fatalf("Pages() error = %v", err)
	}
	if len(pages) != 1 || pages[0].Status != PageReady {
		t.Fatalf("pages = %+v, want one ready page", pages)
	}
	if pages[0].Title != "Alpha Notes" {
		t.Errorf("title = %q", pages[0].Title)
	}

	answer, err := client.Ask(ctx, "default", "What is alpha?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer.Text != "stub answer" {
		t.Errorf("answer = %q", answer.Text)
	}
	if len(answer.Sources) != 1 || answer.Sources[0].URL == "" {
		t.Errorf("sources = %+v", answer.Sources)
	}
	if answer.Trace != nil {
		t.Error("Trace set without AskDebug")
	}

	debug, err := client.AskDebug(ctx, "default", "What is alpha?")
	if err != nil {
		t.Fatalf("AskDebug() error = %v", err)
	}
	if debug.Trace == nil || len(debug.Trace.Retrieved) == 0 {
		t.Errorf("debug trace = %+v", debug.Trace)
	}

	hits, err := client.Search(ctx, "default", "alpha", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) == 0 || !strings.Contains(hits[0].Text, "Greek") {
		t.Errorf("hits = %+v", hits)
	}
}

func TestScrapeFailedURL(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	jobs, err := client.Scrape(ctx, "default", []string{"http://127.0.0.1:1/unreachable"})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if err := client.WaitForJobs(ctx, "default", jobIDs(jobs), 30*time.Second); err != nil {
		t.Fatalf("WaitForJobs() error = %v", err)
	}

	job, _ := client.Job("default", jobs[0].ID)
	if job.Status != JobFailed || job.Error == "" {
		t.Errorf("job = %+v, want failed with error", job)
	}
}

func TestScrapeNoURLs(t *testing.T) {
	client := newTestClient(t)

	_, err := client.Scrape(context.Background(), "default", nil)
	if !errors.Is(err, ErrNoURLs) {
		t.Errorf("err = %v, want ErrNoURLs", err)
	}
}

func TestSummarize(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>Beta content to summarize.</p></body></html>"))
	}))
	defer ts.Close()

	client := newTestClient(t)
	ctx := context.Background()

	jobs, err := client.Scrape(ctx, "default", []string{ts.URL})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if err := client.WaitForJobs(ctx, "default", jobIDs(jobs), 5*time.Second); err != nil {
		t.Fatalf("WaitForJobs() error = %v", err)
	}

	text, err := client.Summarize(ctx, "default", []string{ts.URL}, nil)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if text != "stub answer" {
		t.Errorf("summary = %q", text)
	}

	missing, err := client.Summarize(ctx, "default", []string{"https://never.scraped.example"}, nil)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if missing != "No content found for the selected URLs." {
		t.Errorf("summary = %q", missing)
	}
}

func TestDeleteAndReset(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>Some content here.</p></body></html>"))
	}))
	defer ts.Close()

	client := newTestClient(t)
	ctx := context.Background()

	jobs, err := client.Scrape(ctx, "default", []string{ts.URL})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if err := client.WaitForJobs(ctx, "default", jobIDs(jobs), 5*time.Second); err != nil {
		t.Fatalf("WaitForJobs() error = %v", err)
	}

	pages, err := client.Pages(ctx, "default")
	if err != nil || len(pages) != 1 {
		t.Fatalf("Pages() = %v, %v", pages, err)
	}

	if err := client.DeletePage(ctx, "default", pages[0].ID); err != nil {
		t.Fatalf("DeletePage() error = %v", err)
	}
	if err := client.DeletePage(ctx, "default", pages[0].ID); !errors.Is(err, ErrPageNotFound) {
		t.Errorf("second delete err = %v, want ErrPageNotFound", err)
	}

	if err := client.Reset(ctx, "default"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	pages, err = client.Pages(ctx, "default")
	if err != nil {
		t.Fatalf("Pages() error = %v", err)
	}
	if len(pages) != 0 {
		t.Errorf("pages after reset = %+v", pages)
	}
}

func TestTenantIsolation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>Tenant scoped content.</p></body></html>"))
	}))
	defer ts.Close()

	client := newTestClient(t)
	ctx := context.Background()

	jobs, err := client.Scrape(ctx, "alice", []string{ts.URL})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if err := client.WaitForJobs(ctx, "alice", jobIDs(jobs), 5*time.Second); err != nil {
		t.Fatalf("WaitForJobs() error = %v", err)
	}

	bobPages, err := client.Pages(ctx, "bob")
	if err != nil {
		t.Fatalf("Pages() error = %v", err)
	}
	if len(bobPages) != 0 {
		t.Errorf("bob sees alice's pages: %+v", bobPages)
	}
	if jobs := client.Jobs("bob"); len(jobs) != 0 {
		t.Errorf("bob sees alice's jobs: %+v", jobs)
	}
}
