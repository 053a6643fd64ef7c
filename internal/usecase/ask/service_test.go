package ask

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lorehound/lorehound/internal/domain"
)

// --- Mocks ---

type mockEmbedder struct {
	vector []float32
	tokens int
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vector, TotalTokens: m.tokens}, nil
}

type mockSearcher struct {
	hits []domain.ScoredChunk
	err  error

	gotK        int
	gotMinScore float64
}

func (m *mockSearcher) SearchChunks(ctx context.Context, tenant domain.Tenant, vector []float32, k int, minScore float64) ([]domain.ScoredChunk, error) {
	m.gotK = k
	m.gotMinScore = minScore
	return m.hits, m.err
}

type mockCompleter struct {
	text  string
	err   error
	calls int
	got   domain.CompletionRequest
}

func (m *mockCompleter) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	m.calls++
	m.got = req
	if m.err != nil {
		return domain.CompletionResult{}, m.err
	}
	return domain.CompletionResult{Text: m.text, CompletionTokens: 7}, nil
}

func hit(pageID int64, chunkID int64, url, text string, offset int, score float64) domain.ScoredChunk {
	return domain.ScoredChunk{
		Chunk:   domain.Chunk{PageID: pageID, Text: text, Offset: offset},
		ChunkID: chunkID,
		Score:   score,
		PageURL: url,
	}
}

func TestAnswer(t *testing.T) {
	embedder := &mockEmbedder{vector: []float32{1, 0}, tokens: 3}
	searcher := &mockSearcher{hits: []domain.ScoredChunk{
		hit(1, 10, "https://a.example/doc", "alpha text", 0, 0.92),
		hit(2, 20, "https://b.example/doc", "beta text", 0, 0.81),
	}}
	completer := &mockCompleter{text: "the answer"}
	svc := New(embedder, searcher, completer, Config{TopK: 5}, nil)

	answer, err := svc.Answer(context.Background(), "default", "what is alpha?", false)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Text != "the answer" {
		t.Errorf("Text = %q, want %q", answer.Text, "the answer")
	}
	if len(answer.Sources) != 2 {
		t.Fatalf("len(Sources) = %d, want 2", len(answer.Sources))
	}
	if answer.Sources[0].URL != "https://a.example/doc" || answer.Sources[0].Score != 0.92 {
		t.Errorf("Sources[0] = %+v", answer.Sources[0])
	}
	if answer.Trace != nil {
		t.Error("Trace should be nil without debug")
	}
	if !strings.Contains(completer.got.Prompt, "alpha text") || !strings.Contains(completer.got.Prompt, "what is alpha?") {
		t.Errorf("prompt missing context or question:\n%s", completer.got.Prompt)
	}
	if completer.got.System != "You are a helpful assistant." {
		t.Errorf("System = %q", completer.got.System)
	}
}

func TestAnswerEmptyQuestion(t *testing.T) {
	svc := New(&mockEmbedder{}, &mockSearcher{}, &mockCompleter{}, Config{}, nil)

	_, err := svc.Answer(context.Background(), "default", "   ", false)
	if !errors.Is(err, domain.ErrEmptyQuestion) {
		t.Errorf("err = %v, want ErrEmptyQuestion", err)
	}
}

func TestAnswerEmptyIndex(t *testing.T) {
	completer := &mockCompleter{text: "unused"}
	svc := New(&mockEmbedder{vector: []float32{1}}, &mockSearcher{}, completer, Config{}, nil)

	answer, err := svc.Answer(context.Background(), "default", "anything?", false)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Text != emptyIndexAnswer {
		t.Errorf("Text = %q", answer.Text)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("Sources = %+v, want empty", answer.Sources)
	}
	if completer.calls != 0 {
		t.Errorf("completer called %d times on empty index", completer.calls)
	}
}

func TestAnswerDebugTrace(t *testing.T) {
	searcher := &mockSearcher{hits: []domain.ScoredChunk{
		hit(1, 10, "https://a.example", "alpha", 0, 0.9),
	}}
	svc := New(&mockEmbedder{vector: []float32{1}}, searcher, &mockCompleter{text: "done"}, Config{}, nil)

	answer, err := svc.Answer(context.Background(), "default", "q?", true)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Trace == nil {
		t.Fatal("Trace is nil with debug")
	}
	if answer.Trace.Question != "q?" {
		t.Errorf("Trace.Question = %q", answer.Trace.Question)
	}
	if len(answer.Trace.Retrieved) != 1 || answer.Trace.Retrieved[0].ChunkID != 10 {
		t.Errorf("Trace.Retrieved = %+v", answer.Trace.Retrieved)
	}
	if answer.Trace.RawCompletion != "done" {
		t.Errorf("Trace.RawCompletion = %q", answer.Trace.RawCompletion)
	}
	if !strings.Contains(answer.Trace.Prompt, "alpha") {
		t.Errorf("Trace.Prompt missing context:\n%s", answer.Trace.Prompt)
	}
}

func TestAnswerCompleterError(t *testing.T) {
	searcher := &mockSearcher{hits: []domain.ScoredChunk{hit(1, 10, "https://a.example", "alpha", 0, 0.9)}}
	svc := New(&mockEmbedder{vector: []float32{1}}, searcher, &mockCompleter{err: domain.ErrSynthesisFailed}, Config{}, nil)

	_, err := svc.Answer(context.Background(), "default", "q?", false)
	if !errors.Is(err, domain.ErrSynthesisFailed) {
		t.Errorf("err = %v, want ErrSynthesisProvider", err)
	}
}

func TestSearchDedupsOverlappingChunks(t *testing.T) {
	// Two chunks of page 1 cover intersecting rune ranges; only the
	// higher-ranked one should survive.
	searcher := &mockSearcher{hits: []domain.ScoredChunk{
		hit(1, 10, "https://a.example", strings.Repeat("x", 100), 0, 0.95),
		hit(1, 11, "https://a.example", strings.Repeat("y", 100), 80, 0.90),
		hit(2, 20, "https://b.example", "other page", 0, 0.85),
	}}
	svc := New(&mockEmbedder{vector: []float32{1}}, searcher, &mockCompleter{}, Config{TopK: 5}, nil)

	hits, err := svc.Search(context.Background(), "default", "q", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2", len(hits))
	}
	if hits[0].ChunkID != 10 || hits[1].ChunkID != 20 {
		t.Errorf("kept chunks %d, %d; want 10, 20", hits[0].ChunkID, hits[1].ChunkID)
	}
}

func TestSearchOverfetchesAndTruncates(t *testing.T) {
	hits := make([]domain.ScoredChunk, 6)
	for i := range hits {
		hits[i] = hit(int64(i+1), int64(i+1), "https://example.com", "text", 0, 0.9)
	}
	searcher := &mockSearcher{hits: hits}
	svc := New(&mockEmbedder{vector: []float32{1}}, searcher, &mockCompleter{}, Config{TopK: 3, MinScore: 0.4}, nil)

	got, err := svc.Search(context.Background(), "default", "q", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if searcher.gotK != 6 {
		t.Errorf("store queried with k = %d, want 6", searcher.gotK)
	}
	if searcher.gotMinScore != 0.4 {
		t.Errorf("minScore = %v, want 0.4", searcher.gotMinScore)
	}
	if len(got) != 3 {
		t.Errorf("len(got) = %d, want 3", len(got))
	}
}

func TestSearchRecordsEmbeddingUsage(t *testing.T) {
	svc := New(&mockEmbedder{vector: []float32{1}, tokens: 42}, &mockSearcher{}, &mockCompleter{}, Config{}, nil)

	ctx, usage := domain.NewContextWithUsage(context.Background())
	if _, err := svc.Search(ctx, "default", "q", 5); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if usage.TotalTokens != 42 {
		t.Errorf("TotalTokens = %d, want 42", usage.TotalTokens)
	}
}

func TestSearchInvalidTenant(t *testing.T) {
	svc := New(&mockEmbedder{}, &mockSearcher{}, &mockCompleter{}, Config{}, nil)

	_, err := svc.Search(context.Background(), "", "q", 5)
	if !errors.Is(err, domain.ErrInvalidTenant) {
		t.Errorf("err = %v, want ErrInvalidTenant", err)
	}
}

func TestSearchEmbedderError(t *testing.T) {
	svc := New(&mockEmbedder{err: domain.ErrEmbeddingFailed}, &mockSearcher{}, &mockCompleter{}, Config{}, nil)

	_, err := svc.Search(context.Background(), "default", "q", 5)
	if !errors.Is(err, domain.ErrEmbeddingFailed) {
		t.Errorf("err = %v, want ErrEmbeddingProvider", err)
	}
}
