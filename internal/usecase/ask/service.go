// Package ask answers natural-language questions over a tenant's indexed
// pages: embed the question, rank stored chunks, then condition one
// generation call on the retrieved passages.
package ask

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lorehound/lorehound/internal/domain"
)

// Config holds retrieval settings.
type Config struct {
	// TopK is how many chunks feed the prompt.
	TopK int
	// MinScore drops chunks below this cosine similarity; 0 disables.
	MinScore float64
}

const emptyIndexAnswer = "No indexed content yet. Scrape some URLs first."

// Service handles ask requests.
type Service struct {
	embedder  domain.Embedder
	store     Searcher
	completer domain.Completer
	cfg       Config
	logger    *zap.Logger
}

// New creates an ask service.
func New(embedder domain.Embedder, store Searcher, completer domain.Completer, cfg Config, logger *zap.Logger) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{embedder: embedder, store: store, completer: completer, cfg: cfg, logger: logger}
}

// Search embeds the question and returns the top-k ranked chunks, with
// near-identical passages (same page, overlapping offsets) deduplicated
// keeping the highest-scoring instance. An empty index yields an empty
// slice, not an error.
func (s *Service) Search(ctx context.Context, tenant domain.Tenant, question string, k int) ([]domain.ScoredChunk, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = s.cfg.TopK
	}

	emb, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	domain.UsageFromContext(ctx).AddTokens(emb.TotalTokens)

	// Over-fetch so dedup can still fill k slots.
	hits, err := s.store.SearchChunks(ctx, tenant, emb.Embedding, k*2, s.cfg.MinScore)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	deduped := dedupOverlapping(hits)
	if len(deduped) > k {
		deduped = deduped[:k]
	}
	return deduped, nil
}

// Answer runs retrieval and one generation call. With debug it captures the
// retrieval scores, the literal prompt, and the raw completion.
func (s *Service) Answer(ctx context.Context, tenant domain.Tenant, question string, debug bool) (domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Answer{}, domain.ErrEmptyQuestion
	}

	hits, err := s.Search(ctx, tenant, question, s.cfg.TopK)
	if err != nil {
		return domain.Answer{}, err
	}

	if len(hits) == 0 {
		answer := domain.Answer{Text: emptyIndexAnswer, Sources: []domain.Source{}}
		if debug {
			answer.Trace = &domain.QueryTrace{Question: question, Retrieved: []domain.TraceEntry{}}
		}
		return answer, nil
	}

	prompt := buildPrompt(question, hits)
	completion, err := s.completer.Complete(ctx, domain.CompletionRequest{
		System: "You are a helpful assistant.",
		Prompt: prompt,
	})
	if err != nil {
		return domain.Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	s.logger.Debug("Question answered",
		zap.String("tenant", string(tenant)),
		zap.Int("retrieved", len(hits)),
		zap.Int("completion_tokens", completion.CompletionTokens),
	)

	answer := domain.Answer{Text: completion.Text, Sources: collectSources(hits)}
	if debug {
		answer.Trace = &domain.QueryTrace{
			Question:      question,
			Retrieved:     traceEntries(hits),
			Prompt:        prompt,
			RawCompletion: completion.Text,
		}
	}
	return answer, nil
}

// buildPrompt embeds the retrieved passages as a context block above the
// question.
func buildPrompt(question string, hits []domain.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("You are an assistant. Use the following context to answer the question.\n\nContext:\n")
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s\n%s", i+1, h.PageURL, h.Chunk.Text)
	}
	fmt.Fprintf(&b, "\n\nQuestion:\n%s\n\nAnswer in a clear and concise way, citing URLs when helpful.\n", question)
	return b.String()
}

// dedupOverlapping keeps the best-scoring chunk among same-page passages
// whose rune ranges intersect. Input is ranked, so the first hit wins.
func dedupOverlapping(hits []domain.ScoredChunk) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		overlaps := false
		for _, kept := range out {
			if h.Chunk.Overlaps(kept.Chunk) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			out = append(out, h)
		}
	}
	return out
}

// collectSources dedups the cited pages, keeping each page's best score and
// a short snippet of its best chunk.
func collectSources(hits []domain.ScoredChunk) []domain.Source {
	seen := make(map[string]bool, len(hits))
	out := make([]domain.Source, 0, len(hits))
	for _, h := range hits {
		if seen[h.PageURL] {
			continue
		}
		seen[h.PageURL] = true
		out = append(out, domain.Source{
			URL:     h.PageURL,
			Title:   h.PageTitle,
			Score:   h.Score,
			Snippet: snippet(h.Chunk.Text, 200),
		})
	}
	return out
}

func traceEntries(hits []domain.ScoredChunk) []domain.TraceEntry {
	out := make([]domain.TraceEntry, len(hits))
	for i, h := range hits {
		out[i] = domain.TraceEntry{ChunkID: h.ChunkID, Score: h.Score}
	}
	return out
}

func snippet(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes])
}
