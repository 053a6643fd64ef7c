// Package summary condenses the stored text of selected pages into one
// generated summary. It reads raw page text directly, skipping retrieval.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lorehound/lorehound/internal/domain"
)

// noContentSummary is returned when none of the selected pages resolve to
// usable text. Selection mistakes are not errors.
const noContentSummary = "No content found for the selected URLs."

// PageReader resolves pages by URL or id.
type PageReader interface {
	GetPage(ctx context.Context, tenant domain.Tenant, id int64) (domain.Page, error)
	PageByURL(ctx context.Context, tenant domain.Tenant, url string) (domain.Page, error)
}

// Canonicalizer normalizes request URLs the same way ingestion did, so
// summary lookups match stored pages.
type Canonicalizer interface {
	Canonicalize(raw string) (string, error)
}

// Config holds summary settings.
type Config struct {
	// BudgetRunes caps the concatenated source text; 0 uses the default.
	BudgetRunes int
}

const defaultBudgetRunes = 48000

// Service produces page summaries.
type Service struct {
	store     PageReader
	canon     Canonicalizer
	completer domain.Completer
	budget    int
	logger    *zap.Logger
}

// New creates a summary service.
func New(store PageReader, canon Canonicalizer, completer domain.Completer, cfg Config, logger *zap.Logger) *Service {
	budget := cfg.BudgetRunes
	if budget <= 0 {
		budget = defaultBudgetRunes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, canon: canon, completer: completer, budget: budget, logger: logger}
}

// Summarize resolves the selected pages and generates one summary over
// their combined text. Pages that do not resolve are skipped; if nothing
// resolves the literal no-content message is returned without a provider
// call. With neither URLs nor ids the request is rejected.
func (s *Service) Summarize(ctx context.Context, tenant domain.Tenant, urls []string, pageIDs []int64) (string, error) {
	if err := tenant.Validate(); err != nil {
		return "", err
	}
	if len(urls) == 0 && len(pageIDs) == 0 {
		return "", domain.ErrNoURLs
	}

	pages := s.resolve(ctx, tenant, urls, pageIDs)
	text := concatText(pages, s.budget)
	if text == "" {
		return noContentSummary, nil
	}

	completion, err := s.completer.Complete(ctx, domain.CompletionRequest{
		System: "You are a helpful summarizer.",
		Prompt: "Summarize the following content in a clear and concise way:\n\n" + text,
	})
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}

	s.logger.Debug("Summary generated",
		zap.String("tenant", string(tenant)),
		zap.Int("pages", len(pages)),
		zap.Int("source_runes", len([]rune(text))),
	)
	return completion.Text, nil
}

// resolve looks up each selected page, deduplicating by page id. Lookup
// misses are logged and skipped rather than failing the whole request.
func (s *Service) resolve(ctx context.Context, tenant domain.Tenant, urls []string, pageIDs []int64) []domain.Page {
	seen := make(map[int64]bool, len(urls)+len(pageIDs))
	pages := make([]domain.Page, 0, len(urls)+len(pageIDs))

	add := func(page domain.Page) {
		if seen[page.ID] {
			return
		}
		seen[page.ID] = true
		pages = append(pages, page)
	}

	for _, raw := range urls {
		url := raw
		if s.canon != nil {
			c, err := s.canon.Canonicalize(raw)
			if err != nil {
				s.logger.Debug("Skipping malformed summary URL", zap.String("url", raw))
				continue
			}
			url = c
		}
		page, err := s.store.PageByURL(ctx, tenant, url)
		if err != nil {
			if !errors.Is(err, domain.ErrPageNotFound) {
				s.logger.Warn("Page lookup failed", zap.String("url", url), zap.Error(err))
			}
			continue
		}
		add(page)
	}

	for _, id := range pageIDs {
		page, err := s.store.GetPage(ctx, tenant, id)
		if err != nil {
			if !errors.Is(err, domain.ErrPageNotFound) {
				s.logger.Warn("Page lookup failed", zap.Int64("page_id", id), zap.Error(err))
			}
			continue
		}
		add(page)
	}
	return pages
}

// concatText joins the pages' raw text up to the rune budget, cutting the
// final page mid-text if needed.
func concatText(pages []domain.Page, budget int) string {
	var b strings.Builder
	remaining := budget
	for _, page := range pages {
		text := strings.TrimSpace(page.RawText)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			if remaining <= 2 {
				break
			}
			b.WriteString("\n\n")
			remaining -= 2
		}
		runes := []rune(text)
		if len(runes) > remaining {
			runes = runes[:remaining]
		}
		b.WriteString(string(runes))
		remaining -= len(runes)
		if remaining <= 0 {
			break
		}
	}
	return strings.TrimSpace(b.String())
}
