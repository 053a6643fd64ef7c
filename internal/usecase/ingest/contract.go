package ingest

import (
	"context"

	"github.com/lorehound/lorehound/internal/chunker"
	"github.com/lorehound/lorehound/internal/domain"
	"github.com/lorehound/lorehound/internal/storage"
)

// Fetcher downloads one URL and extracts its title and plain text.
type Fetcher interface {
	Canonicalize(raw string) (string, error)
	Fetch(ctx context.Context, url string) (domain.ScrapedContent, error)
}

// Splitter chunks extracted text into ordered passages.
type Splitter interface {
	Split(text string) []chunker.Passage
}

// Store is the storage surface the scrape pipeline writes through.
type Store interface {
	UpsertPage(ctx context.Context, tenant domain.Tenant, url string) (storage.UpsertResult, error)
	GetPage(ctx context.Context, tenant domain.Tenant, id int64) (domain.Page, error)
	SetPageFetched(ctx context.Context, tenant domain.Tenant, id int64, title, rawText string) error
	SetPageStatus(ctx context.Context, tenant domain.Tenant, id int64, status domain.PageStatus) error
	InsertChunks(ctx context.Context, tenant domain.Tenant, pageID int64, chunks []domain.Chunk) error
	ReplaceChunks(ctx context.Context, tenant domain.Tenant, pageID int64, chunks []domain.Chunk) error
}
