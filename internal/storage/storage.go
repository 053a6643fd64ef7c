// Package storage defines the persistence contract for pages and chunk
// vectors. Backends live in subpackages (memory, sqlite, postgres) and are
// selected by DSN at startup; consumers depend on the narrow sub-interfaces.
package storage

import (
	"context"

	"github.com/lorehound/lorehound/internal/domain"
)

// Store is the full persistence facade combining all sub-interfaces.
type Store interface {
	Pinger
	PageStore
	VectorStore
	Close() error
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// UpsertResult reports the outcome of UpsertPage.
type UpsertResult struct {
	// Page is the stored page after the call, status pending.
	Page domain.Page
	// Prior is the status the page held before the call, empty when Created.
	Prior domain.PageStatus
	// Created reports whether the page did not exist before.
	Created bool
}

// PageStore persists page records. Pages are unique per (tenant, url);
// tenant is a partition key, every operation fails on an empty one.
type PageStore interface {
	// UpsertPage creates the page for (tenant, url) or resets an existing
	// one to pending for refetch. Chunks are left in place either way.
	UpsertPage(ctx context.Context, tenant domain.Tenant, url string) (UpsertResult, error)
	GetPage(ctx context.Context, tenant domain.Tenant, id int64) (domain.Page, error)
	PageByURL(ctx context.Context, tenant domain.Tenant, url string) (domain.Page, error)
	// ListPages returns page metadata ordered by creation.
	ListPages(ctx context.Context, tenant domain.Tenant) ([]domain.PageMeta, error)
	// SetPageFetched stores the extracted title and raw text and moves the
	// page to fetched.
	SetPageFetched(ctx context.Context, tenant domain.Tenant, id int64, title, rawText string) error
	SetPageStatus(ctx context.Context, tenant domain.Tenant, id int64, status domain.PageStatus) error
	// DeletePage removes the page and cascades to its chunks.
	DeletePage(ctx context.Context, tenant domain.Tenant, id int64) error
	// Reset removes every page and chunk owned by the tenant.
	Reset(ctx context.Context, tenant domain.Tenant) error
}

// VectorStore persists chunk vectors and answers similarity queries.
type VectorStore interface {
	// InsertChunks appends chunks for the page and marks it ready. Existing
	// rows are never overwritten.
	InsertChunks(ctx context.Context, tenant domain.Tenant, pageID int64, chunks []domain.Chunk) error
	// ReplaceChunks swaps the page's chunk set atomically and marks the page
	// ready. Concurrent queries observe the old set or the new one, never a
	// mix; on failure the prior set remains intact.
	ReplaceChunks(ctx context.Context, tenant domain.Tenant, pageID int64, chunks []domain.Chunk) error
	// SearchChunks returns up to k chunks ranked by cosine similarity,
	// dropping scores below minScore. Ties keep insertion order.
	SearchChunks(ctx context.Context, tenant domain.Tenant, vector []float32, k int, minScore float64) ([]domain.ScoredChunk, error)
}
