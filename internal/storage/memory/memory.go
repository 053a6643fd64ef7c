// Package memory implements storage.Store with in-process maps and
// brute-force cosine search. Default backend for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lorehound/lorehound/internal/domain"
	"github.com/lorehound/lorehound/internal/storage"
)

type chunkRow struct {
	id    int64
	chunk domain.Chunk
}

// Store holds all pages and chunks behind one RWMutex. Writes swap chunk
// slices wholesale, so readers never observe a partially replaced page.
type Store struct {
	mu        sync.RWMutex
	pages     map[int64]domain.Page
	chunks    []chunkRow
	nextPage  int64
	nextChunk int64
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{pages: make(map[int64]domain.Page)}
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// UpsertPage creates the page for (tenant, url) or resets an existing one to
// pending. Chunks are left in place.
func (s *Store) UpsertPage(ctx context.Context, tenant domain.Tenant, url string) (storage.UpsertResult, error) {
	if err := tenant.Validate(); err != nil {
		return storage.UpsertResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range s.pages {
		if p.Tenant != tenant || p.URL != url {
			continue
		}
		prior := p.Status
		p.Status = domain.PageStatusPending
		s.pages[id] = p
		return storage.UpsertResult{Page: p, Prior: prior}, nil
	}

	s.nextPage++
	page := domain.Page{
		ID:        s.nextPage,
		Tenant:    tenant,
		URL:       url,
		Status:    domain.PageStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	s.pages[page.ID] = page
	return storage.UpsertResult{Page: page, Created: true}, nil
}

// GetPage returns a page by id.
func (s *Store) GetPage(ctx context.Context, tenant domain.Tenant, id int64) (domain.Page, error) {
	if err := tenant.Validate(); err != nil {
		return domain.Page{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pages[id]
	if !ok || p.Tenant != tenant {
		return domain.Page{}, domain.ErrPageNotFound
	}
	return p, nil
}

// PageByURL returns a page by its canonical URL.
func (s *Store) PageByURL(ctx context.Context, tenant domain.Tenant, url string) (domain.Page, error) {
	if err := tenant.Validate(); err != nil {
		return domain.Page{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.pages {
		if p.Tenant == tenant && p.URL == url {
			return p, nil
		}
	}
	return domain.Page{}, domain.ErrPageNotFound
}

// ListPages returns page metadata ordered by creation.
func (s *Store) ListPages(ctx context.Context, tenant domain.Tenant) ([]domain.PageMeta, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	metas := make([]domain.PageMeta, 0, len(s.pages))
	for _, p := range s.pages {
		if p.Tenant == tenant {
			metas = append(metas, p.Meta())
		}
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].ID < metas[j].ID })
	return metas, nil
}

// SetPageFetched stores extracted title and text and moves the page to fetched.
func (s *Store) SetPageFetched(ctx context.Context, tenant domain.Tenant, id int64, title, rawText string) error {
	if err := tenant.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pages[id]
	if !ok || p.Tenant != tenant {
		return domain.ErrPageNotFound
	}
	p.Title = title
	p.RawText = rawText
	p.Status = domain.PageStatusFetched
	s.pages[id] = p
	return nil
}

// SetPageStatus updates the pipeline status of a page.
func (s *Store) SetPageStatus(ctx context.Context, tenant domain.Tenant, id int64, status domain.PageStatus) error {
	if err := tenant.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pages[id]
	if !ok || p.Tenant != tenant {
		return domain.ErrPageNotFound
	}
	p.Status = status
	s.pages[id] = p
	return nil
}

// DeletePage removes the page and all of its chunks.
func (s *Store) DeletePage(ctx context.Context, tenant domain.Tenant, id int64) error {
	if err := tenant.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pages[id]
	if !ok || p.Tenant != tenant {
		return domain.ErrPageNotFound
	}
	delete(s.pages, id)
	s.chunks = dropChunks(s.chunks, id)
	return nil
}

// Reset removes every page and chunk owned by the tenant.
func (s *Store) Reset(ctx context.Context, tenant domain.Tenant) error {
	if err := tenant.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range s.pages {
		if p.Tenant == tenant {
			delete(s.pages, id)
		}
	}
	kept := s.chunks[:0]
	for _, row := range s.chunks {
		if row.chunk.Tenant != tenant {
			kept = append(kept, row)
		}
	}
	s.chunks = kept
	return nil
}

// InsertChunks appends chunks for the page and marks it ready.
func (s *Store) InsertChunks(ctx context.Context, tenant domain.Tenant, pageID int64, chunks []domain.Chunk) error {
	return s.writeChunks(tenant, pageID, chunks, false)
}

// ReplaceChunks swaps the page's chunk set and marks it ready. The swap
// happens under the write lock, so concurrent searches see old or new, never
// a mix.
func (s *Store) ReplaceChunks(ctx context.Context, tenant domain.Tenant, pageID int64, chunks []domain.Chunk) error {
	return s.writeChunks(tenant, pageID, chunks, true)
}

func (s *Store) writeChunks(tenant domain.Tenant, pageID int64, chunks []domain.Chunk, replace bool) error {
	if err := tenant.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pages[pageID]
	if !ok || p.Tenant != tenant {
		return domain.ErrPageNotFound
	}

	if replace {
		s.chunks = dropChunks(s.chunks, pageID)
	}
	for _, c := range chunks {
		s.nextChunk++
		c.PageID = pageID
		c.Tenant = tenant
		s.chunks = append(s.chunks, chunkRow{id: s.nextChunk, chunk: c})
	}

	p.Status = domain.PageStatusReady
	s.pages[pageID] = p
	return nil
}

func dropChunks(rows []chunkRow, pageID int64) []chunkRow {
	kept := make([]chunkRow, 0, len(rows))
	for _, row := range rows {
		if row.chunk.PageID != pageID {
			kept = append(kept, row)
		}
	}
	return kept
}

// SearchChunks ranks the tenant's chunks by cosine similarity against the
// query vector. Ties keep insertion order.
func (s *Store) SearchChunks(ctx context.Context, tenant domain.Tenant, vector []float32, k int, minScore float64) ([]domain.ScoredChunk, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]domain.ScoredChunk, 0, len(s.chunks))
	for _, row := range s.chunks {
		if row.chunk.Tenant != tenant || len(row.chunk.Vector) == 0 {
			continue
		}
		score := storage.CosineSimilarity(vector, row.chunk.Vector)
		if score < minScore {
			continue
		}
		page := s.pages[row.chunk.PageID]
		scored = append(scored, domain.ScoredChunk{
			Chunk:     row.chunk,
			ChunkID:   row.id,
			Score:     score,
			PageURL:   page.URL,
			PageTitle: page.Title,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}
