// Package sqlite implements storage.Store on modernc.org/sqlite. Vectors are
// stored as little-endian float32 blobs and scored in Go.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lorehound/lorehound/internal/domain"
	"github.com/lorehound/lorehound/internal/storage"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store is a SQLite-backed storage.Store.
type Store struct {
	db *sql.DB
}

// NewStore opens the database at path, creating file and schema as needed.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "data/lorehound.db"
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single connection: concurrent writers hit SQLITE_BUSY otherwise.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return opErr("ping", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func opErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

// UpsertPage creates the page for (tenant, url) or resets an existing one to
// pending. Chunks are left in place.
func (s *Store) UpsertPage(ctx context.Context, tenant domain.Tenant, url string) (storage.UpsertResult, error) {
	if err := tenant.Validate(); err != nil {
		return storage.UpsertResult{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.UpsertResult{}, opErr("begin upsert page", err)
	}
	defer tx.Rollback()

	var (
		id        int64
		status    string
		createdAt int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, status, created_at FROM pages WHERE tenant = ? AND url = ?`,
		string(tenant), url).Scan(&id, &status, &createdAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO pages (tenant, url, status, created_at) VALUES (?, ?, ?, ?)`,
			string(tenant), url, string(domain.PageStatusPending), now.Unix())
		if err != nil {
			return storage.UpsertResult{}, opErr("insert page", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return storage.UpsertResult{}, opErr("insert page id", err)
		}
		if err := tx.Commit(); err != nil {
			return storage.UpsertResult{}, opErr("commit upsert page", err)
		}
		return storage.UpsertResult{
			Page: domain.Page{
				ID:        id,
				Tenant:    tenant,
				URL:       url,
				Status:    domain.PageStatusPending,
				CreatedAt: now.Truncate(time.Second),
			},
			Created: true,
		}, nil

	case err != nil:
		return storage.UpsertResult{}, opErr("query page", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE pages SET status = ? WHERE id = ?`,
		string(domain.PageStatusPending), id); err != nil {
		return storage.UpsertResult{}, opErr("reset page", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.UpsertResult{}, opErr("commit upsert page", err)
	}

	return storage.UpsertResult{
		Page: domain.Page{
			ID:        id,
			Tenant:    tenant,
			URL:       url,
			Status:    domain.PageStatusPending,
			CreatedAt: time.Unix(createdAt, 0).UTC(),
		},
		Prior: domain.PageStatus(status),
	}, nil
}

// GetPage returns a page by id.
func (s *Store) GetPage(ctx context.Context, tenant domain.Tenant, id int64) (domain.Page, error) {
	if err := tenant.Validate(); err != nil {
		return domain.Page{}, err
	}

	var (
		p         domain.Page
		status    string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, url, title, raw_text, status, created_at FROM pages WHERE tenant = ? AND id = ?`,
		string(tenant), id).Scan(&p.ID, &p.URL, &p.Title, &p.RawText, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Page{}, domain.ErrPageNotFound
	}
	if err != nil {
		return domain.Page{}, opErr("query page", err)
	}

	p.Tenant = tenant
	p.Status = domain.PageStatus(status)
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	return p, nil
}

// PageByURL returns a page by its canonical URL.
func (s *Store) PageByURL(ctx context.Context, tenant domain.Tenant, url string) (domain.Page, error) {
	if err := tenant.Validate(); err != nil {
		return domain.Page{}, err
	}

	var (
		p         domain.Page
		status    string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, url, title, raw_text, status, created_at FROM pages WHERE tenant = ? AND url = ?`,
		string(tenant), url).Scan(&p.ID, &p.URL, &p.Title, &p.RawText, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Page{}, domain.ErrPageNotFound
	}
	if err != nil {
		return domain.Page{}, opErr("query page by url", err)
	}

	p.Tenant = tenant
	p.Status = domain.PageStatus(status)
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	return p, nil
}

// ListPages returns page metadata ordered by creation.
func (s *Store) ListPages(ctx context.Context, tenant domain.Tenant) ([]domain.PageMeta, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, title, status, created_at FROM pages WHERE tenant = ? ORDER BY id`,
		string(tenant))
	if err != nil {
		return nil, opErr("query pages", err)
	}
	defer rows.Close()

	metas := make([]domain.PageMeta, 0)
	for rows.Next() {
		var (
			m         domain.PageMeta
			status    string
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.URL, &m.Title, &status, &createdAt); err != nil {
			return nil, opErr("scan page", err)
		}
		m.Status = domain.PageStatus(status)
		m.CreatedAt = time.Unix(createdAt, 0).UTC()
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, opErr("iterate pages", err)
	}
	return metas, nil
}

// SetPageFetched stores extracted title and text and moves the page to fetched.
func (s *Store) SetPageFetched(ctx context.Context, tenant domain.Tenant, id int64, title, rawText string) error {
	if err := tenant.Validate(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE pages SET title = ?, raw_text = ?, status = ? WHERE tenant = ? AND id = ?`,
		title, rawText, string(domain.PageStatusFetched), string(tenant), id)
	if err != nil {
		return opErr("update page", err)
	}
	return requireRow(res)
}

// SetPageStatus updates the pipeline status of a page.
func (s *Store) SetPageStatus(ctx context.Context, tenant domain.Tenant, id int64, status domain.PageStatus) error {
	if err := tenant.Validate(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE pages SET status = ? WHERE tenant = ? AND id = ?`,
		string(status), string(tenant), id)
	if err != nil {
		return opErr("update page status", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return opErr("rows affected", err)
	}
	if n == 0 {
		return domain.ErrPageNotFound
	}
	return nil
}

// DeletePage removes the page and all of its chunks.
func (s *Store) DeletePage(ctx context.Context, tenant domain.Tenant, id int64) error {
	if err := tenant.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return opErr("begin delete page", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE tenant = ? AND page_id = ?`, string(tenant), id); err != nil {
		return opErr("delete chunks", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM pages WHERE tenant = ? AND id = ?`, string(tenant), id)
	if err != nil {
		return opErr("delete page", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return opErr("commit delete page", err)
	}
	return nil
}

// Reset removes every page and chunk owned by the tenant.
func (s *Store) Reset(ctx context.Context, tenant domain.Tenant) error {
	if err := tenant.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return opErr("begin reset", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE tenant = ?`, string(tenant)); err != nil {
		return opErr("reset chunks", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE tenant = ?`, string(tenant)); err != nil {
		return opErr("reset pages", err)
	}
	if err := tx.Commit(); err != nil {
		return opErr("commit reset", err)
	}
	return nil
}

// InsertChunks appends chunks for the page and marks it ready.
func (s *Store) InsertChunks(ctx context.Context, tenant domain.Tenant, pageID int64, chunks []domain.Chunk) error {
	return s.writeChunks(ctx, tenant, pageID, chunks, false)
}

// ReplaceChunks swaps the page's chunk set in one transaction and marks the
// page ready. On failure the prior set remains intact.
func (s *Store) ReplaceChunks(ctx context.Context, tenant domain.Tenant, pageID int64, chunks []domain.Chunk) error {
	return s.writeChunks(ctx, tenant, pageID, chunks, true)
}

func (s *Store) writeChunks(ctx context.Context, tenant domain.Tenant, pageID int64, chunks []domain.Chunk, replace bool) error {
	if err := tenant.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return opErr("begin write chunks", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM pages WHERE tenant = ? AND id = ?`, string(tenant), pageID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrPageNotFound
	}
	if err != nil {
		return opErr("query page", err)
	}

	if replace {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chunks WHERE tenant = ? AND page_id = ?`, string(tenant), pageID); err != nil {
			return opErr("delete old chunks", err)
		}
	}

	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (page_id, tenant, seq, content, rune_offset, embedding) VALUES (?, ?, ?, ?, ?, ?)`,
			pageID, string(tenant), c.SequenceIndex, c.Text, c.Offset, storage.EncodeVector(c.Vector)); err != nil {
			return opErr("insert chunk", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE pages SET status = ? WHERE tenant = ? AND id = ?`,
		string(domain.PageStatusReady), string(tenant), pageID); err != nil {
		return opErr("mark page ready", err)
	}

	if err := tx.Commit(); err != nil {
		return opErr("commit write chunks", err)
	}
	return nil
}

// SearchChunks loads the tenant's chunks and ranks them by cosine similarity
// in Go. Ties keep insertion order.
func (s *Store) SearchChunks(ctx context.Context, tenant domain.Tenant, vector []float32, k int, minScore float64) ([]domain.ScoredChunk, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.page_id, c.seq, c.content, c.rune_offset, c.embedding, p.url, p.title
		FROM chunks c
		JOIN pages p ON p.id = c.page_id
		WHERE c.tenant = ?
		ORDER BY c.id`, string(tenant))
	if err != nil {
		return nil, opErr("query chunks", err)
	}
	defer rows.Close()

	var scored []domain.ScoredChunk
	for rows.Next() {
		var (
			sc   domain.ScoredChunk
			blob []byte
		)
		if err := rows.Scan(&sc.ChunkID, &sc.Chunk.PageID, &sc.Chunk.SequenceIndex,
			&sc.Chunk.Text, &sc.Chunk.Offset, &blob, &sc.PageURL, &sc.PageTitle); err != nil {
			return nil, opErr("scan chunk", err)
		}
		sc.Chunk.Tenant = tenant
		sc.Chunk.Vector = storage.DecodeVector(blob)

		sc.Score = storage.CosineSimilarity(vector, sc.Chunk.Vector)
		if sc.Score < minScore {
			continue
		}
		scored = append(scored, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, opErr("iterate chunks", err)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}
