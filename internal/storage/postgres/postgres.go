// Package postgres implements storage.Store on PostgreSQL with the pgvector
// extension. Similarity runs in SQL via the <=> cosine distance operator.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/lorehound/lorehound/internal/domain"
	"github.com/lorehound/lorehound/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// Store is a PostgreSQL-backed storage.Store. Search results carry scores
// and page references but not the stored vectors.
type Store struct {
	db *sql.DB
}

// NewStore connects to the database and migrates the schema. dims is the
// embedding dimension baked into the chunks table.
func NewStore(dsn string, dims int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(schemaSQL, dims)); err != nil {
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

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func opErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreConflict, err)
	}
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
		createdAt time.Time
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, status, created_at FROM pages WHERE tenant = $1 AND url = $2 FOR UPDATE`,
		string(tenant), url).Scan(&id, &status, &createdAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = tx.QueryRowContext(ctx,
			`INSERT INTO pages (tenant, url, status) VALUES ($1, $2, $3) RETURNING id, created_at`,
			string(tenant), url, string(domain.PageStatusPending)).Scan(&id, &createdAt)
		if err != nil {
			return storage.UpsertResult{}, opErr("insert page", err)
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
				CreatedAt: createdAt,
			},
			Created: true,
		}, nil

	case err != nil:
		return storage.UpsertResult{}, opErr("query page", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE pages SET status = $1 WHERE id = $2`,
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
			CreatedAt: createdAt,
		},
		Prior: domain.PageStatus(status),
	}, nil
}

// GetPage returns a page by id.
func (s *Store) GetPage(ctx context.Context, tenant domain.Tenant, id int64) (domain.Page, error) {
	if err := tenant.Validate(); err != nil {
		return domain.Page{}, err
	}
	return s.queryPage(ctx, tenant,
		`SELECT id, url, title, raw_text, status, created_at FROM pages WHERE tenant = $1 AND id = $2`, id)
}

// PageByURL returns a page by its canonical URL.
func (s *Store) PageByURL(ctx context.Context, tenant domain.Tenant, url string) (domain.Page, error) {
	if err := tenant.Validate(); err != nil {
		return domain.Page{}, err
	}
	return s.queryPage(ctx, tenant,
		`SELECT id, url, title, raw_text, status, created_at FROM pages WHERE tenant = $1 AND url = $2`, url)
}

func (s *Store) queryPage(ctx context.Context, tenant domain.Tenant, query string, arg any) (domain.Page, error) {
	var (
		p      domain.Page
		status string
	)
	err := s.db.QueryRowContext(ctx, query, string(tenant), arg).
		Scan(&p.ID, &p.URL, &p.Title, &p.RawText, &status, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Page{}, domain.ErrPageNotFound
	}
	if err != nil {
		return domain.Page{}, opErr("query page", err)
	}

	p.Tenant = tenant
	p.Status = domain.PageStatus(status)
	return p, nil
}

// ListPages returns page metadata ordered by creation.
func (s *Store) ListPages(ctx context.Context, tenant domain.Tenant) ([]domain.PageMeta, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, title, status, created_at FROM pages WHERE tenant = $1 ORDER BY id`,
		string(tenant))
	if err != nil {
		return nil, opErr("query pages", err)
	}
	defer rows.Close()

	metas := make([]domain.PageMeta, 0)
	for rows.Next() {
		var (
			m      domain.PageMeta
			status string
		)
		if err := rows.Scan(&m.ID, &m.URL, &m.Title, &status, &m.CreatedAt); err != nil {
			return nil, opErr("scan page", err)
		}
		m.Status = domain.PageStatus(status)
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
		`UPDATE pages SET title = $1, raw_text = $2, status = $3 WHERE tenant = $4 AND id = $5`,
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
		`UPDATE pages SET status = $1 WHERE tenant = $2 AND id = $3`,
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

// DeletePage removes the page; chunks cascade via the foreign key.
func (s *Store) DeletePage(ctx context.Context, tenant domain.Tenant, id int64) error {
	if err := tenant.Validate(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pages WHERE tenant = $1 AND id = $2`, string(tenant), id)
	if err != nil {
		return opErr("delete page", err)
	}
	return requireRow(res)
}

// Reset removes every page and chunk owned by the tenant.
func (s *Store) Reset(ctx context.Context, tenant domain.Tenant) error {
	if err := tenant.Validate(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM pages WHERE tenant = $1`, string(tenant)); err != nil {
		return opErr("reset pages", err)
	}
	return nil
}

// InsertChunks appends chunks for the page and marks it ready.
func (s *Store) InsertChunks(ctx context.Context, tenant domain.Tenant, pageID int64, chunks []domain.Chunk) error {
	return s.writeChunks(ctx, tenant, pageID, chunks, false)
}

// ReplaceChunks swaps the page's chunk set in one transaction and marks the
// page ready. Concurrent queries observe the old set until the commit.
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
		`SELECT 1 FROM pages WHERE tenant = $1 AND id = $2 FOR UPDATE`,
		string(tenant), pageID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrPageNotFound
	}
	if err != nil {
		return opErr("query page", err)
	}

	if replace {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chunks WHERE tenant = $1 AND page_id = $2`,
			string(tenant), pageID); err != nil {
			return opErr("delete old chunks", err)
		}
	}

	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (page_id, tenant, seq, content, rune_offset, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			pageID, string(tenant), c.SequenceIndex, c.Text, c.Offset, formatVector(c.Vector)); err != nil {
			return opErr("insert chunk", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE pages SET status = $1 WHERE tenant = $2 AND id = $3`,
		string(domain.PageStatusReady), string(tenant), pageID); err != nil {
		return opErr("mark page ready", err)
	}

	if err := tx.Commit(); err != nil {
		return opErr("commit write chunks", err)
	}
	return nil
}

// SearchChunks ranks chunks by cosine distance in SQL. Score is
// 1 - distance; ties keep insertion order.
func (s *Store) SearchChunks(ctx context.Context, tenant domain.Tenant, vector []float32, k int, minScore float64) ([]domain.ScoredChunk, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT c.id, c.page_id, c.seq, c.content, c.rune_offset,
		       1 - (c.embedding <=> $2) AS score,
		       p.url, p.title
		FROM chunks c
		JOIN pages p ON p.id = c.page_id
		WHERE c.tenant = $1 AND 1 - (c.embedding <=> $2) >= $3
		ORDER BY c.embedding <=> $2, c.id`
	args := []any{string(tenant), formatVector(vector), minScore}
	if k > 0 {
		query += ` LIMIT $4`
		args = append(args, k)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, opErr("query chunks", err)
	}
	defer rows.Close()

	var scored []domain.ScoredChunk
	for rows.Next() {
		var sc domain.ScoredChunk
		if err := rows.Scan(&sc.ChunkID, &sc.Chunk.PageID, &sc.Chunk.SequenceIndex,
			&sc.Chunk.Text, &sc.Chunk.Offset, &sc.Score, &sc.PageURL, &sc.PageTitle); err != nil {
			return nil, opErr("scan chunk", err)
		}
		sc.Chunk.Tenant = tenant
		scored = append(scored, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, opErr("iterate chunks", err)
	}
	return scored, nil
}

// formatVector renders a vector in pgvector text form: "[0.1,0.2,0.3]".
func formatVector(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
