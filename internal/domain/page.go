package domain

import "time"

// PageStatus tracks a page through the scrape pipeline.
type PageStatus string

const (
	// PageStatusPending marks a page that is queued but not yet fetched.
	PageStatusPending PageStatus = "pending"
	// PageStatusFetched marks a page whose text is extracted but not indexed.
	PageStatusFetched PageStatus = "fetched"
	// PageStatusReady marks a page with at least one indexed chunk.
	PageStatusReady PageStatus = "ready"
	// PageStatusFailed marks a page whose pipeline failed before any chunk existed.
	PageStatusFailed PageStatus = "failed"
)

// Page is one scraped URL owned by a tenant. Pages are unique per
// (tenant, url); rescraping reuses the id.
type Page struct {
	ID        int64
	Tenant    Tenant
	URL       string
	Title     string
	RawText   string
	Status    PageStatus
	CreatedAt time.Time
}

// PageMeta is the listing projection of a page, without raw text.
type PageMeta struct {
	ID        int64      `json:"id"`
	URL       string     `json:"url"`
	Title     string     `json:"title"`
	Status    PageStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// Meta strips the raw text off a page.
func (p Page) Meta() PageMeta {
	return PageMeta{ID: p.ID, URL: p.URL, Title: p.Title, Status: p.Status, CreatedAt: p.CreatedAt}
}
