package domain

import "errors"

var (
	// ErrFetchFailed signals an HTTP fetch failure (status, timeout, network).
	ErrFetchFailed = errors.New("fetch failed")
	// ErrUnsupportedContent signals a content type the fetcher cannot extract.
	ErrUnsupportedContent = errors.New("unsupported content type")
	// ErrNoContent signals that extraction produced no usable text.
	ErrNoContent = errors.New("no extractable content")
	// ErrEmbeddingFailed signals an embedding provider failure after retries.
	ErrEmbeddingFailed = errors.New("embedding failed")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding token budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrRateLimited signals a provider rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrSynthesisFailed signals an empty or malformed completion.
	ErrSynthesisFailed = errors.New("synthesis failed")

	// ErrInvalidTenant signals a missing or empty tenant key.
	ErrInvalidTenant = errors.New("invalid tenant")
	// ErrPageNotFound signals a missing page.
	ErrPageNotFound = errors.New("page not found")
	// ErrStoreConflict signals a write that would silently overwrite existing rows.
	ErrStoreConflict = errors.New("store conflict")
	// ErrStoreUnavailable signals a storage backend failure.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrEmptyQuestion signals an ask request without a question.
	ErrEmptyQuestion = errors.New("empty question")
	// ErrNoURLs signals a scrape or summary request without targets.
	ErrNoURLs = errors.New("no urls given")
	// ErrInvalidURL signals a URL that cannot be canonicalized.
	ErrInvalidURL = errors.New("invalid url")
)
