package lorehound

import "github.com/lorehound/lorehound/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrPageNotFound           = domain.ErrPageNotFound
	ErrNoURLs                 = domain.ErrNoURLs
	ErrInvalidURL             = domain.ErrInvalidURL
	ErrEmptyQuestion          = domain.ErrEmptyQuestion
	ErrInvalidTenant          = domain.ErrInvalidTenant
	ErrFetchFailed            = domain.ErrFetchFailed
	ErrNoContent              = domain.ErrNoContent
	ErrEmbeddingFailed        = domain.ErrEmbeddingFailed
	ErrEmbeddingQuotaExceeded = domain.ErrEmbeddingQuotaExceeded
	ErrSynthesisFailed        = domain.ErrSynthesisFailed
	ErrRateLimited            = domain.ErrRateLimited
)
