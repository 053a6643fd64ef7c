package ask

import (
	"context"

	"github.com/lorehound/lorehound/internal/domain"
)

// Searcher is the similarity-search surface of the store.
type Searcher interface {
	SearchChunks(ctx context.Context, tenant domain.Tenant, vector []float32, k int, minScore float64) ([]domain.ScoredChunk, error)
}
