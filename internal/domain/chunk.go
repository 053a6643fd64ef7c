package domain

// Chunk is one bounded passage of page text plus its embedding vector.
// SequenceIndex orders chunks within a page; Offset is the rune offset of
// the passage start in the page's raw text.
type Chunk struct {
	PageID        int64
	Tenant        Tenant
	SequenceIndex int
	Text          string
	Vector        []float32
	Offset        int
}

// ScoredChunk is a chunk returned from similarity search together with its
// owning page reference. Score is cosine similarity, higher is better.
type ScoredChunk struct {
	Chunk     Chunk
	ChunkID   int64
	Score     float64
	PageURL   string
	PageTitle string
}

// Overlaps reports whether two chunks of the same page cover intersecting
// rune ranges of the source text.
func (c Chunk) Overlaps(other Chunk) bool {
	if c.PageID != other.PageID {
		return false
	}
	aStart, aEnd := c.Offset, c.Offset+len([]rune(c.Text))
	bStart, bEnd := other.Offset, other.Offset+len([]rune(other.Text))
	return aStart < bEnd && bStart < aEnd
}
