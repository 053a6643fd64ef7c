package domain

// Source is one cited page behind an answer, deduplicated by page.
// Snippet is a short preview of the highest-scoring chunk used.
type Source struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

// TraceEntry records one retrieved chunk and its similarity score.
type TraceEntry struct {
	ChunkID int64   `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// QueryTrace is the debug view of one ask request: what was retrieved, the
// literal prompt, and the raw completion. Ephemeral, never persisted.
type QueryTrace struct {
	Question      string       `json:"question"`
	Retrieved     []TraceEntry `json:"retrieved"`
	Prompt        string       `json:"prompt"`
	RawCompletion string       `json:"raw_completion"`
}

// Answer is the result of one ask request. Trace is nil unless debug was
// requested.
type Answer struct {
	Text    string
	Sources []Source
	Trace   *QueryTrace
}
