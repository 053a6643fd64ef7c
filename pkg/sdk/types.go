package lorehound

import (
	"time"

	"github.com/lorehound/lorehound/internal/domain"
)

// JobStatus tracks one asynchronous scrape job.
type JobStatus string

// Job status constants.
const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Terminal reports whether the job will not change status again.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// Job is one scrape-and-index unit of work.
type Job struct {
	ID        string
	URL       string
	Status    JobStatus
	Error     string
	CreatedAt time.Time
}

// PageStatus tracks a stored page through the pipeline.
type PageStatus string

// Page status constants.
const (
	PagePending PageStatus = "pending"
	PageFetched PageStatus = "fetched"
	PageReady   PageStatus = "ready"
	PageFailed  PageStatus = "failed"
)

// PageInfo is the listing view of a stored page.
type PageInfo struct {
	ID        int64
	URL       string
	Title     string
	Status    PageStatus
	CreatedAt time.Time
}

// Page is a stored page including its extracted text.
type Page struct {
	PageInfo
	RawText string
}

// Source is one cited page behind an answer.
type Source struct {
	URL     string
	Title   string
	Score   float64
	Snippet string
}

// Answer is the result of one Ask call.
type Answer struct {
	Text    string
	Sources []Source
	Trace   *Trace
}

// Trace is the optional debug view of retrieval: scores per chunk, the
// literal prompt, and the raw completion.
type Trace struct {
	Question      string
	Retrieved     []TraceEntry
	Prompt        string
	RawCompletion string
}

// TraceEntry records one retrieved chunk and its similarity score.
type TraceEntry struct {
	ChunkID int64
	Score   float64
}

// Hit is one similarity-search result.
type Hit struct {
	ChunkID int64
	Score   float64
	Text    string
	URL     string
	Title   string
}

func jobFromDomain(j domain.Job) Job {
	return Job{
		ID:        j.ID,
		URL:       j.URL,
		Status:    JobStatus(j.Status),
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
	}
}

func jobsFromDomain(jobs []domain.Job) []Job {
	out := make([]Job, len(jobs))
	for i, j := range jobs {
		out[i] = jobFromDomain(j)
	}
	return out
}

func pageInfoFromMeta(m domain.PageMeta) PageInfo {
	return PageInfo{
		ID:        m.ID,
		URL:       m.URL,
		Title:     m.Title,
		Status:    PageStatus(m.Status),
		CreatedAt: m.CreatedAt,
	}
}

func pageFromDomain(p domain.Page) Page {
	return Page{
		PageInfo: pageInfoFromMeta(p.Meta()),
		RawText:  p.RawText,
	}
}

func answerFromDomain(a domain.Answer) Answer {
	sources := make([]Source, len(a.Sources))
	for i, s := range a.Sources {
		sources[i] = Source{URL: s.URL, Title: s.Title, Score: s.Score, Snippet: s.Snippet}
	}
	answer := Answer{Text: a.Text, Sources: sources}
	if a.Trace != nil {
		entries := make([]TraceEntry, len(a.Trace.Retrieved))
		for i, e := range a.Trace.Retrieved {
			entries[i] = TraceEntry{ChunkID: e.ChunkID, Score: e.Score}
		}
		answer.Trace = &Trace{
			Question:      a.Trace.Question,
			Retrieved:     entries,
			Prompt:        a.Trace.Prompt,
			RawCompletion: a.Trace.RawCompletion,
		}
	}
	return answer
}

func hitsFromDomain(hits []domain.ScoredChunk) []Hit {
	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = Hit{
			ChunkID: h.ChunkID,
			Score:   h.Score,
			Text:    h.Chunk.Text,
			URL:     h.PageURL,
			Title:   h.PageTitle,
		}
	}
	return out
}
