// Package ingest runs asynchronous scrape jobs: one job per URL, executed
// on a bounded worker pool, driving fetch, chunk, embed, and index. Jobs
// are independent; one URL's failure never blocks its batch siblings.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lorehound/lorehound/internal/domain"
	"github.com/lorehound/lorehound/internal/metrics"
	"github.com/lorehound/lorehound/internal/storage"
)

// Config holds worker pool settings.
type Config struct {
	// Workers is the number of concurrent scrape workers.
	Workers int
	// QueueSize bounds the pending job queue; a full queue fails new jobs
	// immediately instead of blocking the request.
	QueueSize int
	// HistoryLimit is how many terminal jobs are kept per tenant.
	HistoryLimit int
}

type task struct {
	jobID  string
	tenant domain.Tenant
	url    string
}

// Runner owns the job state machine and the worker pool.
type Runner struct {
	fetcher  Fetcher
	splitter Splitter
	embedder domain.Embedder
	store    Store
	cfg      Config
	logger   *zap.Logger

	queue chan task
	wg    sync.WaitGroup

	mu      sync.Mutex
	jobs    map[string]*domain.Job
	order   []string // job ids in creation order, for listing and pruning
	stopped bool
}

// NewRunner creates a Runner. Start must be called before enqueueing.
func NewRunner(fetcher Fetcher, splitter Splitter, embedder domain.Embedder, store Store, cfg Config, logger *zap.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		fetcher:  fetcher,
		splitter: splitter,
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		queue:    make(chan task, cfg.QueueSize),
		jobs:     make(map[string]*domain.Job),
	}
}

// Start launches the worker pool.
func (r *Runner) Start() {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for t := range r.queue {
				r.run(t)
			}
		}()
	}
}

// Stop drains the queue and waits for in-flight jobs to finish. Jobs
// enqueued after Stop fail immediately.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.queue)
	r.wg.Wait()
}

// Enqueue creates one pending job per URL and hands them to the pool. The
// call never fails on a bad URL; the corresponding job fails asynchronously
// instead. An empty URL list is ErrNoURLs.
func (r *Runner) Enqueue(_ context.Context, tenant domain.Tenant, urls []string) ([]domain.Job, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, domain.ErrNoURLs
	}

	out := make([]domain.Job, 0, len(urls))
	for _, u := range urls {
		out = append(out, r.enqueueOne(tenant, u))
	}
	return out, nil
}

// Rescrape re-runs the full pipeline for an existing page's URL.
func (r *Runner) Rescrape(ctx context.Context, tenant domain.Tenant, pageID int64) (domain.Job, domain.Page, error) {
	page, err := r.store.GetPage(ctx, tenant, pageID)
	if err != nil {
		return domain.Job{}, domain.Page{}, fmt.Errorf("load page %d: %w", pageID, err)
	}
	return r.enqueueOne(tenant, page.URL), page, nil
}

// Jobs returns the tenant's jobs, newest first.
func (r *Runner) Jobs(tenant domain.Tenant) []domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Job, 0, len(r.order))
	for _, id := range r.order {
		if j := r.jobs[id]; j != nil && j.Tenant == tenant {
			out = append(out, *j)
		}
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out
}

// Job returns one job by id.
func (r *Runner) Job(tenant domain.Tenant, id string) (domain.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok || j.Tenant != tenant {
		return domain.Job{}, false
	}
	return *j, true
}

func (r *Runner) enqueueOne(tenant domain.Tenant, url string) domain.Job {
	job := r.newJob(tenant, url)

	r.mu.Lock()
	stopped := r.stopped
	r.mu.Unlock()
	if stopped {
		r.failJob(job.ID, fmt.Errorf("runner stopped"))
		j, _ := r.Job(tenant, job.ID)
		return j
	}

	select {
	case r.queue <- task{jobID: job.ID, tenant: tenant, url: url}:
		return job
	default:
		r.failJob(job.ID, fmt.Errorf("job queue full (%d pending)", r.cfg.QueueSize))
		j, _ := r.Job(tenant, job.ID)
		return j
	}
}

func (r *Runner) newJob(tenant domain.Tenant, url string) domain.Job {
	job := &domain.Job{
		ID:        uuid.NewString(),
		Tenant:    tenant,
		URL:       url,
		Status:    domain.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	r.order = append(r.order, job.ID)
	r.pruneLocked(tenant)
	return *job
}

// pruneLocked drops the oldest terminal jobs beyond the per-tenant history
// limit. Callers hold mu.
func (r *Runner) pruneLocked(tenant domain.Tenant) {
	var count int
	for _, id := range r.order {
		if j := r.jobs[id]; j != nil && j.Tenant == tenant {
			count++
		}
	}
	if count <= r.cfg.HistoryLimit {
		return
	}

	excess := count - r.cfg.HistoryLimit
	kept := r.order[:0]
	for _, id := range r.order {
		j := r.jobs[id]
		if j == nil {
			continue
		}
		if excess > 0 && j.Tenant == tenant && j.Status.Terminal() {
			delete(r.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
}

// run executes one job through the scrape pipeline. Any step's failure
// marks the job failed and, when the page had no prior indexed content,
// marks the page failed too.
func (r *Runner) run(t task) {
	if !r.transition(t.jobID, domain.JobStatusRunning, "") {
		return
	}
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	ctx := context.Background()
	log := r.logger.With(
		zap.String("job_id", t.jobID),
		zap.String("tenant", string(t.tenant)),
		zap.String("url", t.url),
	)

	canonical, err := r.fetcher.Canonicalize(t.url)
	if err != nil {
		log.Warn("Job rejected before fetch", zap.Error(err))
		r.failJob(t.jobID, err)
		return
	}

	upsert, err := r.store.UpsertPage(ctx, t.tenant, canonical)
	if err != nil {
		log.Error("Page upsert failed", zap.Error(err))
		r.failJob(t.jobID, err)
		return
	}

	// On a rescrape of a ready page, keep its indexed title and text around
	// so a mid-pipeline failure can put them back.
	var prior domain.Page
	if !upsert.Created && upsert.Prior == domain.PageStatusReady {
		prior, err = r.store.GetPage(ctx, t.tenant, upsert.Page.ID)
		if err != nil {
			log.Warn("Prior page snapshot failed", zap.Int64("page_id", upsert.Page.ID), zap.Error(err))
			prior = domain.Page{}
		}
	}

	if err := r.index(ctx, t.tenant, upsert, canonical); err != nil {
		log.Warn("Scrape pipeline failed", zap.Int64("page_id", upsert.Page.ID), zap.Error(err))
		r.restorePage(ctx, t.tenant, upsert, prior)
		r.failJob(t.jobID, err)
		return
	}

	r.transition(t.jobID, domain.JobStatusDone, "")
	metrics.JobsTotal.WithLabelValues("done").Inc()
	log.Info("Page indexed", zap.Int64("page_id", upsert.Page.ID))
}

// index drives fetch → chunk → embed → store for one page. The fetched
// title and text stay in memory until the chunks are ready to write, so a
// failed chunk or embed step never leaves them half-persisted.
func (r *Runner) index(ctx context.Context, tenant domain.Tenant, upsert storage.UpsertResult, canonical string) error {
	content, err := r.fetcher.Fetch(ctx, canonical)
	if err != nil {
		return err
	}

	passages := r.splitter.Split(content.Text)
	if len(passages) == 0 {
		return fmt.Errorf("no passages in %s: %w", canonical, domain.ErrNoContent)
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	batch, err := domain.EmbedBatchOrFallback(ctx, r.embedder, texts)
	if err != nil {
		return err
	}
	if len(batch.Embeddings) != len(passages) {
		return fmt.Errorf("vector count mismatch: %d passages, %d vectors: %w",
			len(passages), len(batch.Embeddings), domain.ErrEmbeddingFailed)
	}

	chunks := make([]domain.Chunk, len(passages))
	for i, p := range passages {
		chunks[i] = domain.Chunk{
			PageID:        upsert.Page.ID,
			Tenant:        tenant,
			SequenceIndex: p.Index,
			Text:          p.Text,
			Vector:        batch.Embeddings[i],
			Offset:        p.Offset,
		}
	}

	if err := r.store.SetPageFetched(ctx, tenant, upsert.Page.ID, content.Title, content.Text); err != nil {
		return fmt.Errorf("store fetched page: %w", err)
	}

	if upsert.Created {
		if err := r.store.InsertChunks(ctx, tenant, upsert.Page.ID, chunks); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return nil
	}
	if err := r.store.ReplaceChunks(ctx, tenant, upsert.Page.ID, chunks); err != nil {
		return fmt.Errorf("replace chunks: %w", err)
	}
	return nil
}

// restorePage puts a page back into its pre-job state after a failure: a
// page that was ready keeps its indexed title, text, and status, anything
// else is marked failed.
func (r *Runner) restorePage(ctx context.Context, tenant domain.Tenant, upsert storage.UpsertResult, prior domain.Page) {
	if upsert.Created || upsert.Prior != domain.PageStatusReady {
		if err := r.store.SetPageStatus(ctx, tenant, upsert.Page.ID, domain.PageStatusFailed); err != nil {
			r.logger.Warn("Failed to restore page status",
				zap.Int64("page_id", upsert.Page.ID),
				zap.Error(err),
			)
		}
		return
	}

	// The chunks were never touched on failure; the page row may carry the
	// new never-indexed text, so write the indexed one back.
	if prior.ID != 0 {
		if err := r.store.SetPageFetched(ctx, tenant, upsert.Page.ID, prior.Title, prior.RawText); err != nil {
			r.logger.Warn("Failed to restore page content",
				zap.Int64("page_id", upsert.Page.ID),
				zap.Error(err),
			)
		}
	}
	if err := r.store.SetPageStatus(ctx, tenant, upsert.Page.ID, domain.PageStatusReady); err != nil {
		r.logger.Warn("Failed to restore page status",
			zap.Int64("page_id", upsert.Page.ID),
			zap.Error(err),
		)
	}
}

func (r *Runner) failJob(id string, err error) {
	r.transition(id, domain.JobStatusFailed, err.Error())
	metrics.JobsTotal.WithLabelValues("failed").Inc()
}

// transition moves a job along the pending→running→{done,failed} machine.
// Illegal transitions are dropped.
func (r *Runner) transition(id string, next domain.JobStatus, errMsg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok || !j.Status.CanTransition(next) {
		return false
	}
	j.Status = next
	j.Error = errMsg
	return true
}
