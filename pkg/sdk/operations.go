package lorehound

import (
	"context"

	"github.com/lorehound/lorehound/internal/domain"
)

// Scrape enqueues one job per URL and returns immediately. Failed URLs
// surface as failed jobs, not as an error; check Job.Status.
func (c *Client) Scrape(ctx context.Context, tenant string, urls []string) ([]Job, error) {
	jobs, err := c.scrape.Enqueue(ctx, domain.TenantOrDefault(tenant), urls)
	if err != nil {
		return nil, err
	}
	return jobsFromDomain(jobs), nil
}

// Rescrape refetches and reindexes an already-stored page, keeping its id.
func (c *Client) Rescrape(ctx context.Context, tenant string, pageID int64) (Job, error) {
	job, _, err := c.scrape.Rescrape(ctx, domain.TenantOrDefault(tenant), pageID)
	if err != nil {
		return Job{}, err
	}
	return jobFromDomain(job), nil
}

// Jobs returns the tenant's scrape jobs, newest first.
func (c *Client) Jobs(tenant string) []Job {
	return jobsFromDomain(c.scrape.Jobs(domain.TenantOrDefault(tenant)))
}

// Job returns one job by id.
func (c *Client) Job(tenant, id string) (Job, bool) {
	job, ok := c.scrape.Job(domain.TenantOrDefault(tenant), id)
	if !ok {
		return Job{}, false
	}
	return jobFromDomain(job), true
}

// Ask answers a question over the tenant's indexed content.
func (c *Client) Ask(ctx context.Context, tenant, question string) (Answer, error) {
	answer, err := c.ask.Answer(ctx, domain.TenantOrDefault(tenant), question, false)
	if err != nil {
		return Answer{}, err
	}
	return answerFromDomain(answer), nil
}

// AskDebug answers a question and includes the retrieval trace.
func (c *Client) AskDebug(ctx context.Context, tenant, question string) (Answer, error) {
	answer, err := c.ask.Answer(ctx, domain.TenantOrDefault(tenant), question, true)
	if err != nil {
		return Answer{}, err
	}
	return answerFromDomain(answer), nil
}

// Search returns the top-k chunks most similar to the query, without
// calling the generation model.
func (c *Client) Search(ctx context.Context, tenant, query string, k int) ([]Hit, error) {
	hits, err := c.ask.Search(ctx, domain.TenantOrDefault(tenant), query, k)
	if err != nil {
		return nil, err
	}
	return hitsFromDomain(hits), nil
}

// Summarize condenses the selected pages, addressed by URL or page id.
func (c *Client) Summarize(ctx context.Context, tenant string, urls []string, pageIDs []int64) (string, error) {
	return c.summary.Summarize(ctx, domain.TenantOrDefault(tenant), urls, pageIDs)
}

// Pages lists the tenant's stored pages in creation order.
func (c *Client) Pages(ctx context.Context, tenant string) ([]PageInfo, error) {
	metas, err := c.pages.List(ctx, domain.TenantOrDefault(tenant))
	if err != nil {
		return nil, err
	}
	out := make([]PageInfo, len(metas))
	for i, m := range metas {
		out[i] = pageInfoFromMeta(m)
	}
	return out, nil
}

// Page returns one stored page including its extracted text.
func (c *Client) Page(ctx context.Context, tenant string, id int64) (Page, error) {
	page, err := c.pages.Get(ctx, domain.TenantOrDefault(tenant), id)
	if err != nil {
		return Page{}, err
	}
	return pageFromDomain(page), nil
}

// DeletePage removes a page and its indexed chunks.
func (c *Client) DeletePage(ctx context.Context, tenant string, id int64) error {
	return c.pages.Delete(ctx, domain.TenantOrDefault(tenant), id)
}

// Reset clears every page and chunk the tenant owns.
func (c *Client) Reset(ctx context.Context, tenant string) error {
	return c.pages.Reset(ctx, domain.TenantOrDefault(tenant))
}
