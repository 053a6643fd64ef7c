// Package chi exposes the HTTP API: scrape ingestion, page inventory,
// ask/summary synthesis, job inspection, health and metrics.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lorehound/lorehound/internal/domain"
	healthuc "github.com/lorehound/lorehound/internal/usecase/health"
)

// Scraper runs the asynchronous scrape pipeline.
type Scraper interface {
	Enqueue(ctx context.Context, tenant domain.Tenant, urls []string) ([]domain.Job, error)
	Rescrape(ctx context.Context, tenant domain.Tenant, pageID int64) (domain.Job, domain.Page, error)
	Jobs(tenant domain.Tenant) []domain.Job
}

// Asker answers questions over indexed content.
type Asker interface {
	Answer(ctx context.Context, tenant domain.Tenant, question string, debug bool) (domain.Answer, error)
}

// Summarizer condenses selected pages.
type Summarizer interface {
	Summarize(ctx context.Context, tenant domain.Tenant, urls []string, pageIDs []int64) (string, error)
}

// PageManager handles the page inventory.
type PageManager interface {
	List(ctx context.Context, tenant domain.Tenant) ([]domain.PageMeta, error)
	Delete(ctx context.Context, tenant domain.Tenant, id int64) error
	Reset(ctx context.Context, tenant domain.Tenant) error
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server wires the use case services into HTTP handlers.
type Server struct {
	scraper       Scraper
	ask           Asker
	summary       Summarizer
	pages         PageManager
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	scraper Scraper,
	ask Asker,
	summary Summarizer,
	pages PageManager,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		scraper: scraper,
		ask:     ask,
		summary: summary,
		pages:   pages,
		health:  health,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrPageNotFound, http.StatusNotFound, "page_not_found"),
		sentinelHandler(domain.ErrEmptyQuestion, http.StatusBadRequest, "validation_failed"),
		sentinelHandler(domain.ErrNoURLs, http.StatusBadRequest, "validation_failed"),
		sentinelHandler(domain.ErrInvalidURL, http.StatusBadRequest, "validation_failed"),
		sentinelHandler(domain.ErrInvalidTenant, http.StatusBadRequest, "invalid_tenant"),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, "embedding_quota_exceeded"),
		sentinelHandler(domain.ErrEmbeddingFailed, http.StatusBadGateway, "embedding_provider_error"),
		sentinelHandler(domain.ErrSynthesisFailed, http.StatusBadGateway, "synthesis_provider_error"),
		sentinelHandler(domain.ErrFetchFailed, http.StatusBadGateway, "fetch_failed"),
		sentinelHandler(domain.ErrNoContent, http.StatusUnprocessableEntity, "no_content"),
		sentinelHandler(domain.ErrStoreUnavailable, http.StatusInternalServerError, "store_unavailable"),
	}
	return s
}

// Routes mounts every API route on the router. The tenant middleware must
// already be installed upstream.
func (s *Server) Routes(r chi.Router) {
	r.Post("/scrape", s.Scrape)
	r.Get("/pages", s.ListPages)
	r.Post("/ask", s.Ask)
	r.Post("/summary", s.Summary)
	r.Post("/rescrape/{page_id}", s.Rescrape)
	r.Delete("/pages/{page_id}", s.DeletePage)
	r.Post("/reset-session", s.ResetSession)
	r.Get("/jobs", s.ListJobs)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type scrapeRequest struct {
	URLs []string `json:"urls"`
}

type scrapeResponse struct {
	Message string   `json:"message"`
	JobIDs  []string `json:"job_ids"`
}

// Scrape handles POST /scrape.
func (s *Server) Scrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	jobs, err := s.scraper.Enqueue(r.Context(), TenantFromContext(r.Context()), req.URLs)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	writeJSON(w, http.StatusAccepted, scrapeResponse{
		Message: fmt.Sprintf("Scraping started for %d URLs.", len(jobs)),
		JobIDs:  ids,
	})
}

// ListPages handles GET /pages.
func (s *Server) ListPages(w http.ResponseWriter, r *http.Request) {
	metas, err := s.pages.List(r.Context(), TenantFromContext(r.Context()))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": metas})
}

type askRequest struct {
	Question string `json:"question"`
	Debug    bool   `json:"debug,omitempty"`
}

type askResponse struct {
	Answer  string             `json:"answer"`
	Sources []domain.Source    `json:"sources"`
	Trace   *domain.QueryTrace `json:"trace,omitempty"`
}

// Ask handles POST /ask.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	answer, err := s.ask.Answer(ctx, TenantFromContext(r.Context()), req.Question, req.Debug)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, askResponse{
		Answer:  answer.Text,
		Sources: answer.Sources,
		Trace:   answer.Trace,
	})
}

type summaryRequest struct {
	URLs    []string `json:"urls,omitempty"`
	PageIDs []int64  `json:"page_ids,omitempty"`
}

// Summary handles POST /summary.
func (s *Server) Summary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	text, err := s.summary.Summarize(r.Context(), TenantFromContext(r.Context()), req.URLs, req.PageIDs)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": text})
}

type rescrapeResponse struct {
	Message string `json:"message"`
	PageID  int64  `json:"page_id"`
	URL     string `json:"url"`
	JobID   string `json:"job_id"`
}

// Rescrape handles POST /rescrape/{page_id}.
func (s *Server) Rescrape(w http.ResponseWriter, r *http.Request) {
	id, ok := pageIDParam(w, r)
	if !ok {
		return
	}

	job, page, err := s.scraper.Rescrape(r.Context(), TenantFromContext(r.Context()), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rescrapeResponse{
		Message: "Rescrape started",
		PageID:  page.ID,
		URL:     page.URL,
		JobID:   job.ID,
	})
}

// DeletePage handles DELETE /pages/{page_id}.
func (s *Server) DeletePage(w http.ResponseWriter, r *http.Request) {
	id, ok := pageIDParam(w, r)
	if !ok {
		return
	}

	if err := s.pages.Delete(r.Context(), TenantFromContext(r.Context()), id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "page_id": id})
}

// ResetSession handles POST /reset-session. Clears only the caller's tenant.
func (s *Server) ResetSession(w http.ResponseWriter, r *http.Request) {
	if err := s.pages.Reset(r.Context(), TenantFromContext(r.Context())); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// ListJobs handles GET /jobs.
func (s *Server) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.scraper.Jobs(TenantFromContext(r.Context()))
	if jobs == nil {
		jobs = []domain.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func pageIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "page_id")
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "page_id must be a positive integer")
		return 0, false
	}
	return id, true
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Used {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrPageNotFound,
		domain.ErrEmptyQuestion,
		domain.ErrNoURLs,
		domain.ErrInvalidURL,
		domain.ErrInvalidTenant,
		domain.ErrRateLimited,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrEmbeddingFailed,
		domain.ErrSynthesisFailed,
		domain.ErrFetchFailed,
		domain.ErrNoContent,
		domain.ErrStoreUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
