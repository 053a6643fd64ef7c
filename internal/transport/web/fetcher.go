// Package web downloads URLs and extracts plain text and titles from HTML,
// XML, plain-text, and PDF responses.
package web

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lorehound/lorehound/internal/domain"
	"github.com/lorehound/lorehound/internal/metrics"
)

// Content types the fetcher extracts text from.
var textContentTypes = map[string]bool{
	"text/html":             true,
	"application/xhtml+xml": true,
	"application/xml":       true,
	"text/plain":            true,
}

const pdfContentType = "application/pdf"

// Config holds fetcher settings.
type Config struct {
	Timeout           time.Duration
	MaxAttempts       int
	MaxBodyBytes      int64
	UserAgent         string
	RequestsPerSecond float64
	Burst             int
	Logger            *zap.Logger
}

// Fetcher downloads one URL per call with bounded retries and a per-host
// politeness limit.
type Fetcher struct {
	client       *http.Client
	maxAttempts  int
	maxBodyBytes int64
	userAgent    string
	limiters     *hostLimiters
	logger       *zap.Logger
}

// New creates a Fetcher. Zero config fields fall back to defaults.
func New(cfg *Config) *Fetcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = 15 << 20
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "lorehound/1.0"
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 4
	}
	return &Fetcher{
		client:       &http.Client{Timeout: timeout},
		maxAttempts:  maxAttempts,
		maxBodyBytes: maxBodyBytes,
		userAgent:    userAgent,
		limiters:     newHostLimiters(rps, burst),
		logger:       logger,
	}
}

// Canonicalize exposes CanonicalURL as a method for pipeline consumers.
func (f *Fetcher) Canonicalize(raw string) (string, error) {
	return CanonicalURL(raw)
}

// CanonicalURL normalizes a raw URL: trims whitespace, defaults the scheme
// to https, lowercases the host, and drops the fragment.
func CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url: %w", domain.ErrInvalidURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, domain.ErrInvalidURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q: %w", u.Scheme, domain.ErrInvalidURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host: %w", raw, domain.ErrInvalidURL)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String(), nil
}

// Fetch downloads rawURL and extracts its title and visible text.
// Transient failures (network errors, 5xx) are retried with exponential
// backoff; 4xx responses fail immediately. Extraction yielding no text is
// domain.ErrNoContent.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (domain.ScrapedContent, error) {
	canonical, err := CanonicalURL(rawURL)
	if err != nil {
		return domain.ScrapedContent{}, err
	}
	u, _ := url.Parse(canonical)

	if err := f.limiters.wait(ctx, u.Host); err != nil {
		return domain.ScrapedContent{}, fmt.Errorf("rate limit wait: %w", err)
	}

	start := time.Now()
	body, contentType, err := f.get(ctx, canonical)
	if err != nil {
		metrics.FetchRequestDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return domain.ScrapedContent{}, err
	}
	metrics.FetchRequestDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	content, err := f.extract(canonical, u.Host, body, contentType)
	if err != nil {
		return domain.ScrapedContent{}, err
	}
	return content, nil
}

// get runs the retry loop around one GET request.
func (f *Fetcher) get(ctx context.Context, fetchURL string) ([]byte, string, error) {
	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if attempt > 1 {
			// 1s, 2s, 4s.
			backoff := time.Duration(1<<(attempt-2)) * time.Second
			select {
			case <-ctx.Done():
				return nil, "", fmt.Errorf("fetch canceled: %w", ctx.Err())
			case <-time.After(backoff):
			}
			f.logger.Debug("retrying fetch",
				zap.String("url", fetchURL),
				zap.Int("attempt", attempt),
			)
		}

		body, contentType, retryable, err := f.getOnce(ctx, fetchURL)
		if err == nil {
			return body, contentType, nil
		}
		lastErr = err
		if !retryable {
			return nil, "", lastErr
		}
		f.logger.Warn("fetch attempt failed",
			zap.String("url", fetchURL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return nil, "", lastErr
}

// getOnce performs a single GET. The bool reports whether the failure is
// worth retrying.
func (f *Fetcher) getOnce(ctx context.Context, fetchURL string) ([]byte, string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, http.NoBody)
	if err != nil {
		return nil, "", false, fmt.Errorf("build request: %w", domain.ErrInvalidURL)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		// Timeouts and connection failures are transient.
		return nil, "", true, fmt.Errorf("get %s: %v: %w", fetchURL, err, domain.ErrFetchFailed)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to body read
	case resp.StatusCode >= 500:
		return nil, "", true, fmt.Errorf("get %s: status %d: %w", fetchURL, resp.StatusCode, domain.ErrFetchFailed)
	default:
		return nil, "", false, fmt.Errorf("get %s: status %d: %w", fetchURL, resp.StatusCode, domain.ErrFetchFailed)
	}

	contentType := resp.Header.Get("Content-Type")
	if !f.supportedContentType(contentType, fetchURL) {
		return nil, "", false, fmt.Errorf("get %s: content type %q: %w", fetchURL, contentType, domain.ErrUnsupportedContent)
	}

	// Oversized bodies are cut at the cap, not rejected.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return nil, "", true, fmt.Errorf("read body of %s: %v: %w", fetchURL, err, domain.ErrFetchFailed)
	}
	return body, contentType, false, nil
}

func (f *Fetcher) supportedContentType(contentType, fetchURL string) bool {
	if contentType == "" {
		// Unknown content type is assumed text.
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return textContentTypes[mediaType] || isProbablyPDF(fetchURL, mediaType)
}

// isProbablyPDF checks the media type, falling back to the URL path suffix
// for servers that mislabel PDF downloads.
func isProbablyPDF(fetchURL, mediaType string) bool {
	if mediaType == pdfContentType {
		return true
	}
	if textContentTypes[mediaType] {
		return false
	}
	u, err := url.Parse(fetchURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

// extract branches on content type and fails with ErrNoContent when nothing
// readable remains.
func (f *Fetcher) extract(canonical, host string, body []byte, contentType string) (domain.ScrapedContent, error) {
	mediaType := ""
	if contentType != "" {
		mediaType, _, _ = mime.ParseMediaType(contentType)
	}

	var title, text string
	switch {
	case isProbablyPDF(canonical, mediaType):
		pdfText, err := extractPDF(body)
		if err != nil {
			return domain.ScrapedContent{}, fmt.Errorf("%v: %w", err, domain.ErrNoContent)
		}
		title, text = host, pdfText
	case mediaType == "text/plain":
		title, text = host, normalizePlainText(string(body))
	default:
		raw := string(body)
		title, text = extractTitle(raw, host), stripHTML(raw)
	}

	if strings.TrimSpace(text) == "" {
		return domain.ScrapedContent{}, fmt.Errorf("extracted no text from %s: %w", canonical, domain.ErrNoContent)
	}
	return domain.ScrapedContent{URL: canonical, Title: title, Text: text}, nil
}
