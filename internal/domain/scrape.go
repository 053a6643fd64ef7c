package domain

// ScrapedContent is the fetcher's output for one URL: the canonical URL the
// content was served from plus the extracted title and plain text.
type ScrapedContent struct {
	URL   string
	Title string
	Text  string
}
