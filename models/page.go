package models

import "time"

// Page is the raw content produced by a successful fetch.
type Page struct {
	RequestedURL string
	FinalURL     string
	StatusCode   int
	ContentType  string
	Body         string
	Elapsed      time.Duration
	Engine       string

	// Subpages holds extra same-site pages fetched when
	// Options.MaxPagesToAnalyze > 1. Best-effort: a page that failed to
	// load is simply absent.
	Subpages []Page

	// Subresources holds well-known site files (robots.txt, sitemap.xml)
	// keyed by path, fetched when Options.IncludeSubresources is set.
	Subresources map[string]Subresource
}

// Subresource is a site-level file fetched next to the main page.
type Subresource struct {
	URL        string
	StatusCode int
	Body       string
}

// Found reports whether the subresource exists on the site.
func (s Subresource) Found() bool {
	return s.StatusCode >= 200 && s.StatusCode < 300
}

// Well-known subresource paths.
const (
	RobotsPath  = "/robots.txt"
	SitemapPath = "/sitemap.xml"
)
