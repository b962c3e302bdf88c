package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	mlog "github.com/nao1215/mpasite/internal/log"
	"github.com/nao1215/mpasite/internal/model"
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "mpasite-check/1.0"

// Spider crawls the pages of one site breadth-first.
// A Spider is not safe for concurrent crawls. Each Crawl starts from a
// clean state.
type Spider struct {
	client *http.Client

	// maxDepth limits how deep to crawl from the starting URL.
	// 0 means only the starting page, 1 means one level of links, etc.
	maxDepth int

	// maxPages limits the total number of pages to crawl.
	maxPages int

	// delay is the time to wait between requests.
	delay time.Duration

	userAgent   string
	maxBodySize int64

	// ignorePatterns are URL path patterns to skip (glob syntax).
	ignorePatterns []string

	// followPatterns, if set, restrict crawling to matching paths.
	followPatterns []string

	logger *slog.Logger

	mutex     sync.Mutex
	visited   map[string]bool
	pageCount int
	failures  []Failure
}

// Failure records a page that could not be fetched.
type Failure struct {
	URL      string
	Depth    int
	Referrer string
	Err      error
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxDepth sets the maximum crawl depth.
// 0 = only the starting page, 1 = starting page plus linked pages, etc.
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		s.maxDepth = depth
	}
}

// WithMaxPages sets the maximum number of pages to crawl.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = maxPages
	}
}

// WithDelay sets the delay between requests.
func WithDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.delay = d
	}
}

// WithSpiderUserAgent sets a custom User-Agent header.
func WithSpiderUserAgent(ua string) SpiderOption {
	return func(s *Spider) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithSpiderMaxBodySize sets the maximum response body size.
func WithSpiderMaxBodySize(size int64) SpiderOption {
	return func(s *Spider) {
		s.maxBodySize = size
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow during crawling.
// If set, only URLs matching at least one pattern are crawled.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithSpiderLogger sets the logger for fetch errors.
func WithSpiderLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSpider creates a new Spider with the given HTTP client.
func NewSpider(client *http.Client, opts ...SpiderOption) *Spider {
	s := &Spider{
		client:      client,
		maxDepth:    5,
		maxPages:    200,
		userAgent:   DefaultUserAgent,
		maxBodySize: model.MaxPageSize,
		logger:      mlog.Discard(),
		visited:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// queueItem represents an item in the crawl queue.
type queueItem struct {
	url      string
	depth    int
	referrer string
}

// Crawl starts crawling from startURL and returns the fetched pages in
// visiting order. Pages answering with an error status are included;
// pages that could not be fetched at all are reported by Failures.
// On cancellation the pages fetched so far are returned with ctx.Err().
func (s *Spider) Crawl(ctx context.Context, startURL string) ([]*model.Page, error) {
	start, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("invalid start URL: %w", err)
	}
	if start.Scheme != "http" && start.Scheme != "https" {
		return nil, fmt.Errorf("invalid start URL %q: scheme must be http or https", startURL)
	}
	if start.Host == "" {
		return nil, fmt.Errorf("invalid start URL %q: missing host", startURL)
	}

	s.Reset()
	pages := make([]*model.Page, 0)
	queue := []queueItem{{url: start.String(), depth: 0}}

	for len(queue) > 0 && s.count() < s.maxPages {
		select {
		case <-ctx.Done():
			return pages, ctx.Err()
		default:
		}

		item := queue[0]
		queue = queue[1:]

		if s.isVisited(item.url) {
			continue
		}
		s.markVisited(item.url)

		page, links, err := s.fetchPage(ctx, item.url)
		if err != nil {
			if ctx.Err() != nil {
				return pages, ctx.Err()
			}
			s.logger.Debug("fetch failed", "url", item.url, "error", err)
			s.addFailure(Failure{URL: item.url, Depth: item.depth, Referrer: item.referrer, Err: err})
			continue
		}
		page.Depth = item.depth

		pages = append(pages, page)
		s.incrementCount()

		if item.depth < s.maxDepth {
			for _, link := range links {
				if !s.isVisited(link) && s.isSameSite(start.Host, link) && s.shouldCrawl(link) {
					queue = append(queue, queueItem{url: link, depth: item.depth + 1, referrer: item.url})
				}
			}
		}

		if s.delay > 0 && len(queue) > 0 {
			select {
			case <-ctx.Done():
				return pages, ctx.Err()
			case <-time.After(s.delay):
			}
		}
	}

	return pages, nil
}

// fetchPage fetches a single page and extracts its content and links.
func (s *Spider) fetchPage(ctx context.Context, pageURL string) (*model.Page, []string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodySize))
	if err != nil {
		return nil, nil, err
	}

	page := &model.Page{
		URL:         pageURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Headers:     resp.Header,
		Raw:         body,
	}
	page.ComputeHash()
	page.TruncateRaw()

	if !page.IsHTML() || resp.StatusCode >= http.StatusBadRequest {
		return page, nil, nil
	}

	parser, err := NewParser(pageURL)
	if err != nil {
		return page, nil, nil
	}
	result, err := parser.Parse(bytes.NewReader(body))
	if err != nil {
		s.logger.Debug("parse failed", "url", pageURL, "error", err)
		return page, nil, nil
	}

	page.Title = result.Title
	page.Anchors = result.Anchors
	page.Images = result.Images
	page.Links = result.Links
	page.Scripts = result.Scripts
	page.Sections = result.Sections
	page.HasHeader = result.HasHeader

	return page, result.InternalLinks, nil
}

func (s *Spider) isVisited(pageURL string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.visited[NormalizeURL(pageURL)]
}

func (s *Spider) markVisited(pageURL string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.visited[NormalizeURL(pageURL)] = true
}

func (s *Spider) count() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.pageCount
}

func (s *Spider) incrementCount() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pageCount++
}

func (s *Spider) addFailure(f Failure) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.failures = append(s.failures, f)
}

// NormalizeURL normalizes a URL for deduplication: the fragment is dropped,
// scheme and host are lower-cased and an empty path becomes "/".
// Trailing slashes on other paths are kept; "/citizenship" and
// "/citizenship/" are distinct URLs.
func NormalizeURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// isSameSite checks if a URL is on the start host.
func (s *Spider) isSameSite(baseHost, targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, baseHost)
}

// Reset clears the spider's state, allowing it to be reused.
func (s *Spider) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.visited = make(map[string]bool)
	s.pageCount = 0
	s.failures = nil
}

// Failures returns the pages that could not be fetched in the last crawl.
func (s *Spider) Failures() []Failure {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]Failure(nil), s.failures...)
}

// Stats returns current crawl statistics.
func (s *Spider) Stats() SpiderStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return SpiderStats{
		PagesVisited: s.pageCount,
		URLsSeen:     len(s.visited),
		Failures:     len(s.failures),
	}
}

// SpiderStats contains crawl statistics.
type SpiderStats struct {
	// PagesVisited is the number of pages fetched.
	PagesVisited int

	// URLsSeen is the number of unique URLs dequeued.
	URLsSeen int

	// Failures is the number of pages that could not be fetched.
	Failures int
}

// shouldCrawl checks if a URL should be crawled based on ignore/follow patterns.
func (s *Spider) shouldCrawl(targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}
	return ShouldCrawlPath(u.Path, s.ignorePatterns, s.followPatterns)
}

// ShouldCrawlPath applies ignore and follow patterns to a URL path:
// an ignored path is skipped, and when follow patterns are set the path
// must match one of them.
func ShouldCrawlPath(p string, ignore, follow []string) bool {
	if p == "" {
		p = "/"
	}
	for _, pattern := range ignore {
		if matchPattern(pattern, p) {
			return false
		}
	}
	if len(follow) == 0 {
		return true
	}
	for _, pattern := range follow {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// matchPattern checks if a path matches a glob pattern.
//
// Examples:
//   - "/ru/*" matches "/ru", "/ru/citizenship"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1"
//   - "/blog/**/draft-*" matches "/blog/2024/05/draft-launch"
func matchPattern(pattern, p string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(p, prefix+"/") || p == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") {
		if strings.HasSuffix(p, strings.TrimPrefix(pattern, "*")) {
			return true
		}
	}

	if matched, err := doublestar.Match(pattern, p); err == nil && matched {
		return true
	}

	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := doublestar.Match(pattern, path.Base(p)); err == nil && matched {
			return true
		}
	}

	return false
}
