package audit

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/nao1215/mpasite/internal/crawler"
	"github.com/nao1215/mpasite/internal/model"
	"github.com/nao1215/mpasite/internal/route"
)

// CheckAnalyzer is a single audit rule.
type CheckAnalyzer interface {
	// Name returns the analyzer's name for logging.
	Name() string

	// Analyze inspects data and returns the findings it discovered.
	Analyze(ctx context.Context, data *AuditData) ([]model.Finding, error)
}

// AssetCounter is implemented by analyzers that issue HTTP requests.
type AssetCounter interface {
	// AssetsChecked returns the number of URLs probed by the last Analyze call.
	AssetsChecked() int
}

// AuditData contains everything the analyzers look at.
type AuditData struct {
	// Site is the URL the crawl started from.
	Site string

	// Pages contains all crawled pages.
	Pages []*model.Page

	// Categories is the navigation allowlist.
	Categories *route.Categories

	// Locales are the locale prefixes whose bare path is a home page.
	Locales []string
}

// Result is the outcome of an audit.
type Result struct {
	Findings      []model.Finding
	AssetsChecked int
}

// Options configures the Auditor.
type Options struct {
	// ProbeAssets enables HTTP probing of images, stylesheets, scripts and
	// uncrawled internal links.
	ProbeAssets bool

	// Concurrency bounds the number of probes in flight.
	Concurrency int

	// UserAgent is sent with probe requests.
	UserAgent string

	// Logger receives debug output of the analyzers.
	Logger *slog.Logger
}

// DefaultOptions returns the default auditor options.
func DefaultOptions() Options {
	return Options{
		ProbeAssets: true,
		Concurrency: 8,
		UserAgent:   crawler.DefaultUserAgent,
	}
}

// Auditor coordinates the registered analyzers.
type Auditor struct {
	analyzers []CheckAnalyzer
	logger    *slog.Logger
}

// New creates an Auditor with the built-in analyzers. client is used for
// asset probes; a nil client disables probing.
func New(client *http.Client, opts ...func(*Options)) *Auditor {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	a := &Auditor{logger: options.Logger}
	a.Register(NewImageAnalyzer())
	a.Register(NewSectionAnalyzer())
	a.Register(NewCategoryLinkAnalyzer())
	a.Register(NewTitleAnalyzer())
	a.Register(NewLinkAnalyzer())
	a.Register(NewMixedContentAnalyzer())
	if options.ProbeAssets && client != nil {
		a.Register(NewAssetAnalyzer(client,
			WithProbeConcurrency(options.Concurrency),
			WithProbeUserAgent(options.UserAgent),
			WithProbeLogger(options.Logger),
		))
	}
	return a
}

// Register adds an analyzer.
func (a *Auditor) Register(analyzer CheckAnalyzer) {
	a.analyzers = append(a.analyzers, analyzer)
}

// Names returns the names of the registered analyzers in execution order.
func (a *Auditor) Names() []string {
	names := make([]string, len(a.analyzers))
	for i, analyzer := range a.analyzers {
		names[i] = analyzer.Name()
	}
	return names
}

// Analyze runs all analyzers. A failing analyzer is logged and skipped;
// only cancellation aborts the audit.
func (a *Auditor) Analyze(ctx context.Context, data *AuditData) (*Result, error) {
	result := &Result{Findings: make([]model.Finding, 0)}
	if data.Categories == nil {
		data.Categories = route.DefaultCategories()
	}

	for _, analyzer := range a.analyzers {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		findings, err := analyzer.Analyze(ctx, data)
		if counter, ok := analyzer.(AssetCounter); ok {
			result.AssetsChecked += counter.AssetsChecked()
		}
		result.Findings = append(result.Findings, findings...)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			a.logger.Warn("analyzer failed", "analyzer", analyzer.Name(), "error", err)
			continue
		}
		a.logger.Debug("analyzer completed", "analyzer", analyzer.Name(), "findings", len(findings))
	}
	return result, nil
}

// htmlPages returns the pages that were served successfully as HTML.
func htmlPages(pages []*model.Page) []*model.Page {
	result := make([]*model.Page, 0, len(pages))
	for _, p := range pages {
		if p.IsHTML() && p.StatusCode < http.StatusBadRequest {
			result = append(result, p)
		}
	}
	return result
}

// pagePath returns the request path of a page URL.
func pagePath(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

// displayURL returns the path and query of an internal URL and the full
// URL otherwise.
func displayURL(site *url.URL, raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if site != nil && u.IsAbs() && !strings.EqualFold(u.Host, site.Host) {
		return raw
	}
	return u.RequestURI()
}

// srcsetURLs returns the URL of every srcset candidate.
func srcsetURLs(srcset string) []string {
	var urls []string
	for candidate := range strings.SplitSeq(srcset, ",") {
		fields := strings.Fields(candidate)
		if len(fields) > 0 {
			urls = append(urls, fields[0])
		}
	}
	return urls
}
