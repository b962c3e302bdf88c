package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/nao1215/mpasite/internal/audit"
	"github.com/nao1215/mpasite/internal/crawler"
	"github.com/nao1215/mpasite/internal/database"
	"github.com/nao1215/mpasite/internal/model"
	"github.com/nao1215/mpasite/internal/route"
)

// Default crawl limits.
const (
	DefaultMaxDepth    = 5
	DefaultMaxPages    = 200
	DefaultMaxBodySize = model.MaxPageSize
)

// CrawlStep crawls the site and stores the fetched pages in the report.
// Pages that could not be fetched become fetch_error findings.
type CrawlStep struct {
	// client performs the page requests.
	client *http.Client

	// startURL overrides report.Site as the crawl start, for sites served
	// on a temporary address.
	startURL string

	// maxDepth limits crawl recursion.
	maxDepth int

	// maxPages limits total pages to crawl.
	maxPages int

	// delay between requests.
	delay time.Duration

	// userAgent is the User-Agent header to send with requests.
	userAgent string

	// maxBodySize limits the size of response bodies to read.
	maxBodySize int64

	// ignorePatterns are URL path patterns to skip during crawling.
	ignorePatterns []string

	// followPatterns are URL path patterns to follow during crawling.
	followPatterns []string

	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlStartURL sets the URL the crawl starts from instead of report.Site.
func WithCrawlStartURL(u string) CrawlStepOption {
	return func(s *CrawlStep) {
		s.startURL = u
	}
}

// WithCrawlMaxDepth sets the maximum crawl depth.
func WithCrawlMaxDepth(depth int) CrawlStepOption {
	return func(s *CrawlStep) {
		s.maxDepth = depth
	}
}

// WithCrawlMaxPages sets the maximum pages to crawl.
func WithCrawlMaxPages(maxPages int) CrawlStepOption {
	return func(s *CrawlStep) {
		s.maxPages = maxPages
	}
}

// WithCrawlDelay sets the delay between requests.
func WithCrawlDelay(d time.Duration) CrawlStepOption {
	return func(s *CrawlStep) {
		s.delay = d
	}
}

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// WithCrawlIgnorePatterns sets URL path patterns to skip during crawling.
func WithCrawlIgnorePatterns(patterns []string) CrawlStepOption {
	return func(s *CrawlStep) {
		s.ignorePatterns = patterns
	}
}

// WithCrawlFollowPatterns sets URL path patterns to follow during crawling.
func WithCrawlFollowPatterns(patterns []string) CrawlStepOption {
	return func(s *CrawlStep) {
		s.followPatterns = patterns
	}
}

// WithCrawlUserAgent sets the User-Agent header for HTTP requests.
func WithCrawlUserAgent(userAgent string) CrawlStepOption {
	return func(s *CrawlStep) {
		s.userAgent = userAgent
	}
}

// WithCrawlMaxBodySize sets the maximum response body size in bytes.
func WithCrawlMaxBodySize(maxBodySize int64) CrawlStepOption {
	return func(s *CrawlStep) {
		s.maxBodySize = maxBodySize
	}
}

// NewCrawlStep creates a new crawling step.
func NewCrawlStep(client *http.Client, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		client:      client,
		maxDepth:    DefaultMaxDepth,
		maxPages:    DefaultMaxPages,
		userAgent:   crawler.DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step.
func (s *CrawlStep) Do(ctx context.Context, report *model.CheckReport) error {
	start := s.startURL
	if start == "" {
		start = report.Site
	}

	spiderOpts := []crawler.SpiderOption{
		crawler.WithMaxDepth(s.maxDepth),
		crawler.WithMaxPages(s.maxPages),
		crawler.WithDelay(s.delay),
		crawler.WithSpiderUserAgent(s.userAgent),
		crawler.WithSpiderMaxBodySize(s.maxBodySize),
		crawler.WithSpiderLogger(s.logger),
	}
	if len(s.ignorePatterns) > 0 {
		spiderOpts = append(spiderOpts, crawler.WithIgnorePatterns(s.ignorePatterns))
	}
	if len(s.followPatterns) > 0 {
		spiderOpts = append(spiderOpts, crawler.WithFollowPatterns(s.followPatterns))
	}

	spider := crawler.NewSpider(s.client, spiderOpts...)
	pages, err := spider.Crawl(ctx, start)
	if err != nil && len(pages) == 0 && ctx.Err() == nil {
		return fmt.Errorf("failed to crawl %s: %w", start, err)
	}
	if err != nil {
		// Partial results are still audited.
		s.logger.Warn("crawl completed with error", "error", err)
	}

	report.CrawledPages = pages
	for _, page := range pages {
		report.AddPage(page)
	}

	for _, failure := range spider.Failures() {
		location := pathOf(failure.Referrer)
		if failure.Referrer == "" {
			location = pathOf(failure.URL)
		}
		report.AddFinding(model.NewFinding(model.FindingFetchError,
			failure.Err.Error(), pathOf(failure.URL), location))
	}

	stats := spider.Stats()
	s.logger.Info("crawl completed",
		"pages_visited", stats.PagesVisited,
		"urls_seen", stats.URLsSeen,
		"failures", stats.Failures,
	)

	return nil
}

// AuditStep runs the audit analyzers over the crawled pages.
type AuditStep struct {
	auditor    *audit.Auditor
	startURL   string
	categories *route.Categories
	locales    []string
	logger     *slog.Logger
}

// AuditStepOption configures an AuditStep.
type AuditStepOption func(*AuditStep)

// WithAuditStartURL sets the crawl start URL used to tell internal from
// external references.
func WithAuditStartURL(u string) AuditStepOption {
	return func(s *AuditStep) {
		s.startURL = u
	}
}

// WithAuditCategories sets the navigation allowlist.
func WithAuditCategories(c *route.Categories) AuditStepOption {
	return func(s *AuditStep) {
		s.categories = c
	}
}

// WithAuditLocales sets the locale prefixes whose bare path is a home page.
func WithAuditLocales(locales []string) AuditStepOption {
	return func(s *AuditStep) {
		s.locales = locales
	}
}

// WithAuditLogger sets a custom logger for the audit step.
func WithAuditLogger(logger *slog.Logger) AuditStepOption {
	return func(s *AuditStep) {
		s.logger = logger
	}
}

// NewAuditStep creates a new audit step.
func NewAuditStep(auditor *audit.Auditor, opts ...AuditStepOption) *AuditStep {
	s := &AuditStep{
		auditor:    auditor,
		categories: route.DefaultCategories(),
		locales:    route.DefaultLocales,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *AuditStep) Name() string {
	return "audit"
}

// Do executes the audit step.
func (s *AuditStep) Do(ctx context.Context, report *model.CheckReport) error {
	if len(report.CrawledPages) == 0 {
		s.logger.Debug("skipping audit, no pages crawled")
		return nil
	}

	site := s.startURL
	if site == "" {
		site = report.Site
	}
	s.logger.Debug("auditing pages", "pages", len(report.CrawledPages), "analyzers", s.auditor.Names())

	result, err := s.auditor.Analyze(ctx, &audit.AuditData{
		Site:       site,
		Pages:      report.CrawledPages,
		Categories: s.categories,
		Locales:    s.locales,
	})
	if result != nil {
		for _, f := range result.Findings {
			report.AddFinding(f)
		}
		report.AssetsChecked += result.AssetsChecked
	}
	if err != nil {
		return fmt.Errorf("audit interrupted: %w", err)
	}

	s.logger.Info("audit completed",
		"findings", report.TotalFindings(),
		"assets_checked", report.AssetsChecked,
	)
	return nil
}

// ReportStore persists check results. *database.HistoryDB implements it.
type ReportStore interface {
	SaveReport(ctx context.Context, report *model.CheckReport) error
	UpsertPage(ctx context.Context, rec *database.PageRecord) (bool, error)
}

// SaveStep finishes the report and stores it with the crawled page states.
type SaveStep struct {
	store  ReportStore
	logger *slog.Logger
}

// NewSaveStep creates a new save step.
func NewSaveStep(store ReportStore, logger *slog.Logger) *SaveStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SaveStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *SaveStep) Name() string {
	return "save"
}

// Do executes the save step.
func (s *SaveStep) Do(ctx context.Context, report *model.CheckReport) error {
	if s.store == nil {
		return errors.New("no report store configured")
	}
	if report.FinishedAt.IsZero() {
		report.Finish()
	}

	if err := s.store.SaveReport(ctx, report); err != nil {
		return err
	}

	changed := 0
	for _, page := range report.CrawledPages {
		updated, err := s.store.UpsertPage(ctx, &database.PageRecord{
			Site:        report.Site,
			Path:        pathOf(page.URL),
			StatusCode:  page.StatusCode,
			ContentType: page.ContentType,
			Title:       page.Title,
			ContentHash: page.Hash,
			LastRun:     report.ID,
		})
		if err != nil {
			return err
		}
		if updated {
			changed++
		}
	}

	s.logger.Info("check saved", "id", report.ID, "site", report.Site, "changed_pages", changed)
	return nil
}

// pathOf returns the path and query of u, or u itself when it cannot be parsed.
func pathOf(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || u == "" {
		return u
	}
	return parsed.RequestURI()
}

// DefaultPipelineConfig holds configuration for the default pipeline.
type DefaultPipelineConfig struct {
	// StartURL overrides the report site as the crawl start.
	StartURL string

	// CrawlDepth is the maximum depth for web crawling.
	CrawlDepth int

	// CrawlMaxPages is the maximum number of pages to crawl.
	CrawlMaxPages int

	// CrawlDelay is the delay between page requests.
	CrawlDelay time.Duration

	// Headers are additional HTTP headers sent with every request.
	Headers map[string]string

	// IgnorePatterns are URL path patterns to skip during crawling.
	IgnorePatterns []string

	// FollowPatterns are URL path patterns to follow during crawling.
	FollowPatterns []string

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// Concurrency bounds the asset probes in flight.
	Concurrency int

	// ProbeAssets enables probing of images, stylesheets, scripts and
	// uncrawled links.
	ProbeAssets bool

	// Categories is the navigation allowlist.
	Categories *route.Categories

	// Locales are the locale prefixes whose bare path is a home page.
	Locales []string

	// Store receives the finished report. Nil disables saving.
	Store ReportStore

	// Logger is passed to the steps.
	Logger *slog.Logger
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineStartURL sets the crawl start URL.
func WithPipelineStartURL(u string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.StartURL = u
	}
}

// WithPipelineCrawlDepth sets the crawl depth for the pipeline.
func WithPipelineCrawlDepth(depth int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.CrawlDepth = depth
	}
}

// WithPipelineCrawlMaxPages sets the maximum pages to crawl.
func WithPipelineCrawlMaxPages(maxPages int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.CrawlMaxPages = maxPages
	}
}

// WithPipelineCrawlDelay sets the delay between HTTP requests during crawling.
func WithPipelineCrawlDelay(delay time.Duration) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.CrawlDelay = delay
	}
}

// WithPipelineHeaders sets additional HTTP headers, for example an
// Authorization header for a protected staging host.
func WithPipelineHeaders(headers map[string]string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Headers = headers
	}
}

// WithPipelineIgnorePatterns sets URL patterns to skip during crawling.
func WithPipelineIgnorePatterns(patterns []string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.IgnorePatterns = patterns
	}
}

// WithPipelineFollowPatterns sets URL patterns to follow during crawling.
func WithPipelineFollowPatterns(patterns []string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.FollowPatterns = patterns
	}
}

// WithPipelineUserAgent sets the User-Agent header for HTTP requests.
func WithPipelineUserAgent(userAgent string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.UserAgent = userAgent
	}
}

// WithPipelineConcurrency sets the number of asset probes in flight.
func WithPipelineConcurrency(n int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Concurrency = n
	}
}

// WithPipelineProbeAssets enables or disables asset probing.
func WithPipelineProbeAssets(enabled bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.ProbeAssets = enabled
	}
}

// WithPipelineCategories sets the navigation allowlist and its locales.
func WithPipelineCategories(categories *route.Categories, locales []string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Categories = categories
		c.Locales = locales
	}
}

// WithPipelineStore enables saving the report to store.
func WithPipelineStore(store ReportStore) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Store = store
	}
}

// WithPipelineLogger sets the logger of the steps.
func WithPipelineLogger(logger *slog.Logger) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Logger = logger
	}
}

// DefaultPipeline creates the standard check pipeline: crawl, audit and,
// when a store is configured, save.
//
// The first parameter accepts pipeline options (WithLogger, etc).
// The variadic parameter accepts config options (WithPipelineCrawlDepth, etc).
func DefaultPipeline(client *http.Client, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	p := New(pipelineOpts...)

	cfg := &DefaultPipelineConfig{
		CrawlDepth:    DefaultMaxDepth,
		CrawlMaxPages: DefaultMaxPages,
		UserAgent:     crawler.DefaultUserAgent,
		MaxBodySize:   DefaultMaxBodySize,
		Concurrency:   audit.DefaultOptions().Concurrency,
		ProbeAssets:   true,
		Categories:    route.DefaultCategories(),
		Locales:       route.DefaultLocales,
		Logger:        slog.Default(),
	}
	for _, opt := range configOpts {
		opt(cfg)
	}

	httpClient := client
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if len(cfg.Headers) > 0 {
		httpClient = WithHeaders(httpClient, cfg.Headers)
	}

	crawlOpts := []CrawlStepOption{
		WithCrawlStartURL(cfg.StartURL),
		WithCrawlMaxDepth(cfg.CrawlDepth),
		WithCrawlMaxPages(cfg.CrawlMaxPages),
		WithCrawlDelay(cfg.CrawlDelay),
		WithCrawlUserAgent(cfg.UserAgent),
		WithCrawlMaxBodySize(cfg.MaxBodySize),
		WithCrawlLogger(cfg.Logger),
	}
	if len(cfg.IgnorePatterns) > 0 {
		crawlOpts = append(crawlOpts, WithCrawlIgnorePatterns(cfg.IgnorePatterns))
	}
	if len(cfg.FollowPatterns) > 0 {
		crawlOpts = append(crawlOpts, WithCrawlFollowPatterns(cfg.FollowPatterns))
	}

	auditor := audit.New(httpClient, func(o *audit.Options) {
		o.ProbeAssets = cfg.ProbeAssets
		o.Concurrency = cfg.Concurrency
		o.UserAgent = cfg.UserAgent
		o.Logger = cfg.Logger
	})

	p.AddSteps(
		NewCrawlStep(httpClient, crawlOpts...),
		NewAuditStep(auditor,
			WithAuditStartURL(cfg.StartURL),
			WithAuditCategories(cfg.Categories),
			WithAuditLocales(cfg.Locales),
			WithAuditLogger(cfg.Logger),
		),
	)
	if cfg.Store != nil {
		p.AddStep(NewSaveStep(cfg.Store, cfg.Logger))
	}

	return p
}

// WithHeaders returns a copy of client that adds headers to every request.
func WithHeaders(client *http.Client, headers map[string]string) *http.Client {
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c := *client
	c.Transport = &headerTransport{base: base, headers: headers}
	return &c
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
