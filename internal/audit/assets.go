package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/mpasite/internal/crawler"
	"github.com/nao1215/mpasite/internal/enhance"
	"github.com/nao1215/mpasite/internal/model"
	"github.com/nao1215/mpasite/internal/route"
)

// maxDiscard bounds how much of a GET fallback body is read.
const maxDiscard = 1 << 20

// AssetAnalyzer checks that referenced images, stylesheets, scripts and
// uncrawled internal links exist. Probes run concurrently, bounded by the
// configured concurrency. Only same-host URLs are probed.
type AssetAnalyzer struct {
	client      *http.Client
	concurrency int
	userAgent   string
	logger      *slog.Logger

	checked int
}

// ProbeOption configures an AssetAnalyzer.
type ProbeOption func(*AssetAnalyzer)

// WithProbeConcurrency sets the number of probes in flight.
func WithProbeConcurrency(n int) ProbeOption {
	return func(a *AssetAnalyzer) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithProbeUserAgent sets the User-Agent of probe requests.
func WithProbeUserAgent(ua string) ProbeOption {
	return func(a *AssetAnalyzer) {
		if ua != "" {
			a.userAgent = ua
		}
	}
}

// WithProbeLogger sets the logger.
func WithProbeLogger(logger *slog.Logger) ProbeOption {
	return func(a *AssetAnalyzer) {
		a.logger = logger
	}
}

// NewAssetAnalyzer creates an AssetAnalyzer probing with client.
func NewAssetAnalyzer(client *http.Client, opts ...ProbeOption) *AssetAnalyzer {
	a := &AssetAnalyzer{
		client:      client,
		concurrency: DefaultOptions().Concurrency,
		userAgent:   crawler.DefaultUserAgent,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the analyzer name.
func (a *AssetAnalyzer) Name() string {
	return "assets"
}

// AssetsChecked returns the number of URLs probed by the last Analyze call.
func (a *AssetAnalyzer) AssetsChecked() int {
	return a.checked
}

// reference is one place an asset is referenced from.
type reference struct {
	location string
	value    string
}

// probeTarget is a unique URL to probe together with everything that
// references it.
type probeTarget struct {
	url         string
	findingType string
	refs        []reference

	status int
	err    error
}

// Analyze collects the references of all pages and probes them.
func (a *AssetAnalyzer) Analyze(ctx context.Context, data *AuditData) ([]model.Finding, error) {
	a.checked = 0
	site, _ := url.Parse(data.Site)
	targets := a.collect(site, data)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, target := range targets {
		g.Go(func() error {
			target.status, target.err = a.probe(gctx, target.url)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // probes never return errors
	a.checked = len(targets)

	findings := make([]model.Finding, 0)
	if err := ctx.Err(); err != nil {
		return findings, err
	}

	for _, target := range targets {
		var description string
		switch {
		case target.err != nil:
			description = target.err.Error()
		case target.status >= http.StatusBadRequest:
			description = fmt.Sprintf("HTTP %d", target.status)
		default:
			continue
		}
		a.logger.Debug("broken reference", "url", target.url, "status", target.status, "error", target.err)
		for _, ref := range target.refs {
			findings = append(findings, model.NewFinding(target.findingType, description, ref.value, ref.location))
		}
	}
	return findings, nil
}

// collect gathers the probe targets of all pages in first-seen order.
func (a *AssetAnalyzer) collect(site *url.URL, data *AuditData) []*probeTarget {
	crawled := make(map[string]bool, len(data.Pages))
	for _, p := range data.Pages {
		crawled[crawler.NormalizeURL(p.URL)] = true
	}

	var targets []*probeTarget
	index := make(map[string]*probeTarget)
	add := func(resolved, findingType, location string) {
		key := crawler.NormalizeURL(resolved)
		target, ok := index[key]
		if !ok {
			target = &probeTarget{url: key, findingType: findingType}
			index[key] = target
			targets = append(targets, target)
		}
		ref := reference{location: location, value: displayURL(site, key)}
		for _, existing := range target.refs {
			if existing == ref {
				return
			}
		}
		target.refs = append(target.refs, ref)
	}

	for _, page := range htmlPages(data.Pages) {
		parser, err := crawler.NewParser(page.URL)
		if err != nil {
			continue
		}
		location := pagePath(page.URL)
		home := route.IsHome(location, data.Locales)

		resolve := func(src string) (string, bool) {
			resolved := parser.ResolveURL(src)
			if resolved == "" || !parser.IsInternal(resolved) {
				return "", false
			}
			return resolved, true
		}

		for _, img := range page.Images {
			for _, src := range append([]string{img.Source}, srcsetURLs(img.Srcset)...) {
				if src == "" || enhance.IsOptimizerURL(src) {
					continue
				}
				// Relative paths on sub-pages are reported by the ImageAnalyzer;
				// probe the repaired form.
				if !home && enhance.IsRelativeImagePath(src) {
					src = "/" + strings.TrimLeft(src, "/")
				}
				if resolved, ok := resolve(src); ok {
					add(resolved, model.FindingBrokenImage, location)
				}
			}
		}

		for _, link := range page.Links {
			if !isAssetRel(link.Rel) {
				continue
			}
			if resolved, ok := resolve(link.Source); ok {
				add(resolved, model.FindingBrokenAsset, location)
			}
		}
		for _, script := range page.Scripts {
			if resolved, ok := resolve(script.Source); ok {
				add(resolved, model.FindingBrokenAsset, location)
			}
		}

		for _, link := range internalLinks(page) {
			if !crawled[link] {
				add(link, model.FindingBrokenLink, location)
			}
		}
	}
	return targets
}

// probe requests u with HEAD, falling back to GET when HEAD is not allowed.
func (a *AssetAnalyzer) probe(ctx context.Context, u string) (int, error) {
	status, err := a.do(ctx, http.MethodHead, u)
	if err != nil {
		return 0, err
	}
	if status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented {
		return a.do(ctx, http.MethodGet, u)
	}
	return status, nil
}

func (a *AssetAnalyzer) do(ctx context.Context, method, u string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDiscard)) //nolint:errcheck // drain for connection reuse
	return resp.StatusCode, nil
}

// isAssetRel reports whether a <link> rel loads a resource the page needs.
func isAssetRel(rel string) bool {
	for r := range strings.FieldsSeq(strings.ToLower(rel)) {
		switch r {
		case "stylesheet", "icon", "preload", "modulepreload", "manifest", "apple-touch-icon":
			return true
		}
	}
	return false
}
