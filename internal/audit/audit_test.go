package audit

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/nao1215/mpasite/internal/model"
	"github.com/nao1215/mpasite/internal/route"
)

const site = "http://example.test"

func htmlPage(path string, mutate func(p *model.Page)) *model.Page {
	p := &model.Page{
		URL:         site + path,
		StatusCode:  http.StatusOK,
		ContentType: "text/html; charset=utf-8",
		Title:       "Page",
	}
	if mutate != nil {
		mutate(p)
	}
	return p
}

func findingTypes(findings []model.Finding) []string {
	types := make([]string, 0, len(findings))
	for _, f := range findings {
		types = append(types, f.Type)
	}
	return types
}

func newData(pages ...*model.Page) *AuditData {
	return &AuditData{
		Site:       site + "/",
		Pages:      pages,
		Categories: route.DefaultCategories(),
		Locales:    []string{"ru"},
	}
}

func TestImageAnalyzer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		path      string
		images    []model.Element
		wantTypes []string
		wantValue string
	}{
		{
			name:      "optimizer src",
			path:      "/",
			images:    []model.Element{{Source: "/_next/image?url=%2Fimages%2Ffoo.jpg&w=640&q=75"}},
			wantTypes: []string{model.FindingOptimizerImage},
			wantValue: "/_next/image?url=%2Fimages%2Ffoo.jpg&w=640&q=75",
		},
		{
			name:      "optimizer srcset candidate",
			path:      "/",
			images:    []model.Element{{Source: "/images/a.jpg", Srcset: "/_next/image?url=%2Fa.jpg&w=640 1x, /_next/image?url=%2Fa.jpg&w=1280 2x"}},
			wantTypes: []string{model.FindingOptimizerImage, model.FindingOptimizerImage},
			wantValue: "/_next/image?url=%2Fa.jpg&w=640",
		},
		{
			name:      "relative path on sub-page",
			path:      "/citizenship/",
			images:    []model.Element{{Source: "images/bar.png"}},
			wantTypes: []string{model.FindingRelativeImage},
			wantValue: "images/bar.png",
		},
		{
			name:      "relative path on locale home page",
			path:      "/ru/",
			images:    []model.Element{{Source: "images/bar.png"}},
			wantTypes: []string{},
		},
		{
			name:      "absolute path",
			path:      "/citizenship/",
			images:    []model.Element{{Source: "/images/bar.png"}},
			wantTypes: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			page := htmlPage(tt.path, func(p *model.Page) { p.Images = tt.images })

			findings, err := NewImageAnalyzer().Analyze(t.Context(), newData(page))
			if err != nil {
				t.Fatalf("Analyze() error = %v", err)
			}
			if got := findingTypes(findings); !slices.Equal(got, tt.wantTypes) {
				t.Fatalf("finding types = %v, want %v", got, tt.wantTypes)
			}
			if tt.wantValue != "" && findings[0].Value != tt.wantValue {
				t.Errorf("Value = %q, want %q", findings[0].Value, tt.wantValue)
			}
			if len(findings) > 0 && findings[0].Location != tt.path {
				t.Errorf("Location = %q, want %q", findings[0].Location, tt.path)
			}
		})
	}
}

func TestImageAnalyzer_SkipsErrorPages(t *testing.T) {
	t.Parallel()

	page := htmlPage("/missing", func(p *model.Page) {
		p.StatusCode = http.StatusNotFound
		p.Images = []model.Element{{Source: "/_next/image?url=x"}}
	})
	findings, err := NewImageAnalyzer().Analyze(t.Context(), newData(page))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("findings on error page = %v", findingTypes(findings))
	}
}

func TestSectionAnalyzer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sections int
		want     int
	}{
		{sections: 0, want: 0},
		{sections: 1, want: 0},
		{sections: 3, want: 1},
	}
	for _, tt := range tests {
		page := htmlPage("/", func(p *model.Page) { p.Sections = tt.sections })
		findings, err := NewSectionAnalyzer().Analyze(t.Context(), newData(page))
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		if len(findings) != tt.want {
			t.Errorf("sections=%d: %d findings, want %d", tt.sections, len(findings), tt.want)
		}
		if tt.want == 1 && findings[0].Value != "3" {
			t.Errorf("Value = %q, want %q", findings[0].Value, "3")
		}
	}
}

func TestCategoryLinkAnalyzer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		href   string
		inBody bool
		want   bool
	}{
		{name: "category without slash", href: "/citizenship", want: true},
		{name: "category with slash", href: "/citizenship/", want: false},
		{name: "nested category page", href: "/stories/family", want: true},
		{name: "ru category", href: "/ru/cases", want: true},
		{name: "outside allowlist", href: "/contact", want: false},
		{name: "root", href: "/", want: false},
		{name: "other host", href: "https://other.test/citizenship", want: false},
		{name: "fragment only", href: "#top", want: false},
		{name: "body link is not intercepted", href: "/citizenship", inBody: true, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			page := htmlPage("/", func(p *model.Page) { p.Anchors = []model.Element{{Source: tt.href, Nav: !tt.inBody}} })
			findings, err := NewCategoryLinkAnalyzer().Analyze(t.Context(), newData(page))
			if err != nil {
				t.Fatalf("Analyze() error = %v", err)
			}
			if got := len(findings) == 1; got != tt.want {
				t.Errorf("reported = %v, want %v (%v)", got, tt.want, findingTypes(findings))
			}
			if tt.want && findings[0].Value != tt.href {
				t.Errorf("Value = %q, want %q", findings[0].Value, tt.href)
			}
		})
	}
}

func TestTitleAnalyzer(t *testing.T) {
	t.Parallel()

	pages := []*model.Page{
		htmlPage("/", nil),
		htmlPage("/citizenship/", func(p *model.Page) { p.Title = "" }),
	}
	findings, err := NewTitleAnalyzer().Analyze(t.Context(), newData(pages...))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(findings) != 1 || findings[0].Location != "/citizenship/" {
		t.Errorf("findings = %+v", findings)
	}
}

func TestLinkAnalyzer(t *testing.T) {
	t.Parallel()

	home := htmlPage("/", func(p *model.Page) {
		p.Anchors = []model.Element{{Source: "/gone"}, {Source: "/citizenship/"}, {Source: "/gone#top"}}
	})
	gone := htmlPage("/gone", func(p *model.Page) { p.StatusCode = http.StatusNotFound })
	orphan := htmlPage("/orphan", func(p *model.Page) { p.StatusCode = http.StatusInternalServerError })
	ok := htmlPage("/citizenship/", nil)

	findings, err := NewLinkAnalyzer().Analyze(t.Context(), newData(home, gone, ok, orphan))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(findings) != 2 {
		t.Fatalf("findings = %+v, want 2", findings)
	}
	if findings[0].Value != "/gone" || findings[0].Location != "/" || findings[0].Description != "HTTP 404" {
		t.Errorf("first finding = %+v", findings[0])
	}
	if findings[1].Value != "/orphan" || findings[1].Location != "/orphan" {
		t.Errorf("second finding = %+v", findings[1])
	}
}

// newAssetServer serves a small site. HEAD is rejected for /no-head.png so
// that the GET fallback is exercised.
func newAssetServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	files := fstest.MapFS{
		"images/ok.png": {Data: []byte("png")},
		"style.css":     {Data: []byte("body{}")},
		"no-head.png":   {Data: []byte("png")},
		"about.html":    {Data: []byte("<title>About</title>")},
	}
	fileServer := http.FileServerFS(files)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/no-head.png" && r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		fileServer.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAssetAnalyzer(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newAssetServer(t, &hits)

	home := &model.Page{
		URL:         srv.URL + "/",
		StatusCode:  http.StatusOK,
		ContentType: "text/html",
		Title:       "Home",
		Images: []model.Element{
			{Source: "/images/ok.png"},
			{Source: "/images/missing.png"},
			{Source: "/no-head.png"},
			{Source: "/_next/image?url=%2Fimages%2Fok.png&w=640"},
			{Source: "https://cdn.example.test/external.png"},
		},
		Links:   []model.Element{{Source: "/style.css", Rel: "stylesheet"}, {Source: "/canonical", Rel: "canonical"}},
		Scripts: []model.Element{{Source: "/missing.js"}},
		Anchors: []model.Element{{Source: "/about.html"}, {Source: "/nowhere"}, {Source: "/crawled/"}},
	}
	sub := &model.Page{
		URL:         srv.URL + "/crawled/",
		StatusCode:  http.StatusOK,
		ContentType: "text/html",
		Title:       "Sub",
		Images:      []model.Element{{Source: "images/ok.png"}, {Source: "/images/missing.png"}},
	}

	analyzer := NewAssetAnalyzer(srv.Client(), WithProbeConcurrency(2))
	data := &AuditData{Site: srv.URL + "/", Pages: []*model.Page{home, sub}, Categories: route.DefaultCategories()}
	findings, err := analyzer.Analyze(t.Context(), data)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	// ok.png, missing.png, no-head.png, style.css, missing.js, about.html, nowhere
	if got := analyzer.AssetsChecked(); got != 7 {
		t.Errorf("AssetsChecked() = %d, want 7", got)
	}

	type key struct{ typ, value, location string }
	got := make(map[key]bool)
	for _, f := range findings {
		got[key{f.Type, f.Value, f.Location}] = true
	}
	want := []key{
		{model.FindingBrokenImage, "/images/missing.png", "/"},
		{model.FindingBrokenImage, "/images/missing.png", "/crawled/"},
		{model.FindingBrokenAsset, "/missing.js", "/"},
		{model.FindingBrokenLink, "/nowhere", "/"},
	}
	for _, w := range want {
		if !got[w] {
			t.Errorf("missing finding %+v in %+v", w, findings)
		}
	}
	if len(findings) != len(want) {
		t.Errorf("got %d findings, want %d: %+v", len(findings), len(want), findings)
	}
}

func TestAssetAnalyzer_Cancelled(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newAssetServer(t, &hits)
	page := &model.Page{
		URL:         srv.URL + "/",
		StatusCode:  http.StatusOK,
		ContentType: "text/html",
		Images:      []model.Element{{Source: "/images/missing.png"}},
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	findings, err := NewAssetAnalyzer(srv.Client()).Analyze(ctx, &AuditData{Site: srv.URL, Pages: []*model.Page{page}})
	if err == nil {
		t.Error("Analyze() on cancelled context should fail")
	}
	if len(findings) != 0 {
		t.Errorf("findings = %+v, want none", findings)
	}
}

func TestAuditor(t *testing.T) {
	t.Parallel()

	t.Run("without client skips probing", func(t *testing.T) {
		t.Parallel()
		a := New(nil, func(o *Options) { o.Logger = slog.New(slog.DiscardHandler) })
		if slices.Contains(a.Names(), "assets") {
			t.Errorf("Names() = %v, want no assets analyzer", a.Names())
		}
	})

	t.Run("aggregates findings and asset count", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int64
		srv := newAssetServer(t, &hits)
		page := &model.Page{
			URL:         srv.URL + "/citizenship/",
			StatusCode:  http.StatusOK,
			ContentType: "text/html",
			Images:      []model.Element{{Source: "images/ok.png"}},
			Sections:    2,
		}

		a := New(srv.Client(), func(o *Options) { o.Logger = slog.New(slog.DiscardHandler) })
		result, err := a.Analyze(t.Context(), &AuditData{Site: srv.URL + "/", Pages: []*model.Page{page}})
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		types := findingTypes(result.Findings)
		for _, want := range []string{model.FindingRelativeImage, model.FindingMultipleSections, model.FindingMissingTitle} {
			if !slices.Contains(types, want) {
				t.Errorf("findings %v missing %q", types, want)
			}
		}
		if slices.Contains(types, model.FindingBrokenImage) {
			t.Errorf("repaired relative image should resolve: %v", types)
		}
		if result.AssetsChecked != 1 {
			t.Errorf("AssetsChecked = %d, want 1", result.AssetsChecked)
		}
	})

	t.Run("custom analyzer errors are skipped", func(t *testing.T) {
		t.Parallel()
		a := &Auditor{logger: slog.New(slog.DiscardHandler)}
		a.Register(failingAnalyzer{})
		a.Register(NewTitleAnalyzer())
		result, err := a.Analyze(t.Context(), newData(htmlPage("/", func(p *model.Page) { p.Title = "" })))
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		if len(result.Findings) != 1 {
			t.Errorf("findings = %v, want the title finding", findingTypes(result.Findings))
		}
	})
}

type failingAnalyzer struct{}

func (failingAnalyzer) Name() string { return "failing" }

func (failingAnalyzer) Analyze(context.Context, *AuditData) ([]model.Finding, error) {
	return nil, context.DeadlineExceeded
}

func TestMixedContentAnalyzer(t *testing.T) {
	t.Parallel()

	securePage := func(path string) *model.Page {
		return &model.Page{
			URL:         "https://example.test" + path,
			StatusCode:  http.StatusOK,
			ContentType: "text/html",
			Title:       "Page",
			Images: []model.Element{
				{Source: "HTTP://cdn.example.test/a.png", Srcset: "http://cdn.example.test/a.png 1x, https://cdn.example.test/b.png 2x"},
				{Source: "/images/local.png"},
			},
			Scripts: []model.Element{{Source: "http://cdn.example.test/app.js"}, {Source: "//cdn.example.test/ok.js"}},
			Links: []model.Element{
				{Source: "http://cdn.example.test/site.css", Rel: "stylesheet"},
				{Source: "http://other.example.test/", Rel: "canonical"},
			},
		}
	}

	t.Run("https page", func(t *testing.T) {
		t.Parallel()

		findings, err := NewMixedContentAnalyzer().Analyze(t.Context(), &AuditData{Pages: []*model.Page{securePage("/about")}})
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		var values []string
		for _, f := range findings {
			if f.Type != model.FindingMixedContent || f.Location != "/about" {
				t.Errorf("unexpected finding %+v", f)
			}
			values = append(values, f.Value)
		}
		want := []string{
			"HTTP://cdn.example.test/a.png",
			"http://cdn.example.test/a.png",
			"http://cdn.example.test/app.js",
			"http://cdn.example.test/site.css",
		}
		if !slices.Equal(values, want) {
			t.Errorf("values = %v, want %v", values, want)
		}
	})

	t.Run("http page is ignored", func(t *testing.T) {
		t.Parallel()

		page := securePage("/")
		page.URL = "http://example.test/"
		findings, err := NewMixedContentAnalyzer().Analyze(t.Context(), &AuditData{Pages: []*model.Page{page}})
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		if len(findings) != 0 {
			t.Errorf("findings = %v, want none", findingTypes(findings))
		}
	})
}

func TestSrcsetURLs(t *testing.T) {
	t.Parallel()

	got := srcsetURLs("a.jpg 1x, b.jpg 2x,, c.jpg")
	if want := []string{"a.jpg", "b.jpg", "c.jpg"}; !slices.Equal(got, want) {
		t.Errorf("srcsetURLs() = %v, want %v", got, want)
	}
}
