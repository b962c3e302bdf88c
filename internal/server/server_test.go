package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/nao1215/mpasite/internal/config"
	"github.com/nao1215/mpasite/internal/enhance"
	mlog "github.com/nao1215/mpasite/internal/log"
	"github.com/nao1215/mpasite/internal/route"
	"github.com/nao1215/mpasite/internal/script"
)

const (
	indexHTML = `<!DOCTYPE html><html><head><title>Home</title></head><body>` +
		`<header data-header=""><a href="/citizenship">Citizenship</a></header>` +
		`<img src="images/a.png"/><section class="page">home</section></body></html>`

	citizenshipHTML = `<!DOCTYPE html><html><head><title>Citizenship</title></head><body>` +
		`<img src="/_next/image?url=%2Fimages%2Ffoo.jpg&amp;w=640&amp;q=75" srcset="/_next/image?url=%2Fimages%2Ffoo.jpg&amp;w=1080 2x"/>` +
		`<img src="images/bar.png"/></body></html>`
)

func testSite() fstest.MapFS {
	return fstest.MapFS{
		"index.html":       {Data: []byte(indexHTML)},
		"citizenship.html": {Data: []byte(citizenshipHTML)},
		"images/foo.jpg":   {Data: []byte("jpeg")},
		"style.css":        {Data: []byte("body{margin:0}")},
		"docs/index.html":  {Data: []byte("<html><head></head><body>docs</body></html>")},
		".env":             {Data: []byte("SECRET=1")},
		".git/config":      {Data: []byte("[core]")},
	}
}

func newTestServer(opts ...Option) *Server {
	return New(testSite(), opts...)
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequestWithContext(t.Context(), method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Routing(t *testing.T) {
	t.Parallel()

	h := newTestServer().Handler()

	tests := []struct {
		name        string
		method      string
		path        string
		wantStatus  int
		wantBody    string
		wantContent string
	}{
		{name: "home", method: http.MethodGet, path: "/", wantStatus: http.StatusOK, wantBody: "Home", wantContent: "text/html"},
		{name: "citizenship", method: http.MethodGet, path: "/citizenship", wantStatus: http.StatusOK, wantBody: "Citizenship"},
		{name: "citizenship with slash", method: http.MethodGet, path: "/citizenship/", wantStatus: http.StatusOK, wantBody: "Citizenship"},
		{name: "ru citizenship", method: http.MethodGet, path: "/ru/citizenship", wantStatus: http.StatusOK, wantBody: "Citizenship"},
		{name: "ru citizenship with slash", method: http.MethodGet, path: "/ru/citizenship/", wantStatus: http.StatusOK, wantBody: "Citizenship"},
		{name: "route matching ignores case", method: http.MethodGet, path: "/Citizenship", wantStatus: http.StatusOK, wantBody: "Citizenship"},
		{name: "static image", method: http.MethodGet, path: "/images/foo.jpg", wantStatus: http.StatusOK, wantBody: "jpeg", wantContent: "image/jpeg"},
		{name: "static css", method: http.MethodGet, path: "/style.css", wantStatus: http.StatusOK, wantContent: "text/css"},
		{name: "directory index", method: http.MethodGet, path: "/docs/", wantStatus: http.StatusOK, wantBody: "docs"},
		{name: "unknown path", method: http.MethodGet, path: "/unknown-path", wantStatus: http.StatusNotFound, wantBody: "Not Found", wantContent: "text/plain"},
		{name: "dotfile is hidden", method: http.MethodGet, path: "/.env", wantStatus: http.StatusNotFound, wantBody: "Not Found"},
		{name: "dot directory is hidden", method: http.MethodGet, path: "/.git/config", wantStatus: http.StatusNotFound},
		{name: "traversal stays in root", method: http.MethodGet, path: "/../index.html", wantStatus: http.StatusOK, wantBody: "Home"},
		{name: "post is not served", method: http.MethodPost, path: "/", wantStatus: http.StatusNotFound, wantBody: "Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := do(t, h, tt.method, tt.path)
			if rec.Code != tt.wantStatus {
				t.Fatalf("%s %s: status = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body %q does not contain %q", rec.Body.String(), tt.wantBody)
			}
			if tt.wantContent != "" && !strings.HasPrefix(rec.Header().Get("Content-Type"), tt.wantContent) {
				t.Errorf("Content-Type = %q, want prefix %q", rec.Header().Get("Content-Type"), tt.wantContent)
			}
		})
	}
}

func TestServer_NotFoundBodyIsExact(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer().Handler(), http.MethodGet, "/unknown-path")
	if rec.Body.String() != "Not Found" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "Not Found")
	}
}

func TestServer_LocaleVariantsServeSameFile(t *testing.T) {
	t.Parallel()

	h := newTestServer().Handler()
	a := do(t, h, http.MethodGet, "/ru/citizenship")
	b := do(t, h, http.MethodGet, "/ru/citizenship/")
	if a.Code != http.StatusOK || b.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d, %d", a.Code, b.Code)
	}
	if !bytes.Equal(a.Body.Bytes(), b.Body.Bytes()) {
		t.Errorf("bodies differ:\n%s\n%s", a.Body.String(), b.Body.String())
	}
}

func TestServer_WithoutRewriterServesFilesUntouched(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer().Handler(), http.MethodGet, "/citizenship")
	if rec.Body.String() != citizenshipHTML {
		t.Errorf("body was modified:\n%s", rec.Body.String())
	}
}

func TestServer_Enhancement(t *testing.T) {
	t.Parallel()

	s := newTestServer(
		WithRewriter(enhance.NewRewriter(enhance.WithScript(script.DefaultPath))),
		WithScript(script.DefaultPath, []byte("/* js */")),
	)
	h := s.Handler()

	t.Run("sub page images are repaired", func(t *testing.T) {
		t.Parallel()

		body := do(t, h, http.MethodGet, "/citizenship/").Body.String()
		if !strings.Contains(body, `src="/images/foo.jpg"`) {
			t.Errorf("optimized image not repaired:\n%s", body)
		}
		if strings.Contains(body, "srcset") {
			t.Errorf("srcset not removed:\n%s", body)
		}
		if !strings.Contains(body, `src="/images/bar.png"`) {
			t.Errorf("relative image not made absolute:\n%s", body)
		}
		if strings.Count(body, `src="`+script.DefaultPath+`"`) != 1 {
			t.Errorf("expected one script tag:\n%s", body)
		}
	})

	t.Run("home page keeps relative images", func(t *testing.T) {
		t.Parallel()

		body := do(t, h, http.MethodGet, "/").Body.String()
		if !strings.Contains(body, `src="images/a.png"`) {
			t.Errorf("relative image on home page was changed:\n%s", body)
		}
		if !strings.Contains(body, `class="page is-active"`) {
			t.Errorf("single section not activated:\n%s", body)
		}
		if !strings.Contains(body, `id="`+enhance.HeaderStyleID+`"`) {
			t.Errorf("header style not injected:\n%s", body)
		}
	})

	t.Run("non html is untouched", func(t *testing.T) {
		t.Parallel()

		rec := do(t, h, http.MethodGet, "/style.css")
		if rec.Body.String() != "body{margin:0}" {
			t.Errorf("css was modified: %q", rec.Body.String())
		}
	})

	t.Run("script endpoint", func(t *testing.T) {
		t.Parallel()

		rec := do(t, h, http.MethodGet, script.DefaultPath)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := rec.Header().Get("Content-Type"); got != script.ContentType {
			t.Errorf("Content-Type = %q, want %q", got, script.ContentType)
		}
		if rec.Body.String() != "/* js */" {
			t.Errorf("body = %q", rec.Body.String())
		}
	})
}

func TestServer_HealthCheck(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer().Handler(), http.MethodGet, HealthPath)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != `{"status":"ok"}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestServer_Head(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer().Handler(), http.MethodHead, "/citizenship")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD returned a body: %q", rec.Body.String())
	}
}

func TestServer_CORS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		origins []string
		want    string
	}{
		{name: "disabled by default", origins: nil, want: ""},
		{name: "allowed origin", origins: []string{"https://example.com"}, want: "https://example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newTestServer(WithAllowedOrigins(tt.origins)).Handler()
			req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/images/foo.jpg", nil)
			req.Header.Set("Origin", "https://example.com")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServer_RouteToMissingFile(t *testing.T) {
	t.Parallel()

	table, err := route.NewTable([]route.Route{{Path: "/about", File: "about.html"}})
	if err != nil {
		t.Fatal(err)
	}
	rec := do(t, newTestServer(WithRoutes(table)).Handler(), http.MethodGet, "/about")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestServer_RequestLogIsRedacted(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := newTestServer(WithLogger(mlog.NewSecureJSONLogger(&buf, false))).Handler()
	do(t, h, http.MethodGet, "/citizenship?token=abc123&lang=ru")

	out := buf.String()
	if !strings.Contains(out, `"path":"/citizenship"`) || !strings.Contains(out, `"status":200`) {
		t.Errorf("request not logged: %s", out)
	}
	if strings.Contains(out, "abc123") {
		t.Errorf("token leaked into log: %s", out)
	}

	do(t, h, http.MethodGet, "/ru/citizenship/")
	if !strings.Contains(buf.String(), `"locale":"ru"`) {
		t.Errorf("locale not logged: %s", buf.String())
	}
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	var lc net.ListenConfig
	ln, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() {
		errCh <- newTestServer(WithShutdownTimeout(time.Second)).Serve(ctx, ln)
	}()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://"+ln.Addr().String()+"/", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("missing root", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.Root = filepath.Join(t.TempDir(), "missing")
		if _, err := NewFromConfig(cfg, nil); !errors.Is(err, ErrRootNotFound) {
			t.Errorf("expected ErrRootNotFound, got %v", err)
		}
	})

	t.Run("root is a file", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "index.html")
		if err := os.WriteFile(file, []byte(indexHTML), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg := config.NewConfig()
		cfg.Root = file
		if _, err := NewFromConfig(cfg, nil); !errors.Is(err, ErrRootNotDir) {
			t.Errorf("expected ErrRootNotDir, got %v", err)
		}
	})

	t.Run("serves the directory with the script", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "citizenship.html"), []byte(citizenshipHTML), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg := config.NewConfig()
		cfg.Root = dir

		s, err := NewFromConfig(cfg, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		h := s.Handler()

		page := do(t, h, http.MethodGet, "/ru/citizenship/")
		if page.Code != http.StatusOK || !strings.Contains(page.Body.String(), `src="/images/foo.jpg"`) {
			t.Errorf("unexpected page response %d:\n%s", page.Code, page.Body.String())
		}

		js := do(t, h, http.MethodGet, cfg.Enhance.ScriptPath)
		if js.Code != http.StatusOK || !strings.Contains(js.Body.String(), `"/ru/citizenship"`) {
			t.Errorf("script does not carry the categories: %d", js.Code)
		}
	})

	t.Run("enhancement disabled", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "citizenship.html"), []byte(citizenshipHTML), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg := config.NewConfig()
		cfg.Root = dir
		cfg.Enhance.Enabled = false

		s, err := NewFromConfig(cfg, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec := do(t, s.Handler(), http.MethodGet, "/citizenship"); rec.Body.String() != citizenshipHTML {
			t.Errorf("page was modified:\n%s", rec.Body.String())
		}
		if rec := do(t, s.Handler(), http.MethodGet, script.DefaultPath); rec.Code != http.StatusNotFound {
			t.Errorf("script served while disabled: %d", rec.Code)
		}
	})
}
