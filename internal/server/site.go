package server

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/nao1215/mpasite/internal/route"
)

const htmlContentType = "text/html; charset=utf-8"

func (s *Server) serveSite(w http.ResponseWriter, r *http.Request) {
	urlPath := r.URL.Path
	if !strings.HasPrefix(urlPath, "/") {
		urlPath = "/" + urlPath
	}

	name, ok := s.lookup(urlPath)
	if !ok {
		s.notFound(w, r)
		return
	}
	s.serveFile(w, r, urlPath, name)
}

// lookup maps a request path to a file name in the site FS.
func (s *Server) lookup(urlPath string) (string, bool) {
	rel := strings.TrimPrefix(path.Clean(urlPath), "/")

	if rel != "" && fs.ValidPath(rel) && !isHidden(rel) {
		info, err := fs.Stat(s.site, rel)
		if err == nil {
			if !info.IsDir() {
				return rel, true
			}
			index := path.Join(rel, "index.html")
			if st, err := fs.Stat(s.site, index); err == nil && !st.IsDir() {
				return index, true
			}
		}
	}

	file, ok := s.routes.Resolve(urlPath)
	if !ok {
		return "", false
	}
	if _, err := fs.Stat(s.site, file); err != nil {
		s.logger.Warn("route target missing", "path", urlPath, "file", file, "error", err)
		return "", false
	}
	return file, true
}

// isHidden reports whether any segment of rel is a dot-file.
func isHidden(rel string) bool {
	for seg := range strings.SplitSeq(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, urlPath, name string) {
	f, err := s.site.Open(name)
	if err != nil {
		s.fileError(w, r, name, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.fileError(w, r, name, err)
		return
	}

	if s.rewriter != nil && isHTML(name) {
		s.serveHTML(w, r, urlPath, name, f, info.ModTime())
		return
	}

	if rs, ok := f.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, info.ModTime(), rs)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		s.fileError(w, r, name, err)
		return
	}
	http.ServeContent(w, r, name, info.ModTime(), bytes.NewReader(data))
}

func (s *Server) serveHTML(w http.ResponseWriter, r *http.Request, urlPath, name string, f io.Reader, modTime time.Time) {
	data, err := io.ReadAll(f)
	if err != nil {
		s.fileError(w, r, name, err)
		return
	}

	isHome := route.IsHome(urlPath, s.locales)
	out, report, err := s.rewriter.Rewrite(bytes.NewReader(data), isHome)
	if err != nil {
		// serve the page as exported
		s.logger.Debug("enhance failed", "file", name, "error", err)
		out = data
	} else if report.Changed() {
		s.logger.Debug("enhanced page", "file", name, "home", isHome, "report", report)
	}

	w.Header().Set("Content-Type", htmlContentType)
	http.ServeContent(w, r, name, modTime, bytes.NewReader(out))
}

func (s *Server) fileError(w http.ResponseWriter, r *http.Request, name string, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		s.notFound(w, r)
		return
	}
	s.logger.Error("failed to read file", "file", name, "error", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func isHTML(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".html" || ext == ".htm"
}
