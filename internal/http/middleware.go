package http

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.opts.AllowedOrigin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		h.Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if r.URL.Path == "/orders/stream" {
			s.logger.Printf("%s %s stream closed after %v", r.Method, r.URL.Path, time.Since(start))
			return
		}
		s.logger.Printf("%s %s in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// dashboardHandler serves a single-page app: existing files as-is, every
// other path gets index.html so client-side routes survive a reload.
type dashboardHandler struct {
	root  string
	files http.Handler
}

func newDashboardHandler(root string) *dashboardHandler {
	return &dashboardHandler{root: root, files: http.FileServer(http.Dir(root))}
}

func (d *dashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)
	info, err := os.Stat(filepath.Join(d.root, filepath.FromSlash(strings.TrimPrefix(name, "/"))))
	if err == nil && !info.IsDir() {
		d.files.ServeHTTP(w, r)
		return
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		http.Error(w, "cannot read dashboard", http.StatusInternalServerError)
		return
	}
	http.ServeFile(w, r, filepath.Join(d.root, "index.html"))
}
