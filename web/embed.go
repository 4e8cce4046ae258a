// Package web embeds the chat frontend (dist/) and serves it as a
// single-page application.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// SPAHandler serves files from dist/ and falls back to index.html for client
// routes. Unknown /api paths get a JSON 404 instead of the page so API clients
// never parse HTML.
func SPAHandler() http.Handler {
	subFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(subFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}` + "\n"))
			return
		}

		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "" || !exists(subFS, name) {
			// index.html must revalidate so a redeploy is picked up at once.
			w.Header().Set("Cache-Control", "no-cache")
			r.URL.Path = "/"
		}
		fileServer.ServeHTTP(w, r)
	})
}

func exists(fsys fs.FS, name string) bool {
	f, err := fsys.Open(name)
	if err != nil {
		return false
	}
	if err := f.Close(); err != nil {
		slog.Debug("web: failed to close embedded file", "path", name, "error", err)
	}
	return true
}
