// Package ui embeds the built review dashboard and serves it with
// single-page-app routing semantics.
package ui

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// DistFS returns the embedded dist/ filesystem with the "dist" prefix stripped.
func DistFS() (fs.FS, error) {
	return fs.Sub(distFS, "dist")
}

// Handler serves the embedded dashboard. Real files are served directly;
// extension-less paths are client-side routes and get index.html; missing
// assets return 404.
func Handler() (http.Handler, error) {
	sub, err := DistFS()
	if err != nil {
		return nil, err
	}

	fileServer := http.FileServerFS(sub)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if p == "" {
			fileServer.ServeHTTP(w, r)
			return
		}

		if _, err := fs.Stat(sub, p); err == nil {
			fileServer.ServeHTTP(w, r)
			return
		}

		// Anything with an extension is a genuinely missing asset.
		if strings.Contains(p, ".") {
			http.NotFound(w, r)
			return
		}

		// Client-side route, let the app's router handle it.
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	}), nil
}
