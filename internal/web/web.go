// Package web embeds the lead capture app shell: pages, manifest, stylesheet and icons.
package web

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
)

//go:embed static
var content embed.FS

// Page names served by the app shell.
const (
	PageIndex    = "index.html"
	PageOffline  = "offline.html"
	PageThankYou = "thank-you.html"
)

// Assets returns the app shell rooted at its top directory, so "icons/icon-72x72.png"
// and "manifest.json" resolve directly.
func Assets() fs.FS {
	sub, err := fs.Sub(content, "static")
	if err != nil {
		// static is embedded at build time; Sub only fails on an invalid name.
		panic(fmt.Sprintf("web: sub static: %v", err))
	}
	return sub
}

// Page returns the bytes of a named page.
func Page(name string) ([]byte, error) {
	data, err := fs.ReadFile(Assets(), name)
	if err != nil {
		return nil, fmt.Errorf("read page %s: %w", name, err)
	}
	return data, nil
}

// FileServer serves every embedded asset by its path.
func FileServer() http.Handler {
	return http.FileServerFS(Assets())
}

// ServePage writes a page as HTML. A missing page yields 404.
func ServePage(w http.ResponseWriter, name string) {
	data, err := Page(name)
	if err != nil {
		http.NotFound(w, nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
