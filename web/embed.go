// Package web embeds the browser client served at the site root.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var content embed.FS

// Static holds index.html, app.js and style.css at its root.
var Static, _ = fs.Sub(content, "static")

// Handler serves the embedded client.
func Handler() http.Handler {
	return http.FileServer(http.FS(Static))
}
