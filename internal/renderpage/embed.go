// Package renderpage embeds the overlay page both the live browser sources
// and the headless export renderer load. Keeping it in the binary means the
// relay, the render target, and the export pipeline always ship in lockstep.
package renderpage

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFiles embed.FS

func Handler() http.Handler {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
