// Package web embeds the setup page, the overlay shell and their assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

// Templates holds setup.html and overlay.html at its root
func Templates() fs.FS {
	return mustSub(templatesFS, "templates")
}

// Static holds the css and js served under /static/
func Static() fs.FS {
	return mustSub(staticFS, "static")
}

// the directories are fixed by the embed patterns above
func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
