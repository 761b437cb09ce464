package web

import (
	"html/template"
	"io/fs"
	"testing"
)

func TestEmbeddedTemplatesExist(t *testing.T) {
	templatesFS := Templates()

	for _, file := range []string{"setup.html", "overlay.html"} {
		if _, err := fs.Stat(templatesFS, file); err != nil {
			t.Errorf("required template %q not found: %v", file, err)
		}
	}
}

func TestEmbeddedTemplatesParse(t *testing.T) {
	for _, file := range []string{"setup.html", "overlay.html"} {
		if _, err := template.ParseFS(Templates(), file); err != nil {
			t.Errorf("template %q does not parse: %v", file, err)
		}
	}
}

func TestEmbeddedStaticFilesExist(t *testing.T) {
	staticFS := Static()

	requiredFiles := []string{
		"css/overlay.css",
		"js/overlay.js",
		"js/setup.js",
	}
	for _, file := range requiredFiles {
		if _, err := fs.Stat(staticFS, file); err != nil {
			t.Errorf("required static file %q not found: %v", file, err)
		}
	}
}
