package handlers

import (
	"net/http"
	"strings"
)

// PageData holds the data passed to page templates
type PageData struct {
	Title   string
	BaseURL string
	SyncKey string
	WSPath  string
}

func (h *Handlers) render(w http.ResponseWriter, name string, data PageData) {
	if h.templates == nil {
		respondError(w, NotFound("Pages are not available"))
		return
	}
	t := h.templates.Setup
	if name == "overlay" {
		t = h.templates.Overlay
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.Execute(w, data); err != nil {
		h.Log.Error("Template render failed", "template", name, "error", err)
	}
}

func (h *Handlers) handleSetupPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "setup", PageData{
		Title:   "Rally Overlay Setup",
		BaseURL: h.baseURL(),
		SyncKey: h.Sync.State(r.Context()).Key,
		WSPath:  "/ws",
	})
}

// handleOverlayPage serves the overlay shell. A channel key in ?sync= (or
// the older ?ws=) joins that channel once, unless one is already joined or
// being joined.
func (h *Handlers) handleOverlayPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := strings.TrimSpace(q.Get("sync"))
	if key == "" {
		key = strings.TrimSpace(q.Get("ws"))
	}
	if key != "" {
		h.autoConnect(r.Context(), key)
	}
	h.render(w, "overlay", PageData{
		Title:   "Rally Overlay",
		BaseURL: h.baseURL(),
		SyncKey: key,
		WSPath:  "/ws",
	})
}
