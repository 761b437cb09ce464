package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// OverlayURL is the overlay page address that joins channel key
func OverlayURL(base, key string) string {
	u := strings.TrimRight(base, "/") + "/overlay"
	if key != "" {
		u += "?sync=" + url.QueryEscape(key)
	}
	return u
}

func (h *Handlers) handleGetSyncStatus(w http.ResponseWriter, r *http.Request) {
	respondOK(w, h.Sync.State(r.Context()))
}

func (h *Handlers) handleGenerateSyncKey(w http.ResponseWriter, r *http.Request) {
	var req SyncKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	key, err := h.Sync.GenerateKey(r.Context(), req.Provider)
	if err != nil {
		respondError(w, err)
		return
	}
	respondCreated(w, SyncKeyResponse{Key: key, OverlayURL: OverlayURL(h.baseURL(), key)})
}

func (h *Handlers) handleSyncConnect(w http.ResponseWriter, r *http.Request) {
	var req SyncConnectRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		respondError(w, BadRequest("Channel key is required"))
		return
	}
	if err := h.Sync.Connect(r.Context(), strings.TrimSpace(req.Key)); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, h.Sync.State(r.Context()))
}

func (h *Handlers) handleSyncDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.Sync.Disconnect(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, h.Sync.State(r.Context()))
}

// handleGetSyncQR renders the overlay link for ?key=, or the current key,
// as a PNG so a second device can join by scanning it
func (h *Handlers) handleGetSyncQR(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		key = h.Sync.State(r.Context()).Key
	}
	if key == "" {
		respondError(w, NotFound("No sync channel key"))
		return
	}

	png, err := qrcode.Encode(OverlayURL(h.baseURL(), key), qrcode.Medium, 256)
	if err != nil {
		respondError(w, InternalError(err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(png)
}

// autoConnect joins key in the background unless a connection is already
// up or under way. The page renders without waiting for the backend.
func (h *Handlers) autoConnect(ctx context.Context, key string) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := h.Sync.AutoConnect(ctx, key); err != nil {
			h.Log.Warn("Overlay auto-connect failed", "key", key, "error", err)
		}
	}()
}
