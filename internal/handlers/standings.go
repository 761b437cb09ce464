package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/abrezinsky/rallyoverlay/internal/models"
	"github.com/abrezinsky/rallyoverlay/internal/standings"
)

// cached serves key from the standings cache or computes it. Keys carry the
// data version so a write never serves stale rows; the short TTL bounds how
// old a running time can get.
func (h *Handlers) cached(key string, compute func() (any, bool)) (any, bool) {
	if v, ok := h.cache.Get(key); ok {
		h.Metrics.ObserveCache(true)
		return v, true
	}
	h.Metrics.ObserveCache(false)
	v, ok := compute()
	if ok {
		h.cache.Set(key, v, h.cacheTTL)
	}
	return v, ok
}

func (h *Handlers) requireStage(w http.ResponseWriter, snap *models.Snapshot, stageID string) bool {
	if _, ok := snap.Stage(stageID); !ok {
		respondError(w, NotFound(fmt.Sprintf("stage %s not found", stageID)))
		return false
	}
	return true
}

func (h *Handlers) handleGetStandings(w http.ResponseWriter, r *http.Request) {
	stageID := chi.URLParam(r, "stageID")
	order := standings.ParseOrder(r.URL.Query().Get("order"))
	snap := h.Store.Snapshot()

	key := fmt.Sprintf("rank:%s:%s:%d", stageID, order, snap.DataVersion)
	result, ok := h.cached(key, func() (any, bool) {
		return h.Standings.Rank(&snap, stageID, order)
	})
	if !ok {
		respondError(w, NotFound(fmt.Sprintf("stage %s not found", stageID)))
		return
	}
	respondOK(w, result)
}

func (h *Handlers) handleGetOverall(w http.ResponseWriter, r *http.Request) {
	through := r.URL.Query().Get("through")
	snap := h.Store.Snapshot()
	if through != "" && !h.requireStage(w, &snap, through) {
		return
	}

	key := fmt.Sprintf("overall:%s:%d", through, snap.DataVersion)
	rows, _ := h.cached(key, func() (any, bool) {
		return h.Standings.Overall(&snap, through), true
	})
	respondOK(w, rows)
}

func (h *Handlers) handleGetSplits(w http.ResponseWriter, r *http.Request) {
	stageID := chi.URLParam(r, "stageID")
	snap := h.Store.Snapshot()
	if !h.requireStage(w, &snap, stageID) {
		return
	}

	key := fmt.Sprintf("splits:%s:%d", stageID, snap.DataVersion)
	rows, _ := h.cached(key, func() (any, bool) {
		rows := h.Standings.SplitComparison(&snap, stageID)
		if rows == nil {
			rows = []standings.SplitRow{}
		}
		return rows, true
	})
	respondOK(w, rows)
}

func (h *Handlers) handleGetLapBreakdown(w http.ResponseWriter, r *http.Request) {
	stageID := chi.URLParam(r, "stageID")
	snap := h.Store.Snapshot()
	if !h.requireStage(w, &snap, stageID) {
		return
	}

	key := fmt.Sprintf("laps:%s:%d", stageID, snap.DataVersion)
	rows, _ := h.cached(key, func() (any, bool) {
		rows := h.Standings.LapBreakdown(&snap, stageID)
		if rows == nil {
			rows = []standings.LapBreakdownRow{}
		}
		return rows, true
	})
	respondOK(w, rows)
}
