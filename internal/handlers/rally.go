package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/abrezinsky/rallyoverlay/internal/store"
	"github.com/abrezinsky/rallyoverlay/internal/timefmt"
)

const maxImportBytes = 10 << 20

// ==================== State ====================

func (h *Handlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	respondOK(w, h.Store.Snapshot())
}

func (h *Handlers) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	respondOK(w, VersionResponse{DataVersion: h.Store.Version()})
}

func (h *Handlers) handleGetClock(w http.ResponseWriter, r *http.Request) {
	respondOK(w, ClockResponse{Clock: timefmt.ClockString(h.Standings.Now())})
}

// ==================== Pilots ====================

func (h *Handlers) handleGetPilots(w http.ResponseWriter, r *http.Request) {
	respondOK(w, h.Store.Snapshot().Pilots)
}

func (h *Handlers) handleCreatePilot(w http.ResponseWriter, r *http.Request) {
	var req store.PilotInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	pilot, err := h.Store.AddPilot(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondCreated(w, pilot)
}

func (h *Handlers) handleUpdatePilot(w http.ResponseWriter, r *http.Request) {
	var req store.PilotInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	pilot, err := h.Store.UpdatePilot(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, pilot)
}

func (h *Handlers) handleTogglePilotActive(w http.ResponseWriter, r *http.Request) {
	pilot, err := h.Store.TogglePilotActive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, pilot)
}

func (h *Handlers) handleDeletePilot(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeletePilot(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	respondDeleted(w)
}

// ==================== Categories ====================

func (h *Handlers) handleGetCategories(w http.ResponseWriter, r *http.Request) {
	respondOK(w, h.Store.Snapshot().Categories)
}

func (h *Handlers) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req store.CategoryInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	category, err := h.Store.AddCategory(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondCreated(w, category)
}

func (h *Handlers) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req store.CategoryInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	category, err := h.Store.UpdateCategory(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, category)
}

func (h *Handlers) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	respondDeleted(w)
}

// ==================== Stages ====================

func (h *Handlers) handleGetStages(w http.ResponseWriter, r *http.Request) {
	respondOK(w, h.Store.Snapshot().Stages)
}

func (h *Handlers) handleCreateStage(w http.ResponseWriter, r *http.Request) {
	var req store.StageInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	stage, err := h.Store.AddStage(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondCreated(w, stage)
}

func (h *Handlers) handleUpdateStage(w http.ResponseWriter, r *http.Request) {
	var req store.StageInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	stage, err := h.Store.UpdateStage(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, stage)
}

func (h *Handlers) handleDeleteStage(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteStage(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	respondDeleted(w)
}

func (h *Handlers) handleSetStagePilots(w http.ResponseWriter, r *http.Request) {
	var req StagePilotsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	stageID := chi.URLParam(r, "id")
	if err := h.Store.SetStagePilots(r.Context(), stageID, req.PilotIDs); err != nil {
		respondError(w, err)
		return
	}
	snap := h.Store.Snapshot()
	respondOK(w, StagePilotsRequest{PilotIDs: snap.StagePilots[stageID]})
}

func (h *Handlers) handleToggleStagePilot(w http.ResponseWriter, r *http.Request) {
	stageID := chi.URLParam(r, "id")
	if err := h.Store.ToggleStagePilot(r.Context(), stageID, chi.URLParam(r, "pilotID")); err != nil {
		respondError(w, err)
		return
	}
	snap := h.Store.Snapshot()
	respondOK(w, StagePilotsRequest{PilotIDs: snap.StagePilots[stageID]})
}

// ==================== Timing ====================

func (h *Handlers) timesResponse(pilotID, stageID string) TimesResponse {
	snap := h.Store.Snapshot()
	return TimesResponse{
		PilotID: pilotID,
		StageID: stageID,
		Total:   snap.Time(pilotID, stageID),
		Arrival: snap.ArrivalTimes[pilotID][stageID],
		Start:   snap.StartTime(pilotID, stageID),
		Laps:    snap.Laps(pilotID, stageID),
		Status:  h.Standings.Status(&snap, pilotID, stageID),
	}
}

func (h *Handlers) handleGetTimes(w http.ResponseWriter, r *http.Request) {
	pilotID, stageID := chi.URLParam(r, "pilotID"), chi.URLParam(r, "stageID")
	snap := h.Store.Snapshot()
	if _, ok := snap.Pilot(pilotID); !ok {
		respondError(w, NotFound(fmt.Sprintf("pilot %s not found", pilotID)))
		return
	}
	if _, ok := snap.Stage(stageID); !ok {
		respondError(w, NotFound(fmt.Sprintf("stage %s not found", stageID)))
		return
	}
	respondOK(w, h.timesResponse(pilotID, stageID))
}

func (h *Handlers) handleSetTimes(w http.ResponseWriter, r *http.Request) {
	var req TimesRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Total == nil && req.Arrival == nil && req.Start == nil {
		respondError(w, BadRequest("One of total, arrival or start is required"))
		return
	}

	ctx := r.Context()
	pilotID, stageID := chi.URLParam(r, "pilotID"), chi.URLParam(r, "stageID")
	if req.Start != nil {
		if err := h.Store.SetStartTime(ctx, pilotID, stageID, *req.Start); err != nil {
			respondError(w, err)
			return
		}
	}
	if req.Arrival != nil {
		if err := h.Store.SetArrivalTime(ctx, pilotID, stageID, *req.Arrival); err != nil {
			respondError(w, err)
			return
		}
	}
	if req.Total != nil {
		if err := h.Store.SetTime(ctx, pilotID, stageID, *req.Total); err != nil {
			respondError(w, err)
			return
		}
	}
	respondOK(w, h.timesResponse(pilotID, stageID))
}

// handleSetLap takes a one-based lap number in the path
func (h *Handlers) handleSetLap(w http.ResponseWriter, r *http.Request) {
	lap, err := parseIntParam(r, "lap")
	if err != nil {
		respondError(w, err)
		return
	}
	if lap < 1 {
		respondError(w, BadRequest("Lap numbers start at 1"))
		return
	}
	var req LapRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	pilotID, stageID := chi.URLParam(r, "pilotID"), chi.URLParam(r, "stageID")
	if err := h.Store.SetLapTime(r.Context(), pilotID, stageID, lap-1, req.Value); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, h.timesResponse(pilotID, stageID))
}

// ==================== Audio and display ====================

func (h *Handlers) handleSetStreamConfig(w http.ResponseWriter, r *http.Request) {
	var req store.StreamConfigInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	cfg, err := h.Store.SetStreamConfig(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, cfg)
}

func (h *Handlers) handleToggleSolo(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Store.ToggleSolo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, cfg)
}

func (h *Handlers) handleGetEffectiveAudio(w http.ResponseWriter, r *http.Request) {
	snap := h.Store.Snapshot()
	respondOK(w, snap.EffectiveAudio(chi.URLParam(r, "id")))
}

func (h *Handlers) handleSetGlobalAudio(w http.ResponseWriter, r *http.Request) {
	var req store.GlobalAudioInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	audio, err := h.Store.SetGlobalAudio(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, audio)
}

func (h *Handlers) handleSetDisplay(w http.ResponseWriter, r *http.Request) {
	var req store.DisplayInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	display, err := h.Store.SetDisplay(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, display)
}

func (h *Handlers) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	var req LanguageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := h.Store.SetLanguage(r.Context(), req.Language); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, req)
}

// ==================== Data ====================

func (h *Handlers) handleExport(w http.ResponseWriter, r *http.Request) {
	doc := h.Store.Export()
	filename := "rally-export.json"
	if len(doc.ExportDate) >= 10 {
		filename = "rally-export-" + doc.ExportDate[:10] + ".json"
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	respondOK(w, doc)
}

func (h *Handlers) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		respondError(w, BadRequest("Could not read import body"))
		return
	}
	if len(data) == 0 {
		respondError(w, BadRequest("Request body is empty"))
		return
	}
	if err := h.Store.Import(r.Context(), data); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, VersionResponse{DataVersion: h.Store.Version()})
}

func (h *Handlers) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "All rally data cleared")
}
