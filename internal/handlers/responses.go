package handlers

import "github.com/abrezinsky/rallyoverlay/internal/standings"

// VersionResponse carries the current data version
type VersionResponse struct {
	DataVersion int64 `json:"dataVersion"`
}

// TimesResponse is a pilot's timing on one stage
type TimesResponse struct {
	PilotID string           `json:"pilotId"`
	StageID string           `json:"stageId"`
	Total   string           `json:"total"`
	Arrival string           `json:"arrival"`
	Start   string           `json:"start"`
	Laps    []string         `json:"laps,omitempty"`
	Status  standings.Status `json:"status"`
}

// ClockResponse is the current time of day for "now" buttons
type ClockResponse struct {
	Clock string `json:"clock"`
}

// SyncKeyResponse returns a generated channel key
type SyncKeyResponse struct {
	Key        string `json:"key"`
	OverlayURL string `json:"overlayUrl"`
}
