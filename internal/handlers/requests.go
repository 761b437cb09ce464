package handlers

// TimesRequest sets any of a pilot's stage times. An empty string clears
// the entry. Start is applied first, then arrival, then total, so a total
// sent alongside an arrival wins.
type TimesRequest struct {
	Total   *string `json:"total"`
	Arrival *string `json:"arrival"`
	Start   *string `json:"start"`
}

// LapRequest sets one lap entry
type LapRequest struct {
	Value string `json:"value"`
}

// StagePilotsRequest replaces a stage's participant list
type StagePilotsRequest struct {
	PilotIDs []string `json:"pilotIds"`
}

// LanguageRequest sets the UI language
type LanguageRequest struct {
	Language string `json:"language"`
}

// SyncKeyRequest asks for a fresh channel key on a provider
type SyncKeyRequest struct {
	Provider string `json:"provider"`
}

// SyncConnectRequest joins a channel
type SyncConnectRequest struct {
	Key string `json:"key"`
}
