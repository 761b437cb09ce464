package models

import "math"

// StageType is the kind of a stage; it decides how the stage is ranked
type StageType string

const (
	StageSS      StageType = "SS"
	StageLapRace StageType = "Lap Race"
	StageLiaison StageType = "Liaison"
	StageService StageType = "Service Park"
)

// Valid reports whether t is one of the known stage types
func (t StageType) Valid() bool {
	switch t {
	case StageSS, StageLapRace, StageLiaison, StageService:
		return true
	}
	return false
}

// Defaults applied to newly created entities
const (
	DefaultStartOrder    = 999
	DefaultCategoryColor = "#FF4500"
	DefaultNumberOfLaps  = 5
	DefaultChromaKey     = "#000000"
	DefaultScene         = 1
	DefaultLanguage      = "en"
	MaxScene             = 5
)

// Pilot represents a competitor
type Pilot struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	CarNumber  string  `json:"carNumber,omitempty"`
	Picture    string  `json:"picture,omitempty"`
	StreamURL  string  `json:"streamUrl,omitempty"`
	CategoryID *string `json:"categoryId"`
	StartOrder int     `json:"startOrder"`
	IsActive   bool    `json:"isActive"`
}

// Category groups pilots for display (class badges)
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Stage is a timed or untimed segment of the event
type Stage struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         StageType `json:"type"`
	SSNumber     string    `json:"ssNumber,omitempty"`
	StartTime    string    `json:"startTime,omitempty"` // HH:MM
	NumberOfLaps int       `json:"numberOfLaps,omitempty"`
}

// StreamConfig holds per-pilot or per-camera audio and video settings
type StreamConfig struct {
	Volume     int  `json:"volume"`
	Muted      bool `json:"muted"`
	Solo       bool `json:"solo"`
	Saturation int  `json:"saturation"`
	Contrast   int  `json:"contrast"`
	Brightness int  `json:"brightness"`
}

// DefaultStreamConfig is what a stream without stored settings uses
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{Volume: 100, Saturation: 100, Contrast: 100, Brightness: 100}
}

// GlobalAudio is the master audio bus
type GlobalAudio struct {
	Volume int  `json:"volume"`
	Muted  bool `json:"muted"`
}

// DefaultGlobalAudio returns full volume, unmuted
func DefaultGlobalAudio() GlobalAudio {
	return GlobalAudio{Volume: 100}
}

// DisplayConfig is overlay-wide presentation state
type DisplayConfig struct {
	ChromaKey      string  `json:"chromaKey"`
	MapURL         string  `json:"mapUrl"`
	LogoURL        string  `json:"logoUrl"`
	CurrentStageID *string `json:"currentStageId"`
	CurrentScene   int     `json:"currentScene"`
}

// Per-pilot, per-stage maps: pilot id -> stage id -> value
type (
	TimeMap = map[string]map[string]string
	LapMap  = map[string]map[string][]string
)

// Snapshot is a read-only copy of all rally state
type Snapshot struct {
	Pilots        []Pilot                 `json:"pilots"`
	Categories    []Category              `json:"categories"`
	Stages        []Stage                 `json:"stages"`
	Times         TimeMap                 `json:"times"`
	ArrivalTimes  TimeMap                 `json:"arrivalTimes"`
	StartTimes    TimeMap                 `json:"startTimes"`
	LapTimes      LapMap                  `json:"lapTimes"`
	StagePilots   map[string][]string     `json:"stagePilots"`
	StreamConfigs map[string]StreamConfig `json:"streamConfigs"`
	GlobalAudio   GlobalAudio             `json:"globalAudio"`
	Display       DisplayConfig           `json:"display"`
	Language      string                  `json:"language"`
	DataVersion   int64                   `json:"dataVersion"`
}

// Stage returns the stage with id, if present
func (s Snapshot) Stage(id string) (Stage, bool) {
	for _, st := range s.Stages {
		if st.ID == id {
			return st, true
		}
	}
	return Stage{}, false
}

// Pilot returns the pilot with id, if present
func (s Snapshot) Pilot(id string) (Pilot, bool) {
	for _, p := range s.Pilots {
		if p.ID == id {
			return p, true
		}
	}
	return Pilot{}, false
}

// Time returns the recorded total time of pilot on stage, or ""
func (s Snapshot) Time(pilotID, stageID string) string {
	return s.Times[pilotID][stageID]
}

// StartTime returns the start clock of pilot on stage, or ""
func (s Snapshot) StartTime(pilotID, stageID string) string {
	return s.StartTimes[pilotID][stageID]
}

// Laps returns the lap entries of pilot on stage
func (s Snapshot) Laps(pilotID, stageID string) []string {
	return s.LapTimes[pilotID][stageID]
}

// StreamConfig returns the stored config for id or the defaults
func (s Snapshot) StreamConfig(id string) StreamConfig {
	if cfg, ok := s.StreamConfigs[id]; ok {
		return cfg
	}
	return DefaultStreamConfig()
}

// HasSolo reports whether any stream is currently solo
func (s Snapshot) HasSolo() bool {
	for _, cfg := range s.StreamConfigs {
		if cfg.Solo {
			return true
		}
	}
	return false
}

// EffectiveAudio is what a stream actually plays at after global settings
// and solo are applied
type EffectiveAudio struct {
	Volume int  `json:"volume"`
	Muted  bool `json:"muted"`
}

// EffectiveAudio combines the stream's own config with global audio. While
// any stream is solo, every non-solo stream is muted.
func (s Snapshot) EffectiveAudio(id string) EffectiveAudio {
	cfg := s.StreamConfig(id)
	muted := cfg.Muted || s.GlobalAudio.Muted || (s.HasSolo() && !cfg.Solo)
	volume := int(math.Round(float64(cfg.Volume) * float64(s.GlobalAudio.Volume) / 100))
	return EffectiveAudio{Volume: volume, Muted: muted}
}

// ExportDocument is the backup file format. Pointer and map fields are
// nil when absent from an imported document.
type ExportDocument struct {
	Pilots         []Pilot                 `json:"pilots"`
	Categories     []Category              `json:"categories"`
	Stages         []Stage                 `json:"stages"`
	Times          TimeMap                 `json:"times"`
	ArrivalTimes   TimeMap                 `json:"arrivalTimes"`
	StartTimes     TimeMap                 `json:"startTimes"`
	LapTimes       LapMap                  `json:"lapTimes"`
	StagePilots    map[string][]string     `json:"stagePilots"`
	StreamConfigs  map[string]StreamConfig `json:"streamConfigs"`
	GlobalAudio    *GlobalAudio            `json:"globalAudio"`
	CurrentStageID *string                 `json:"currentStageId"`
	CurrentScene   int                     `json:"currentScene,omitempty"`
	ChromaKey      string                  `json:"chromaKey"`
	MapURL         string                  `json:"mapUrl"`
	LogoURL        string                  `json:"logoUrl"`
	DataVersion    int64                   `json:"dataVersion"`
	ExportDate     string                  `json:"exportDate,omitempty"`
}

// SyncPayload is the message body published on a sync channel
type SyncPayload struct {
	ExportDocument
	Timestamp int64 `json:"timestamp"`
}

// NewExportDocument builds a full document from a snapshot
func NewExportDocument(s Snapshot) ExportDocument {
	audio := s.GlobalAudio
	return ExportDocument{
		Pilots:         s.Pilots,
		Categories:     s.Categories,
		Stages:         s.Stages,
		Times:          s.Times,
		ArrivalTimes:   s.ArrivalTimes,
		StartTimes:     s.StartTimes,
		LapTimes:       s.LapTimes,
		StagePilots:    s.StagePilots,
		StreamConfigs:  s.StreamConfigs,
		GlobalAudio:    &audio,
		CurrentStageID: s.Display.CurrentStageID,
		CurrentScene:   s.Display.CurrentScene,
		ChromaKey:      s.Display.ChromaKey,
		MapURL:         s.Display.MapURL,
		LogoURL:        s.Display.LogoURL,
		DataVersion:    s.DataVersion,
	}
}

// SyncStatus is the state of the realtime channel connection
type SyncStatus string

const (
	SyncDisconnected SyncStatus = "disconnected"
	SyncConnecting   SyncStatus = "connecting"
	SyncConnected    SyncStatus = "connected"
	SyncError        SyncStatus = "error"
)

// SyncState is reported to the setup view and overlay clients
type SyncState struct {
	Status    SyncStatus `json:"status"`
	Key       string     `json:"key,omitempty"`
	Provider  string     `json:"provider,omitempty"`
	LastError string     `json:"lastError,omitempty"`
	Enabled   bool       `json:"enabled"`
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
