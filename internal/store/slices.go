package store

import (
	"encoding/json"

	"github.com/abrezinsky/rallyoverlay/internal/models"
)

// Slice names one independently persisted piece of state. The value is the
// storage key.
type Slice string

const (
	SlicePilots        Slice = "rally_pilots"
	SliceCategories    Slice = "rally_categories"
	SliceStages        Slice = "rally_stages"
	SliceTimes         Slice = "rally_times"
	SliceArrivalTimes  Slice = "rally_arrival_times"
	SliceStartTimes    Slice = "rally_start_times"
	SliceLapTimes      Slice = "rally_lap_times"
	SliceStagePilots   Slice = "rally_stage_pilots"
	SliceStreamConfigs Slice = "rally_stream_configs"
	SliceGlobalAudio   Slice = "rally_global_audio"
	SliceCurrentStage  Slice = "rally_current_stage"
	SliceChromaKey     Slice = "rally_chroma_key"
	SliceMapURL        Slice = "rally_map_url"
	SliceLogoURL       Slice = "rally_logo_url"
	SliceCurrentScene  Slice = "rally_current_scene"
	SliceLanguage      Slice = "rally_language"
	SliceDataVersion   Slice = "rally_data_version"
)

// sliceDef binds a slice to its field in the snapshot
type sliceDef struct {
	name     Slice
	docKey   string // export document field; empty if not exported
	encode   func(*models.Snapshot) ([]byte, error)
	decode   func(*models.Snapshot, []byte) error
	reset    func(*models.Snapshot)
	nullable bool // an explicit JSON null in an import is applied
}

func field[T any](name Slice, docKey string, get func(*models.Snapshot) *T, def func() T) sliceDef {
	return sliceDef{
		name:   name,
		docKey: docKey,
		encode: func(s *models.Snapshot) ([]byte, error) {
			return json.Marshal(*get(s))
		},
		decode: func(s *models.Snapshot, data []byte) error {
			v := def()
			if err := json.Unmarshal(data, &v); err != nil {
				return err
			}
			*get(s) = v
			return nil
		},
		reset: func(s *models.Snapshot) {
			*get(s) = def()
		},
	}
}

func nullable(d sliceDef) sliceDef {
	d.nullable = true
	return d
}

// sliceDefs lists every persisted slice except the data version, which the
// commit path writes itself.
var sliceDefs = []sliceDef{
	field(SlicePilots, "pilots",
		func(s *models.Snapshot) *[]models.Pilot { return &s.Pilots },
		func() []models.Pilot { return []models.Pilot{} }),
	field(SliceCategories, "categories",
		func(s *models.Snapshot) *[]models.Category { return &s.Categories },
		func() []models.Category { return []models.Category{} }),
	field(SliceStages, "stages",
		func(s *models.Snapshot) *[]models.Stage { return &s.Stages },
		func() []models.Stage { return []models.Stage{} }),
	field(SliceTimes, "times",
		func(s *models.Snapshot) *models.TimeMap { return &s.Times },
		func() models.TimeMap { return models.TimeMap{} }),
	field(SliceArrivalTimes, "arrivalTimes",
		func(s *models.Snapshot) *models.TimeMap { return &s.ArrivalTimes },
		func() models.TimeMap { return models.TimeMap{} }),
	field(SliceStartTimes, "startTimes",
		func(s *models.Snapshot) *models.TimeMap { return &s.StartTimes },
		func() models.TimeMap { return models.TimeMap{} }),
	field(SliceLapTimes, "lapTimes",
		func(s *models.Snapshot) *models.LapMap { return &s.LapTimes },
		func() models.LapMap { return models.LapMap{} }),
	field(SliceStagePilots, "stagePilots",
		func(s *models.Snapshot) *map[string][]string { return &s.StagePilots },
		func() map[string][]string { return map[string][]string{} }),
	field(SliceStreamConfigs, "streamConfigs",
		func(s *models.Snapshot) *map[string]models.StreamConfig { return &s.StreamConfigs },
		func() map[string]models.StreamConfig { return map[string]models.StreamConfig{} }),
	field(SliceGlobalAudio, "globalAudio",
		func(s *models.Snapshot) *models.GlobalAudio { return &s.GlobalAudio },
		models.DefaultGlobalAudio),
	nullable(field(SliceCurrentStage, "currentStageId",
		func(s *models.Snapshot) **string { return &s.Display.CurrentStageID },
		func() *string { return nil })),
	field(SliceChromaKey, "chromaKey",
		func(s *models.Snapshot) *string { return &s.Display.ChromaKey },
		func() string { return models.DefaultChromaKey }),
	field(SliceMapURL, "mapUrl",
		func(s *models.Snapshot) *string { return &s.Display.MapURL },
		func() string { return "" }),
	field(SliceLogoURL, "logoUrl",
		func(s *models.Snapshot) *string { return &s.Display.LogoURL },
		func() string { return "" }),
	field(SliceCurrentScene, "currentScene",
		func(s *models.Snapshot) *int { return &s.Display.CurrentScene },
		func() int { return models.DefaultScene }),
	field(SliceLanguage, "",
		func(s *models.Snapshot) *string { return &s.Language },
		func() string { return models.DefaultLanguage }),
}

// defaultSnapshot returns every slice at its default
func defaultSnapshot() models.Snapshot {
	var s models.Snapshot
	for _, d := range sliceDefs {
		d.reset(&s)
	}
	return s
}

func lookupSlice(name Slice) (sliceDef, bool) {
	for _, d := range sliceDefs {
		if d.name == name {
			return d, true
		}
	}
	return sliceDef{}, false
}

// syncedSlices are the slices carried by exports and sync payloads
func syncedSlices() []Slice {
	var out []Slice
	for _, d := range sliceDefs {
		if d.docKey != "" {
			out = append(out, d.name)
		}
	}
	return out
}

// clone deep-copies a snapshot so callers can never alias store state
func clone(s models.Snapshot) models.Snapshot {
	out := s
	out.Pilots = append([]models.Pilot(nil), s.Pilots...)
	out.Categories = append([]models.Category(nil), s.Categories...)
	out.Stages = append([]models.Stage(nil), s.Stages...)
	out.Times = cloneTimeMap(s.Times)
	out.ArrivalTimes = cloneTimeMap(s.ArrivalTimes)
	out.StartTimes = cloneTimeMap(s.StartTimes)

	out.LapTimes = make(models.LapMap, len(s.LapTimes))
	for pilot, stages := range s.LapTimes {
		m := make(map[string][]string, len(stages))
		for stage, laps := range stages {
			m[stage] = append([]string(nil), laps...)
		}
		out.LapTimes[pilot] = m
	}

	out.StagePilots = make(map[string][]string, len(s.StagePilots))
	for stage, ids := range s.StagePilots {
		out.StagePilots[stage] = append([]string(nil), ids...)
	}

	out.StreamConfigs = make(map[string]models.StreamConfig, len(s.StreamConfigs))
	for id, cfg := range s.StreamConfigs {
		out.StreamConfigs[id] = cfg
	}
	if out.Pilots == nil {
		out.Pilots = []models.Pilot{}
	}
	if out.Categories == nil {
		out.Categories = []models.Category{}
	}
	if out.Stages == nil {
		out.Stages = []models.Stage{}
	}
	return out
}

func cloneTimeMap(src models.TimeMap) models.TimeMap {
	out := make(models.TimeMap, len(src))
	for pilot, stages := range src {
		m := make(map[string]string, len(stages))
		for stage, v := range stages {
			m[stage] = v
		}
		out[pilot] = m
	}
	return out
}
