package store

import (
	"context"
	"strings"

	"github.com/abrezinsky/rallyoverlay/internal/errors"
	"github.com/abrezinsky/rallyoverlay/internal/models"
)

const (
	maxVolume = 100
	maxFilter = 200
)

// StreamConfigInput patches a stream config. Nil fields keep their value.
type StreamConfigInput struct {
	Volume     *int  `json:"volume"`
	Muted      *bool `json:"muted"`
	Solo       *bool `json:"solo"`
	Saturation *int  `json:"saturation"`
	Contrast   *int  `json:"contrast"`
	Brightness *int  `json:"brightness"`
}

// GlobalAudioInput patches the master bus
type GlobalAudioInput struct {
	Volume *int  `json:"volume"`
	Muted  *bool `json:"muted"`
}

// DisplayInput patches overlay-wide display settings. An empty
// CurrentStageID clears the current stage.
type DisplayInput struct {
	ChromaKey      *string `json:"chromaKey"`
	MapURL         *string `json:"mapUrl"`
	LogoURL        *string `json:"logoUrl"`
	CurrentStageID *string `json:"currentStageId"`
	CurrentScene   *int    `json:"currentScene"`
}

func checkRange(name string, v, max int) error {
	if v < 0 || v > max {
		return errors.Validationf("%s must be between 0 and %d", name, max)
	}
	return nil
}

// SetStreamConfig patches the config of a pilot stream or camera. Turning
// solo on clears it on every other stream in the same write.
func (s *Store) SetStreamConfig(ctx context.Context, id string, in StreamConfigInput) (models.StreamConfig, error) {
	var updated models.StreamConfig
	err := s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		if id == "" {
			return nil, errors.Validation("stream id is required")
		}
		cfg := next.StreamConfig(id)
		if in.Volume != nil {
			if err := checkRange("volume", *in.Volume, maxVolume); err != nil {
				return nil, err
			}
			cfg.Volume = *in.Volume
		}
		for _, f := range []struct {
			name string
			in   *int
			out  *int
		}{
			{"saturation", in.Saturation, &cfg.Saturation},
			{"contrast", in.Contrast, &cfg.Contrast},
			{"brightness", in.Brightness, &cfg.Brightness},
		} {
			if f.in == nil {
				continue
			}
			if err := checkRange(f.name, *f.in, maxFilter); err != nil {
				return nil, err
			}
			*f.out = *f.in
		}
		if in.Muted != nil {
			cfg.Muted = *in.Muted
		}
		if in.Solo != nil {
			cfg.Solo = *in.Solo
		}
		applySolo(next, id, cfg)
		updated = cfg
		return []Slice{SliceStreamConfigs}, nil
	})
	return updated, err
}

// ToggleSolo flips solo for one stream; soloing it unsolos all others
func (s *Store) ToggleSolo(ctx context.Context, id string) (models.StreamConfig, error) {
	var updated models.StreamConfig
	err := s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		if id == "" {
			return nil, errors.Validation("stream id is required")
		}
		cfg := next.StreamConfig(id)
		cfg.Solo = !cfg.Solo
		applySolo(next, id, cfg)
		updated = cfg
		return []Slice{SliceStreamConfigs}, nil
	})
	return updated, err
}

func applySolo(next *models.Snapshot, id string, cfg models.StreamConfig) {
	if cfg.Solo {
		for other, c := range next.StreamConfigs {
			if other != id && c.Solo {
				c.Solo = false
				next.StreamConfigs[other] = c
			}
		}
	}
	next.StreamConfigs[id] = cfg
}

// SetGlobalAudio patches the master volume and mute
func (s *Store) SetGlobalAudio(ctx context.Context, in GlobalAudioInput) (models.GlobalAudio, error) {
	var updated models.GlobalAudio
	err := s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		audio := next.GlobalAudio
		if in.Volume != nil {
			if err := checkRange("volume", *in.Volume, maxVolume); err != nil {
				return nil, err
			}
			audio.Volume = *in.Volume
		}
		if in.Muted != nil {
			audio.Muted = *in.Muted
		}
		next.GlobalAudio = audio
		updated = audio
		return []Slice{SliceGlobalAudio}, nil
	})
	return updated, err
}

// SetDisplay patches display settings. Only the slices whose field was
// given are written.
func (s *Store) SetDisplay(ctx context.Context, in DisplayInput) (models.DisplayConfig, error) {
	var updated models.DisplayConfig
	err := s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		var dirty []Slice
		d := &next.Display
		if in.ChromaKey != nil {
			key := strings.TrimSpace(*in.ChromaKey)
			if key == "" {
				key = models.DefaultChromaKey
			}
			d.ChromaKey = key
			dirty = append(dirty, SliceChromaKey)
		}
		if in.MapURL != nil {
			d.MapURL = strings.TrimSpace(*in.MapURL)
			dirty = append(dirty, SliceMapURL)
		}
		if in.LogoURL != nil {
			d.LogoURL = strings.TrimSpace(*in.LogoURL)
			dirty = append(dirty, SliceLogoURL)
		}
		if in.CurrentStageID != nil {
			if *in.CurrentStageID == "" {
				d.CurrentStageID = nil
			} else {
				if stageIndex(next, *in.CurrentStageID) < 0 {
					return nil, errors.NotFoundf("stage %s not found", *in.CurrentStageID)
				}
				id := *in.CurrentStageID
				d.CurrentStageID = &id
			}
			dirty = append(dirty, SliceCurrentStage)
		}
		if in.CurrentScene != nil {
			if *in.CurrentScene < 1 || *in.CurrentScene > models.MaxScene {
				return nil, errors.Validationf("scene must be between 1 and %d", models.MaxScene)
			}
			d.CurrentScene = *in.CurrentScene
			dirty = append(dirty, SliceCurrentScene)
		}
		updated = *d
		return dirty, nil
	})
	return updated, err
}

// SetLanguage stores the operator's UI language. It is local to this
// instance and never exported or synced.
func (s *Store) SetLanguage(ctx context.Context, lang string) error {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return errors.Validation("language is required")
	}
	return s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		if next.Language == lang {
			return nil, nil
		}
		next.Language = lang
		return []Slice{SliceLanguage}, nil
	})
}
