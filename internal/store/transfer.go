package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/abrezinsky/rallyoverlay/internal/errors"
	"github.com/abrezinsky/rallyoverlay/internal/models"
)

// Export returns the full synchronized state stamped with the export time
func (s *Store) Export() models.ExportDocument {
	doc := models.NewExportDocument(s.Snapshot())
	doc.ExportDate = s.clock.Now().UTC().Format(time.RFC3339)
	return doc
}

// Import replaces the slices present in data and leaves the rest alone.
// A document that fails to decode changes nothing.
func (s *Store) Import(ctx context.Context, data []byte) error {
	return s.applyDocument(ctx, OriginLocal, data)
}

// ApplyRemote applies a snapshot received from the sync channel. The echo
// latch is raised first so the resulting change is not published back.
func (s *Store) ApplyRemote(ctx context.Context, data []byte) error {
	s.holdLatch()
	return s.applyDocument(ctx, OriginRemote, data)
}

func (s *Store) applyDocument(ctx context.Context, origin Origin, data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		s.log.Warn("Rejected snapshot", "origin", origin.String(), "error", err)
		return errors.InvalidInputWrap(err, "snapshot is not a JSON object")
	}

	err := s.mutate(ctx, origin, func(next *models.Snapshot) ([]Slice, error) {
		var dirty []Slice
		for _, d := range sliceDefs {
			if d.docKey == "" {
				continue
			}
			raw, ok := fields[d.docKey]
			if !ok {
				continue
			}
			if isNull(raw) && !d.nullable {
				continue
			}
			if d.name == SliceChromaKey && bytes.Equal(bytes.TrimSpace(raw), []byte(`""`)) {
				continue
			}
			if err := d.decode(next, raw); err != nil {
				return nil, errors.InvalidInputWrap(fmt.Errorf("%s: %w", d.docKey, err), "snapshot has a malformed field")
			}
			dirty = append(dirty, d.name)
		}
		if err := checkDocument(next, dirty); err != nil {
			return nil, errors.InvalidInputWrap(err, "snapshot has an invalid entry")
		}
		return dirty, nil
	})
	if errors.Is(err, errors.ErrInvalidInput) {
		s.log.Warn("Rejected snapshot", "origin", origin.String(), "error", err)
	}
	return err
}

// Reset returns every synchronized slice to its default in one write.
// The language preference is kept.
func (s *Store) Reset(ctx context.Context) error {
	return s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		dirty := syncedSlices()
		for _, name := range dirty {
			d, _ := lookupSlice(name)
			d.reset(next)
		}
		return dirty, nil
	})
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// checkDocument holds replaced slices to the rules the mutators enforce:
// every entity has a unique id and a name, and at most one stream is solo.
func checkDocument(s *models.Snapshot, replaced []Slice) error {
	for _, name := range replaced {
		switch name {
		case SlicePilots:
			for i, p := range s.Pilots {
				if err := checkEntity("pilot", i, p.ID, p.Name, s.Pilots[:i], func(q models.Pilot) string { return q.ID }); err != nil {
					return err
				}
			}
		case SliceCategories:
			for i, c := range s.Categories {
				if err := checkEntity("category", i, c.ID, c.Name, s.Categories[:i], func(q models.Category) string { return q.ID }); err != nil {
					return err
				}
			}
		case SliceStages:
			for i, st := range s.Stages {
				if err := checkEntity("stage", i, st.ID, st.Name, s.Stages[:i], func(q models.Stage) string { return q.ID }); err != nil {
					return err
				}
			}
		case SliceStreamConfigs:
			keepOneSolo(s.StreamConfigs)
		}
	}
	return nil
}

func checkEntity[T any](kind string, i int, id, name string, earlier []T, idOf func(T) string) error {
	if id == "" {
		return fmt.Errorf("%s #%d has no id", kind, i+1)
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%s %s has no name", kind, id)
	}
	for _, e := range earlier {
		if idOf(e) == id {
			return fmt.Errorf("%s id %s is repeated", kind, id)
		}
	}
	return nil
}

// keepOneSolo clears solo on all but the lowest stream id
func keepOneSolo(configs map[string]models.StreamConfig) {
	var solo []string
	for id, cfg := range configs {
		if cfg.Solo {
			solo = append(solo, id)
		}
	}
	if len(solo) < 2 {
		return
	}
	sort.Strings(solo)
	for _, id := range solo[1:] {
		cfg := configs[id]
		cfg.Solo = false
		configs[id] = cfg
	}
}
