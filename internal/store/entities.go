package store

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/abrezinsky/rallyoverlay/internal/errors"
	"github.com/abrezinsky/rallyoverlay/internal/models"
	"github.com/abrezinsky/rallyoverlay/internal/timefmt"
)

// PilotInput carries pilot fields. Nil fields are left unchanged on
// update. An empty CategoryID clears the category.
type PilotInput struct {
	Name       *string `json:"name"`
	CarNumber  *string `json:"carNumber"`
	Picture    *string `json:"picture"`
	StreamURL  *string `json:"streamUrl"`
	CategoryID *string `json:"categoryId"`
	StartOrder *int    `json:"startOrder"`
	IsActive   *bool   `json:"isActive"`
}

// CategoryInput carries category fields
type CategoryInput struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

// StageInput carries stage fields
type StageInput struct {
	Name         *string `json:"name"`
	Type         *string `json:"type"`
	SSNumber     *string `json:"ssNumber"`
	StartTime    *string `json:"startTime"`
	NumberOfLaps *int    `json:"numberOfLaps"`
}

func newID() string {
	return uuid.NewString()
}

func pilotIndex(s *models.Snapshot, id string) int {
	return slices.IndexFunc(s.Pilots, func(p models.Pilot) bool { return p.ID == id })
}

func categoryIndex(s *models.Snapshot, id string) int {
	return slices.IndexFunc(s.Categories, func(c models.Category) bool { return c.ID == id })
}

func stageIndex(s *models.Snapshot, id string) int {
	return slices.IndexFunc(s.Stages, func(st models.Stage) bool { return st.ID == id })
}

// ==================== Pilots ====================

// AddPilot creates a pilot with a fresh id. New pilots are inactive and
// sort last until given a start order.
func (s *Store) AddPilot(ctx context.Context, in PilotInput) (models.Pilot, error) {
	p := models.Pilot{ID: newID(), StartOrder: models.DefaultStartOrder}
	err := s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		if err := applyPilot(next, &p, in); err != nil {
			return nil, err
		}
		next.Pilots = append(next.Pilots, p)
		return []Slice{SlicePilots}, nil
	})
	if err != nil {
		return models.Pilot{}, err
	}
	return p, nil
}

// UpdatePilot merges in into an existing pilot
func (s *Store) UpdatePilot(ctx context.Context, id string, in PilotInput) (models.Pilot, error) {
	var updated models.Pilot
	err := s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		i := pilotIndex(next, id)
		if i < 0 {
			return nil, errors.NotFoundf("pilot %s not found", id)
		}
		p := next.Pilots[i]
		if err := applyPilot(next, &p, in); err != nil {
			return nil, err
		}
		next.Pilots[i] = p
		updated = p
		return []Slice{SlicePilots}, nil
	})
	return updated, err
}

// TogglePilotActive flips whether a pilot is shown on the live grid
func (s *Store) TogglePilotActive(ctx context.Context, id string) (models.Pilot, error) {
	var updated models.Pilot
	err := s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		i := pilotIndex(next, id)
		if i < 0 {
			return nil, errors.NotFoundf("pilot %s not found", id)
		}
		next.Pilots[i].IsActive = !next.Pilots[i].IsActive
		updated = next.Pilots[i]
		return []Slice{SlicePilots}, nil
	})
	return updated, err
}

// DeletePilot removes a pilot and every timing, lap, participation and
// stream entry keyed by it.
func (s *Store) DeletePilot(ctx context.Context, id string) error {
	return s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		i := pilotIndex(next, id)
		if i < 0 {
			return nil, errors.NotFoundf("pilot %s not found", id)
		}
		next.Pilots = slices.Delete(next.Pilots, i, i+1)
		delete(next.Times, id)
		delete(next.ArrivalTimes, id)
		delete(next.StartTimes, id)
		delete(next.LapTimes, id)
		delete(next.StreamConfigs, id)
		for stage, ids := range next.StagePilots {
			next.StagePilots[stage] = slices.DeleteFunc(ids, func(p string) bool { return p == id })
			if len(next.StagePilots[stage]) == 0 {
				delete(next.StagePilots, stage)
			}
		}
		return []Slice{SlicePilots, SliceTimes, SliceArrivalTimes, SliceStartTimes,
			SliceLapTimes, SliceStreamConfigs, SliceStagePilots}, nil
	})
}

func applyPilot(s *models.Snapshot, p *models.Pilot, in PilotInput) error {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if p.Name == "" {
		return errors.Validation("pilot name is required")
	}
	if in.CarNumber != nil {
		p.CarNumber = strings.TrimSpace(*in.CarNumber)
	}
	if in.Picture != nil {
		p.Picture = *in.Picture
	}
	if in.StreamURL != nil {
		p.StreamURL = *in.StreamURL
	}
	if in.CategoryID != nil {
		if *in.CategoryID == "" {
			p.CategoryID = nil
		} else {
			if categoryIndex(s, *in.CategoryID) < 0 {
				return errors.NotFoundf("category %s not found", *in.CategoryID)
			}
			id := *in.CategoryID
			p.CategoryID = &id
		}
	}
	if in.StartOrder != nil {
		p.StartOrder = *in.StartOrder
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	return nil
}

// ==================== Categories ====================

// AddCategory creates a category; color defaults to the brand orange
func (s *Store) AddCategory(ctx context.Context, in CategoryInput) (models.Category, error) {
	c := models.Category{ID: newID(), Color: models.DefaultCategoryColor}
	err := s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		if err := applyCategory(&c, in); err != nil {
			return nil, err
		}
		next.Categories = append(next.Categories, c)
		return []Slice{SliceCategories}, nil
	})
	if err != nil {
		return models.Category{}, err
	}
	return c, nil
}

func (s *Store) UpdateCategory(ctx context.Context, id string, in CategoryInput) (models.Category, error) {
	var updated models.Category
	err := s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		i := categoryIndex(next, id)
		if i < 0 {
			return nil, errors.NotFoundf("category %s not found", id)
		}
		c := next.Categories[i]
		if err := applyCategory(&c, in); err != nil {
			return nil, err
		}
		next.Categories[i] = c
		updated = c
		return []Slice{SliceCategories}, nil
	})
	return updated, err
}

// DeleteCategory removes a category. Pilots in it lose their category but
// are kept.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		i := categoryIndex(next, id)
		if i < 0 {
			return nil, errors.NotFoundf("category %s not found", id)
		}
		next.Categories = slices.Delete(next.Categories, i, i+1)
		for j := range next.Pilots {
			if next.Pilots[j].CategoryID != nil && *next.Pilots[j].CategoryID == id {
				next.Pilots[j].CategoryID = nil
			}
		}
		return []Slice{SliceCategories, SlicePilots}, nil
	})
}

func applyCategory(c *models.Category, in CategoryInput) error {
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if c.Name == "" {
		return errors.Validation("category name is required")
	}
	if in.Color != nil && *in.Color != "" {
		c.Color = *in.Color
	}
	return nil
}

// ==================== Stages ====================

// AddStage creates a stage; type defaults to SS and a lap race to five laps
func (s *Store) AddStage(ctx context.Context, in StageInput) (models.Stage, error) {
	st := models.Stage{ID: newID(), Type: models.StageSS}
	err := s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		if err := applyStage(&st, in); err != nil {
			return nil, err
		}
		next.Stages = append(next.Stages, st)
		return []Slice{SliceStages}, nil
	})
	if err != nil {
		return models.Stage{}, err
	}
	return st, nil
}

func (s *Store) UpdateStage(ctx context.Context, id string, in StageInput) (models.Stage, error) {
	var updated models.Stage
	err := s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		i := stageIndex(next, id)
		if i < 0 {
			return nil, errors.NotFoundf("stage %s not found", id)
		}
		st := next.Stages[i]
		if err := applyStage(&st, in); err != nil {
			return nil, err
		}
		next.Stages[i] = st
		updated = st
		return []Slice{SliceStages}, nil
	})
	return updated, err
}

// DeleteStage removes a stage and its key from every pilot's timing and
// lap maps. A deleted current stage is cleared.
func (s *Store) DeleteStage(ctx context.Context, id string) error {
	return s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		i := stageIndex(next, id)
		if i < 0 {
			return nil, errors.NotFoundf("stage %s not found", id)
		}
		next.Stages = slices.Delete(next.Stages, i, i+1)
		for _, m := range []models.TimeMap{next.Times, next.ArrivalTimes, next.StartTimes} {
			for pilot := range m {
				delete(m[pilot], id)
			}
		}
		for pilot := range next.LapTimes {
			delete(next.LapTimes[pilot], id)
		}
		delete(next.StagePilots, id)

		dirty := []Slice{SliceStages, SliceTimes, SliceArrivalTimes, SliceStartTimes,
			SliceLapTimes, SliceStagePilots}
		if cur := next.Display.CurrentStageID; cur != nil && *cur == id {
			next.Display.CurrentStageID = nil
			dirty = append(dirty, SliceCurrentStage)
		}
		return dirty, nil
	})
}

func applyStage(st *models.Stage, in StageInput) error {
	if in.Name != nil {
		st.Name = strings.TrimSpace(*in.Name)
	}
	if st.Name == "" {
		return errors.Validation("stage name is required")
	}
	if in.Type != nil && *in.Type != "" {
		t := models.StageType(*in.Type)
		if !t.Valid() {
			return errors.Validationf("unknown stage type %q", *in.Type)
		}
		st.Type = t
	}
	if in.SSNumber != nil {
		st.SSNumber = strings.TrimSpace(*in.SSNumber)
	}
	if in.StartTime != nil {
		start := strings.TrimSpace(*in.StartTime)
		if _, ok := timefmt.ParseClock(start); start != "" && !ok {
			return errors.Validationf("start time %q must be HH:MM", start)
		}
		st.StartTime = start
	}
	if in.NumberOfLaps != nil {
		if *in.NumberOfLaps < 1 {
			return errors.Validation("number of laps must be positive")
		}
		st.NumberOfLaps = *in.NumberOfLaps
	}
	if st.Type == models.StageLapRace && st.NumberOfLaps == 0 {
		st.NumberOfLaps = models.DefaultNumberOfLaps
	}
	return nil
}

// ==================== Stage participation ====================

// SetStagePilots restricts a stage to the given pilots. An empty list
// opens the stage to every pilot again.
func (s *Store) SetStagePilots(ctx context.Context, stageID string, pilotIDs []string) error {
	return s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		if stageIndex(next, stageID) < 0 {
			return nil, errors.NotFoundf("stage %s not found", stageID)
		}
		var ids []string
		for _, id := range pilotIDs {
			if pilotIndex(next, id) < 0 {
				return nil, errors.NotFoundf("pilot %s not found", id)
			}
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			delete(next.StagePilots, stageID)
		} else {
			next.StagePilots[stageID] = ids
		}
		return []Slice{SliceStagePilots}, nil
	})
}

// ToggleStagePilot adds or removes one pilot from a stage's participant
// list. Toggling on an open stage starts a list with just that pilot.
func (s *Store) ToggleStagePilot(ctx context.Context, stageID, pilotID string) error {
	return s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		if stageIndex(next, stageID) < 0 {
			return nil, errors.NotFoundf("stage %s not found", stageID)
		}
		if pilotIndex(next, pilotID) < 0 {
			return nil, errors.NotFoundf("pilot %s not found", pilotID)
		}
		ids := next.StagePilots[stageID]
		if i := slices.Index(ids, pilotID); i >= 0 {
			ids = slices.Delete(ids, i, i+1)
		} else {
			ids = append(ids, pilotID)
		}
		if len(ids) == 0 {
			delete(next.StagePilots, stageID)
		} else {
			next.StagePilots[stageID] = ids
		}
		return []Slice{SliceStagePilots}, nil
	})
}
