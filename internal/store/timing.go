package store

import (
	"context"
	"strings"

	"github.com/abrezinsky/rallyoverlay/internal/errors"
	"github.com/abrezinsky/rallyoverlay/internal/models"
	"github.com/abrezinsky/rallyoverlay/internal/timefmt"
)

// maxLaps bounds a lap index so a typo cannot grow a pilot's lap list
// without limit.
const maxLaps = 200

func checkPilotStage(s *models.Snapshot, pilotID, stageID string) error {
	if pilotIndex(s, pilotID) < 0 {
		return errors.NotFoundf("pilot %s not found", pilotID)
	}
	if stageIndex(s, stageID) < 0 {
		return errors.NotFoundf("stage %s not found", stageID)
	}
	return nil
}

// setEntry stores value under m[pilot][stage]; an empty value deletes it
func setEntry(m models.TimeMap, pilotID, stageID, value string) {
	if value == "" {
		if stages, ok := m[pilotID]; ok {
			delete(stages, stageID)
			if len(stages) == 0 {
				delete(m, pilotID)
			}
		}
		return
	}
	if m[pilotID] == nil {
		m[pilotID] = make(map[string]string)
	}
	m[pilotID][stageID] = value
}

// SetTime records a pilot's total stage time. When the pilot has a start
// clock the arrival clock is derived from it. Clearing the total clears
// the arrival too.
func (s *Store) SetTime(ctx context.Context, pilotID, stageID, value string) error {
	value = strings.TrimSpace(value)
	return s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		if err := checkPilotStage(next, pilotID, stageID); err != nil {
			return nil, err
		}
		setEntry(next.Times, pilotID, stageID, value)
		dirty := []Slice{SliceTimes}
		if value == "" {
			if next.ArrivalTimes[pilotID][stageID] != "" {
				setEntry(next.ArrivalTimes, pilotID, stageID, "")
				dirty = append(dirty, SliceArrivalTimes)
			}
			return dirty, nil
		}

		start := next.StartTime(pilotID, stageID)
		if start != "" {
			if arrival := timefmt.ArrivalFromElapsed(value, start); arrival != "" {
				setEntry(next.ArrivalTimes, pilotID, stageID, arrival)
				dirty = append(dirty, SliceArrivalTimes)
			}
		}
		return dirty, nil
	})
}

// SetArrivalTime records the clock time a pilot crossed the finish. When
// the pilot has a start clock the total time is derived from it. Clearing
// the arrival clears the total too.
func (s *Store) SetArrivalTime(ctx context.Context, pilotID, stageID, value string) error {
	value = strings.TrimSpace(value)
	return s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		if err := checkPilotStage(next, pilotID, stageID); err != nil {
			return nil, err
		}
		setEntry(next.ArrivalTimes, pilotID, stageID, value)
		dirty := []Slice{SliceArrivalTimes}
		if value == "" {
			if next.Times[pilotID][stageID] != "" {
				setEntry(next.Times, pilotID, stageID, "")
				dirty = append(dirty, SliceTimes)
			}
			return dirty, nil
		}

		start := next.StartTime(pilotID, stageID)
		if start != "" {
			if total := timefmt.ElapsedFromClockTimes(value, start); total != "" {
				setEntry(next.Times, pilotID, stageID, total)
				dirty = append(dirty, SliceTimes)
			}
		}
		return dirty, nil
	})
}

// SetStartTime records the wall-clock time a pilot starts a stage
func (s *Store) SetStartTime(ctx context.Context, pilotID, stageID, value string) error {
	value = strings.TrimSpace(value)
	return s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		if err := checkPilotStage(next, pilotID, stageID); err != nil {
			return nil, err
		}
		if _, ok := timefmt.ParseClock(value); value != "" && !ok {
			return nil, errors.Validationf("start time %q must be HH:MM", value)
		}
		setEntry(next.StartTimes, pilotID, stageID, value)
		return []Slice{SliceStartTimes}, nil
	})
}

// SetLapTime records lap number lap (zero based). The list grows as
// needed; clearing the last entries trims it.
func (s *Store) SetLapTime(ctx context.Context, pilotID, stageID string, lap int, value string) error {
	value = strings.TrimSpace(value)
	return s.mutate(ctx, OriginLocal, func(next *models.Snapshot) ([]Slice, error) {
		if err := checkPilotStage(next, pilotID, stageID); err != nil {
			return nil, err
		}
		if lap < 0 || lap >= maxLaps {
			return nil, errors.Validationf("lap %d out of range", lap)
		}

		laps := next.Laps(pilotID, stageID)
		if lap >= len(laps) {
			if value == "" {
				return nil, nil
			}
			grown := make([]string, lap+1)
			copy(grown, laps)
			laps = grown
		}
		laps[lap] = value
		for len(laps) > 0 && laps[len(laps)-1] == "" {
			laps = laps[:len(laps)-1]
		}

		if len(laps) == 0 {
			if stages, ok := next.LapTimes[pilotID]; ok {
				delete(stages, stageID)
				if len(stages) == 0 {
					delete(next.LapTimes, pilotID)
				}
			}
		} else {
			if next.LapTimes[pilotID] == nil {
				next.LapTimes[pilotID] = make(map[string][]string)
			}
			next.LapTimes[pilotID][stageID] = laps
		}
		return []Slice{SliceLapTimes}, nil
	})
}
