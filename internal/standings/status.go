// Package standings computes positions, gaps and derived views from a store
// snapshot. Every function is pure: the only time dependence is the now
// argument, which decides who is racing and how long they have been out.
package standings

import (
	"time"

	"github.com/abrezinsky/rallyoverlay/internal/models"
	"github.com/abrezinsky/rallyoverlay/internal/timefmt"
)

// Status is a pilot's progress on one stage
type Status string

const (
	NotStarted Status = "not_started"
	Racing     Status = "racing"
	Finished   Status = "finished"
)

// LeaderLabel replaces the gap of the first classified pilot
const LeaderLabel = "LEADER"

// Order decides how the three statuses are grouped in a ranked list
type Order int

const (
	// TowerOrder puts pilots on stage at the top (timing tower, live grid)
	TowerOrder Order = iota
	// LeaderboardOrder puts classified pilots first (results, podium)
	LeaderboardOrder
)

// ParseOrder maps "tower" and "leaderboard" to an Order, defaulting to TowerOrder.
func ParseOrder(s string) Order {
	if s == "leaderboard" {
		return LeaderboardOrder
	}
	return TowerOrder
}

func (o Order) String() string {
	if o == LeaderboardOrder {
		return "leaderboard"
	}
	return "tower"
}

func (o Order) rank(s Status) int {
	switch s {
	case Racing:
		if o == LeaderboardOrder {
			return 1
		}
		return 0
	case Finished:
		if o == LeaderboardOrder {
			return 0
		}
		return 1
	default:
		return 2
	}
}

// StatusOf returns the special-stage status of a pilot. A recorded finish
// time wins; otherwise the pilot is racing once now reaches their start.
func StatusOf(s *models.Snapshot, pilotID, stageID string, now time.Time) Status {
	if s.Time(pilotID, stageID) != "" {
		return Finished
	}
	start := s.StartTime(pilotID, stageID)
	if start == "" {
		return NotStarted
	}
	if timefmt.HasStarted(start, now) {
		return Racing
	}
	return NotStarted
}

// Roster returns the pilots eligible for a stage in roster order. A stage
// with a participant list takes exactly those pilots; any other stage is
// open to every active pilot.
func Roster(s *models.Snapshot, stageID string) []models.Pilot {
	ids, restricted := s.StagePilots[stageID]
	if !restricted || len(ids) == 0 {
		return ActivePilots(s)
	}

	allowed := make(map[string]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}
	roster := make([]models.Pilot, 0, len(ids))
	for _, p := range s.Pilots {
		if allowed[p.ID] {
			roster = append(roster, p)
		}
	}
	return roster
}

// ActivePilots returns the pilots on the live grid in roster order
func ActivePilots(s *models.Snapshot) []models.Pilot {
	active := make([]models.Pilot, 0, len(s.Pilots))
	for _, p := range s.Pilots {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return active
}
