package standings

import (
	"sort"
	"time"

	"github.com/abrezinsky/rallyoverlay/internal/models"
	"github.com/abrezinsky/rallyoverlay/internal/timefmt"
)

// OverallRow is one pilot in the rally classification
type OverallRow struct {
	Position        int          `json:"position"`
	Pilot           models.Pilot `json:"pilot"`
	Time            string       `json:"time"`
	TimeMs          int64        `json:"timeMs"`
	CompletedStages int          `json:"completedStages"`
	Live            bool         `json:"live"`
	Gap             string       `json:"gap"`
	Leader          bool         `json:"leader"`
}

// Overall sums special-stage times across the rally. With an empty
// throughStageID every SS counts. Otherwise stages up to and including the
// cutoff count, and a pilot currently racing the cutoff stage has their
// running time added. Only active pilots are classified; those with no
// time rank last and show NoTime.
func Overall(s *models.Snapshot, throughStageID string, now time.Time) []OverallRow {
	stages := overallStages(s, throughStageID)

	active := ActivePilots(s)
	rows := make([]OverallRow, 0, len(active))
	for _, p := range active {
		row := OverallRow{Pilot: p, Time: timefmt.NoTime}
		for _, st := range stages {
			if t := s.Time(p.ID, st.ID); t != "" {
				row.TimeMs += timefmt.ParseDuration(t)
				row.CompletedStages++
			}
		}
		if throughStageID != "" && StatusOf(s, p.ID, throughStageID, now) == Racing {
			row.TimeMs += timefmt.RunningMillis(s.StartTime(p.ID, throughStageID), now)
			row.Live = true
		}
		if row.hasTime() {
			row.Time = timefmt.FormatElapsed(row.TimeMs)
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].hasTime(), rows[j].hasTime()
		if a != b {
			return a
		}
		if !a {
			return false
		}
		return rows[i].TimeMs < rows[j].TimeMs
	})

	for i := range rows {
		rows[i].Position = i + 1
		if !rows[i].hasTime() {
			rows[i].Gap = timefmt.NoTime
			continue
		}
		if i == 0 {
			rows[i].Leader = true
			rows[i].Gap = LeaderLabel
			continue
		}
		rows[i].Gap = secondsGap(rows[i].TimeMs - rows[0].TimeMs)
	}
	return rows
}

func (r OverallRow) hasTime() bool {
	return r.CompletedStages > 0 || r.Live
}

// overallStages returns the SS stages in event order, stopping after the
// cutoff. An unknown cutoff yields every SS stage.
func overallStages(s *models.Snapshot, throughStageID string) []models.Stage {
	var out []models.Stage
	for _, st := range s.Stages {
		if st.Type == models.StageSS || st.Type == "" {
			out = append(out, st)
		}
		if throughStageID != "" && st.ID == throughStageID {
			break
		}
	}
	return out
}
