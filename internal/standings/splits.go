package standings

import (
	"math"
	"sort"

	"github.com/abrezinsky/rallyoverlay/internal/models"
	"github.com/abrezinsky/rallyoverlay/internal/timefmt"
)

// SplitLimit caps the split comparison table
const SplitLimit = 10

// SplitRow compares one finisher against the fastest time of the stage
type SplitRow struct {
	Position   int          `json:"position"`
	Pilot      models.Pilot `json:"pilot"`
	Time       string       `json:"time"`
	TimeMs     int64        `json:"timeMs"`
	Gap        string       `json:"gap"`
	BarPercent float64      `json:"barPercent"`
}

// SplitComparison returns the fastest SplitLimit finishers of a stage.
// BarPercent is each time relative to the fastest, as a percentage with two
// decimals (the fastest is 100).
func SplitComparison(s *models.Snapshot, stageID string) []SplitRow {
	var rows []SplitRow
	for _, p := range Roster(s, stageID) {
		ms := timefmt.ParseDuration(s.Time(p.ID, stageID))
		if ms <= 0 {
			continue
		}
		rows = append(rows, SplitRow{Pilot: p, TimeMs: ms, Time: timefmt.FormatElapsed(ms)})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TimeMs < rows[j].TimeMs })
	if len(rows) > SplitLimit {
		rows = rows[:SplitLimit]
	}

	for i := range rows {
		rows[i].Position = i + 1
		fastest := rows[0].TimeMs
		rows[i].BarPercent = math.Round(float64(rows[i].TimeMs)/float64(fastest)*10000) / 100
		if i == 0 {
			rows[i].Gap = LeaderLabel
			continue
		}
		rows[i].Gap = secondsGap(rows[i].TimeMs - fastest)
	}
	return rows
}

// LapEntry is one lap slot of a pilot's lap sheet
type LapEntry struct {
	Lap      int    `json:"lap"`
	Time     string `json:"time"`
	Duration string `json:"duration"`
}

// LapBreakdownRow is a pilot's per-lap view
type LapBreakdownRow struct {
	Pilot models.Pilot `json:"pilot"`
	Laps  []LapEntry   `json:"laps"`
}

// LapBreakdown reads each pilot's lap entries as cumulative clock stamps and
// differences consecutive ones into per-lap durations. This is a separate
// view from RankLapRace, which sums the same entries as durations.
func LapBreakdown(s *models.Snapshot, stageID string) []LapBreakdownRow {
	st, ok := s.Stage(stageID)
	if !ok {
		return nil
	}
	slots := st.NumberOfLaps
	if slots <= 0 {
		slots = models.DefaultNumberOfLaps
	}

	roster := Roster(s, stageID)
	out := make([]LapBreakdownRow, 0, len(roster))
	for _, p := range roster {
		laps := s.Laps(p.ID, stageID)
		n := max(slots, len(laps))

		row := LapBreakdownRow{Pilot: p, Laps: make([]LapEntry, n)}
		for i := 0; i < n; i++ {
			entry := LapEntry{Lap: i + 1}
			if i < len(laps) {
				entry.Time = laps[i]
				prev := ""
				if i > 0 {
					prev = laps[i-1]
				}
				entry.Duration = timefmt.LapDuration(laps[i], prev, st.StartTime)
			}
			row.Laps[i] = entry
		}
		out = append(out, row)
	}
	return out
}
