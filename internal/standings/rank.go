package standings

import (
	"fmt"
	"sort"
	"time"

	"github.com/abrezinsky/rallyoverlay/internal/models"
	"github.com/abrezinsky/rallyoverlay/internal/timefmt"
)

// Kind is the ranking discriminant of a stage: SpecialStage or LapRace.
type Kind interface {
	Name() string
}

// SpecialStage ranks by elapsed time from start to finish.
type SpecialStage struct{}

func (SpecialStage) Name() string { return "special_stage" }

// LapRace ranks by laps completed, then accumulated lap time.
type LapRace struct {
	Laps int
}

func (LapRace) Name() string { return "lap_race" }

// KindOf picks the ranking mode for a stage. Liaison and service stages
// carry no laps and rank like special stages.
func KindOf(st models.Stage) Kind {
	if st.Type == models.StageLapRace {
		laps := st.NumberOfLaps
		if laps <= 0 {
			laps = models.DefaultNumberOfLaps
		}
		return LapRace{Laps: laps}
	}
	return SpecialStage{}
}

// Row is one ranked pilot
type Row struct {
	Position int          `json:"position"`
	Pilot    models.Pilot `json:"pilot"`
	Status   Status       `json:"status"`
	Time     string       `json:"time"`
	TimeMs   int64        `json:"timeMs"`
	Running  string       `json:"running,omitempty"`
	Laps     int          `json:"laps,omitempty"`
	Gap      string       `json:"gap"`
	Leader   bool         `json:"leader"`
}

// Result is a ranked stage
type Result struct {
	StageID string `json:"stageId"`
	Kind    string `json:"kind"`
	Order   string `json:"order"`
	Rows    []Row  `json:"rows"`
}

// Rank ranks a stage according to its kind. ok is false for an unknown stage.
func Rank(s *models.Snapshot, stageID string, order Order, now time.Time) (Result, bool) {
	st, ok := s.Stage(stageID)
	if !ok {
		return Result{}, false
	}

	var rows []Row
	kind := KindOf(st)
	switch k := kind.(type) {
	case LapRace:
		rows = RankLapRace(s, stageID, k.Laps)
	default:
		rows = RankSpecialStage(s, stageID, order, now)
	}
	return Result{StageID: stageID, Kind: kind.Name(), Order: order.String(), Rows: rows}, true
}

// RankSpecialStage orders the roster by status group (per order), finished
// pilots by ascending time. Pilots inside the other groups keep roster order.
func RankSpecialStage(s *models.Snapshot, stageID string, order Order, now time.Time) []Row {
	roster := Roster(s, stageID)
	rows := make([]Row, 0, len(roster))

	for _, p := range roster {
		row := Row{Pilot: p, Status: StatusOf(s, p.ID, stageID, now), Time: timefmt.NoTime}
		switch row.Status {
		case Finished:
			row.TimeMs = timefmt.ParseDuration(s.Time(p.ID, stageID))
			row.Time = timefmt.FormatElapsed(row.TimeMs)
		case Racing:
			row.Running = timefmt.RunningElapsed(s.StartTime(p.ID, stageID), now)
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		ri, rj := order.rank(rows[i].Status), order.rank(rows[j].Status)
		if ri != rj {
			return ri < rj
		}
		if rows[i].Status == Finished {
			return rows[i].TimeMs < rows[j].TimeMs
		}
		return false
	})

	var fastest int64 = -1
	for _, r := range rows {
		if r.Status == Finished && (fastest < 0 || r.TimeMs < fastest) {
			fastest = r.TimeMs
		}
	}

	leaderSeen := false
	for i := range rows {
		rows[i].Position = i + 1
		if rows[i].Status != Finished {
			continue
		}
		if !leaderSeen {
			leaderSeen = true
			rows[i].Leader = true
			rows[i].Gap = LeaderLabel
			continue
		}
		rows[i].Gap = secondsGap(rows[i].TimeMs - fastest)
	}
	return rows
}

// RankLapRace ranks a circuit stage of target laps. Each stored lap entry
// is summed as an independent duration. Finished pilots come first by total
// time, then pilots on track by laps completed (more first) and total time,
// then pilots who have not started.
func RankLapRace(s *models.Snapshot, stageID string, target int) []Row {
	roster := Roster(s, stageID)
	rows := make([]Row, 0, len(roster))

	for _, p := range roster {
		row := Row{Pilot: p, Status: NotStarted, Time: timefmt.NoTime}
		for _, lap := range s.Laps(p.ID, stageID) {
			if lap == "" {
				continue
			}
			row.Laps++
			row.TimeMs += timefmt.ParseDuration(lap)
		}
		switch {
		case target > 0 && row.Laps >= target:
			row.Status = Finished
		case row.Laps > 0:
			row.Status = Racing
		}
		if row.Laps > 0 {
			row.Time = timefmt.FormatElapsed(row.TimeMs)
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		ra, rb := LeaderboardOrder.rank(a.Status), LeaderboardOrder.rank(b.Status)
		if ra != rb {
			return ra < rb
		}
		switch a.Status {
		case Finished:
			return a.TimeMs < b.TimeMs
		case Racing:
			if a.Laps != b.Laps {
				return a.Laps > b.Laps
			}
			return a.TimeMs < b.TimeMs
		}
		return false
	})

	for i := range rows {
		rows[i].Position = i + 1
	}
	if len(rows) == 0 || rows[0].Status == NotStarted {
		return rows
	}

	leader := rows[0]
	rows[0].Leader = true
	rows[0].Gap = LeaderLabel
	for i := 1; i < len(rows); i++ {
		r := &rows[i]
		switch {
		case r.Status == Finished && leader.Status == Finished:
			r.Gap = "+" + timefmt.FormatElapsed(r.TimeMs-leader.TimeMs)
		case r.Status == Racing:
			r.Gap = lapDeficit(leader.Laps - r.Laps)
		}
	}
	return rows
}

func lapDeficit(n int) string {
	switch {
	case n <= 0:
		return ""
	case n == 1:
		return "+1 lap"
	default:
		return fmt.Sprintf("+%d laps", n)
	}
}

// secondsGap formats a millisecond difference as "+S.SSSs"
func secondsGap(ms int64) string {
	return fmt.Sprintf("+%.3fs", float64(ms)/1000)
}
