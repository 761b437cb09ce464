package standings

import (
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abrezinsky/rallyoverlay/internal/models"
)

var morning = time.Date(2026, 5, 9, 9, 10, 0, 0, time.Local)

func pilots(ids ...string) []models.Pilot {
	out := make([]models.Pilot, len(ids))
	for i, id := range ids {
		out[i] = models.Pilot{ID: id, Name: "Pilot " + id, StartOrder: i + 1, IsActive: true}
	}
	return out
}

func ids(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Pilot.ID
	}
	return out
}

func ssSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Pilots: pilots("x", "y"),
		Stages: []models.Stage{{ID: "ss1", Name: "Fafe", Type: models.StageSS}},
		Times: models.TimeMap{
			"x": {"ss1": "2:15.500"},
		},
		StartTimes: models.TimeMap{
			"x": {"ss1": "09:00"},
			"y": {"ss1": "09:00"},
		},
	}
}

func TestStatusOf(t *testing.T) {
	s := ssSnapshot()
	s.StartTimes["z"] = map[string]string{"ss1": "09:30"}

	assert.Equal(t, Finished, StatusOf(s, "x", "ss1", morning))
	assert.Equal(t, Racing, StatusOf(s, "y", "ss1", morning))
	assert.Equal(t, NotStarted, StatusOf(s, "z", "ss1", morning), "future start")
	assert.Equal(t, NotStarted, StatusOf(s, "w", "ss1", morning), "no start time")
}

func TestRankSpecialStage_OrderPolicies(t *testing.T) {
	s := ssSnapshot()

	tower := RankSpecialStage(s, "ss1", TowerOrder, morning)
	assert.Equal(t, []string{"y", "x"}, ids(tower))

	board := RankSpecialStage(s, "ss1", LeaderboardOrder, morning)
	assert.Equal(t, []string{"x", "y"}, ids(board))

	assert.Equal(t, Racing, tower[0].Status)
	assert.Equal(t, "10:00.000", tower[0].Running)
	assert.Equal(t, LeaderLabel, board[0].Gap)
	assert.True(t, board[0].Leader)
	assert.Equal(t, "", board[1].Gap)
}

func TestRankSpecialStage_FinishedByTimeWithGaps(t *testing.T) {
	s := &models.Snapshot{
		Pilots: pilots("a", "b", "c", "d"),
		Stages: []models.Stage{{ID: "ss1", Type: models.StageSS}},
		Times: models.TimeMap{
			"a": {"ss1": "2:20.000"},
			"b": {"ss1": "2:18.750"},
			"c": {"ss1": "2:25.125"},
		},
	}

	rows := RankSpecialStage(s, "ss1", LeaderboardOrder, morning)

	require.Len(t, rows, 4)
	assert.Equal(t, []string{"b", "a", "c", "d"}, ids(rows))
	assert.Equal(t, []string{LeaderLabel, "+1.250s", "+6.375s", ""},
		[]string{rows[0].Gap, rows[1].Gap, rows[2].Gap, rows[3].Gap})
	assert.Equal(t, NotStarted, rows[3].Status)
	assert.Equal(t, "-", rows[3].Time)
	for i, r := range rows {
		assert.Equal(t, i+1, r.Position)
	}
}

func TestRankSpecialStage_MalformedTimeDoesNotPanic(t *testing.T) {
	s := &models.Snapshot{
		Pilots: pilots("a", "b"),
		Stages: []models.Stage{{ID: "ss1", Type: models.StageSS}},
		Times:  models.TimeMap{"a": {"ss1": "oops"}, "b": {"ss1": "1:00.000"}},
	}

	rows := RankSpecialStage(s, "ss1", LeaderboardOrder, morning)

	assert.Equal(t, []string{"a", "b"}, ids(rows))
	assert.Equal(t, "0:00.000", rows[0].Time)
}

func TestRankSpecialStage_IsDeterministic(t *testing.T) {
	s := ssSnapshot()
	s.Pilots = pilots("x", "y", "p", "q")
	s.Times["p"] = map[string]string{"ss1": "2:15.500"}

	first := RankSpecialStage(s, "ss1", TowerOrder, morning)
	second := RankSpecialStage(s, "ss1", TowerOrder, morning)

	assert.Equal(t, first, second)
}

func TestRoster_RestrictedStage(t *testing.T) {
	s := ssSnapshot()
	s.Pilots = pilots("x", "y", "z")
	s.StagePilots = map[string][]string{"ss1": {"z", "x"}}

	roster := Roster(s, "ss1")

	require.Len(t, roster, 2)
	assert.Equal(t, "x", roster[0].ID, "roster order follows the pilot list")
	assert.Equal(t, "z", roster[1].ID)
	assert.Len(t, Roster(s, "other"), 3)
}

func TestRoster_ExcludesInactive(t *testing.T) {
	s := ssSnapshot()
	s.Pilots = pilots("a", "b", "c")
	s.Pilots[1].IsActive = false
	s.Times = models.TimeMap{"b": {"ss1": "1:00.000"}}

	roster := Roster(s, "ss1")
	require.Len(t, roster, 2)
	assert.Equal(t, "a", roster[0].ID)
	assert.Equal(t, "c", roster[1].ID)
	assert.NotContains(t, ids(RankSpecialStage(s, "ss1", TowerOrder, morning)), "b")

	for _, row := range Overall(s, "", morning) {
		assert.NotEqual(t, "b", row.Pilot.ID, "inactive pilot classified overall")
	}

	// a participant list names its pilots outright
	s.StagePilots = map[string][]string{"ss1": {"b"}}
	require.Len(t, Roster(s, "ss1"), 1)
	assert.Equal(t, "b", Roster(s, "ss1")[0].ID)
}

func lapSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Pilots: pilots("a", "b", "c"),
		Stages: []models.Stage{{ID: "lr", Name: "Circuit", Type: models.StageLapRace, NumberOfLaps: 3}},
		LapTimes: models.LapMap{
			"a": {"lr": {"1:00.000", "1:02.000", "0:58.000"}},
			"b": {"lr": {"1:05.000", "1:10.000"}},
		},
	}
}

func TestRankLapRace(t *testing.T) {
	rows := RankLapRace(lapSnapshot(), "lr", 3)

	require.Len(t, rows, 3)
	assert.Equal(t, []string{"a", "b", "c"}, ids(rows))

	assert.Equal(t, Finished, rows[0].Status)
	assert.Equal(t, int64(180000), rows[0].TimeMs)
	assert.Equal(t, "3:00.000", rows[0].Time)
	assert.Equal(t, LeaderLabel, rows[0].Gap)

	assert.Equal(t, Racing, rows[1].Status)
	assert.Equal(t, 2, rows[1].Laps)
	assert.Equal(t, "+1 lap", rows[1].Gap)

	assert.Equal(t, NotStarted, rows[2].Status)
	assert.Equal(t, "", rows[2].Gap)
}

func TestRankLapRace_TieBreaks(t *testing.T) {
	s := &models.Snapshot{
		Pilots: pilots("slow", "fast", "one", "two", "done2", "done1"),
		LapTimes: models.LapMap{
			"slow":  {"lr": {"1:10.000", "1:10.000"}},
			"fast":  {"lr": {"1:00.000", "1:00.000"}},
			"one":   {"lr": {"0:50.000"}},
			"two":   {"lr": {"", "0:55.000"}},
			"done2": {"lr": {"1:00.000", "1:00.000", "1:02.000"}},
			"done1": {"lr": {"1:00.000", "1:00.000", "1:00.000"}},
		},
	}

	rows := RankLapRace(s, "lr", 3)

	assert.Equal(t, []string{"done1", "done2", "fast", "slow", "one", "two"}, ids(rows))
	assert.Equal(t, "+0:02.000", rows[1].Gap)
	assert.Equal(t, "+1 lap", rows[2].Gap)
	assert.Equal(t, "+2 laps", rows[4].Gap)
	assert.Equal(t, 1, rows[5].Laps, "empty lap slots do not count")
}

func TestRankLapRace_NobodyFinished(t *testing.T) {
	s := lapSnapshot()
	s.LapTimes["a"]["lr"] = []string{"1:00.000"}

	rows := RankLapRace(s, "lr", 3)

	assert.Equal(t, []string{"b", "a", "c"}, ids(rows))
	assert.Equal(t, LeaderLabel, rows[0].Gap)
	assert.Equal(t, "+1 lap", rows[1].Gap)
}

func TestRank_DispatchesOnStageKind(t *testing.T) {
	s := lapSnapshot()
	s.Stages = append(s.Stages, models.Stage{ID: "ss1", Type: models.StageSS})

	lap, ok := Rank(s, "lr", TowerOrder, morning)
	require.True(t, ok)
	assert.Equal(t, "lap_race", lap.Kind)
	assert.Equal(t, "a", lap.Rows[0].Pilot.ID)

	ss, ok := Rank(s, "ss1", LeaderboardOrder, morning)
	require.True(t, ok)
	assert.Equal(t, "special_stage", ss.Kind)
	assert.Equal(t, "leaderboard", ss.Order)

	_, ok = Rank(s, "missing", TowerOrder, morning)
	assert.False(t, ok)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, LapRace{Laps: 7}, KindOf(models.Stage{Type: models.StageLapRace, NumberOfLaps: 7}))
	assert.Equal(t, LapRace{Laps: models.DefaultNumberOfLaps}, KindOf(models.Stage{Type: models.StageLapRace}))
	assert.Equal(t, SpecialStage{}, KindOf(models.Stage{Type: models.StageSS}))
	assert.Equal(t, SpecialStage{}, KindOf(models.Stage{Type: models.StageLiaison}))
}

func overallSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Pilots: pilots("a", "b", "c"),
		Stages: []models.Stage{
			{ID: "ss1", Type: models.StageSS},
			{ID: "liaison", Type: models.StageLiaison},
			{ID: "ss2", Type: models.StageSS},
			{ID: "ss3", Type: models.StageSS},
		},
		Times: models.TimeMap{
			"a": {"ss1": "2:00.000", "ss2": "3:00.000", "ss3": "1:00.000"},
			"b": {"ss1": "1:50.000", "liaison": "20:00.000"},
		},
		StartTimes: models.TimeMap{
			"b": {"ss2": "09:05"},
		},
	}
}

func TestOverall_AllStages(t *testing.T) {
	rows := Overall(overallSnapshot(), "", morning)

	require.Len(t, rows, 3)
	assert.Equal(t, "b", rows[0].Pilot.ID)
	assert.Equal(t, "1:50.000", rows[0].Time, "liaison times are not classified")
	assert.Equal(t, "a", rows[1].Pilot.ID)
	assert.Equal(t, 3, rows[1].CompletedStages)
	assert.Equal(t, "+250.000s", rows[1].Gap)
	assert.Equal(t, "-", rows[2].Time)
	assert.Equal(t, "-", rows[2].Gap)
}

func TestOverall_ThroughCutoffAddsRunningTime(t *testing.T) {
	rows := Overall(overallSnapshot(), "ss2", morning)

	require.Len(t, rows, 3)
	// a: 2:00 + 3:00 = 300s. b: 1:50 + 5:00 running = 410s.
	assert.Equal(t, "a", rows[0].Pilot.ID)
	assert.Equal(t, int64(300000), rows[0].TimeMs)
	assert.Equal(t, "b", rows[1].Pilot.ID)
	assert.True(t, rows[1].Live)
	assert.Equal(t, int64(410000), rows[1].TimeMs)
	assert.Equal(t, "+110.000s", rows[1].Gap)
	assert.False(t, rows[2].Live)
}

func TestOverall_RacingWithoutCompletedStages(t *testing.T) {
	s := overallSnapshot()
	s.StartTimes["c"] = map[string]string{"ss1": "09:00"}

	rows := Overall(s, "ss1", morning)

	// c has been on ss1 for 10 minutes with nothing completed
	last := rows[len(rows)-1]
	assert.Equal(t, "c", last.Pilot.ID)
	assert.True(t, last.Live)
	assert.Equal(t, "10:00.000", last.Time)
}

func TestSplitComparison(t *testing.T) {
	s := &models.Snapshot{Stages: []models.Stage{{ID: "ss1", Type: models.StageSS}}, Times: models.TimeMap{}}
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("p%02d", i)
		s.Pilots = append(s.Pilots, models.Pilot{ID: id, Name: id, IsActive: true})
		s.Times[id] = map[string]string{"ss1": fmt.Sprintf("2:%02d.000", 40-i)}
	}
	s.Pilots = append(s.Pilots, models.Pilot{ID: "none", Name: "none", IsActive: true})

	rows := SplitComparison(s, "ss1")

	require.Len(t, rows, SplitLimit)
	assert.Equal(t, "p11", rows[0].Pilot.ID)
	assert.Equal(t, 100.0, rows[0].BarPercent)
	assert.Equal(t, LeaderLabel, rows[0].Gap)
	assert.Equal(t, "+1.000s", rows[1].Gap)
	assert.Equal(t, 100.67, rows[1].BarPercent)
}

func TestSplitComparison_RestrictedAndEmpty(t *testing.T) {
	s := ssSnapshot()
	s.StagePilots = map[string][]string{"ss1": {"y"}}

	assert.Empty(t, SplitComparison(s, "ss1"))
}

func TestLapBreakdown(t *testing.T) {
	s := &models.Snapshot{
		Pilots: pilots("a", "b"),
		Stages: []models.Stage{{ID: "lr", Type: models.StageLapRace, NumberOfLaps: 3, StartTime: "10:00"}},
		LapTimes: models.LapMap{
			"a": {"lr": {"10:01:30.000", "10:03:05.500", "", "10:06:00.000"}},
		},
	}

	rows := LapBreakdown(s, "lr")

	require.Len(t, rows, 2)
	a := rows[0].Laps
	require.Len(t, a, 4, "extra laps beyond the target are kept")
	assert.Equal(t, "1:30.000", a[0].Duration)
	assert.Equal(t, "1:35.500", a[1].Duration)
	assert.Equal(t, "", a[2].Duration)
	assert.Equal(t, "6:00.000", a[3].Duration, "an empty previous slot falls back to the stage start")

	b := rows[1].Laps
	require.Len(t, b, 3)
	assert.Equal(t, 3, b[2].Lap)
	assert.Equal(t, "", b[0].Time)

	assert.Nil(t, LapBreakdown(s, "missing"))
}

func TestEngine_UsesClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 9, 8, 59, 59, 0, time.Local))
	engine := NewEngine(clock)
	s := ssSnapshot()

	assert.Equal(t, NotStarted, engine.Status(s, "y", "ss1"))

	clock.Advance(time.Second)
	assert.Equal(t, Racing, engine.Status(s, "y", "ss1"))

	res, ok := engine.Rank(s, "ss1", TowerOrder)
	require.True(t, ok)
	assert.Equal(t, "y", res.Rows[0].Pilot.ID)
	assert.Equal(t, "00:00.000", res.Rows[0].Running)

	overall := engine.Overall(s, "ss1")
	assert.Equal(t, "y", overall[0].Pilot.ID, "y has been on stage for zero time")
	assert.Len(t, engine.SplitComparison(s, "ss1"), 1)
	assert.Len(t, engine.LapBreakdown(s, "ss1"), 2)
}

func TestParseOrder(t *testing.T) {
	assert.Equal(t, LeaderboardOrder, ParseOrder("leaderboard"))
	assert.Equal(t, TowerOrder, ParseOrder("tower"))
	assert.Equal(t, TowerOrder, ParseOrder(""))
}
