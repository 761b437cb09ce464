package standings

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/abrezinsky/rallyoverlay/internal/models"
)

// Engine binds the ranking functions to a clock
type Engine struct {
	clock clockwork.Clock
}

// NewEngine creates an engine reading "now" from clock
func NewEngine(clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{clock: clock}
}

func (e *Engine) Rank(s *models.Snapshot, stageID string, order Order) (Result, bool) {
	return Rank(s, stageID, order, e.clock.Now())
}

func (e *Engine) Overall(s *models.Snapshot, throughStageID string) []OverallRow {
	return Overall(s, throughStageID, e.clock.Now())
}

func (e *Engine) Status(s *models.Snapshot, pilotID, stageID string) Status {
	return StatusOf(s, pilotID, stageID, e.clock.Now())
}

func (e *Engine) SplitComparison(s *models.Snapshot, stageID string) []SplitRow {
	return SplitComparison(s, stageID)
}

func (e *Engine) LapBreakdown(s *models.Snapshot, stageID string) []LapBreakdownRow {
	return LapBreakdown(s, stageID)
}

// Now is the engine's current time
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}
