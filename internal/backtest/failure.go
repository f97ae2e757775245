package backtest

import (
	"fmt"
	"time"
)

// EngineFailure is the fatal error class: the engine's own accounting or
// sequencing broke, as opposed to a strategy producing bad output. The run
// aborts where it stands and the partial summary is still printed.
type EngineFailure struct {
	Iteration     int
	Date          time.Time
	LastGoodValue float64
	Err           error
}

func (e *EngineFailure) Error() string {
	return fmt.Sprintf("ENGINE FAILURE: iteration %d (%s), last good value %.2f: %v",
		e.Iteration, e.Date.Format("2006-01-02"), e.LastGoodValue, e.Err)
}

func (e *EngineFailure) Unwrap() error { return e.Err }
