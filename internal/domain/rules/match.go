// Package rules contains the pure calculation logic for match mechanics.
// This package is PURE and must NOT import any infrastructure packages.
package rules

import "math"

// NoWinner is reported for draws and externally aborted episodes.
const NoWinner = -1

// Cause explains why an episode terminated.
type Cause string

const (
	CauseNone        Cause = ""
	CauseTimeLimit   Cause = "TIME_LIMIT"
	CauseElimination Cause = "ELIMINATION"
	CauseRestart     Cause = "RESTART" // Requested by the controller mid-episode
	CauseShutdown    Cause = "SHUTDOWN"
)

// Outcome is the termination verdict for the current tick.
type Outcome struct {
	Done   bool  `json:"done"`
	Winner int   `json:"winner"`
	Cause  Cause `json:"cause,omitempty"`
}

// Running is the outcome of a tick that did not end the episode.
var Running = Outcome{Winner: NoWinner}

// Decide applies the winner check. teamsAlive is the number of teams with at
// least one surviving tank, lastTeam the team of any survivor.
//
// At time-up with two or more teams alive the episode is a draw. Exactly one
// team alive wins by elimination at any time. No team alive is a draw.
func Decide(teamsAlive, lastTeam int, timeUp bool) Outcome {
	switch {
	case teamsAlive == 1:
		return Outcome{Done: true, Winner: lastTeam, Cause: CauseElimination}
	case teamsAlive == 0:
		return Outcome{Done: true, Winner: NoWinner, Cause: CauseElimination}
	case timeUp:
		return Outcome{Done: true, Winner: NoWinner, Cause: CauseTimeLimit}
	default:
		return Running
	}
}

// Aborted is the outcome recorded when an episode is cut short externally.
func Aborted(cause Cause) Outcome {
	return Outcome{Done: true, Winner: NoWinner, Cause: cause}
}

// StepsFor converts a duration in seconds to a whole number of fixed ticks, rounding up.
func StepsFor(seconds, dt float64) int {
	if dt <= 0 {
		return 0
	}
	return int(math.Ceil(seconds/dt - 1e-9))
}

// DefaultEloK is the rating update factor.
const DefaultEloK = 32.0

// EloExpected is the probability that a player rated r1 beats one rated r2.
func EloExpected(r1, r2 float64) float64 {
	return 1 / (1 + math.Pow(10, (r2-r1)/400))
}

// EloDelta returns the rounded rating change for a player rated r1 with the
// given score (1 win, 0.5 draw, 0 loss) against r2. Halves round to even.
func EloDelta(r1, r2, score, k float64) float64 {
	return math.RoundToEven(k * (score - EloExpected(r1, r2)))
}
