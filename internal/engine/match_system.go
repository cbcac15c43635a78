package engine

import (
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/rules"
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/tank"
)

// MatchSystem keeps the episode clock and applies the winner check.
type MatchSystem struct {
	maxTime float64
	elapsed float64
}

func NewMatchSystem(maxTime float64) *MatchSystem {
	return &MatchSystem{maxTime: maxTime}
}

func (m *MatchSystem) Reset() {
	m.elapsed = 0
}

// Elapsed is the simulated time since the episode began.
func (m *MatchSystem) Elapsed() float64 {
	return m.elapsed
}

// Step advances the clock and decides whether the episode is over.
func (m *MatchSystem) Step(tanks []*tank.Tank, dt float64) rules.Outcome {
	m.elapsed += dt
	teamsAlive, lastTeam := countTeams(tanks)
	timeUp := m.maxTime > 0 && m.elapsed >= m.maxTime-1e-9
	return rules.Decide(teamsAlive, lastTeam, timeUp)
}

func countTeams(tanks []*tank.Tank) (int, int) {
	alive := make(map[int]bool)
	last := rules.NoWinner
	for _, t := range tanks {
		if t.Alive() && !alive[t.Team] {
			alive[t.Team] = true
			last = t.Team
		}
	}
	return len(alive), last
}
