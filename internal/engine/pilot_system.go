package engine

import (
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/tank"
	"github.com/MRamiBalles/TankArenaBridge/internal/pilot"
)

// PilotSystem flies every scripted tank.
type PilotSystem struct {
	seed        uint64
	personality pilot.Personality
	speed       float64
	bulletSpeed float64
	pilots      map[int]*pilot.Pilot
}

func NewPilotSystem(seed int64, speed, bulletSpeed float64) *PilotSystem {
	return &PilotSystem{
		seed:        uint64(seed),
		personality: pilot.DefaultPersonality,
		speed:       speed,
		bulletSpeed: bulletSpeed,
		pilots:      make(map[int]*pilot.Pilot),
	}
}

// Reset reseeds the pilots so every episode replays identically.
func (ps *PilotSystem) Reset(tanks []*tank.Tank) {
	clear(ps.pilots)
	for _, t := range tanks {
		if t.Source == tank.ControlScripted {
			ps.pilots[t.ID] = pilot.New(ps.seed+uint64(t.ID), ps.personality, ps.speed, ps.bulletSpeed)
		}
	}
}

func (ps *PilotSystem) Step(tanks []*tank.Tank) {
	for _, t := range tanks {
		p, ok := ps.pilots[t.ID]
		if !ok || !t.Alive() {
			continue
		}
		t.SetControl(p.Decide(pilot.Perceive(t, tanks, ps.speed)))
	}
}
