package engine

import (
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/arena"
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/geom"
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/tank"
)

// MovementSystem moves tanks by their held move vector.
type MovementSystem struct {
	arena *arena.Arena
	speed float64
}

func NewMovementSystem(a *arena.Arena, speed float64) *MovementSystem {
	return &MovementSystem{arena: a, speed: speed}
}

// Step moves every live, enabled tank. A move that would leave the bounds,
// touch a wall or overlap another tank is reverted.
func (ms *MovementSystem) Step(tanks []*tank.Tank, dt float64) {
	for _, t := range tanks {
		if !t.Alive() || !t.Enabled {
			continue
		}
		v := t.Velocity()
		if v.Len() == 0 {
			continue
		}
		next := t.Position.Add(v.Scale(ms.speed * dt))
		if ms.arena.Blocked(next, tank.Radius) || collides(t, next, tanks) {
			continue
		}
		t.Position = next
	}
}

func collides(self *tank.Tank, at geom.Vec2, tanks []*tank.Tank) bool {
	for _, other := range tanks {
		if other == self || !other.Alive() {
			continue
		}
		if at.Dist(other.Position) < 2*tank.Radius {
			return true
		}
	}
	return false
}
