package engine

import (
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/arena"
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/projectile"
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/tank"
)

// Kill records one tank destroyed during a step.
type Kill struct {
	Victim  *tank.Tank
	Shooter *tank.Tank
}

// ProjectileSystem advances shells and resolves hits.
type ProjectileSystem struct {
	arena *arena.Arena
}

func NewProjectileSystem(a *arena.Arena) *ProjectileSystem {
	return &ProjectileSystem{arena: a}
}

// Step advances every projectile one tick. Shells expire on TTL, on walls
// and at the bounds. A hit deals damage and removes the shell. A destroyed
// tank loses its own shells in flight.
func (ps *ProjectileSystem) Step(tanks []*tank.Tank) []Kill {
	var kills []Kill
	for _, shooter := range tanks {
		live := shooter.Projectiles[:0]
		for _, p := range shooter.Projectiles {
			if !p.Advance() || ps.arena.Blocked(p.Position, projectile.Radius) {
				continue
			}
			victim := hit(p, shooter, tanks)
			if victim == nil {
				live = append(live, p)
				continue
			}
			if victim.TakeDamage(p.Damage) {
				kills = append(kills, Kill{Victim: victim, Shooter: shooter})
			}
		}
		clear(shooter.Projectiles[len(live):])
		shooter.Projectiles = live
	}
	for _, k := range kills {
		k.Victim.Projectiles = k.Victim.Projectiles[:0]
	}
	return kills
}

func hit(p *projectile.Projectile, shooter *tank.Tank, tanks []*tank.Tank) *tank.Tank {
	for _, t := range tanks {
		if t == shooter || !t.Alive() {
			continue
		}
		if p.Position.Dist(t.Position) < tank.Radius+projectile.Radius {
			return t
		}
	}
	return nil
}
