package engine

import (
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/projectile"
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/tank"
)

// WeaponSystem reloads guns and spawns projectiles for held triggers.
type WeaponSystem struct {
	bulletSpeed  float64
	bulletDamage float64
	bulletTTL    int // ticks
}

func NewWeaponSystem(bulletSpeed, bulletDamage float64, bulletTTL int) *WeaponSystem {
	return &WeaponSystem{bulletSpeed: bulletSpeed, bulletDamage: bulletDamage, bulletTTL: bulletTTL}
}

// Step returns the number of shots fired this tick.
func (ws *WeaponSystem) Step(tanks []*tank.Tank, dt float64) int {
	fired := 0
	for _, t := range tanks {
		if !t.Alive() {
			continue
		}
		t.Reload()
		if !t.TryFire() {
			continue
		}
		p := projectile.New(t.ID, t.Muzzle(), t.Heading, ws.bulletSpeed, dt, ws.bulletDamage, ws.bulletTTL)
		t.Projectiles = append(t.Projectiles, p)
		fired++
	}
	return fired
}
