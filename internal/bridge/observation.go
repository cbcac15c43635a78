package bridge

import "github.com/MRamiBalles/TankArenaBridge/internal/protocol"

// BuildObservation encodes the tracked entities into the fixed layout.
// Positions are normalized by the per-axis scale; velocities and aim are raw.
// Missing entities and empty projectile slots keep the sentinel. Projectiles
// beyond the slot count are dropped.
func BuildObservation(entities []EntityView) protocol.Observation {
	obs := protocol.Blank()
	for slot := 0; slot < protocol.TrackedEntities && slot < len(entities); slot++ {
		e := entities[slot]
		if !e.Present {
			continue
		}
		v := obs.Entity(slot)
		v[0] = e.Position.X / protocol.PositionScaleX
		v[1] = e.Position.Y / protocol.PositionScaleY
		v[2] = e.Velocity.X
		v[3] = e.Velocity.Y
		v[4] = e.Aim.X
		v[5] = e.Aim.Y

		for i, p := range e.Projectiles {
			if i >= protocol.ProjectileSlots {
				break
			}
			pv := obs.Projectile(slot, i)
			pv[0] = p.Position.X / protocol.PositionScaleX
			pv[1] = p.Position.Y / protocol.PositionScaleY
			pv[2] = p.Velocity.X
			pv[3] = p.Velocity.Y
		}
	}
	return obs
}
