// Package pilot flies tanks that are not driven by the remote controller.
// Each decision runs the same Perceive -> Decide -> Act cycle every tick.
package pilot

import (
	"math"
	"math/rand/v2"

	"github.com/MRamiBalles/TankArenaBridge/internal/domain/geom"
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/projectile"
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/tank"
)

// Personality tunes how a pilot fights. All values are in [0, 1].
type Personality struct {
	Accuracy       float64 // Aim error shrinks as accuracy grows
	Aggressiveness float64 // Preferred engagement range shrinks as aggressiveness grows
	TacticalIQ     float64 // Smarter pilots dodge incoming shells
}

// DefaultPersonality is a middling opponent.
var DefaultPersonality = Personality{Accuracy: 0.7, Aggressiveness: 0.5, TacticalIQ: 0.5}

// Contact is a visible tank.
type Contact struct {
	ID       int
	Team     int
	Position geom.Vec2
	Velocity geom.Vec2 // units per second
}

// Threat is an enemy shell heading our way.
type Threat struct {
	Position geom.Vec2
	Velocity geom.Vec2 // units per tick
}

// Perception is everything a pilot knows this tick.
type Perception struct {
	Self     Contact
	Heading  geom.Vec2
	CanShoot bool
	Enemies  []Contact
	Threats  []Threat
}

// Pilot is one scripted tank brain. Not safe for concurrent use.
type Pilot struct {
	rng         *rand.Rand
	personality Personality
	speed       float64 // tank speed, units per second
	bulletSpeed float64 // units per second

	strafe     float64 // +1 or -1
	strafeTick int
}

// New creates a deterministic pilot.
func New(seed uint64, p Personality, speed, bulletSpeed float64) *Pilot {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return &Pilot{
		rng:         rng,
		personality: p,
		speed:       speed,
		bulletSpeed: bulletSpeed,
		strafe:      1,
		strafeTick:  30 + rng.IntN(60),
	}
}

// Perceive builds the pilot's view of the arena.
func Perceive(self *tank.Tank, all []*tank.Tank, speed float64) Perception {
	per := Perception{
		Self:     contactOf(self, speed),
		Heading:  self.Heading,
		CanShoot: self.CanShoot,
	}
	for _, other := range all {
		if other.ID == self.ID || !other.Alive() || other.Team == self.Team {
			continue
		}
		per.Enemies = append(per.Enemies, contactOf(other, speed))
		for _, p := range other.Projectiles {
			per.Threats = append(per.Threats, threatOf(p))
		}
	}
	return per
}

func contactOf(t *tank.Tank, speed float64) Contact {
	return Contact{ID: t.ID, Team: t.Team, Position: t.Position, Velocity: t.Velocity().Scale(speed)}
}

func threatOf(p *projectile.Projectile) Threat {
	return Threat{Position: p.Position, Velocity: p.Velocity}
}

// Decide chooses the control for this tick.
func (p *Pilot) Decide(per Perception) tank.Control {
	target, ok := nearest(per.Self.Position, per.Enemies)
	if !ok {
		return tank.Control{}
	}

	aim := p.aimAt(per.Self.Position, target)
	move := p.maneuver(per.Self.Position, target.Position)
	if dodge, ok := p.dodge(per); ok {
		move = dodge
	}

	aligned := per.Heading.Dot(aim.Normalize()) > 0.98
	return tank.Control{
		Move: move.Clamp(1),
		Aim:  aim.Clamp(1),
		Fire: aligned && per.CanShoot,
	}
}

// aimAt leads the target by its travel during the shell's flight time, plus
// an error that shrinks with accuracy.
func (p *Pilot) aimAt(from geom.Vec2, target Contact) geom.Vec2 {
	to := target.Position.Sub(from)
	if p.bulletSpeed > 0 {
		flight := to.Len() / p.bulletSpeed
		to = to.Add(target.Velocity.Scale(flight))
	}
	spread := (1 - p.personality.Accuracy) * 0.3
	angle := math.Atan2(to.Y, to.X) + (p.rng.Float64()*2-1)*spread
	return geom.V(math.Cos(angle), math.Sin(angle))
}

// maneuver closes or opens distance to the preferred range and strafes
// while inside it.
func (p *Pilot) maneuver(from, target geom.Vec2) geom.Vec2 {
	preferred := 7 - 4*p.personality.Aggressiveness
	to := target.Sub(from)
	dist := to.Len()
	dir := to.Normalize()

	p.strafeTick--
	if p.strafeTick <= 0 {
		p.strafe = -p.strafe
		p.strafeTick = 30 + p.rng.IntN(60)
	}

	switch {
	case dist > preferred+1:
		return dir
	case dist < preferred-1:
		return dir.Scale(-1)
	default:
		return dir.Perp().Scale(p.strafe)
	}
}

// dodge steps sideways from a shell that will pass close within the next
// half second. Only tactically aware pilots bother.
func (p *Pilot) dodge(per Perception) (geom.Vec2, bool) {
	if p.personality.TacticalIQ < 0.4 {
		return geom.Vec2{}, false
	}
	const horizonTicks = 25
	danger := tank.Radius + projectile.Radius + 0.2
	for _, th := range per.Threats {
		speed := th.Velocity.Len()
		if speed == 0 {
			continue
		}
		rel := per.Self.Position.Sub(th.Position)
		along := rel.Dot(th.Velocity) / speed
		if along <= 0 || along > speed*horizonTicks {
			continue
		}
		side := rel.Sub(th.Velocity.Scale(along / speed))
		if side.Len() >= danger {
			continue
		}
		away := side.Normalize()
		if away == (geom.Vec2{}) {
			away = th.Velocity.Normalize().Perp()
		}
		return away, true
	}
	return geom.Vec2{}, false
}

func nearest(from geom.Vec2, contacts []Contact) (Contact, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, c := range contacts {
		if d := from.Dist(c.Position); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Contact{}, false
	}
	return contacts[best], true
}
