package bridge

import (
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/geom"
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/tank"
	"github.com/MRamiBalles/TankArenaBridge/internal/protocol"
)

// DefaultFireThreshold is the fire-intent value above which a tank shoots.
const DefaultFireThreshold = 0.5

// ActionDecoder turns decoded action tuples into tank controls.
type ActionDecoder struct {
	Threshold float64
}

// Control maps one tuple. Components are clamped to [-1, 1].
func (d ActionDecoder) Control(a protocol.Action) tank.Control {
	return tank.Control{
		Move: geom.V(a.MoveX(), a.MoveY()).Clamp(1),
		Aim:  geom.V(a.AimX(), a.AimY()).Clamp(1),
		Fire: a.Fire() > d.Threshold,
	}
}

// Apply hands each remote entity its new control. Entities missing from the
// reply keep their previous control. Entries for entities the controller does
// not drive are ignored. Returns applied and ignored counts.
func (d ActionDecoder) Apply(w World, actions map[int]protocol.Action) (applied, ignored int) {
	remote := w.RemoteEntities()
	for _, id := range remote {
		a, ok := actions[id]
		if !ok {
			continue
		}
		if w.ApplyControl(id, d.Control(a)) {
			applied++
		}
	}
	for id := range actions {
		if !contains(remote, id) {
			ignored++
		}
	}
	return applied, ignored
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
