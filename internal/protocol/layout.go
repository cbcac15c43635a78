// Package protocol defines the controller wire format: handshake and step
// messages, the fixed observation layout and the stream framer.
package protocol

// Observation layout. Each tracked entity occupies EntityStride slots:
//
//	[0:2]  position x/PositionScaleX, y/PositionScaleY
//	[2:4]  velocity
//	[4:6]  aim
//	[6:26] ProjectileSlots x (pos x, pos y, vel x, vel y)
const (
	TrackedEntities   = 2
	ProjectileSlots   = 5
	EntityFields      = 6
	ProjectileFields  = 4
	EntityStride      = EntityFields + ProjectileSlots*ProjectileFields
	ObservationLength = TrackedEntities * EntityStride

	// Sentinel fills projectile slots that have no live projectile.
	Sentinel = -10.0

	PositionScaleX = 8.0
	PositionScaleY = 4.0

	// ActionLength is the size of the per-entity action tuple:
	// move x, move y, aim x, aim y, fire intent.
	ActionLength = 5
)

// Observation is the fixed-length state vector sent on every exchange tick.
type Observation [ObservationLength]float64

// Blank returns an observation with every slot set to the sentinel.
func Blank() Observation {
	var o Observation
	for i := range o {
		o[i] = Sentinel
	}
	return o
}

// Entity returns the slice of the observation that belongs to slot.
func (o *Observation) Entity(slot int) []float64 {
	start := slot * EntityStride
	return o[start : start+EntityStride]
}

// Projectile returns the four values of projectile i of entity slot.
func (o *Observation) Projectile(slot, i int) []float64 {
	start := slot*EntityStride + EntityFields + i*ProjectileFields
	return o[start : start+ProjectileFields]
}

// Slice returns the observation as a plain slice for encoding.
func (o Observation) Slice() []float64 {
	out := make([]float64, ObservationLength)
	copy(out, o[:])
	return out
}

// Action is one entity's control tuple.
type Action [ActionLength]float64

func (a Action) MoveX() float64 { return a[0] }
func (a Action) MoveY() float64 { return a[1] }
func (a Action) AimX() float64  { return a[2] }
func (a Action) AimY() float64  { return a[3] }
func (a Action) Fire() float64  { return a[4] }
