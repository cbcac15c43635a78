// Package arena defines the playing field: bounds, wall tiles and spawn points.
// This package is PURE and must NOT import any infrastructure packages.
package arena

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MRamiBalles/TankArenaBridge/internal/domain/geom"
)

// ErrLegacyLayout is returned for the old tilemap layout with top-level
// Floor and Walls grids. Those files must be converted to bounds, walls and
// spawns.
var ErrLegacyLayout = errors.New("arena: legacy Floor/Walls tilemap layout is not supported")

// Bounds is the axis-aligned playable rectangle.
type Bounds struct {
	MinX float64 `yaml:"min_x" json:"min_x"`
	MaxX float64 `yaml:"max_x" json:"max_x"`
	MinY float64 `yaml:"min_y" json:"min_y"`
	MaxY float64 `yaml:"max_y" json:"max_y"`
}

// Contains reports whether a circle of radius r fits entirely inside the bounds.
func (b Bounds) Contains(p geom.Vec2, r float64) bool {
	return p.X-r >= b.MinX && p.X+r <= b.MaxX && p.Y-r >= b.MinY && p.Y+r <= b.MaxY
}

// Tile is a unit wall cell whose lower-left corner is (X, Y).
type Tile struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

// Spawn places one tank at episode start.
type Spawn struct {
	ID     int       `yaml:"id" json:"id"`
	Team   int       `yaml:"team" json:"team"`
	At     geom.Vec2 `yaml:"at" json:"at"`
	Facing geom.Vec2 `yaml:"facing" json:"facing"`
}

// Arena is an immutable arena description.
type Arena struct {
	Name   string  `yaml:"name" json:"name"`
	Bounds Bounds  `yaml:"bounds" json:"bounds"`
	Walls  []Tile  `yaml:"walls" json:"walls"`
	Spawns []Spawn `yaml:"spawns" json:"spawns"`

	solid map[Tile]struct{}
}

// Default returns the open arena used when no layout file is configured.
func Default() *Arena {
	a := &Arena{
		Name:   "open",
		Bounds: Bounds{MinX: -8, MaxX: 8, MinY: -4, MaxY: 4},
		Spawns: []Spawn{
			{ID: 1, Team: 0, At: geom.V(-6, 0), Facing: geom.V(1, 0)},
			{ID: 2, Team: 1, At: geom.V(6, 0), Facing: geom.V(-1, 0)},
		},
	}
	a.index()
	return a
}

// Load reads an arena description from a YAML or JSON file.
func Load(path string) (*Arena, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read arena %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates an arena description.
func Parse(data []byte) (*Arena, error) {
	var keys map[string]yaml.Node
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("failed to parse arena: %w", err)
	}
	for _, legacy := range []string{"Floor", "Walls"} {
		if _, ok := keys[legacy]; ok {
			return nil, fmt.Errorf("%w (found key %q)", ErrLegacyLayout, legacy)
		}
	}

	var a Arena
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse arena: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	a.index()
	return &a, nil
}

// Validate checks the arena is usable.
func (a *Arena) Validate() error {
	var errs []error
	b := a.Bounds
	if b.MaxX <= b.MinX || b.MaxY <= b.MinY {
		errs = append(errs, fmt.Errorf("arena bounds are empty: %+v", b))
	}
	if len(a.Spawns) == 0 {
		errs = append(errs, errors.New("arena has no spawn points"))
	}
	seen := make(map[int]bool)
	for _, s := range a.Spawns {
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("duplicate spawn id %d", s.ID))
		}
		seen[s.ID] = true
		if s.Team < 0 {
			errs = append(errs, fmt.Errorf("spawn %d has negative team", s.ID))
		}
		if !b.Contains(s.At, 0) {
			errs = append(errs, fmt.Errorf("spawn %d lies outside the bounds", s.ID))
		}
	}
	return errors.Join(errs...)
}

func (a *Arena) index() {
	a.solid = make(map[Tile]struct{}, len(a.Walls))
	for _, w := range a.Walls {
		a.solid[w] = struct{}{}
	}
}

// Blocked reports whether a circle at p with radius r leaves the bounds or touches a wall.
func (a *Arena) Blocked(p geom.Vec2, r float64) bool {
	if !a.Bounds.Contains(p, r) {
		return true
	}
	if len(a.solid) == 0 {
		return false
	}
	minX, maxX := int(math.Floor(p.X-r)), int(math.Floor(p.X+r))
	minY, maxY := int(math.Floor(p.Y-r)), int(math.Floor(p.Y+r))
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			if _, ok := a.solid[Tile{X: x, Y: y}]; !ok {
				continue
			}
			// Closest point of the tile to the circle centre.
			cx := math.Max(float64(x), math.Min(p.X, float64(x+1)))
			cy := math.Max(float64(y), math.Min(p.Y, float64(y+1)))
			if math.Hypot(p.X-cx, p.Y-cy) < r {
				return true
			}
		}
	}
	return false
}

// Teams returns the distinct team indices in spawn order.
func (a *Arena) Teams() []int {
	var teams []int
	seen := make(map[int]bool)
	for _, s := range a.Spawns {
		if !seen[s.Team] {
			seen[s.Team] = true
			teams = append(teams, s.Team)
		}
	}
	return teams
}
