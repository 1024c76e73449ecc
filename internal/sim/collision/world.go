// Package collision answers the two questions character movement needs from
// static level geometry: would a sphere at this point be blocked, and is
// there ground under this point.
package collision

import (
	"foodrun.game/internal/sim/geom"
)

// Volume is one static blocking object. A volume without surfaces is tested
// against its box.
type Volume struct {
	ID       string
	Box      geom.AABB
	Surfaces []geom.Triangle
}

// World is immutable after construction; a level reload builds a new one.
type World struct {
	volumes  []Volume
	standing float64
}

// DefaultStandingDistance is eye height plus a small margin.
const DefaultStandingDistance = 2.1

func NewWorld(volumes []Volume, standingDistance float64) *World {
	if standingDistance <= 0 {
		standingDistance = DefaultStandingDistance
	}
	vs := make([]Volume, len(volumes))
	copy(vs, volumes)
	return &World{volumes: vs, standing: standingDistance}
}

func (w *World) Len() int {
	if w == nil {
		return 0
	}
	return len(w.volumes)
}

func (w *World) Volumes() []Volume {
	if w == nil {
		return nil
	}
	out := make([]Volume, len(w.volumes))
	copy(out, w.volumes)
	return out
}

// QueryBlocking reports whether a sphere of radius at center is blocked by
// any volume: broad phase sphere vs box, then eight horizontal rays from
// center, blocked when a hit is closer than radius.
func (w *World) QueryBlocking(center geom.Vec3, radius float64) bool {
	if w == nil {
		return false
	}
	for i := range w.volumes {
		v := &w.volumes[i]
		if !v.Box.IntersectsSphere(center, radius) {
			continue
		}
		for _, dir := range geom.HorizontalDirs {
			if d, ok := v.cast(geom.Ray{Origin: center, Dir: dir}); ok && d < radius {
				return true
			}
		}
	}
	return false
}

// QueryGroundSupport casts straight down from origin.
func (w *World) QueryGroundSupport(origin geom.Vec3) bool {
	if w == nil {
		return false
	}
	_, ok := w.GroundDistance(origin)
	return ok
}

// GroundDistance returns the nearest downward hit within standing distance.
func (w *World) GroundDistance(origin geom.Vec3) (float64, bool) {
	if w == nil {
		return 0, false
	}
	ray := geom.Ray{Origin: origin, Dir: geom.Down}
	best, found := 0.0, false
	for i := range w.volumes {
		d, ok := w.volumes[i].cast(ray)
		if !ok || d >= w.standing {
			continue
		}
		if !found || d < best {
			best, found = d, true
		}
	}
	return best, found
}

func (v *Volume) cast(r geom.Ray) (float64, bool) {
	if len(v.Surfaces) == 0 {
		return r.IntersectAABB(v.Box)
	}
	return r.Nearest(v.Surfaces)
}
