// Package geom holds the small amount of 3D math the simulation needs on
// top of mgl64: axis-aligned boxes, rays, triangles and instance transforms.
package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

type Vec3 = mgl64.Vec3

// AABB is an axis-aligned box. Min is component-wise <= Max.
type AABB struct {
	Min Vec3
	Max Vec3
}

// EmptyAABB returns an inverted box that any Extend call will replace.
func EmptyAABB() AABB {
	inf := math.Inf(1)
	return AABB{
		Min: Vec3{inf, inf, inf},
		Max: Vec3{-inf, -inf, -inf},
	}
}

func (b AABB) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

func (b AABB) Extend(p Vec3) AABB {
	for i := 0; i < 3; i++ {
		b.Min[i] = math.Min(b.Min[i], p[i])
		b.Max[i] = math.Max(b.Max[i], p[i])
	}
	return b
}

func (b AABB) Contains(p Vec3) bool {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// ClosestPoint clamps p into the box.
func (b AABB) ClosestPoint(p Vec3) Vec3 {
	return Vec3{
		mgl64.Clamp(p[0], b.Min[0], b.Max[0]),
		mgl64.Clamp(p[1], b.Min[1], b.Max[1]),
		mgl64.Clamp(p[2], b.Min[2], b.Max[2]),
	}
}

// IntersectsSphere is the broad-phase test used before ray casting.
func (b AABB) IntersectsSphere(center Vec3, radius float64) bool {
	if b.IsEmpty() {
		return false
	}
	d := b.ClosestPoint(center).Sub(center)
	return d.LenSqr() <= radius*radius
}

func (b AABB) Corners() [8]Vec3 {
	return [8]Vec3{
		{b.Min[0], b.Min[1], b.Min[2]},
		{b.Max[0], b.Min[1], b.Min[2]},
		{b.Min[0], b.Max[1], b.Min[2]},
		{b.Max[0], b.Max[1], b.Min[2]},
		{b.Min[0], b.Min[1], b.Max[2]},
		{b.Max[0], b.Min[1], b.Max[2]},
		{b.Min[0], b.Max[1], b.Max[2]},
		{b.Max[0], b.Max[1], b.Max[2]},
	}
}

// Ray has a unit-length Dir.
type Ray struct {
	Origin Vec3
	Dir    Vec3
}

// IntersectAABB returns the entry distance along the ray (slab method).
// An origin inside the box reports a hit at distance 0.
func (r Ray) IntersectAABB(b AABB) (float64, bool) {
	if b.IsEmpty() {
		return 0, false
	}
	tmin := 0.0
	tmax := math.Inf(1)
	for i := 0; i < 3; i++ {
		if math.Abs(r.Dir[i]) < 1e-12 {
			if r.Origin[i] < b.Min[i] || r.Origin[i] > b.Max[i] {
				return 0, false
			}
			continue
		}
		inv := 1 / r.Dir[i]
		t1 := (b.Min[i] - r.Origin[i]) * inv
		t2 := (b.Max[i] - r.Origin[i]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

type Triangle struct {
	A, B, C Vec3
}

// IntersectTriangle is Möller–Trumbore, double sided, t >= 0.
func (r Ray) IntersectTriangle(tri Triangle) (float64, bool) {
	const eps = 1e-9
	e1 := tri.B.Sub(tri.A)
	e2 := tri.C.Sub(tri.A)
	p := r.Dir.Cross(e2)
	det := e1.Dot(p)
	if math.Abs(det) < eps {
		return 0, false
	}
	inv := 1 / det
	s := r.Origin.Sub(tri.A)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := r.Dir.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * inv
	if t < 0 {
		return 0, false
	}
	return t, true
}

// Nearest returns the closest hit of the ray against tris.
func (r Ray) Nearest(tris []Triangle) (float64, bool) {
	best := math.Inf(1)
	hit := false
	for _, tri := range tris {
		if t, ok := r.IntersectTriangle(tri); ok && t < best {
			best = t
			hit = true
		}
	}
	return best, hit
}

// HorizontalDirs are the eight unit directions in the XZ plane, starting at
// -Z (north) and going clockwise when seen from above.
var HorizontalDirs = func() [8]Vec3 {
	var out [8]Vec3
	for i := 0; i < 8; i++ {
		a := float64(i) * math.Pi / 4
		out[i] = Vec3{math.Sin(a), 0, -math.Cos(a)}
	}
	return out
}()

var Down = Vec3{0, -1, 0}
