package geom

import "github.com/go-gl/mathgl/mgl64"

// Transform is a placed instance: translation, Euler XYZ rotation (radians)
// and per-axis scale, composed as T * Rx * Ry * Rz * S.
type Transform struct {
	Position Vec3
	Rotation Vec3
	Scale    Vec3
}

func Identity() Transform {
	return Transform{Scale: Vec3{1, 1, 1}}
}

func (t Transform) Matrix() mgl64.Mat4 {
	s := t.Scale
	if s == (Vec3{}) {
		s = Vec3{1, 1, 1}
	}
	rot := mgl64.HomogRotate3DX(t.Rotation[0]).
		Mul4(mgl64.HomogRotate3DY(t.Rotation[1])).
		Mul4(mgl64.HomogRotate3DZ(t.Rotation[2]))
	return mgl64.Translate3D(t.Position[0], t.Position[1], t.Position[2]).
		Mul4(rot).
		Mul4(mgl64.Scale3D(s[0], s[1], s[2]))
}

func (t Transform) Apply(p Vec3) Vec3 {
	return mgl64.TransformCoordinate(p, t.Matrix())
}

// TransformTriangles maps local-space triangles into world space.
func TransformTriangles(tris []Triangle, m mgl64.Mat4) []Triangle {
	out := make([]Triangle, len(tris))
	for i, tri := range tris {
		out[i] = Triangle{
			A: mgl64.TransformCoordinate(tri.A, m),
			B: mgl64.TransformCoordinate(tri.B, m),
			C: mgl64.TransformCoordinate(tri.C, m),
		}
	}
	return out
}

// BoundsOf returns the world box of a transformed local box.
func BoundsOf(local AABB, m mgl64.Mat4) AABB {
	out := EmptyAABB()
	for _, c := range local.Corners() {
		out = out.Extend(mgl64.TransformCoordinate(c, m))
	}
	return out
}

// TrianglesBounds returns the box enclosing every vertex.
func TrianglesBounds(tris []Triangle) AABB {
	out := EmptyAABB()
	for _, tri := range tris {
		out = out.Extend(tri.A).Extend(tri.B).Extend(tri.C)
	}
	return out
}

// BoxMesh returns the 12 triangles of a box.
func BoxMesh(b AABB) []Triangle {
	c := b.Corners()
	// corner index bits: x=1, y=2, z=4
	quad := func(a, b, cc, d int) [2]Triangle {
		return [2]Triangle{{c[a], c[b], c[cc]}, {c[a], c[cc], c[d]}}
	}
	faces := [][2]Triangle{
		quad(0, 2, 3, 1), // -z
		quad(4, 5, 7, 6), // +z
		quad(0, 4, 6, 2), // -x
		quad(1, 3, 7, 5), // +x
		quad(0, 1, 5, 4), // -y
		quad(2, 6, 7, 3), // +y
	}
	out := make([]Triangle, 0, 12)
	for _, f := range faces {
		out = append(out, f[0], f[1])
	}
	return out
}

// CenteredBox returns a box of the given size centered on offset.
func CenteredBox(size, offset Vec3) AABB {
	h := size.Mul(0.5)
	return AABB{Min: offset.Sub(h), Max: offset.Add(h)}
}
