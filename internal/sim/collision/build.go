package collision

import (
	"fmt"

	"foodrun.game/internal/sim/catalogs"
	"foodrun.game/internal/sim/geom"
	"foodrun.game/internal/sim/worldfile"
)

// Build places every solid structure instance of the world file. Objects
// whose id is not in the structure catalog are skipped and reported.
func Build(objects []worldfile.Object, structures catalogs.StructureCatalog, standingDistance float64) (*World, []error) {
	var volumes []Volume
	var problems []error
	for _, obj := range objects {
		def, err := structures.Structure(obj.ID)
		if err != nil {
			problems = append(problems, fmt.Errorf("object %s: %w", obj.ID, err))
			continue
		}
		if !def.Solid {
			continue
		}
		for i, in := range obj.Instances {
			volumes = append(volumes, Place(fmt.Sprintf("%s#%d", obj.ID, i), def, in.Transform()))
		}
	}
	return NewWorld(volumes, standingDistance), problems
}

// Place transforms a structure's local geometry into a world volume.
func Place(id string, def catalogs.StructureDef, t geom.Transform) Volume {
	m := t.Matrix()
	local := geom.CenteredBox(
		geom.Vec3{def.Size[0], def.Size[1], def.Size[2]},
		geom.Vec3{def.Offset[0], def.Offset[1], def.Offset[2]},
	)
	switch def.Mesh {
	case "bounds":
		return Volume{ID: id, Box: geom.BoundsOf(local, m)}
	case "custom":
		tris := make([]geom.Triangle, len(def.Triangles))
		for i, tri := range def.Triangles {
			tris[i] = geom.Triangle{
				A: geom.Vec3(tri[0]),
				B: geom.Vec3(tri[1]),
				C: geom.Vec3(tri[2]),
			}
		}
		world := geom.TransformTriangles(tris, m)
		return Volume{ID: id, Box: geom.TrianglesBounds(world), Surfaces: world}
	default:
		world := geom.TransformTriangles(geom.BoxMesh(local), m)
		return Volume{ID: id, Box: geom.BoundsOf(local, m), Surfaces: world}
	}
}
