// Package worldfile reads and validates the editor's world description:
// static geometry instances and spawn points.
package worldfile

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/pixil98/go-errors"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"foodrun.game/internal/sim/geom"
)

//go:embed world.schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("world.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

const KindItem = "item"

type File struct {
	Player   *Player   `json:"player,omitempty"`
	Objects  []Object  `json:"objects"`
	Spawners []Spawner `json:"spawners"`
}

type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec) Vec3() geom.Vec3 { return geom.Vec3{v.X, v.Y, v.Z} }

type Player struct {
	Spawn *Vec    `json:"spawn,omitempty"`
	Yaw   float64 `json:"yaw,omitempty"`
}

type Object struct {
	ID        string     `json:"id"`
	Instances []Instance `json:"instances"`
}

// Instance is one placement. Rotations are Euler XYZ radians; a zero or
// missing scale component means 1.
type Instance struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	RotationX float64 `json:"rotationX"`
	RotationY float64 `json:"rotationY"`
	RotationZ float64 `json:"rotationZ"`
	ScaleX    float64 `json:"scaleX"`
	ScaleY    float64 `json:"scaleY"`
	ScaleZ    float64 `json:"scaleZ"`
}

func (in Instance) Transform() geom.Transform {
	one := func(v float64) float64 {
		if v == 0 {
			return 1
		}
		return v
	}
	return geom.Transform{
		Position: geom.Vec3{in.X, in.Y, in.Z},
		Rotation: geom.Vec3{in.RotationX, in.RotationY, in.RotationZ},
		Scale:    geom.Vec3{one(in.ScaleX), one(in.ScaleY), one(in.ScaleZ)},
	}
}

type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type Spawner struct {
	ID         string   `json:"id"`
	Type       string   `json:"type,omitempty"`
	Position   Vec      `json:"position"`
	ItemIDs    []string `json:"itemIds"`
	Quantities []Range  `json:"quantities,omitempty"`
	CooldownMs *int     `json:"cooldownMs,omitempty"`
	Active     *bool    `json:"active,omitempty"`
}

// Kind defaults to "item".
func (s Spawner) Kind() string {
	if s.Type == "" {
		return KindItem
	}
	return s.Type
}

// QuantityFor returns the range paired with itemIds[i]; {1,1} when absent.
func (s Spawner) QuantityFor(i int) Range {
	if i >= 0 && i < len(s.Quantities) {
		return s.Quantities[i]
	}
	return Range{Min: 1, Max: 1}
}

func (s Spawner) InitiallyActive() bool {
	return s.Active == nil || *s.Active
}

type Stats struct {
	Objects   int
	Spawners  int
	Instances int
}

func (f *File) Stats() Stats {
	st := Stats{Objects: len(f.Objects), Spawners: len(f.Spawners)}
	for _, o := range f.Objects {
		st.Instances += len(o.Instances)
	}
	return st
}

// Validate checks what the schema cannot express. Item ids and spawner kinds
// are resolved when spawning, so they are not checked here.
func (f *File) Validate() error {
	el := errors.NewErrorList()
	for i, o := range f.Objects {
		if o.ID == "" {
			el.Add(fmt.Errorf("objects[%d]: id is required", i))
		}
	}
	seen := map[string]bool{}
	for i, s := range f.Spawners {
		if s.ID == "" {
			el.Add(fmt.Errorf("spawners[%d]: id is required", i))
		} else if seen[s.ID] {
			el.Add(fmt.Errorf("spawners[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
		if s.CooldownMs != nil && *s.CooldownMs < 0 {
			el.Add(fmt.Errorf("spawner %s: cooldownMs must be >= 0", s.ID))
		}
		if len(s.Quantities) > len(s.ItemIDs) {
			el.Add(fmt.Errorf("spawner %s: %d quantities for %d itemIds", s.ID, len(s.Quantities), len(s.ItemIDs)))
		}
	}
	return el.Err()
}

// Parse validates raw against the world schema, decodes it and runs Validate.
func Parse(raw []byte) (*File, error) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("world schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("world.json: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("world.json: %w", err)
	}
	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("world.json: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("world.json: %w", err)
	}
	return &f, nil
}

func Load(path string) (*File, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	return f, raw, nil
}

// Pretty re-indents a payload without dropping fields the decoder ignores.
// The output ends in exactly one newline, so Pretty(Pretty(x)) == Pretty(x).
func Pretty(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(raw), "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Digest identifies a world payload by content.
func Digest(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
