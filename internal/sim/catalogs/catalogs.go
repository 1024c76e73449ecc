package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

var (
	ErrUnknownItem      = errors.New("unknown item")
	ErrUnknownStructure = errors.New("unknown structure")
)

type Catalogs struct {
	Items      ItemCatalog
	Structures StructureCatalog
}

type ItemCatalog struct {
	Palette       []string
	Defs          map[string]ItemDef
	PaletteDigest string
	DefsDigest    string
}

type ItemDef struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind"` // "FOOD","DRINK","MISC"
	Model       string  `json:"model"`
	Scale       float64 `json:"scale,omitempty"`
	HealthBonus int     `json:"health_bonus,omitempty"`
}

type StructureCatalog struct {
	Defs   map[string]StructureDef
	Digest string
}

// StructureDef describes static geometry in local space. Mesh is "box"
// (12 triangles from Size/Offset), "bounds" (the box itself, no triangles)
// or "custom" (Triangles).
type StructureDef struct {
	ID        string          `json:"id"`
	Solid     bool            `json:"solid"`
	Size      [3]float64      `json:"size"`
	Offset    [3]float64      `json:"offset,omitempty"`
	Mesh      string          `json:"mesh,omitempty"`
	Triangles [][3][3]float64 `json:"triangles,omitempty"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items); err != nil {
		return nil, err
	}
	if err := loadStructures(filepath.Join(configDir, "structures.json"), &c.Structures); err != nil {
		return nil, err
	}
	return &c, nil
}

// Item is the item registry lookup used by spawners.
func (c ItemCatalog) Item(id string) (ItemDef, error) {
	d, ok := c.Defs[id]
	if !ok {
		return ItemDef{}, fmt.Errorf("%w: %q", ErrUnknownItem, id)
	}
	return d, nil
}

func (c StructureCatalog) Structure(id string) (StructureDef, error) {
	d, ok := c.Defs[id]
	if !ok {
		return StructureDef{}, fmt.Errorf("%w: %q", ErrUnknownStructure, id)
	}
	return d, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadItems(path string, out *ItemCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	return out.set(defs, sha256Hex(raw))
}

// NewItemCatalog builds a catalog from in-memory definitions.
func NewItemCatalog(defs []ItemDef) (ItemCatalog, error) {
	var c ItemCatalog
	raw, _ := json.Marshal(defs)
	err := c.set(defs, sha256Hex(raw))
	return c, err
}

func (c *ItemCatalog) set(defs []ItemDef, digest string) error {
	c.DefsDigest = digest
	c.Defs = make(map[string]ItemDef, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("items.json: empty id")
		}
		if _, dup := c.Defs[d.ID]; dup {
			return fmt.Errorf("items.json: duplicate id %q", d.ID)
		}
		if d.Scale == 0 {
			d.Scale = 1
		}
		c.Defs[d.ID] = d
	}
	ids := make([]string, 0, len(c.Defs))
	for id := range c.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	c.Palette = ids
	palJSON, _ := json.Marshal(ids)
	c.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadStructures(path string, out *StructureCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			out.Defs = map[string]StructureDef{}
			return nil
		}
		return err
	}
	var defs []StructureDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("structures.json: %w", err)
	}
	s, err := NewStructureCatalog(defs)
	if err != nil {
		return err
	}
	s.Digest = sha256Hex(raw)
	*out = s
	return nil
}

func NewStructureCatalog(defs []StructureDef) (StructureCatalog, error) {
	out := StructureCatalog{Defs: make(map[string]StructureDef, len(defs))}
	for _, d := range defs {
		if d.ID == "" {
			return out, fmt.Errorf("structures.json: empty id")
		}
		switch d.Mesh {
		case "":
			d.Mesh = "box"
		case "box", "bounds":
		case "custom":
			if len(d.Triangles) == 0 {
				return out, fmt.Errorf("structures.json: %s: custom mesh without triangles", d.ID)
			}
		default:
			return out, fmt.Errorf("structures.json: %s: unknown mesh %q", d.ID, d.Mesh)
		}
		if d.Mesh != "custom" && (d.Size[0] <= 0 || d.Size[1] <= 0 || d.Size[2] <= 0) {
			return out, fmt.Errorf("structures.json: %s: size must be positive", d.ID)
		}
		out.Defs[d.ID] = d
	}
	raw, _ := json.Marshal(defs)
	out.Digest = sha256Hex(raw)
	return out, nil
}
