package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"foodrun.game/internal/protocol"
)

func TestSchemas_ValidateMessages(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	// Round-trip through JSON so the validator sees what a client sees.
	validate := func(s *jsonschema.Schema, msg any) {
		t.Helper()
		b, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate %s: %v", b, err)
		}
	}

	validate(compile("hello.schema.json"), protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "bot1",
	})

	validate(compile("welcome.schema.json"), protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "S1",
		WorldID:         "main",
		WorldParams: protocol.WorldParams{
			TickRateHz:       60,
			MoveSpeed:        0.15,
			CollisionRadius:  0.5,
			EyeHeight:        2,
			CollectionRadius: 2,
		},
		Catalogs: protocol.CatalogDigests{
			ItemPalette:      protocol.DigestRef{Digest: "deadbeef", Count: 4},
			ItemsDigest:      "deadbeef",
			StructuresDigest: "deadbeef",
			WorldDigest:      "deadbeef",
		},
	})

	validate(compile("input.schema.json"), protocol.InputMsg{
		Type:            protocol.TypeInput,
		ProtocolVersion: protocol.Version,
		Seq:             7,
		Forward:         true,
		Yaw:             1.2,
	})

	validate(compile("state.schema.json"), protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            42,
		TimeUnixMs:      1700000000000,
		Character:       protocol.CharacterState{Pos: [3]float64{0, 2, 0}, Grounded: true},
		Spawners: []protocol.SpawnerState{
			{ID: "s1", Kind: "item", State: "ACTIVE", Pos: [3]float64{5, 1, 0},
				Entity: &protocol.EntityState{ID: "e1", ItemID: "apple", Quantity: 1, Pos: [3]float64{5, 1, 0}}},
			{ID: "s2", Kind: "item", State: "COOLDOWN", Pos: [3]float64{-5, 1, 0}},
		},
		Inventory: []protocol.ItemStack{{Item: "apple", Count: 2}},
		Events:    []protocol.Event{{Type: "COLLECT", SpawnerID: "s2", ItemID: "apple", Quantity: 1}},
	})

	scene := compile("scene.schema.json")
	node := protocol.SceneNode{ID: "n1", Kind: "collectible", Model: "apple.glb", Pos: [3]float64{1, 2, 3}, Scale: 1}
	validate(scene, protocol.NodeMsg{Type: protocol.TypeNodeAdd, ProtocolVersion: protocol.Version, Node: node})
	validate(scene, protocol.SceneSnapshotMsg{Type: protocol.TypeSceneSnapshot, ProtocolVersion: protocol.Version, Nodes: []protocol.SceneNode{node}})
}

func TestDecodeBase(t *testing.T) {
	m, err := protocol.DecodeBase([]byte(`{"type":"INPUT","protocol_version":"1.0","forward":true}`))
	if err != nil || m.Type != protocol.TypeInput || m.ProtocolVersion != "1.0" {
		t.Fatalf("m=%+v err=%v", m, err)
	}
}
