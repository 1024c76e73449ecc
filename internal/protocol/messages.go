package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	WorldID         string         `json:"world_id"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type WorldParams struct {
	TickRateHz       int     `json:"tick_rate_hz"`
	MoveSpeed        float64 `json:"move_speed"`
	CollisionRadius  float64 `json:"collision_radius"`
	EyeHeight        float64 `json:"eye_height"`
	CollectionRadius float64 `json:"collection_radius"`
}

type CatalogDigests struct {
	ItemPalette      DigestRef `json:"item_palette"`
	ItemsDigest      string    `json:"items_digest"`
	StructuresDigest string    `json:"structures_digest"`
	WorldDigest      string    `json:"world_digest"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// INPUT (client -> server). The latest input wins until replaced.
type InputMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Seq             uint64  `json:"seq,omitempty"`
	Forward         bool    `json:"forward,omitempty"`
	Backward        bool    `json:"backward,omitempty"`
	Left            bool    `json:"left,omitempty"`
	Right           bool    `json:"right,omitempty"`
	Jump            bool    `json:"jump,omitempty"`
	Yaw             float64 `json:"yaw"`
}

// STATE (server -> client), once per tick.
type StateMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Tick            uint64         `json:"tick"`
	TimeUnixMs      int64          `json:"time_unix_ms"`
	Character       CharacterState `json:"character"`
	Spawners        []SpawnerState `json:"spawners"`
	Inventory       []ItemStack    `json:"inventory"`
	Events          []Event        `json:"events,omitempty"`
}

type CharacterState struct {
	Pos      [3]float64 `json:"pos"`
	Vel      [3]float64 `json:"vel"`
	Yaw      float64    `json:"yaw"`
	Grounded bool       `json:"grounded"`
}

type SpawnerState struct {
	ID     string       `json:"id"`
	Kind   string       `json:"kind"`
	State  string       `json:"state"`
	Pos    [3]float64   `json:"pos"`
	Entity *EntityState `json:"entity,omitempty"`
}

type EntityState struct {
	ID        string     `json:"id"`
	ItemID    string     `json:"item_id"`
	Quantity  int        `json:"quantity"`
	Pos       [3]float64 `json:"pos"`
	Collected bool       `json:"collected"`
}

type ItemStack struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type Event struct {
	Type      string `json:"type"`
	SpawnerID string `json:"spawner_id"`
	EntityID  string `json:"entity_id,omitempty"`
	ItemID    string `json:"item_id,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
	State     string `json:"state,omitempty"`
	Message   string `json:"message,omitempty"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

// Scene stream (server -> observer).
type SceneNode struct {
	ID    string     `json:"id"`
	Kind  string     `json:"kind"`
	Model string     `json:"model"`
	Pos   [3]float64 `json:"pos"`
	Scale float64    `json:"scale"`
}

type SceneSnapshotMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Nodes           []SceneNode `json:"nodes"`
}

type NodeMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Node            SceneNode `json:"node"`
}
