package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	Character Character `yaml:"character"`
	Spawning  Spawning  `yaml:"spawning"`
}

// Character values are per tick, in world units.
type Character struct {
	Gravity          float64 `yaml:"gravity"`
	JumpImpulse      float64 `yaml:"jump_impulse"`
	MoveSpeed        float64 `yaml:"move_speed"`
	CollisionRadius  float64 `yaml:"collision_radius"`
	FloorHeight      float64 `yaml:"floor_height"`
	EyeHeight        float64 `yaml:"eye_height"`
	StandingDistance float64 `yaml:"standing_distance"`
}

type Spawning struct {
	CollectionRadius  float64 `yaml:"collection_radius"`
	CleanupDelayMs    int     `yaml:"cleanup_delay_ms"`
	DefaultCooldownMs int     `yaml:"default_cooldown_ms"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         60,
		SnapshotEveryTicks: 3600,
		Character: Character{
			Gravity:          0.01,
			JumpImpulse:      0.25,
			MoveSpeed:        0.15,
			CollisionRadius:  0.5,
			FloorHeight:      2.0,
			EyeHeight:        2.0,
			StandingDistance: 2.1,
		},
		Spawning: Spawning{
			CollectionRadius:  2.0,
			CleanupDelayMs:    400,
			DefaultCooldownMs: 5000,
		},
	}
}

// Load overlays the YAML file onto Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz out of range: %d", t.TickRateHz)
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	c := t.Character
	if c.Gravity < 0 || c.JumpImpulse < 0 || c.MoveSpeed < 0 {
		return fmt.Errorf("character gravity/jump/speed must be >= 0")
	}
	if c.CollisionRadius <= 0 {
		return fmt.Errorf("character.collision_radius must be > 0")
	}
	if c.EyeHeight <= 0 {
		return fmt.Errorf("character.eye_height must be > 0")
	}
	if c.StandingDistance <= c.EyeHeight {
		return fmt.Errorf("character.standing_distance (%v) must exceed eye_height (%v)", c.StandingDistance, c.EyeHeight)
	}
	s := t.Spawning
	if s.CollectionRadius <= 0 {
		return fmt.Errorf("spawning.collection_radius must be > 0")
	}
	if s.CleanupDelayMs < 0 || s.DefaultCooldownMs < 0 {
		return fmt.Errorf("spawning delays must be >= 0")
	}
	return nil
}

func (t Tuning) TickInterval() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}

func (s Spawning) CleanupDelay() time.Duration {
	return time.Duration(s.CleanupDelayMs) * time.Millisecond
}

func (s Spawning) DefaultCooldown() time.Duration {
	return time.Duration(s.DefaultCooldownMs) * time.Millisecond
}
