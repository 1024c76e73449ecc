package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_OverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	raw := []byte(`
tick_rate_hz: 30
character:
  jump_impulse: 0.3
spawning:
  cleanup_delay_ms: 250
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TickRateHz != 30 || got.Character.JumpImpulse != 0.3 {
		t.Fatalf("overrides not applied: %+v", got)
	}
	if got.Character.Gravity != 0.01 || got.Character.StandingDistance != 2.1 {
		t.Fatalf("defaults lost: %+v", got.Character)
	}
	if got.Spawning.CleanupDelay() != 250*time.Millisecond {
		t.Fatalf("cleanup=%v", got.Spawning.CleanupDelay())
	}
	if got.TickInterval() != time.Second/30 {
		t.Fatalf("tick interval=%v", got.TickInterval())
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(path, []byte("tick_rate_hz: 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for tick_rate_hz 0")
	}
}

func TestDefaults_Valid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestValidate_StandingDistanceExceedsEyeHeight(t *testing.T) {
	tu := Defaults()
	tu.Character.StandingDistance = tu.Character.EyeHeight
	if err := tu.Validate(); err == nil {
		t.Fatalf("standing_distance == eye_height accepted")
	}
	tu.Character.StandingDistance = tu.Character.EyeHeight - 0.5
	if err := tu.Validate(); err == nil {
		t.Fatalf("standing_distance < eye_height accepted")
	}
	tu.Character.StandingDistance = tu.Character.EyeHeight + 0.1
	if err := tu.Validate(); err != nil {
		t.Fatalf("valid margin rejected: %v", err)
	}
}
