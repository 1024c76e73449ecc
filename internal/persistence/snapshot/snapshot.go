package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 is the resumable part of a running world: the character, the
// inventory and where each spawner stood. Static geometry and spawner
// configuration come from the world file on resume.
type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRate    int    `json:"tick_rate_hz"`
	ClockUnixMs int64  `json:"clock_unix_ms"`
	WorldDigest string `json:"world_digest"`

	Character CharacterV1    `json:"character"`
	Inventory map[string]int `json:"inventory"`
	Spawners  []SpawnerV1    `json:"spawners"`
}

type CharacterV1 struct {
	Pos      [3]float64 `json:"pos"`
	Vel      [3]float64 `json:"vel"`
	Yaw      float64    `json:"yaw"`
	Grounded bool       `json:"grounded"`
	Input    InputV1    `json:"input"`
}

// InputV1 is the intent in force when the snapshot was taken. Resume does not
// apply it; replay needs it to bridge to the first logged tick.
type InputV1 struct {
	Forward  bool    `json:"forward,omitempty"`
	Backward bool    `json:"backward,omitempty"`
	Left     bool    `json:"left,omitempty"`
	Right    bool    `json:"right,omitempty"`
	Jump     bool    `json:"jump,omitempty"`
	Yaw      float64 `json:"yaw,omitempty"`
}

type SpawnerV1 struct {
	ID              string `json:"id"`
	State           string `json:"state"`
	LastSpawnUnixMs int64  `json:"last_spawn_unix_ms,omitempty"`
	EntityItem      string `json:"entity_item,omitempty"`
	EntityQuantity  int    `json:"entity_quantity,omitempty"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Header line is for humans and tools; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("snapshot header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// Path is the file name used for a snapshot at tick.
func Path(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.snap.zst", tick))
}

// Latest returns the highest-tick snapshot in dir, or "" if none.
func Latest(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	type cand struct {
		tick uint64
		path string
	}
	var cands []cand
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		cands = append(cands, cand{tick: tick, path: filepath.Join(dir, name)})
	}
	if len(cands) == 0 {
		return ""
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].tick < cands[j].tick })
	return cands[len(cands)-1].path
}
