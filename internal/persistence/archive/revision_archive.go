package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"foodrun.game/internal/persistence/snapshot"
)

type RevisionArchiveMeta struct {
	WorldID     string `json:"world_id"`
	WorldDigest string `json:"world_digest"`
	EndTick     uint64 `json:"end_tick"`
	ClockUnixMs int64  `json:"clock_unix_ms"`
	Snapshot    string `json:"snapshot"`
	NextDigest  string `json:"next_digest"`
	CreatedAt   string `json:"created_at"`
}

// Revisions keeps the last snapshot taken against each world file revision.
// When a snapshot arrives for a new world digest, the previous one is copied
// into worldDir/archives/world_<digest>/.
// Not safe for concurrent use; the snapshot writer owns it.
type Revisions struct {
	worldDir string
	now      func() time.Time

	lastPath string
	last     snapshot.SnapshotV1
}

func NewRevisions(worldDir string) *Revisions {
	return &Revisions{worldDir: worldDir, now: time.Now}
}

// Observe records a freshly written snapshot. It returns the archive path
// when the previous snapshot closed out a world revision.
func (r *Revisions) Observe(path string, snap snapshot.SnapshotV1) (archivedPath string, archived bool, err error) {
	prevPath, prev := r.lastPath, r.last
	r.lastPath, r.last = path, snap
	if prevPath == "" || prev.WorldDigest == "" || prev.WorldDigest == snap.WorldDigest {
		return "", false, nil
	}
	dst, err := ArchiveRevision(r.worldDir, prevPath, prev, snap.WorldDigest, r.now())
	if err != nil {
		return "", false, err
	}
	return dst, true, nil
}

// ArchiveRevision copies snapshotPath into the archive directory of its world
// digest and writes meta.json beside it.
func ArchiveRevision(worldDir, snapshotPath string, snap snapshot.SnapshotV1, nextDigest string, now time.Time) (string, error) {
	archiveDir := filepath.Join(worldDir, "archives", "world_"+shortDigest(snap.WorldDigest))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", fmt.Errorf("archive %s: %w", filepath.Base(snapshotPath), err)
	}

	meta := RevisionArchiveMeta{
		WorldID:     snap.Header.WorldID,
		WorldDigest: snap.WorldDigest,
		EndTick:     snap.Header.Tick,
		ClockUnixMs: snap.ClockUnixMs,
		Snapshot:    filepath.Base(dst),
		NextDigest:  nextDigest,
		CreatedAt:   now.UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}
	return dst, nil
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
