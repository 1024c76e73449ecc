// Package worldstore owns the world file on disk: reads, validated saves with
// compressed backups, and change notification for hot reload.
package worldstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"foodrun.game/internal/sim/worldfile"
)

// ErrInvalidWorld wraps every rejection of a payload by the world schema or
// its semantic checks. Nothing is written when it is returned.
var ErrInvalidWorld = errors.New("invalid world")

const backupSuffix = ".bak.zst"

type Store struct {
	path      string
	backupDir string
	keep      int
	now       func() time.Time

	mu sync.Mutex
}

// New manages the world file at path. Backups go to backupDir (the file's
// directory when empty); keep bounds how many are retained, 0 keeps all.
func New(path, backupDir string, keep int) *Store {
	if backupDir == "" {
		backupDir = filepath.Dir(path)
	}
	return &Store{path: path, backupDir: backupDir, keep: keep, now: time.Now}
}

func (s *Store) Path() string { return s.path }

// Read returns the raw file as stored.
func (s *Store) Read() ([]byte, error) {
	return os.ReadFile(s.path)
}

// Load reads and validates the current file.
func (s *Store) Load() (*worldfile.File, []byte, error) {
	return worldfile.Load(s.path)
}

type SaveResult struct {
	File       *worldfile.File
	Digest     string
	PrevDigest string
	Bytes      int
	Backup     string
	Stats      worldfile.Stats
}

// Save validates raw, backs up the current file and atomically replaces it
// with an indented copy of raw.
func (s *Store) Save(raw []byte) (SaveResult, error) {
	f, err := worldfile.Parse(raw)
	if err != nil {
		return SaveResult{}, fmt.Errorf("%w: %v", ErrInvalidWorld, err)
	}
	pretty, err := worldfile.Pretty(raw)
	if err != nil {
		return SaveResult{}, fmt.Errorf("%w: %v", ErrInvalidWorld, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := SaveResult{
		File:   f,
		Digest: worldfile.Digest(pretty),
		Bytes:  len(pretty),
		Stats:  f.Stats(),
	}
	prev, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		res.PrevDigest = worldfile.Digest(prev)
		if res.Backup, err = s.backup(prev); err != nil {
			return SaveResult{}, fmt.Errorf("backup: %w", err)
		}
	case !os.IsNotExist(err):
		return SaveResult{}, err
	}

	if err := writeAtomic(s.path, pretty); err != nil {
		return SaveResult{}, err
	}
	s.prune()
	return res, nil
}

func (s *Store) backup(raw []byte) (string, error) {
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return "", err
	}
	defer enc.Close()
	stamp := s.now().UTC().Format("20060102T150405.000000000Z")
	name := filepath.Base(s.path) + "." + stamp + backupSuffix
	path := filepath.Join(s.backupDir, name)
	if err := writeAtomic(path, enc.EncodeAll(raw, nil)); err != nil {
		return "", err
	}
	return path, nil
}

// Backups lists backup files, oldest first.
func (s *Store) Backups() ([]string, error) {
	ents, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	prefix := filepath.Base(s.path) + "."
	var out []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		out = append(out, filepath.Join(s.backupDir, name))
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) prune() {
	if s.keep <= 0 {
		return
	}
	all, err := s.Backups()
	if err != nil || len(all) <= s.keep {
		return
	}
	for _, p := range all[:len(all)-s.keep] {
		_ = os.Remove(p)
	}
}

// ReadBackup decompresses one backup file.
func ReadBackup(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(b, nil)
}

func writeAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
