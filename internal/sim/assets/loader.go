// Package assets resolves collectible model references against a directory
// on disk, off the simulation goroutine.
package assets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"foodrun.game/internal/sim/scene"
)

var (
	ErrBadRef    = errors.New("bad model reference")
	ErrBadHeader = errors.New("not a binary glTF model")
)

var glbMagic = []byte("glTF")

// DirLoader checks that a model exists under Root and caches the outcome by
// reference. Post delivers completions back to the simulation goroutine;
// when it reports false the world has stopped and the completion is dropped.
type DirLoader struct {
	Root string
	Post func(fn func()) bool

	mu    sync.Mutex
	cache map[string]error
}

func NewDirLoader(root string, post func(fn func()) bool) *DirLoader {
	return &DirLoader{Root: root, Post: post, cache: map[string]error{}}
}

func (l *DirLoader) Load(ref string, done func(error)) {
	if ok, err := l.cached(ref); ok {
		done(err)
		return
	}
	go func() {
		err := l.resolve(ref)
		l.mu.Lock()
		l.cache[ref] = err
		l.mu.Unlock()
		if err != nil {
			err = &scene.TransientResourceError{Ref: ref, Err: err}
		}
		if l.Post != nil {
			l.Post(func() { done(err) })
		}
	}()
}

func (l *DirLoader) cached(ref string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cache == nil {
		l.cache = map[string]error{}
	}
	err, ok := l.cache[ref]
	if ok && err != nil {
		err = &scene.TransientResourceError{Ref: ref, Err: err}
	}
	return ok, err
}

// Forget drops cached results so the next load hits the disk again.
func (l *DirLoader) Forget() {
	l.mu.Lock()
	l.cache = map[string]error{}
	l.mu.Unlock()
}

func (l *DirLoader) resolve(ref string) error {
	path, err := l.path(ref)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(path), ".glb") {
		head := make([]byte, len(glbMagic))
		if _, err := io.ReadFull(f, head); err != nil || !bytes.Equal(head, glbMagic) {
			return ErrBadHeader
		}
	}
	return nil
}

func (l *DirLoader) path(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: empty", ErrBadRef)
	}
	s := filepath.ToSlash(ref)
	if strings.HasPrefix(s, "/") || filepath.IsAbs(ref) {
		return "", fmt.Errorf("%w: %q is absolute", ErrBadRef, ref)
	}
	for _, part := range strings.Split(s, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q leaves the asset root", ErrBadRef, ref)
		}
	}
	return filepath.Join(l.Root, filepath.FromSlash(s)), nil
}
