package worldstore

import (
	"context"
	"io"
	"log"

	"foodrun.game/internal/sim/worldfile"
)

// Follow loads the file on every watcher event and passes valid versions to
// apply. An invalid version is logged and skipped so the running world keeps
// the last good one. Follow returns when ctx is done or the watcher closes.
func (s *Store) Follow(ctx context.Context, w *Watcher, logger *log.Logger, apply func(f *worldfile.File, digest string)) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	last := ""
	if raw, err := s.Read(); err == nil {
		last = worldfile.Digest(raw)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Printf("world watch: %v", err)
		case _, ok := <-w.Events:
			if !ok {
				return
			}
			f, raw, err := s.Load()
			if err != nil {
				logger.Printf("world reload skipped: %v", err)
				continue
			}
			digest := worldfile.Digest(raw)
			if digest == last {
				continue
			}
			last = digest
			st := f.Stats()
			logger.Printf("world reload: objects=%d instances=%d spawners=%d digest=%.12s",
				st.Objects, st.Instances, st.Spawners, digest)
			apply(f, digest)
		}
	}
}
