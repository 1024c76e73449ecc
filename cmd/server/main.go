package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"foodrun.game/internal/persistence/archive"
	persistlog "foodrun.game/internal/persistence/log"
	"foodrun.game/internal/persistence/snapshot"
	"foodrun.game/internal/persistence/worldstore"
	"foodrun.game/internal/sim/assets"
	"foodrun.game/internal/sim/catalogs"
	"foodrun.game/internal/sim/tuning"
	"foodrun.game/internal/sim/world"
	"foodrun.game/internal/sim/worldfile"
	"foodrun.game/internal/transport/observer"
	"foodrun.game/internal/transport/worldapi"
	"foodrun.game/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "main", "world id")
		seed       = flag.Int64("seed", 0, "spawner random seed (0 picks one from the clock)")
		configDir  = flag.String("configs", "./configs", "config directory")
		worldPath  = flag.String("world_file", "", "path to world.json (default: <configs>/world.json)")
		assetsDir  = flag.String("assets", "./assets", "model directory for collectible visuals")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite ledger")
		watch      = flag.Bool("watch", true, "reload the world file when it changes on disk")
		keepBak    = flag.Int("keep_backups", 50, "world.json backups to retain (0 keeps all)")
		remoteObs  = flag.Bool("observer_remote", false, "admit non-loopback scene observers")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	wp := strings.TrimSpace(*worldPath)
	if wp == "" {
		wp = filepath.Join(*configDir, "world.json")
	}
	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)
	store := worldstore.New(wp, filepath.Join(worldDir, "backups"), *keepBak)
	wf, raw, err := store.Load()
	if err != nil {
		logger.Fatalf("load world file: %v", err)
	}
	worldDigest := worldfile.Digest(raw)
	st := wf.Stats()
	logger.Printf("world file %s: objects=%d instances=%d spawners=%d digest=%.12s",
		wp, st.Objects, st.Instances, st.Spawners, worldDigest)

	// Read-model index (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	hub := observer.NewHub(observer.Options{AllowRemote: *remoteObs}, log.New(os.Stdout, "[observer] ", log.LstdFlags))
	loader := assets.NewDirLoader(*assetsDir, nil)

	w, err := world.New(world.WorldConfig{
		ID:       *worldID,
		Tuning:   tune,
		Catalogs: cats,
		Host:     hub,
		Loader:   loader,
		Logger:   log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds),
		Seed:     *seed,
	}, wf, worldDigest)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	loader.Post = w.Post

	snapDir := filepath.Join(worldDir, "snapshots")
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = snapshot.Latest(snapDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(worldDir)
	editLog := persistlog.NewEditLogger(worldDir)
	defer tickLog.Close()
	defer editLog.Close()
	w.SetTickLogger(tickLog)
	if idx != nil {
		w.SetLedger(idx)
	}

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	revisions := archive.NewRevisions(worldDir)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := snapshot.Path(snapDir, snap.Header.Tick)
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
				if dst, ok, err := revisions.Observe(path, snap); err != nil {
					logger.Printf("snapshot archive: %v", err)
				} else if ok {
					logger.Printf("archived world revision snapshot=%s", dst)
				}
			}
		}
	}()

	if *watch {
		watcher, err := worldstore.NewWatcher(wp, worldstore.DefaultDebounce)
		if err != nil {
			logger.Printf("world watch disabled: %v", err)
		} else {
			defer watcher.Close()
			go store.Follow(ctx, watcher, logger, func(f *worldfile.File, digest string) {
				ctx2, cancel2 := context.WithTimeout(ctx, 5*time.Second)
				defer cancel2()
				if err := w.Reload(ctx2, f, digest); err != nil {
					logger.Printf("world reload: %v", err)
				}
			})
		}
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	api := &worldapi.Server{
		WorldID: *worldID,
		Store:   store,
		World:   w,
		Edits:   editLog,
		Log:     log.New(os.Stdout, "[api] ", log.LstdFlags),
	}
	if idx != nil {
		api.Index = idx
	}

	enableAdminHTTP := envBool("FOODRUN_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("FOODRUN_ENABLE_PPROF_HTTP", false)
	if !enableAdminHTTP {
		logger.Printf("admin endpoints disabled (FOODRUN_ENABLE_ADMIN_HTTP=false)")
	}
	rt := routes{
		World:       w,
		Hub:         hub,
		Player:      ws.NewServer(w, cats, logger),
		API:         api,
		Index:       idx,
		EnableAdmin: enableAdminHTTP,
		EnablePprof: enablePprofHTTP,
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           rt.mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	w.Stop()
	<-runDone
	w.Close()
	if idx != nil {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		if err := idx.Sync(ctx2); err != nil {
			logger.Printf("index flush: %v", err)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
