package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "foodrun.game/internal/persistence/log"
	"foodrun.game/internal/persistence/snapshot"
	"foodrun.game/internal/sim/catalogs"
	"foodrun.game/internal/sim/tuning"
	"foodrun.game/internal/sim/world"
	"foodrun.game/internal/sim/worldfile"
)

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst (default: latest under <world_dir>/snapshots)")
		worldDir  = flag.String("world_dir", "", "world data dir containing events/ and snapshots/")
		configDir = flag.String("configs", "./configs", "config directory")
		worldPath = flag.String("world_file", "", "path to world.json (default: <configs>/world.json)")
		toTick    = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" && *worldDir != "" {
		*snapPath = snapshot.Latest(filepath.Join(*worldDir, "snapshots"))
	}
	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot (or no snapshots under -world_dir)")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	inv := 0
	for _, n := range snap.Inventory {
		inv += n
	}
	fmt.Printf("snapshot v%d world=%s tick=%d tick_rate=%d pos=%v items=%d spawners=%d world_digest=%.12s\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.TickRate,
		snap.Character.Pos, inv, len(snap.Spawners), snap.WorldDigest)

	if *worldDir == "" {
		return
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	if snap.TickRate > 0 {
		tune.TickRateHz = snap.TickRate
	}
	wp := *worldPath
	if wp == "" {
		wp = filepath.Join(*configDir, "world.json")
	}
	wf, raw, err := worldfile.Load(wp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load world file:", err)
		os.Exit(1)
	}
	digest := worldfile.Digest(raw)
	if snap.WorldDigest != "" && snap.WorldDigest != digest {
		fmt.Fprintf(os.Stderr, "warning: snapshot was taken against world %.12s, replaying against %.12s\n", snap.WorldDigest, digest)
	}

	r, err := buildReplayer(snap, tune, cats, wf, digest, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}
	err = persistlog.ReadTicks(*worldDir, r.apply)
	if err != nil && !errors.Is(err, errDone) {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	if r.rep.Checked == 0 {
		fmt.Fprintln(os.Stderr, "no logged ticks after snapshot tick", snap.Header.Tick)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d stepped=%d ticks %d..%d\n", r.rep.Checked, r.rep.Stepped, r.rep.FirstTick, r.rep.LastTick)
	for _, id := range r.rep.items() {
		fmt.Printf("  collected %-10s %d\n", id, r.rep.Collected[id])
	}
}

func buildReplayer(snap snapshot.SnapshotV1, tune tuning.Tuning, cats *catalogs.Catalogs, wf *worldfile.File, digest string, toTick uint64) (*replayer, error) {
	w, err := world.New(world.WorldConfig{
		ID:       snap.Header.WorldID,
		Tuning:   tune,
		Catalogs: cats,
		Seed:     1,
		Start:    timeOf(snap),
	}, wf, digest)
	if err != nil {
		return nil, err
	}
	if err := w.ImportSnapshot(snap); err != nil {
		return nil, err
	}
	return newReplayer(w, snap, tune.TickInterval(), toTick), nil
}
