package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	persistlog "foodrun.game/internal/persistence/log"
	"foodrun.game/internal/persistence/worldstore"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "backups":
			backupsCmd(os.Args[2:])
			return
		case "restore":
			restoreCmd(os.Args[2:])
			return
		case "edits":
			editsCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "spawner":
			spawnerCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

func worldDirFlag(fs *flag.FlagSet) (dataDir, worldID *string) {
	dataDir = fs.String("data", "./data", "runtime data directory")
	worldID = fs.String("world", "main", "world id")
	return
}

func backupsCmd(args []string) {
	fs := flag.NewFlagSet("backups", flag.ExitOnError)
	dataDir, worldID := worldDirFlag(fs)
	worldPath := fs.String("world_file", "./configs/world.json", "live world file")
	_ = fs.Parse(args)

	store := worldstore.New(*worldPath, filepath.Join(*dataDir, "worlds", *worldID, "backups"), 0)
	all, err := store.Backups()
	if err != nil {
		fmt.Fprintln(os.Stderr, "backups:", err)
		os.Exit(1)
	}
	if len(all) == 0 {
		fmt.Fprintln(os.Stderr, "no backups")
		return
	}
	for i, p := range all {
		fmt.Printf("%3d  %s\n", i, filepath.Base(p))
	}
}

// restoreCmd writes a backup over the live world file. The current file is
// itself backed up first, and a server started with -watch reloads it.
func restoreCmd(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	dataDir, worldID := worldDirFlag(fs)
	worldPath := fs.String("world_file", "./configs/world.json", "live world file")
	keep := fs.Int("keep_backups", 50, "backups to keep (0 keeps all)")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: admin restore [flags] <backup index|file name>")
		os.Exit(2)
	}
	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	store := worldstore.New(*worldPath, filepath.Join(worldDir, "backups"), *keep)
	res, err := restoreBackup(store, fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "restore:", err)
		os.Exit(1)
	}
	edits := persistlog.NewEditLogger(worldDir)
	if err := edits.WriteEdit(editEntry(*worldID, res, time.Now())); err != nil {
		fmt.Fprintln(os.Stderr, "edit log:", err)
	}
	_ = edits.Close()
	fmt.Printf("restored digest=%.12s prev=%.12s spawners=%d objects=%d backup=%s\n",
		res.Digest, res.PrevDigest, res.Stats.Spawners, res.Stats.Objects, filepath.Base(res.Backup))
}

// restoreBackup resolves pick against the store's backups, by index (negative
// counts from the newest) or by file name, and saves its contents.
func restoreBackup(store *worldstore.Store, pick string) (worldstore.SaveResult, error) {
	all, err := store.Backups()
	if err != nil {
		return worldstore.SaveResult{}, err
	}
	if len(all) == 0 {
		return worldstore.SaveResult{}, fmt.Errorf("no backups")
	}
	path := ""
	if n, err := strconv.Atoi(pick); err == nil {
		if n < 0 {
			n += len(all)
		}
		if n < 0 || n >= len(all) {
			return worldstore.SaveResult{}, fmt.Errorf("backup index %s out of range (have %d)", pick, len(all))
		}
		path = all[n]
	} else {
		for _, p := range all {
			if filepath.Base(p) == pick {
				path = p
				break
			}
		}
		if path == "" {
			return worldstore.SaveResult{}, fmt.Errorf("unknown backup %q", pick)
		}
	}
	raw, err := worldstore.ReadBackup(path)
	if err != nil {
		return worldstore.SaveResult{}, err
	}
	return store.Save(raw)
}

func editsCmd(args []string) {
	fs := flag.NewFlagSet("edits", flag.ExitOnError)
	dataDir, worldID := worldDirFlag(fs)
	source := fs.String("source", "", "only edits from this source (api, restore...)")
	_ = fs.Parse(args)

	err := readEdits(filepath.Join(*dataDir, "worlds", *worldID), func(e persistlog.EditEntry) error {
		if *source != "" && e.Source != *source {
			return nil
		}
		printJSON(e)
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "edits:", err)
		os.Exit(1)
	}
}

func editEntry(worldID string, res worldstore.SaveResult, now time.Time) persistlog.EditEntry {
	return persistlog.EditEntry{
		TimeUnixMs: now.UnixMilli(),
		WorldID:    worldID,
		Digest:     res.Digest,
		PrevDigest: res.PrevDigest,
		Bytes:      res.Bytes,
		Backup:     res.Backup,
		Source:     "restore",
	}
}

// readEdits streams the world edit log in write order.
func readEdits(worldDir string, fn func(persistlog.EditEntry) error) error {
	files, err := persistlog.Files(filepath.Join(worldDir, "edits"), "edits")
	if err != nil {
		return err
	}
	for _, path := range files {
		err := persistlog.ReadFile(path, func(line []byte) error {
			var e persistlog.EditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			return fn(e)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
