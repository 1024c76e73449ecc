package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"foodrun.game/internal/persistence/indexdb"
)

// ledger is the read side of the sqlite index used by the db subcommand.
type ledger interface {
	CollectionTotals(ctx context.Context, worldID string) ([]indexdb.ItemTotal, error)
	RecentCollections(ctx context.Context, worldID string, limit int) ([]indexdb.Collection, error)
	WorldSaves(ctx context.Context, worldID string, limit int) ([]indexdb.WorldSaveRow, error)
	LatestSnapshot(ctx context.Context, worldID string) (path string, tick uint64, ok bool, err error)
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir, worldID := worldDirFlag(fs)
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "totals"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rows, err := runQuery(ctx, idx, *worldID, q, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

func runQuery(ctx context.Context, l ledger, worldID, q string, limit int) ([]any, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []any
	switch q {
	case "totals":
		rows, err := l.CollectionTotals(ctx, worldID)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, r)
		}
	case "collections":
		rows, err := l.RecentCollections(ctx, worldID, limit)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, r)
		}
	case "saves":
		rows, err := l.WorldSaves(ctx, worldID, limit)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, r)
		}
	case "snapshot":
		path, tick, ok, err := l.LatestSnapshot(ctx, worldID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("no snapshots recorded for world %q", worldID)
		}
		out = append(out, struct {
			Tick uint64 `json:"tick"`
			Path string `json:"path"`
		}{tick, path})
	default:
		return nil, fmt.Errorf("unknown query %q (totals, collections, saves, snapshot)", q)
	}
	return out, nil
}
