package indexdb

import (
	"context"
	"database/sql"
	"errors"
)

type ItemTotal struct {
	ItemID      string `json:"item_id"`
	Quantity    int    `json:"quantity"`
	Collections int    `json:"collections"`
}

type Collection struct {
	Tick      uint64 `json:"tick"`
	EntityID  string `json:"entity_id"`
	SpawnerID string `json:"spawner_id"`
	ItemID    string `json:"item_id"`
	Quantity  int    `json:"quantity"`
	AtUnixMs  int64  `json:"at_unix_ms"`
}

type WorldSaveRow struct {
	Digest     string `json:"digest"`
	PrevDigest string `json:"prev_digest,omitempty"`
	Bytes      int    `json:"bytes"`
	BackupPath string `json:"backup_path,omitempty"`
	Source     string `json:"source"`
	SavedAt    string `json:"saved_at"`
}

// CollectionTotals sums collected quantities per item, largest first.
func (s *SQLiteIndex) CollectionTotals(ctx context.Context, worldID string) ([]ItemTotal, error) {
	rows, err := s.ro.QueryContext(ctx,
		`SELECT item_id, SUM(quantity), COUNT(*) FROM collections WHERE world_id = ?
		 GROUP BY item_id ORDER BY SUM(quantity) DESC, item_id`, worldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ItemTotal{}
	for rows.Next() {
		var t ItemTotal
		if err := rows.Scan(&t.ItemID, &t.Quantity, &t.Collections); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) RecentCollections(ctx context.Context, worldID string, limit int) ([]Collection, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.ro.QueryContext(ctx,
		`SELECT tick, entity_id, spawner_id, item_id, quantity, at_ms FROM collections
		 WHERE world_id = ? ORDER BY tick DESC, entity_id LIMIT ?`, worldID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Collection{}
	for rows.Next() {
		var c Collection
		var tick int64
		if err := rows.Scan(&tick, &c.EntityID, &c.SpawnerID, &c.ItemID, &c.Quantity, &c.AtUnixMs); err != nil {
			return nil, err
		}
		c.Tick = uint64(tick)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) WorldSaves(ctx context.Context, worldID string, limit int) ([]WorldSaveRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	rows, err := s.ro.QueryContext(ctx,
		`SELECT digest, COALESCE(prev_digest,''), bytes, COALESCE(backup_path,''), source, saved_at
		 FROM world_saves WHERE world_id = ? ORDER BY saved_at DESC LIMIT ?`, worldID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WorldSaveRow{}
	for rows.Next() {
		var r WorldSaveRow
		if err := rows.Scan(&r.Digest, &r.PrevDigest, &r.Bytes, &r.BackupPath, &r.Source, &r.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the newest indexed snapshot path for worldID.
func (s *SQLiteIndex) LatestSnapshot(ctx context.Context, worldID string) (path string, tick uint64, ok bool, err error) {
	var t int64
	err = s.ro.QueryRowContext(ctx,
		`SELECT path, tick FROM snapshots WHERE world_id = ? ORDER BY tick DESC LIMIT 1`, worldID).Scan(&path, &t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, false, nil
		}
		return "", 0, false, err
	}
	return path, uint64(t), true, nil
}
