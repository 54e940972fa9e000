package store

import (
	"context"
	"fmt"
	"sort"
)

const upsertSQL = `
	INSERT INTO kv (key, value)
	VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
`

// Set upserts a single key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, upsertSQL, key, value); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// SetMany upserts every entry in a single transaction. Keys are written in
// sorted order so the statement sequence is deterministic.
func (s *Store) SetMany(ctx context.Context, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set many: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("set many: prepare: %w", err)
	}
	defer stmt.Close()

	for _, key := range sortedKeys(entries) {
		if _, err := stmt.ExecContext(ctx, key, entries[key]); err != nil {
			return fmt.Errorf("set many: %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set many: commit: %w", err)
	}
	return nil
}

func sortedKeys(entries map[string]string) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
