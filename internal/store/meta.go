package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Catalog metadata keys.
const (
	MetaLastIndexedAt = "last_indexed_at"
	MetaLastIndexRun  = "last_index_run"
	MetaLastIndexDir  = "last_index_dir"
)

// SetMeta stores a catalog metadata key/value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("meta key is required")
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO catalog_meta (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("store catalog meta: %w", err)
	}

	return nil
}

// GetMeta returns a catalog metadata value and whether it was set.
func (s *Store) GetMeta(ctx context.Context, key string) (string, bool, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return "", false, err
	}

	var value string
	if err := s.DB.QueryRowContext(ctx, `SELECT value FROM catalog_meta WHERE key = ?`, strings.TrimSpace(key)).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("fetch catalog meta: %w", err)
	}
	return value, true, nil
}
