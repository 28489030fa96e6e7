package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/namelens/promptc/internal/promptdef"
)

// CatalogEntry is one indexed prompt definition.
type CatalogEntry struct {
	Name       string          `json:"name"`
	Source     string          `json:"source"`
	Digest     string          `json:"digest"`
	Client     string          `json:"client"`
	PromptType string          `json:"prompt_type"`
	Extends    string          `json:"extends,omitempty"`
	MaxTurns   uint32          `json:"max_turns"`
	Definition json.RawMessage `json:"definition"`
	IndexedAt  time.Time       `json:"indexed_at"`
}

// PutDefinition inserts or replaces the catalog row for def.
func (s *Store) PutDefinition(ctx context.Context, source, digest string, def *promptdef.Definition, indexedAt time.Time) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if def == nil {
		return errors.New("definition is required")
	}

	payload, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	var extends sql.NullString
	if parent, ok := def.Extends(); ok {
		extends = sql.NullString{String: parent, Valid: true}
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO prompt_definitions (name, source, digest, client, prompt_type, extends, max_turns, definition_json, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			source = excluded.source,
			digest = excluded.digest,
			client = excluded.client,
			prompt_type = excluded.prompt_type,
			extends = excluded.extends,
			max_turns = excluded.max_turns,
			definition_json = excluded.definition_json,
			indexed_at = excluded.indexed_at
	`, def.Name(), source, digest, def.Client(), def.Type(), extends, int64(def.MaxTurns()), string(payload), indexedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("store definition %s: %w", def.Name(), err)
	}

	return nil
}

// GetDefinition returns the catalog row for name, or nil when absent.
func (s *Store) GetDefinition(ctx context.Context, name string) (*CatalogEntry, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("definition name is required")
	}

	row := s.DB.QueryRowContext(ctx, selectDefinitions+` WHERE name = ?`, name)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch definition %s: %w", name, err)
	}
	return entry, nil
}

// ListDefinitions returns every catalog row ordered by name.
func (s *Store) ListDefinitions(ctx context.Context) ([]CatalogEntry, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, selectDefinitions+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var entries []CatalogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	return entries, nil
}

// DeleteDefinition removes name from the catalog and reports whether a row
// existed.
func (s *Store) DeleteDefinition(ctx context.Context, name string) (bool, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return false, err
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM prompt_definitions WHERE name = ?`, strings.TrimSpace(name))
	if err != nil {
		return false, fmt.Errorf("delete definition %s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete definition %s: %w", name, err)
	}
	return affected > 0, nil
}

const selectDefinitions = `
	SELECT name, source, digest, client, prompt_type, extends, max_turns, definition_json, indexed_at
	FROM prompt_definitions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*CatalogEntry, error) {
	var (
		entry     CatalogEntry
		extends   sql.NullString
		maxTurns  int64
		payload   string
		indexedAt int64
	)
	if err := row.Scan(&entry.Name, &entry.Source, &entry.Digest, &entry.Client, &entry.PromptType,
		&extends, &maxTurns, &payload, &indexedAt); err != nil {
		return nil, err
	}
	if extends.Valid {
		entry.Extends = extends.String
	}
	entry.MaxTurns = uint32(maxTurns) // #nosec G115 -- written from a uint32
	entry.Definition = json.RawMessage(payload)
	entry.IndexedAt = time.Unix(indexedAt, 0).UTC()
	return &entry, nil
}
