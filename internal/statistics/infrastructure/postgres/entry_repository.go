package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"energy-ledger/internal/statistics/domain"
)

const defaultEntryTable = "statistics_entries"

// EntryRepository stores the retained entry list of a device as one JSONB row.
// The list is bounded by the retention policy, so it is rewritten whole.
type EntryRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*EntryRepository)

// WithTable overrides the default table.
func WithTable(table string) RepositoryOption {
	return func(repo *EntryRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewEntryRepository constructs a repository with defaults.
func NewEntryRepository(db *sql.DB, opts ...RepositoryOption) *EntryRepository {
	repo := &EntryRepository{db: db, table: defaultEntryTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Load returns the device entries, empty when none were saved.
func (r *EntryRepository) Load(ctx context.Context, deviceID string) ([]statistics.Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("statistics entry repo: nil db")
	}
	if deviceID == "" {
		return nil, statistics.ErrEmptyDeviceID
	}

	query := fmt.Sprintf(`
SELECT entries
FROM %s
WHERE device_id = $1`, r.table)

	var raw []byte
	if err := r.db.QueryRowContext(ctx, query, deviceID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var entries []statistics.Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("statistics entry repo: decode: %w", err)
	}
	return entries, nil
}

// Save upserts the device entries.
func (r *EntryRepository) Save(ctx context.Context, deviceID string, entries []statistics.Entry) error {
	if r == nil || r.db == nil {
		return errors.New("statistics entry repo: nil db")
	}
	if deviceID == "" {
		return statistics.ErrEmptyDeviceID
	}
	if entries == nil {
		entries = []statistics.Entry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("statistics entry repo: encode: %w", err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (device_id, entries, entry_count, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (device_id)
DO UPDATE SET
	entries = EXCLUDED.entries,
	entry_count = EXCLUDED.entry_count,
	updated_at = NOW()`, r.table)

	_, err = r.db.ExecContext(ctx, query, deviceID, raw, len(entries))
	return err
}
