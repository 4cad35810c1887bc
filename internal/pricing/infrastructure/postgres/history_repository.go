package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"energy-ledger/internal/pricing/domain"
)

const defaultHistoryTable = "price_histories"

// HistoryRepository stores each device history as one JSONB row.
type HistoryRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*HistoryRepository)

// WithTable overrides the default table.
func WithTable(table string) RepositoryOption {
	return func(repo *HistoryRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewHistoryRepository constructs a repository with defaults.
func NewHistoryRepository(db *sql.DB, opts ...RepositoryOption) *HistoryRepository {
	repo := &HistoryRepository{db: db, table: defaultHistoryTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Load returns the device history, empty when none was saved.
func (r *HistoryRepository) Load(ctx context.Context, deviceID string) (pricing.History, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("price history repo: nil db")
	}
	if deviceID == "" {
		return nil, pricing.ErrEmptyDeviceID
	}

	query := fmt.Sprintf(`
SELECT snapshots
FROM %s
WHERE device_id = $1`, r.table)

	var raw []byte
	if err := r.db.QueryRowContext(ctx, query, deviceID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var history pricing.History
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("price history repo: decode: %w", err)
	}
	return history, nil
}

// Save upserts the device history.
func (r *HistoryRepository) Save(ctx context.Context, deviceID string, history pricing.History) error {
	if r == nil || r.db == nil {
		return errors.New("price history repo: nil db")
	}
	if deviceID == "" {
		return pricing.ErrEmptyDeviceID
	}
	if history == nil {
		history = pricing.History{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("price history repo: encode: %w", err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (device_id, snapshots, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (device_id)
DO UPDATE SET
	snapshots = EXCLUDED.snapshots,
	updated_at = NOW()`, r.table)

	_, err = r.db.ExecContext(ctx, query, deviceID, raw)
	return err
}
