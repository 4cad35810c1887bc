package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"energy-ledger/internal/metering/domain"
)

const defaultStateTable = "accumulator_states"

// StateRepository is a Postgres implementation for accumulator states.
type StateRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*StateRepository)

// WithTable overrides the default table.
func WithTable(table string) RepositoryOption {
	return func(repo *StateRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewStateRepository constructs a repository with defaults.
func NewStateRepository(db *sql.DB, opts ...RepositoryOption) *StateRepository {
	repo := &StateRepository{db: db, table: defaultStateTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Load returns the device state or metering.ErrStateNotFound.
func (r *StateRepository) Load(ctx context.Context, deviceID string) (*metering.State, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("accumulator state repo: nil db")
	}
	if deviceID == "" {
		return nil, metering.ErrEmptyDeviceID
	}

	query := fmt.Sprintf(`
SELECT divisor_raw_per_kwh,
	last_ts, last_input_raw, last_output_raw,
	acc_start_ts, acc_start_input_raw, acc_start_output_raw,
	acc_input_delta_raw, acc_output_delta_raw
FROM %s
WHERE device_id = $1`, r.table)

	state, err := scanState(r.db.QueryRowContext(ctx, query, deviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, metering.ErrStateNotFound
		}
		return nil, err
	}
	return state, nil
}

// Save upserts the device state.
func (r *StateRepository) Save(ctx context.Context, deviceID string, state metering.State) error {
	if r == nil || r.db == nil {
		return errors.New("accumulator state repo: nil db")
	}
	if deviceID == "" {
		return metering.ErrEmptyDeviceID
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	device_id,
	divisor_raw_per_kwh,
	last_ts,
	last_input_raw,
	last_output_raw,
	acc_start_ts,
	acc_start_input_raw,
	acc_start_output_raw,
	acc_input_delta_raw,
	acc_output_delta_raw,
	updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW()
)
ON CONFLICT (device_id)
DO UPDATE SET
	divisor_raw_per_kwh = EXCLUDED.divisor_raw_per_kwh,
	last_ts = EXCLUDED.last_ts,
	last_input_raw = EXCLUDED.last_input_raw,
	last_output_raw = EXCLUDED.last_output_raw,
	acc_start_ts = EXCLUDED.acc_start_ts,
	acc_start_input_raw = EXCLUDED.acc_start_input_raw,
	acc_start_output_raw = EXCLUDED.acc_start_output_raw,
	acc_input_delta_raw = EXCLUDED.acc_input_delta_raw,
	acc_output_delta_raw = EXCLUDED.acc_output_delta_raw,
	updated_at = NOW()`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		deviceID,
		state.DivisorRawPerKWh,
		state.LastTimestampSec,
		state.LastInputRaw,
		state.LastOutputRaw,
		state.AccStartTimestampSec,
		state.AccStartInputRaw,
		state.AccStartOutputRaw,
		state.AccInputDeltaRaw,
		state.AccOutputDeltaRaw,
	)
	return err
}

func scanState(scanner interface{ Scan(dest ...any) error }) (*metering.State, error) {
	var state metering.State
	if err := scanner.Scan(
		&state.DivisorRawPerKWh,
		&state.LastTimestampSec,
		&state.LastInputRaw,
		&state.LastOutputRaw,
		&state.AccStartTimestampSec,
		&state.AccStartInputRaw,
		&state.AccStartOutputRaw,
		&state.AccInputDeltaRaw,
		&state.AccOutputDeltaRaw,
	); err != nil {
		return nil, err
	}
	return &state, nil
}
