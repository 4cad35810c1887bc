package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultTable = "operator_actions"

// Repository writes audit logs to postgres.
type Repository struct {
	db    *sql.DB
	table string
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db, table: defaultTable}
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	entry = entry.withDefaults(time.Now())

	query := fmt.Sprintf(`
INSERT INTO %s (
	id, actor, role, action, device_id, metadata, payload_digest, ip, user_agent, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)`, r.table)
	_, err := r.db.ExecContext(ctx, query, entry.ID, entry.Actor, entry.Role, entry.Action, entry.DeviceID,
		nullableJSON(entry.Metadata), entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt)
	return err
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
