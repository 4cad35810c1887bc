package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"energy-ledger/internal/auth"
)

const (
	ActionPriceRecorded  = "price.record"
	ActionEntriesCleanup = "entries.cleanup"
)

// Entry is one operator action against a device ledger.
type Entry struct {
	ID            string          `json:"id"`
	Actor         string          `json:"actor"`
	Role          string          `json:"role"`
	Action        string          `json:"action"`
	DeviceID      string          `json:"deviceId"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	PayloadDigest string          `json:"payloadDigest,omitempty"`
	IP            string          `json:"ip,omitempty"`
	UserAgent     string          `json:"userAgent,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// FromRequest builds an entry carrying the caller identity of r.
func FromRequest(r *http.Request, action, deviceID string, metadata any) Entry {
	entry := Entry{
		Action:    action,
		DeviceID:  deviceID,
		Actor:     auth.SubjectFromContext(r.Context()),
		Role:      string(auth.RoleFromContext(r.Context())),
		UserAgent: r.UserAgent(),
		IP:        r.RemoteAddr,
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		entry.IP = host
	}
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			entry.Metadata = raw
		}
	}
	return entry
}

func (e Entry) withDefaults(now time.Time) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now.UTC()
	}
	if e.PayloadDigest == "" {
		e.PayloadDigest = DigestJSON(e.Metadata)
	}
	return e
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ZapLogger writes audit entries to a structured log. It backs the
// in-memory deployment where there is no audit table.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger constructs a ZapLogger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger}
}

// Log writes the entry at info level.
func (l *ZapLogger) Log(ctx context.Context, entry Entry) error {
	_ = ctx
	entry = entry.withDefaults(time.Now())
	l.logger.Info("audit",
		zap.String("id", entry.ID),
		zap.String("action", entry.Action),
		zap.String("device_id", entry.DeviceID),
		zap.String("actor", entry.Actor),
		zap.String("role", entry.Role),
		zap.String("ip", entry.IP),
		zap.String("payload_digest", entry.PayloadDigest),
	)
	return nil
}
