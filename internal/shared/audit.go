package shared

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SystemActor labels audit entries written without a caller identity.
const SystemActor = "system"

// AuditEntry is one row of the quote audit trail.
type AuditEntry struct {
	QuoteID int64
	Actor   string
	Action  string
	From    string
	To      string
	Meta    map[string]any
	At      time.Time
}

// AuditLogger appends entries to quote_audit.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the entry. Meta is stored as JSONB and omitted when empty.
func (l *AuditLogger) Record(ctx context.Context, e AuditEntry) error {
	const op = "audit.Record"
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if e.QuoteID <= 0 {
		return E(KindInvalidInput, op, "quote id required")
	}
	if e.Action == "" {
		return E(KindInvalidInput, op, "action required")
	}
	actor := strings.TrimSpace(e.Actor)
	if actor == "" {
		actor = SystemActor
	}
	var meta []byte
	if len(e.Meta) > 0 {
		var err error
		if meta, err = json.Marshal(e.Meta); err != nil {
			return Wrap(KindInvalidInput, op, err)
		}
	}
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := l.pool.Exec(ctx, `INSERT INTO quote_audit (quote_id, actor, action, from_status, to_status, meta, occurred_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)`,
		e.QuoteID, actor, e.Action, e.From, e.To, meta, at)
	return err
}
