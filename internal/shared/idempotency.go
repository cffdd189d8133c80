package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore remembers which resource a client-supplied key produced,
// per scope (for example "quotes.create").
type IdempotencyStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool, now: time.Now}
}

var errStoreNotReady = errors.New("idempotency store not initialised")

func checkKey(op, scope, key string) error {
	if scope == "" {
		return E(KindInvalidInput, op, "idempotency scope required")
	}
	if key == "" || len(key) > 255 {
		return E(KindInvalidInput, op, "idempotency key must be 1-255 characters")
	}
	return nil
}

// Reserve claims key within scope. When the key was claimed earlier it
// reports reserved=false together with the recorded resource id, which is
// empty while the first request is still running.
func (s *IdempotencyStore) Reserve(ctx context.Context, scope, key string) (resourceID string, reserved bool, err error) {
	const op = "idempotency.Reserve"
	if s == nil || s.pool == nil {
		return "", false, errStoreNotReady
	}
	if err := checkKey(op, scope, key); err != nil {
		return "", false, err
	}
	tag, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (scope, key, created_at) VALUES ($1, $2, $3)
ON CONFLICT (scope, key) DO NOTHING`, scope, key, s.now().UTC())
	if err != nil {
		return "", false, err
	}
	if tag.RowsAffected() == 1 {
		return "", true, nil
	}
	var id *string
	err = s.pool.QueryRow(ctx, `SELECT resource_id FROM idempotency_keys WHERE scope=$1 AND key=$2`, scope, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// purged between the insert and the read; let the caller retry
		return "", false, E(KindBusy, op, "idempotency key %s changed concurrently", key)
	}
	if err != nil {
		return "", false, err
	}
	if id == nil {
		return "", false, nil
	}
	return *id, false, nil
}

// Complete records the resource produced for a reserved key.
func (s *IdempotencyStore) Complete(ctx context.Context, scope, key, resourceID string) error {
	if s == nil || s.pool == nil {
		return errStoreNotReady
	}
	_, err := s.pool.Exec(ctx, `UPDATE idempotency_keys SET resource_id=$3 WHERE scope=$1 AND key=$2`, scope, key, resourceID)
	return err
}

// Release drops a reservation whose request failed, so a retry with the
// same key runs again.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if s == nil || s.pool == nil {
		return errStoreNotReady
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE scope=$1 AND key=$2 AND resource_id IS NULL`, scope, key)
	return err
}

// Purge deletes keys older than retention and reports how many went.
func (s *IdempotencyStore) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errStoreNotReady
	}
	if retention <= 0 {
		return 0, E(KindInvalidInput, "idempotency.Purge", "retention must be positive")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().UTC().Add(-retention))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
