package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultResyncSignalTTL bounds how long the "price resynced" signal stays up.
const DefaultResyncSignalTTL = 3 * time.Second

// ClosingPrice returns the override when it is set and positive, otherwise
// the suggested price.
func ClosingPrice(override *decimal.Decimal, suggested decimal.Decimal) decimal.Decimal {
	if override != nil && override.IsPositive() {
		return *override
	}
	return suggested
}

// ResyncSignal is raised when the closing price was overwritten by an
// upstream change. Callers clear it once ExpiresAt has passed.
type ResyncSignal struct {
	Active    bool      `json:"active"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether an active signal should be cleared.
func (s ResyncSignal) Expired(now time.Time) bool {
	return s.Active && !now.Before(s.ExpiresAt)
}

// ClosingResolver keeps the closing price override and the resync signal.
type ClosingResolver struct {
	override *decimal.Decimal
	signal   ResyncSignal
	ttl      time.Duration
}

// NewClosingResolver starts from a persisted override (nil when unset).
func NewClosingResolver(override *decimal.Decimal, ttl time.Duration) *ClosingResolver {
	if ttl <= 0 {
		ttl = DefaultResyncSignalTTL
	}
	r := &ClosingResolver{ttl: ttl}
	r.setOverride(override)
	return r
}

// Override returns a copy of the current override.
func (r *ClosingResolver) Override() *decimal.Decimal {
	if r.override == nil {
		return nil
	}
	v := *r.override
	return &v
}

// Resolve returns the closing price for the given suggestion.
func (r *ClosingResolver) Resolve(suggested decimal.Decimal) decimal.Decimal {
	return ClosingPrice(r.override, suggested)
}

// Upstream is called after a recompute caused by lines, courtesy, bonus or
// condition changes. When the negotiation is dirty the override follows
// the new suggestion and the signal is raised. It reports whether a resync
// happened.
func (r *ClosingResolver) Upstream(suggested decimal.Decimal, dirty bool, now time.Time) bool {
	if !dirty {
		return false
	}
	v := suggested
	r.override = &v
	r.signal = ResyncSignal{Active: true, ExpiresAt: now.Add(r.ttl)}
	return true
}

// Manual records a direct edit of the closing price field. It never
// raises the signal.
func (r *ClosingResolver) Manual(value *decimal.Decimal) {
	r.setOverride(value)
}

// Signal returns the current resync signal.
func (r *ClosingResolver) Signal() ResyncSignal { return r.signal }

// ClearSignal drops the signal once it has expired and reports whether it did.
func (r *ClosingResolver) ClearSignal(now time.Time) bool {
	if !r.signal.Expired(now) {
		return false
	}
	r.signal = ResyncSignal{}
	return true
}

func (r *ClosingResolver) setOverride(v *decimal.Decimal) {
	if v == nil {
		r.override = nil
		return
	}
	c := *v
	r.override = &c
}
