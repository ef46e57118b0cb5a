package security

import (
	"time"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// TimestampVerifier rejects provider timestamps that deviate from its clock
// by more than the tolerance in either direction. A non-positive tolerance
// disables the check.
type TimestampVerifier struct {
	tolerance time.Duration
	now       func() time.Time
}

// NewTimestampVerifier creates a verifier reading the current time from now.
// A nil now uses time.Now.
func NewTimestampVerifier(tolerance time.Duration, now func() time.Time) *TimestampVerifier {
	if now == nil {
		now = time.Now
	}
	return &TimestampVerifier{tolerance: tolerance, now: now}
}

// Tolerance returns the accepted skew
func (v *TimestampVerifier) Tolerance() time.Duration {
	return v.tolerance
}

// Verify checks ts against the verifier clock
func (v *TimestampVerifier) Verify(ts time.Time) error {
	if v.tolerance <= 0 {
		return nil
	}
	if ts.IsZero() {
		return shared.NewSignatureError("request timestamp missing")
	}
	diff := v.now().Sub(ts)
	if diff < 0 {
		diff = -diff
	}
	if diff > v.tolerance {
		return shared.NewSignatureError("request timestamp outside tolerance: skew %s exceeds %s", diff.Round(time.Millisecond), v.tolerance)
	}
	return nil
}

// VerifyMillis is Verify for epoch milliseconds.
func (v *TimestampVerifier) VerifyMillis(ms int64) error {
	if ms <= 0 {
		return v.Verify(time.Time{})
	}
	return v.Verify(time.UnixMilli(ms))
}

// VerifySeconds is Verify for epoch seconds.
func (v *TimestampVerifier) VerifySeconds(sec int64) error {
	if sec <= 0 {
		return v.Verify(time.Time{})
	}
	return v.Verify(time.Unix(sec, 0))
}
