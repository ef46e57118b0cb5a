package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

const tokenKeyPrefix = "token:"

// TokenIssuer derives creation idempotency tokens and claims them once per
// time bucket
type TokenIssuer struct {
	store  shared.IdempotencyStore
	secret string
	now    func() time.Time
}

// NewTokenIssuer creates an issuer that records claims in store
func NewTokenIssuer(store shared.IdempotencyStore, secret string) *TokenIssuer {
	return &TokenIssuer{store: store, secret: secret, now: time.Now}
}

// WithClock replaces the time source
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	t.now = now
	return t
}

// Issue returns hex(SHA-256(userID|orderRef|bucket|secret)) where bucket is
// the current time divided by window. Equal inputs in the same bucket yield
// equal tokens.
func (t *TokenIssuer) Issue(userID, orderRef string, window time.Duration) string {
	if window <= 0 {
		window = time.Minute
	}
	bucket := t.now().UnixMilli() / window.Milliseconds()
	sum := sha256.Sum256([]byte(userID + "|" + orderRef + "|" + strconv.FormatInt(bucket, 10) + "|" + t.secret))
	return hex.EncodeToString(sum[:])
}

// Claim records token for window. A token already claimed in the window
// returns a DuplicateRequestError.
func (t *TokenIssuer) Claim(ctx context.Context, token string, window time.Duration) error {
	if window <= 0 {
		window = time.Minute
	}
	ok, err := t.store.MarkProcessed(ctx, tokenKeyPrefix+token, window)
	if err != nil {
		return fmt.Errorf("claim idempotency token: %w", err)
	}
	if !ok {
		return shared.NewDuplicateRequestError("duplicate request within idempotency window")
	}
	return nil
}

// Release gives a claimed token back, used when creation fails after the
// claim so the client can retry
func (t *TokenIssuer) Release(ctx context.Context, token string) error {
	return t.store.Unmark(ctx, tokenKeyPrefix+token)
}
