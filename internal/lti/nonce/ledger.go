// Package nonce tracks one-time login state. Every login initiation issues
// a (state, nonce) pair; the matching launch consumes it exactly once.
// Losing the ledger on restart just invalidates in-flight logins, which
// fails closed.
package nonce

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const DefaultTTL = 10 * time.Minute

// Ledger is injectable so a durable keyed store can replace the in-process
// map without touching protocol logic.
type Ledger interface {
	// Issue generates a fresh unguessable state token and nonce, valid for
	// the ledger's TTL.
	Issue(ctx context.Context) (state, nonce string, err error)
	// Consume atomically checks and deletes the pair. At most one caller
	// succeeds for a given state token; everything else gets
	// errs.ErrReplayOrExpired.
	Consume(ctx context.Context, state, nonce string) error
	Close()
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
