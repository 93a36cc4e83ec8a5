package nonce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/adaptest-backend/internal/pkg/errs"
	"github.com/yungbote/adaptest-backend/internal/platform/logger"
)

type entry struct {
	nonce     string
	expiresAt time.Time
}

// MemoryLedger is the default process-wide ledger. Expired entries are
// reaped by a background sweep and lazily on issue.
type MemoryLedger struct {
	log *logger.Logger
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]entry

	stop     chan struct{}
	stopOnce sync.Once
}

func NewMemoryLedger(baseLog *logger.Logger, ttl time.Duration) *MemoryLedger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	l := &MemoryLedger{
		log:     baseLog.With("component", "NonceLedger"),
		ttl:     ttl,
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

func (l *MemoryLedger) Issue(ctx context.Context) (string, string, error) {
	state, err := randomToken()
	if err != nil {
		return "", "", err
	}
	nonceVal, err := randomToken()
	if err != nil {
		return "", "", err
	}
	now := time.Now()

	l.mu.Lock()
	l.reapLocked(now)
	l.entries[state] = entry{nonce: nonceVal, expiresAt: now.Add(l.ttl)}
	l.mu.Unlock()
	return state, nonceVal, nil
}

func (l *MemoryLedger) Consume(ctx context.Context, state, nonceVal string) error {
	if state == "" || nonceVal == "" {
		return fmt.Errorf("%w: empty state or nonce", errs.ErrReplayOrExpired)
	}

	l.mu.Lock()
	e, ok := l.entries[state]
	if ok {
		delete(l.entries, state)
	}
	l.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: state not found", errs.ErrReplayOrExpired)
	}
	if time.Now().After(e.expiresAt) {
		return fmt.Errorf("%w: state past window", errs.ErrReplayOrExpired)
	}
	if e.nonce != nonceVal {
		return fmt.Errorf("%w: nonce mismatch", errs.ErrReplayOrExpired)
	}
	return nil
}

func (l *MemoryLedger) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *MemoryLedger) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			l.reapLocked(time.Now())
			l.mu.Unlock()
		}
	}
}

func (l *MemoryLedger) reapLocked(now time.Time) {
	for state, e := range l.entries {
		if now.After(e.expiresAt) {
			delete(l.entries, state)
		}
	}
}
