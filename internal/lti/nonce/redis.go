package nonce

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/adaptest-backend/internal/pkg/errs"
	"github.com/yungbote/adaptest-backend/internal/platform/logger"
)

const redisKeyPrefix = "lti:state:"

// RedisLedger is the durable variant for multi-instance deployments. GETDEL
// gives the same only-one-consumer guarantee the in-memory map gets from
// its mutex.
type RedisLedger struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewRedisLedger(baseLog *logger.Logger, addr string, ttl time.Duration) (*RedisLedger, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisLedger{
		log: baseLog.With("component", "RedisNonceLedger"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func (l *RedisLedger) Issue(ctx context.Context) (string, string, error) {
	state, err := randomToken()
	if err != nil {
		return "", "", err
	}
	nonceVal, err := randomToken()
	if err != nil {
		return "", "", err
	}
	ok, err := l.rdb.SetNX(ctx, redisKeyPrefix+state, nonceVal, l.ttl).Result()
	if err != nil {
		return "", "", fmt.Errorf("store login state: %w", err)
	}
	if !ok {
		// 256-bit collision; treat as unavailable rather than loop.
		return "", "", fmt.Errorf("store login state: token collision")
	}
	return state, nonceVal, nil
}

func (l *RedisLedger) Consume(ctx context.Context, state, nonceVal string) error {
	if state == "" || nonceVal == "" {
		return fmt.Errorf("%w: empty state or nonce", errs.ErrReplayOrExpired)
	}
	stored, err := l.rdb.GetDel(ctx, redisKeyPrefix+state).Result()
	if errors.Is(err, goredis.Nil) {
		return fmt.Errorf("%w: state not found", errs.ErrReplayOrExpired)
	}
	if err != nil {
		return fmt.Errorf("consume login state: %w", err)
	}
	if stored != nonceVal {
		return fmt.Errorf("%w: nonce mismatch", errs.ErrReplayOrExpired)
	}
	return nil
}

func (l *RedisLedger) Close() {
	_ = l.rdb.Close()
}
