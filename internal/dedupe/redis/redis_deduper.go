package redis

import (
	"context"
	"fmt"
	"time"
	"whalewatch/internal/config"
	"whalewatch/internal/dedupe"
	rdb "whalewatch/internal/stores/redis"

	"gitlab.com/nevasik7/alerting/logger"
)

var _ dedupe.Deduper = (*RedisDedupe)(nil)

type RedisDedupe struct {
	log    logger.Logger
	rdb    *rdb.Client
	ttl    time.Duration
	prefix string
}

// Cluster dedupe for Redis SETNX + EXISTS
// prefix example "whalewatch:dedupe:"
// ttl=0 -> keys live until Clear
func NewRedisDeduper(log logger.Logger, cfg *config.DedupeConfig, rdb *rdb.Client) (*RedisDedupe, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required to the redis deduper")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required to the redis deduper")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "dedupe:"
	}

	return &RedisDedupe{
		log:    log,
		rdb:    rdb,
		ttl:    cfg.TTL,
		prefix: prefix,
	}, nil
}

func (d *RedisDedupe) Seen(ctx context.Context, id string) (bool, error) {
	n, err := d.rdb.Exists(ctx, d.prefix+id).Result()
	if err != nil {
		d.log.Errorf("Redis EXISTS error=%v", err)
		return false, fmt.Errorf("redis EXISTS error=%w", err)
	}

	return n > 0, nil
}

func (d *RedisDedupe) TryMark(ctx context.Context, id string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.prefix+id, 1, d.ttl).Result()
	if err != nil {
		d.log.Errorf("Redis SetNX error=%v", err)
		return false, fmt.Errorf("redis SetNX error=%w", err)
	}

	// ok=true -> key is new, this caller owns the id
	return ok, nil
}

func (d *RedisDedupe) Len(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)

	for {
		keys, next, err := d.rdb.Scan(ctx, cursor, d.prefix+"*", 512).Result()
		if err != nil {
			return 0, fmt.Errorf("redis SCAN error=%w", err)
		}

		total += len(keys)

		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}

func (d *RedisDedupe) Clear(ctx context.Context) error {
	var (
		cursor  uint64
		dropped int
	)

	for {
		keys, next, err := d.rdb.Scan(ctx, cursor, d.prefix+"*", 512).Result()
		if err != nil {
			return fmt.Errorf("redis SCAN error=%w", err)
		}

		if len(keys) > 0 {
			if err = d.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis DEL error=%w", err)
			}
			dropped += len(keys)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	d.log.Infof("Dedupe keys cleared, dropped=%d", dropped)

	return nil
}
