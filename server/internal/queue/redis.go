package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis key layout for the fast path:
//
//	queue:pending                 list of queue row IDs, FIFO (RPUSH / LMOVE)
//	queue:processing               list of IDs currently claimed
//	queue:claim:<id>               SETEX lock, TTL'd so a crashed agent's claim
//	                                expires even if complete/fail never arrives
//	queue:meta:<id>                HSET of agentId/proxyId/accountId for a claim
const (
	keyPending    = "queue:pending"
	keyProcessing = "queue:processing"
)

func keyClaim(id string) string { return "queue:claim:" + id }
func keyMeta(id string) string  { return "queue:meta:" + id }

// redisFastPath wraps the go-redis client with the WRONGTYPE-triggers-DEL
// recovery described in the design notes: if a key somehow carries the
// wrong Redis type (e.g. the database was restored from a backup taken with
// a different version of this layout), the fast path deletes the offending
// key and reports unavailable so the caller falls through to Postgres
// rather than wedging forever on every call.
type redisFastPath struct {
	client *redis.Client
	log    *zap.Logger
}

func newRedisFastPath(client *redis.Client, log *zap.Logger) *redisFastPath {
	return &redisFastPath{client: client, log: log}
}

func (r *redisFastPath) available(ctx context.Context) bool {
	if r.client == nil {
		return false
	}
	return r.client.Ping(ctx).Err() == nil
}

// enqueue appends id to the pending list.
func (r *redisFastPath) enqueue(ctx context.Context, id string) error {
	return r.recoverWrongType(ctx, keyPending, func() error {
		return r.client.RPush(ctx, keyPending, id).Err()
	})
}

// claim atomically moves one ID from pending to processing and returns it.
// Returns ("", nil) when the pending list is empty.
func (r *redisFastPath) claim(ctx context.Context, ttl int64) (string, error) {
	var id string
	err := r.recoverWrongType(ctx, keyPending, func() error {
		var lmErr error
		id, lmErr = r.client.LMove(ctx, keyPending, keyProcessing, "LEFT", "RIGHT").Result()
		if errors.Is(lmErr, redis.Nil) {
			id = ""
			return nil
		}
		return lmErr
	})
	if err != nil || id == "" {
		return "", err
	}
	if err := r.client.SetEx(ctx, keyClaim(id), "1", secondsToDuration(ttl)).Err(); err != nil {
		r.log.Warn("redis: failed to set claim lock, continuing anyway", zap.String("id", id), zap.Error(err))
	}
	return id, nil
}

// settle removes id from the processing list and its claim lock/metadata,
// called on both complete and fail since neither leaves a row claimable.
func (r *redisFastPath) settle(ctx context.Context, id string) error {
	return r.recoverWrongType(ctx, keyProcessing, func() error {
		pipe := r.client.TxPipeline()
		pipe.LRem(ctx, keyProcessing, 0, id)
		pipe.Del(ctx, keyClaim(id))
		pipe.Del(ctx, keyMeta(id))
		_, err := pipe.Exec(ctx)
		return err
	})
}

// requeue pushes id back onto the front of pending and drops its claim
// lock. Nothing calls it; the recovery sweep finalizes stuck rows through
// Service.Fail instead.
func (r *redisFastPath) requeue(ctx context.Context, id string) error {
	return r.recoverWrongType(ctx, keyPending, func() error {
		pipe := r.client.TxPipeline()
		pipe.LRem(ctx, keyProcessing, 0, id)
		pipe.Del(ctx, keyClaim(id))
		pipe.LPush(ctx, keyPending, id)
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (r *redisFastPath) setMeta(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.recoverWrongType(ctx, keyMeta(id), func() error {
		return r.client.HSet(ctx, keyMeta(id), fields).Err()
	})
}

// recoverWrongType runs op; if it fails with WRONGTYPE, it deletes the
// offending key and returns an error so the caller falls back to Postgres
// for this call, instead of retrying and failing forever.
func (r *redisFastPath) recoverWrongType(ctx context.Context, key string, op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	if isWrongType(err) {
		r.log.Warn("redis: WRONGTYPE on key, dropping and falling back", zap.String("key", key), zap.Error(err))
		r.client.Del(ctx, key)
	}
	return err
}

func isWrongType(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "WRONGTYPE"
}

func secondsToDuration(s int64) (d time.Duration) {
	return time.Duration(s) * time.Second
}
