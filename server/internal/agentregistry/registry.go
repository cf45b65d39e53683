// Package agentregistry tracks which agents are currently connected and
// what they are doing. Unlike the teacher's agentmanager, agents here are
// pull (REST-poll) clients rather than holders of a persistent gRPC stream,
// so there is no open connection object to register — "connected" is
// redefined as "heartbeated recently enough". Redis keys with a TTL are the
// fast path for that test (SADD/SETEX/EXPIRE), with the agents table's
// LastHeartbeat column as the fallback when Redis is unavailable.
package agentregistry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"reconmc/server/internal/db"
	"reconmc/server/internal/repositories"
)

// heartbeatTTL is how long a heartbeat is trusted before an agent is
// considered offline — the Postgres fallback cutoff is this value, and the
// Redis heartbeat/data keys expire 10s after it (heartbeatTTL+10s).
const heartbeatTTL = 60 * time.Second

const keyOnlineSet = "agents:online"

func keyHeartbeat(id string) string { return "agent:heartbeat:" + id }
func keyData(id string) string      { return "agent:data:" + id }

// View is one agent's registry-level state, merging the persistent row with
// the online/offline determination.
type View struct {
	db.Agent
	Online bool
}

// Registry is the agent registry's public surface.
type Registry struct {
	repo  repositories.AgentRepository
	redis *redis.Client
	log   *zap.Logger
}

// New builds a Registry. redisClient may be nil, in which case online/offline
// is always computed from the Postgres heartbeat column.
func New(repo repositories.AgentRepository, redisClient *redis.Client, log *zap.Logger) *Registry {
	return &Registry{repo: repo, redis: redisClient, log: log}
}

// Register upserts an agent's row on every /register call — there is no
// create-vs-update branch visible to the caller since the agent supplies
// its own persistent ID (see db.Agent's doc comment).
func (r *Registry) Register(ctx context.Context, agentID, name string) (*db.Agent, error) {
	now := time.Now()
	agent := &db.Agent{
		ID:            agentID,
		Name:          name,
		Status:        "idle",
		LastHeartbeat: now,
		RegisteredAt:  now,
	}
	if err := r.repo.Upsert(ctx, agent); err != nil {
		return nil, err
	}
	r.markOnline(ctx, agentID, name)
	return agent, nil
}

// Heartbeat refreshes an agent's liveness and optionally its status/current
// queue row. Called on the agent's heartbeat loop and implicitly whenever
// it claims or completes work.
func (r *Registry) Heartbeat(ctx context.Context, agentID, status string, currentQueueID *uuid.UUID) error {
	now := time.Now()
	if err := r.repo.UpdateHeartbeat(ctx, agentID, status, currentQueueID, now); err != nil {
		return err
	}
	r.markOnline(ctx, agentID, "")
	return nil
}

func (r *Registry) markOnline(ctx context.Context, agentID, name string) {
	if r.redis == nil {
		return
	}
	pipe := r.redis.TxPipeline()
	pipe.SAdd(ctx, keyOnlineSet, agentID)
	pipe.SetEx(ctx, keyHeartbeat(agentID), "1", heartbeatTTL+10*time.Second)
	if name != "" {
		pipe.HSet(ctx, keyData(agentID), map[string]interface{}{"name": name})
		pipe.Expire(ctx, keyData(agentID), heartbeatTTL+10*time.Second)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Warn("agentregistry: redis markOnline failed, falling back to postgres view", zap.String("agent_id", agentID), zap.Error(err))
	}
}

// List returns every known agent with its online/offline status. When Redis
// is reachable, an agent is online if it is a member of the online set (one
// SMEMBERS call rather than a lookup of every per-agent heartbeat key). The
// set has no TTL: an entry stays until MarkOffline removes it after its
// heartbeat key has expired. When Redis is nil or SMEMBERS fails, it falls
// back to comparing LastHeartbeat against heartbeatTTL.
func (r *Registry) List(ctx context.Context, opts repositories.ListOptions) ([]View, int64, error) {
	agents, total, err := r.repo.List(ctx, opts)
	if err != nil {
		return nil, 0, err
	}

	online := map[string]bool{}
	useRedis := r.redis != nil
	if useRedis {
		ids, err := r.redis.SMembers(ctx, keyOnlineSet).Result()
		if err != nil {
			r.log.Warn("agentregistry: redis list failed, falling back to postgres heartbeat", zap.Error(err))
			useRedis = false
		} else {
			for _, id := range ids {
				online[id] = true
			}
		}
	}

	cutoff := time.Now().Add(-heartbeatTTL)
	views := make([]View, 0, len(agents))
	for _, a := range agents {
		isOnline := online[a.ID]
		if !useRedis {
			isOnline = a.LastHeartbeat.After(cutoff)
		}
		views = append(views, View{Agent: a, Online: isOnline})
	}
	return views, total, nil
}

// Get returns one agent's row plus its online determination.
func (r *Registry) Get(ctx context.Context, agentID string) (*View, error) {
	agent, err := r.repo.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}

	isOnline := time.Since(agent.LastHeartbeat) < heartbeatTTL
	if r.redis != nil {
		n, err := r.redis.SIsMember(ctx, keyOnlineSet, agentID).Result()
		if err == nil {
			isOnline = n
		}
	}
	return &View{Agent: *agent, Online: isOnline}, nil
}

// Deregister permanently removes an agent's row and Redis presence, for a
// decommissioned agent that will never heartbeat again.
func (r *Registry) Deregister(ctx context.Context, agentID string) error {
	if err := r.repo.Delete(ctx, agentID); err != nil {
		return err
	}
	if r.redis == nil {
		return nil
	}
	pipe := r.redis.TxPipeline()
	pipe.SRem(ctx, keyOnlineSet, agentID)
	pipe.Del(ctx, keyHeartbeat(agentID))
	pipe.Del(ctx, keyData(agentID))
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Warn("agentregistry: redis deregister cleanup failed", zap.String("agent_id", agentID), zap.Error(err))
	}
	return nil
}

// MarkOffline removes an agent from the Redis online set without touching
// its persistent row — used by the recovery sweep when a heartbeat key has
// expired but the set entry (by design not TTL'd itself) lingers.
func (r *Registry) MarkOffline(ctx context.Context, agentID string) error {
	if r.redis == nil {
		return nil
	}
	exists, err := r.redis.Exists(ctx, keyHeartbeat(agentID)).Result()
	if err != nil {
		return fmt.Errorf("agentregistry: check heartbeat key: %w", err)
	}
	if exists == 0 {
		if err := r.redis.SRem(ctx, keyOnlineSet, agentID).Err(); err != nil {
			return fmt.Errorf("agentregistry: mark offline: %w", err)
		}
	}
	return nil
}
