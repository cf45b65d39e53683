package coordclient

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"reconmc/agent/internal/scan"
	"reconmc/shared/types"
)

const (
	backoffInitial = 1 * time.Second
	backoffMax     = 60 * time.Second
	backoffFactor  = 2.0
	// jitterFraction adds up to ±20% random jitter to each backoff interval
	// to avoid every agent in a fleet hammering the coordinator in lockstep
	// after a shared outage.
	jitterFraction = 0.2
)

// ScanFunc runs one claimed target's scan; it is scan.Executor.Execute's
// signature, kept as a type here so RunnerConfig doesn't force a concrete
// Executor on callers (tests substitute a stub).
type ScanFunc func(ctx context.Context, target scan.Target, log scan.LogFunc) (*types.ScanResult, *scan.TokenRotation, error)

// RunnerConfig bounds the claim-poll and heartbeat cadence.
type RunnerConfig struct {
	AgentName         string
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
}

// DefaultRunnerConfig returns production polling cadence: frequent enough
// that a newly enqueued target doesn't sit idle for long, infrequent
// enough that an idle fleet of agents doesn't swamp the coordinator.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		PollInterval:      2 * time.Second,
		HeartbeatInterval: 15 * time.Second,
	}
}

// Runner drives the register → (heartbeat ‖ claim-and-scan) cycle forever,
// reconnecting with exponential backoff whenever either loop errors out —
// the same reconnect shape the teacher's gRPC connection manager uses,
// adapted to a request/response surface instead of a persistent stream.
type Runner struct {
	client *Client
	scanFn ScanFunc
	cfg    RunnerConfig
	log    *zap.Logger

	mu             sync.Mutex
	currentQueueID *string
}

// NewRunner returns a Runner that claims work through client and executes
// it with scanFn.
func NewRunner(client *Client, scanFn ScanFunc, cfg RunnerConfig, log *zap.Logger) *Runner {
	return &Runner{client: client, scanFn: scanFn, cfg: cfg, log: log.Named("coordclient")}
}

// Run blocks until ctx is cancelled, registering and re-registering with
// the coordinator and reconnecting the heartbeat/claim loops on any
// failure.
func (r *Runner) Run(ctx context.Context) {
	backoff := backoffInitial

	for {
		if ctx.Err() != nil {
			r.log.Info("runner stopped")
			return
		}

		if err := r.session(ctx); err != nil {
			r.log.Warn("session failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(jitter(backoff)):
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = backoffInitial
	}
}

// session registers once, then runs the heartbeat and claim loops
// concurrently until one of them errors or ctx is cancelled.
func (r *Runner) session(ctx context.Context) error {
	if _, err := r.client.Register(ctx, r.cfg.AgentName); err != nil {
		return err
	}
	r.log.Info("registered with coordinator", zap.String("agentId", r.client.AgentID()))

	errCh := make(chan error, 2)
	go func() { errCh <- r.heartbeatLoop(ctx) }()
	go func() { errCh <- r.claimLoop(ctx) }()

	err := <-errCh
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (r *Runner) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.mu.Lock()
			current := r.currentQueueID
			r.mu.Unlock()

			status := "idle"
			if current != nil {
				status = "busy"
			}
			if err := r.client.Heartbeat(ctx, status, current); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) claimLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		item, ok, err := r.client.Claim(ctx)
		if err != nil {
			return err
		}
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.cfg.PollInterval):
			}
			continue
		}

		r.setCurrentQueueID(&item.QueueID)
		r.runOne(ctx, item)
		r.setCurrentQueueID(nil)
	}
}

func (r *Runner) setCurrentQueueID(id *string) {
	r.mu.Lock()
	r.currentQueueID = id
	r.mu.Unlock()
}

// runOne executes one claimed item and reports its outcome. Errors
// talking to the coordinator itself are logged and swallowed — the claim
// loop must keep running even if one complete/fail call fails, since the
// recovery sweep will eventually reap an orphaned processing row anyway.
func (r *Runner) runOne(ctx context.Context, item *types.ClaimResponse) {
	buf := &logBuffer{}
	target := scan.Target{
		ServerAddress: item.ServerAddress,
		Port:          item.Port,
		Proxy:         item.Proxy,
		Account:       item.Account,
	}

	result, rotation, err := r.scanFn(ctx, target, buf.add)

	logs := buf.drain()
	if logErr := r.client.Logs(ctx, item.QueueID, logs); logErr != nil {
		r.log.Warn("failed to flush task logs", zap.String("queueId", item.QueueID), zap.Error(logErr))
	}

	if err != nil {
		r.log.Warn("scan failed", zap.String("queueId", item.QueueID), zap.Error(err))
		if failErr := r.client.Fail(ctx, item.QueueID, err.Error()); failErr != nil {
			r.log.Warn("failed to report scan failure", zap.String("queueId", item.QueueID), zap.Error(failErr))
		}
		return
	}

	accessToken, refreshToken := "", ""
	if rotation != nil {
		accessToken, refreshToken = rotation.AccessToken, rotation.RefreshToken
	}
	if completeErr := r.client.Complete(ctx, item.QueueID, *result, accessToken, refreshToken); completeErr != nil {
		r.log.Warn("failed to report scan completion", zap.String("queueId", item.QueueID), zap.Error(completeErr))
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * backoffFactor)
	if next > backoffMax {
		return backoffMax
	}
	return next
}

func jitter(d time.Duration) time.Duration {
	delta := float64(d) * jitterFraction
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}
