// Package recovery periodically reaps scan_queue rows that have been stuck
// in processing for too long — an agent that crashed or lost its network
// mid-scan never calls /complete or /fail, so without this sweep the row
// (and the proxy/account it holds) would be locked up forever. Wraps gocron
// the same way the teacher's scheduler package does, reduced to a single
// recurring tick instead of one gocron job per policy.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"reconmc/server/internal/agentregistry"
	"reconmc/server/internal/metrics"
	"reconmc/server/internal/queue"
	"reconmc/server/internal/repositories"
)

// stuckThreshold is how long a row may sit in processing before the sweep
// considers its claiming agent dead and reclaims the row.
const stuckThreshold = 5 * time.Minute

// tickInterval is how often the sweep runs.
const tickInterval = 60 * time.Second

// Sweeper wraps a gocron scheduler running the stuck-row reaper.
type Sweeper struct {
	cron     gocron.Scheduler
	svc      *queue.Service
	queue    repositories.ScanQueueRepository
	registry *agentregistry.Registry
	logger   *zap.Logger
}

// New creates a Sweeper. Call Start to begin ticking.
func New(svc *queue.Service, queue repositories.ScanQueueRepository, registry *agentregistry.Registry, logger *zap.Logger) (*Sweeper, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("recovery: failed to create gocron scheduler: %w", err)
	}
	return &Sweeper{
		cron:     cron,
		svc:      svc,
		queue:    queue,
		registry: registry,
		logger:   logger.Named("recovery"),
	}, nil
}

// Start schedules the recurring sweep and starts the underlying gocron
// scheduler. Runs in singleton mode so a slow sweep never overlaps itself.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.NewJob(
		gocron.DurationJob(tickInterval),
		gocron.NewTask(func() {
			if err := s.sweep(ctx); err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("recovery: failed to schedule sweep: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler. Blocks until in-flight sweeps finish.
func (s *Sweeper) Stop() error {
	return s.cron.Shutdown()
}

// sweep finds processing rows older than stuckThreshold and terminates them
// through the same finalize path an agent-reported failure takes: the queue
// row is deleted, its proxy/account released, and a failed history entry
// appended to the corresponding server. Each row is finalized independently
// so one bad row never blocks the rest of the batch.
func (s *Sweeper) sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-stuckThreshold)
	stuck, err := s.queue.ListStuck(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("recovery: list stuck: %w", err)
	}
	if len(stuck) == 0 {
		return nil
	}

	s.logger.Info("reclaiming stuck scan_queue rows", zap.Int("count", len(stuck)))

	for i := range stuck {
		row := stuck[i]
		if err := s.svc.Fail(ctx, row.ID, "Task automatically recovered: stuck in processing for over 5 minutes"); err != nil {
			s.logger.Error("failed to reclaim stuck row", zap.String("id", row.ID.String()), zap.Error(err))
			continue
		}
		if row.AssignedAgentID != "" {
			s.registry.MarkOffline(ctx, row.AssignedAgentID)
		}
		metrics.ScansReclaimed.Inc()
	}
	return nil
}
