package syncer

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jw6ventures/casefile/internal/store"
)

type PassRunner interface {
	RunPass(ctx context.Context, connectionID string, onProgress ProgressFunc) (*Result, error)
}

type DueConnections interface {
	ListDue(ctx context.Context, now time.Time) ([]store.Connection, error)
}

type ReminderRunner interface {
	Run(ctx context.Context) (int, error)
}

// Scheduler runs passes for connections whose sync interval has elapsed
// and fires event reminders, once per tick.
type Scheduler struct {
	runner      PassRunner
	conns       DueConnections
	reminders   ReminderRunner
	interval    time.Duration
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
}

func NewScheduler(runner PassRunner, conns DueConnections, reminders ReminderRunner, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		runner:      runner,
		conns:       conns,
		reminders:   reminders,
		interval:    interval,
		concurrency: 4,
		logger:      logger,
		now:         time.Now,
	}
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sync scheduler started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling round and returns how many passes it started.
// Different connections sync concurrently; each pass itself is sequential.
func (s *Scheduler) Tick(ctx context.Context) int {
	due, err := s.conns.ListDue(ctx, s.now())
	if err != nil {
		s.logger.Error("list due connections", zap.Error(err))
		due = nil
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, conn := range due {
		id := conn.ID
		g.Go(func() error {
			if _, err := s.runner.RunPass(ctx, id, nil); err != nil {
				s.logger.Warn("scheduled sync pass failed", zap.String("connection_id", id), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if s.reminders != nil {
		sent, err := s.reminders.Run(ctx)
		if err != nil {
			s.logger.Error("run event reminders", zap.Error(err))
		} else if sent > 0 {
			s.logger.Info("event reminders sent", zap.Int("count", sent))
		}
	}
	return len(due)
}
