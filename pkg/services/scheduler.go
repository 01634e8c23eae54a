package services

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/repositories"
)

// Scheduler submits incremental jobs on each enabled source's refresh
// interval. Schedules are rebuilt on a fixed cadence so source edits take
// effect without a restart.
type Scheduler struct {
	sources repositories.DataSourceRepository
	jobs    JobService
	cron    *cron.Cron
	logger  *zap.Logger

	mu      stdsync.Mutex
	entries map[uuid.UUID]cron.EntryID
	rescan  cron.EntryID
}

// NewScheduler creates a scheduler. Call Start to begin submitting jobs.
func NewScheduler(sources repositories.DataSourceRepository, jobs JobService, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		sources: sources,
		jobs:    jobs,
		cron:    cron.New(),
		logger:  logger.Named("scheduler"),
		entries: make(map[uuid.UUID]cron.EntryID),
	}
}

// Start loads the current schedules and runs the cron loop. The schedule
// set is refreshed every minute.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.reload(ctx); err != nil {
		return err
	}
	id, err := s.cron.AddFunc("@every 1m", func() {
		if err := s.reload(context.Background()); err != nil {
			s.logger.Warn("schedule reload failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.rescan = id
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("sources", len(s.entries)))
	return nil
}

// Stop halts the cron loop and waits for a running trigger to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// reload syncs cron entries with the enabled sources that carry a refresh
// interval.
func (s *Scheduler) reload(ctx context.Context) error {
	sources, err := s.sources.List(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[uuid.UUID]bool, len(sources))
	for _, src := range sources {
		if !src.Enabled || src.RefreshInterval <= 0 {
			continue
		}
		seen[src.ID] = true
		if _, scheduled := s.entries[src.ID]; scheduled {
			continue
		}

		sourceID := src.ID
		name := src.Name
		entryID := s.cron.Schedule(cron.Every(src.RefreshInterval), cron.FuncJob(func() {
			s.trigger(sourceID, name)
		}))
		s.entries[src.ID] = entryID
		s.logger.Info("source scheduled",
			zap.String("source", name),
			zap.Duration("interval", src.RefreshInterval))
	}

	for id, entryID := range s.entries {
		if !seen[id] {
			s.cron.Remove(entryID)
			delete(s.entries, id)
			s.logger.Info("source unscheduled", zap.String("source_id", id.String()))
		}
	}
	return nil
}

func (s *Scheduler) trigger(sourceID uuid.UUID, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job, err := s.jobs.Submit(ctx, models.JobTypeIncremental, sourceID, nil, "scheduler")
	if err != nil {
		s.logger.Warn("scheduled sync submission failed",
			zap.String("source", name),
			zap.Error(err))
		return
	}
	s.logger.Info("scheduled sync submitted",
		zap.String("source", name),
		zap.String("job_id", job.ID.String()))
}
