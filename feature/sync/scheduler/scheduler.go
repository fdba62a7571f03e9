package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/runner"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrScheduleNotFound is returned for a connection without a schedule.
var ErrScheduleNotFound = errors.New("no schedule for this connection")

// Scheduler triggers sync runs on persisted per-connection recurrences.
// Missed occurrences are not made up: a failed or skipped run simply waits
// for the next one.
type Scheduler struct {
	db     *gorm.DB
	runner *runner.Runner
	logger *zap.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[uint]cron.EntryID
}

// New creates a scheduler. All schedules evaluate in UTC.
func New(db *gorm.DB, r *runner.Runner, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		db:      db,
		runner:  r,
		logger:  logger,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		entries: make(map[uint]cron.EntryID),
	}
}

// Start begins evaluating registered schedules.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts evaluation and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Reload drops all registered entries and re-registers every enabled
// schedule from the database. Called once at startup.
func (s *Scheduler) Reload(ctx context.Context) error {
	var schedules []models.SyncSchedule
	if err := s.db.WithContext(ctx).Find(&schedules).Error; err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.entries {
		s.cron.Remove(id)
	}
	s.entries = make(map[uint]cron.EntryID)

	for _, sched := range schedules {
		if !sched.Enabled {
			continue
		}
		rule, err := ParseRule(sched.RecurrenceRule)
		if err != nil {
			s.logger.Error("Skipping schedule with invalid rule",
				zap.Uint("connection_id", sched.ConnectionID),
				zap.String("rule", sched.RecurrenceRule),
				zap.Error(err))
			continue
		}
		s.register(sched.ConnectionID, rule)
	}
	return nil
}

// register adds a cron entry for the connection. Caller holds s.mu.
func (s *Scheduler) register(connectionID uint, rule *Rule) {
	if id, ok := s.entries[connectionID]; ok {
		s.cron.Remove(id)
	}
	s.entries[connectionID] = s.cron.Schedule(rule.Schedule(), cron.FuncJob(func() {
		s.execute(connectionID)
	}))
}

// unregister removes the connection's cron entry. Caller holds s.mu.
func (s *Scheduler) unregister(connectionID uint) {
	if id, ok := s.entries[connectionID]; ok {
		s.cron.Remove(id)
		delete(s.entries, connectionID)
	}
}

// CreateOrUpdate upserts the connection's schedule and recomputes its next
// occurrence from now.
func (s *Scheduler) CreateOrUpdate(ctx context.Context, connectionID uint, ruleText string, resourceTypes []string, enabled bool) (*models.SyncSchedule, error) {
	rule, err := ParseRule(ruleText)
	if err != nil {
		return nil, err
	}

	var sched models.SyncSchedule
	err = s.db.WithContext(ctx).Where("connection_id = ?", connectionID).First(&sched).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	sched.ConnectionID = connectionID
	sched.RecurrenceRule = ruleText
	sched.ResourceTypes = models.StringList(resourceTypes)
	sched.Enabled = enabled
	if enabled {
		next := rule.Next(time.Now())
		sched.NextRunAt = &next
	} else {
		sched.NextRunAt = nil
	}

	if err := s.db.WithContext(ctx).Save(&sched).Error; err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if enabled {
		s.register(connectionID, rule)
	} else {
		s.unregister(connectionID)
	}
	return &sched, nil
}

// Toggle enables or disables the connection's schedule. Disabling clears the
// next occurrence; re-enabling recomputes it from now.
func (s *Scheduler) Toggle(ctx context.Context, connectionID uint, enabled bool) (*models.SyncSchedule, error) {
	sched, err := s.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	sched.Enabled = enabled
	if enabled {
		rule, err := ParseRule(sched.RecurrenceRule)
		if err != nil {
			return nil, err
		}
		next := rule.Next(time.Now())
		sched.NextRunAt = &next

		s.mu.Lock()
		s.register(connectionID, rule)
		s.mu.Unlock()
	} else {
		sched.NextRunAt = nil

		s.mu.Lock()
		s.unregister(connectionID)
		s.mu.Unlock()
	}

	if err := s.db.WithContext(ctx).Save(sched).Error; err != nil {
		return nil, err
	}
	return sched, nil
}

// Delete removes the connection's schedule entirely.
func (s *Scheduler) Delete(ctx context.Context, connectionID uint) error {
	s.mu.Lock()
	s.unregister(connectionID)
	s.mu.Unlock()

	result := s.db.WithContext(ctx).Where("connection_id = ?", connectionID).Delete(&models.SyncSchedule{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// Get loads the connection's schedule.
func (s *Scheduler) Get(ctx context.Context, connectionID uint) (*models.SyncSchedule, error) {
	var sched models.SyncSchedule
	err := s.db.WithContext(ctx).Where("connection_id = ?", connectionID).First(&sched).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sched, nil
}

// RunNow triggers an immediate run with the schedule's resource types,
// without touching the recurrence.
func (s *Scheduler) RunNow(ctx context.Context, connectionID uint) (*models.SyncRun, error) {
	sched, err := s.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	run, runErr := s.runner.Run(ctx, connectionID, sched.ResourceTypes)
	// Out-of-band run: record the outcome but keep the next occurrence
	// where the recurrence put it.
	s.writeBack(ctx, sched, run, false)
	return run, runErr
}

// execute is the cron callback for one occurrence.
func (s *Scheduler) execute(connectionID uint) {
	ctx := context.Background()
	log := s.logger.With(zap.Uint("connection_id", connectionID))

	sched, err := s.Get(ctx, connectionID)
	if err != nil {
		log.Error("Scheduled run skipped: schedule unavailable", zap.Error(err))
		return
	}
	if !sched.Enabled {
		return
	}

	log.Info("Scheduled sync run starting", zap.String("rule", sched.RecurrenceRule))
	run, err := s.runner.Run(ctx, connectionID, sched.ResourceTypes)
	if err != nil {
		// A failed occurrence waits for the next one; no early retry.
		log.Error("Scheduled sync run failed", zap.Error(err))
	}
	s.writeBack(ctx, sched, run, true)
}

// writeBack records the outcome on the schedule. advance recomputes the next
// occurrence; only natural occurrences advance it.
func (s *Scheduler) writeBack(ctx context.Context, sched *models.SyncSchedule, run *models.SyncRun, advance bool) {
	now := time.Now().UTC()
	sched.LastRunAt = &now
	if run != nil {
		sched.LastRunStatus = string(run.Status)
		sched.LastRunSummary = run.Summary
	} else {
		sched.LastRunStatus = string(models.StatusFailed)
	}

	if advance && sched.Enabled {
		if rule, err := ParseRule(sched.RecurrenceRule); err == nil {
			next := rule.Next(now)
			sched.NextRunAt = &next
		}
	}

	if err := s.db.WithContext(ctx).Save(sched).Error; err != nil {
		s.logger.Error("Failed to record schedule outcome",
			zap.Uint("connection_id", sched.ConnectionID), zap.Error(err))
	}
}
