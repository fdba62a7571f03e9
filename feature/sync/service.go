package sync

import (
	"context"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/mapping"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/runner"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/scheduler"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service exposes sync operations to the HTTP surface.
type Service struct {
	db        *gorm.DB
	runner    *runner.Runner
	scheduler *scheduler.Scheduler
	logger    *zap.Logger
}

// NewService creates a new sync service.
func NewService(db *gorm.DB, r *runner.Runner, s *scheduler.Scheduler, logger *zap.Logger) *Service {
	return &Service{db: db, runner: r, scheduler: s, logger: logger}
}

// StartRun begins a background sync run for the connection.
func (s *Service) StartRun(connectionID uint, resourceTypes []string) (*models.SyncRun, error) {
	return s.runner.Start(connectionID, resourceTypes)
}

// GetRun loads a run by id.
func (s *Service) GetRun(ctx context.Context, runID string) (*models.SyncRun, error) {
	return s.runner.Get(ctx, runID)
}

// ListRuns returns the connection's runs, newest first.
func (s *Service) ListRuns(ctx context.Context, connectionID uint, limit int) ([]models.SyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []models.SyncRun
	err := s.db.WithContext(ctx).
		Where("connection_id = ?", connectionID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// Mappings lists the stored id mappings for a connection, optionally
// filtered by resource type.
func (s *Service) Mappings(ctx context.Context, connectionID uint, resourceType string) ([]models.ResourceMapping, error) {
	registry := mapping.NewRegistry(s.db, connectionID, s.logger)
	return registry.Mappings(ctx, models.ResourceType(resourceType))
}

// Unmapped lists the recorded unresolved references for a connection.
func (s *Service) Unmapped(ctx context.Context, connectionID uint) ([]models.UnmappedReference, error) {
	registry := mapping.NewRegistry(s.db, connectionID, s.logger)
	return registry.Unmapped(ctx)
}
