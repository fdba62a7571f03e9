package sync

import (
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/runner"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/scheduler"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
}

// NewFeature creates the sync feature.
func NewFeature(db *gorm.DB, r *runner.Runner, s *scheduler.Scheduler, logger *zap.Logger) *Feature {
	svc := NewService(db, r, s, logger)
	h := NewHandler(svc, s)
	return &Feature{service: svc, handler: h}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "sync"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return true
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}
