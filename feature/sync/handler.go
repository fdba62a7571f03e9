package sync

import (
	"errors"
	"strconv"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/logger"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/runner"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/scheduler"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler handles HTTP requests for sync operations.
type Handler struct {
	service   *Service
	scheduler *scheduler.Scheduler
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, sched *scheduler.Scheduler) *Handler {
	return &Handler{service: service, scheduler: sched}
}

// RegisterRoutes registers the sync routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/sync")
	group.Post("/connections/:id/run", h.HandleStartRun)
	group.Get("/connections/:id/runs", h.HandleListRuns)
	group.Get("/connections/:id/mappings", h.HandleListMappings)
	group.Get("/connections/:id/unmapped", h.HandleListUnmapped)
	group.Get("/connections/:id/schedule", h.HandleGetSchedule)
	group.Put("/connections/:id/schedule", h.HandleUpsertSchedule)
	group.Post("/connections/:id/schedule/toggle", h.HandleToggleSchedule)
	group.Post("/connections/:id/schedule/run-now", h.HandleRunNow)
	group.Delete("/connections/:id/schedule", h.HandleDeleteSchedule)
	group.Get("/runs/:id", h.HandleGetRun)
}

func connectionParam(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid connection id")
	}
	return uint(id), nil
}

type startRunRequest struct {
	ResourceTypes []string `json:"resource_types"`
}

// HandleStartRun starts a background sync run and returns it while running.
func (h *Handler) HandleStartRun(c *fiber.Ctx) error {
	connectionID, err := connectionParam(c)
	if err != nil {
		return err
	}
	l := logger.WithRayID(h.service.logger, c)

	var req startRunRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	run, err := h.service.StartRun(connectionID, req.ResourceTypes)
	if err != nil {
		switch {
		case errors.Is(err, runner.ErrRunInFlight):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, runner.ErrConnectionNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, runner.ErrConnectionInactive):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
		}
		l.Error("Failed to start sync run", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusAccepted).JSON(run)
}

// HandleGetRun returns one run with its summary and log.
func (h *Handler) HandleGetRun(c *fiber.Ctx) error {
	run, err := h.service.GetRun(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "run not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(run)
}

// HandleListRuns returns the connection's recent runs.
func (h *Handler) HandleListRuns(c *fiber.Ctx) error {
	connectionID, err := connectionParam(c)
	if err != nil {
		return err
	}
	runs, err := h.service.ListRuns(c.Context(), connectionID, c.QueryInt("limit"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(runs)
}

// HandleListMappings returns the stored id mappings for a connection.
func (h *Handler) HandleListMappings(c *fiber.Ctx) error {
	connectionID, err := connectionParam(c)
	if err != nil {
		return err
	}
	mappings, err := h.service.Mappings(c.Context(), connectionID, c.Query("type"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(mappings)
}

// HandleListUnmapped returns the unresolved references for a connection.
func (h *Handler) HandleListUnmapped(c *fiber.Ctx) error {
	connectionID, err := connectionParam(c)
	if err != nil {
		return err
	}
	refs, err := h.service.Unmapped(c.Context(), connectionID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(refs)
}

type scheduleRequest struct {
	Rule          string   `json:"rule"`
	ResourceTypes []string `json:"resource_types"`
	Enabled       *bool    `json:"enabled"`
}

// HandleGetSchedule returns the connection's schedule.
func (h *Handler) HandleGetSchedule(c *fiber.Ctx) error {
	connectionID, err := connectionParam(c)
	if err != nil {
		return err
	}
	sched, err := h.scheduler.Get(c.Context(), connectionID)
	if err != nil {
		if errors.Is(err, scheduler.ErrScheduleNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(sched)
}

// HandleUpsertSchedule creates or replaces the connection's schedule.
func (h *Handler) HandleUpsertSchedule(c *fiber.Ctx) error {
	connectionID, err := connectionParam(c)
	if err != nil {
		return err
	}

	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	sched, err := h.scheduler.CreateOrUpdate(c.Context(), connectionID, req.Rule, req.ResourceTypes, enabled)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(sched)
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

// HandleToggleSchedule enables or disables the connection's schedule.
func (h *Handler) HandleToggleSchedule(c *fiber.Ctx) error {
	connectionID, err := connectionParam(c)
	if err != nil {
		return err
	}

	var req toggleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	sched, err := h.scheduler.Toggle(c.Context(), connectionID, req.Enabled)
	if err != nil {
		if errors.Is(err, scheduler.ErrScheduleNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(sched)
}

// HandleRunNow triggers an immediate run with the schedule's resource types.
func (h *Handler) HandleRunNow(c *fiber.Ctx) error {
	connectionID, err := connectionParam(c)
	if err != nil {
		return err
	}
	l := logger.WithRayID(h.service.logger, c)

	run, err := h.scheduler.RunNow(c.Context(), connectionID)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrScheduleNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, runner.ErrRunInFlight):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		l.Error("Immediate scheduled run failed", zap.Error(err))
		if run != nil {
			// The run itself failed; return its terminal state.
			return c.Status(fiber.StatusInternalServerError).JSON(run)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(run)
}

// HandleDeleteSchedule removes the connection's schedule.
func (h *Handler) HandleDeleteSchedule(c *fiber.Ctx) error {
	connectionID, err := connectionParam(c)
	if err != nil {
		return err
	}
	if err := h.scheduler.Delete(c.Context(), connectionID); err != nil {
		if errors.Is(err, scheduler.ErrScheduleNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
