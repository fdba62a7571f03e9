package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/config"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/database"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/loader"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/logger"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/middleware/auth"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/middleware/rayid"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/storage"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/vault"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/runner"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/scheduler"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sync server",
	Long:  `Starts the HTTP server, the schedule dispatcher and all enabled features.`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Load Configuration
		cfg, err := config.LoadConfig(".")
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}

		// 2. Initialize Logger
		logg, err := logger.New(&cfg.Log)
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		// 3. Connect to Database
		// Mappings, runs and schedules all live here, so this one is required.
		db, err := database.Connect(cfg.Database)
		if err != nil {
			logg.Fatal("Failed to connect to database", zap.Error(err))
		}
		if err := models.Migrate(db); err != nil {
			logg.Fatal("Failed to migrate database", zap.Error(err))
		}

		// 4. Initialize Archive Storage (Optional)
		var store storage.Client
		if cfg.Archive.Enabled {
			store, err = storage.NewClient(cfg.Archive)
			if err != nil {
				logg.Fatal("Failed to create archive storage client", zap.Error(err))
			}
		}

		// 5. Initialize Runner and Scheduler
		v := vault.New(cfg.Vault)
		r := runner.New(db, cfg.Target, v, store, cfg.Archive, cfg.Sync, logg)
		sched := scheduler.New(db, r, logg)
		if err := sched.Reload(context.Background()); err != nil {
			logg.Fatal("Failed to load schedules", zap.Error(err))
		}
		sched.Start()

		// 6. Initialize Fiber App
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true, // We will log our own startup message
		})

		// 7. Initialize Feature Loader
		mgr := loader.NewManager()
		mgr.Register(sync.NewFeature(db, r, sched, logg))

		// Middleware Registration
		// 1. RayID (Must be first to trace everything)
		app.Use(rayid.New())

		// 2. Logging Middleware (Custom to use Zap + RayID)
		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		// 3. Auth (Protect API)
		app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey}))

		// 8. Load Features
		if err := mgr.LoadAll(app); err != nil {
			logg.Fatal("Failed to load features", zap.Error(err))
		}

		// 9. Start Server
		go func() {
			logg.Info("Starting server", zap.String("port", cfg.Server.Port))
			if err := app.Listen(":" + cfg.Server.Port); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// 10. Graceful Shutdown
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logg.Info("Shutting down server...")
		sched.Stop()
		_ = app.Shutdown()
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}
