package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	"survey-backend/internal/admin"
	"survey-backend/internal/analytics"
	"survey-backend/internal/auth"
	"survey-backend/internal/config"
	"survey-backend/internal/editing"
	"survey-backend/internal/engine"
	"survey-backend/internal/events"
	"survey-backend/internal/instrument"
	"survey-backend/internal/logger"
	"survey-backend/internal/metadata"
	"survey-backend/internal/store"
)

func serveCmd(configFile *string) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *configFile, port)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	return cmd
}

func serve(ctx context.Context, configFile string, port int) error {
	// 1. Load config
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	// 2. Logger
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()
	log.Info("config loaded", "port", cfg.Server.Port, "db_host", cfg.Database.Host, "db_name", cfg.Database.Name)

	// 3. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	// 4. Migrate schema and seed the first admin
	if err := db.Bootstrap(ctx, log); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	log.Info("database ready")

	// 5. Metrics and tracing
	var (
		metrics *instrument.Metrics
		inst    instrument.Instrumenter = &instrument.NoopInstrumenter{}
	)
	if cfg.Metrics.Enabled {
		metrics = instrument.NewMetrics()
		inst = instrument.NewInstrumenter(metrics, log.With("component", "instrument"))
	}

	// 6. Event publisher
	var publisher events.Publisher = events.Noop{}
	if cfg.Events.Enabled {
		js, err := events.Connect(ctx, cfg.Events, log)
		if err != nil {
			return fmt.Errorf("connect events: %w", err)
		}
		publisher = js
	}
	defer publisher.Close()

	// 7. Analytics service
	var runner engine.SQLRunner
	if cfg.Analytics.Enabled {
		runner = analytics.NewClient(cfg.Analytics)
	}

	// 8. Collection and analysis
	evaluator := editing.NewEvaluator(log.With("component", "editing"), editing.Options{
		NumericCoercion: cfg.Rules.NumericCoercion,
	})
	rounds := engine.NewPgRoundStore(db)
	collector := engine.NewCollector(rounds, evaluator, publisher, log.With("component", "collect"), cfg.Collect.MaxRetries)
	analyzer := engine.NewAnalyzer(rounds, engine.NewFilterEvaluator())
	engineHandler := engine.NewHandler(collector, analyzer, runner, log)

	// 9. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler(log),
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(instrument.Middleware(inst))

	// 10. Health check and metrics
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if metrics != nil {
		app.Get("/metrics", metrics.Handler())
	}

	// 11. Auth routes
	tokens := auth.NewTokens(cfg.JWTSecret)
	authMW := auth.AuthMiddleware(tokens)
	authHandler := auth.NewAuthHandler(store.NewUsers(db.Pool), tokens, log)
	auth.RegisterAuthRoutes(app, authHandler, authMW)

	// 12. Design administration (admin or manager)
	adminHandler := admin.NewHandler(db, log.With("component", "admin"))
	admin.RegisterAdminRoutes(app, adminHandler, authMW, auth.RequireRole(metadata.RoleManager))

	// 13. Collection and analysis routes
	engine.RegisterCollectRoutes(app, engineHandler, authMW)
	engine.RegisterAnalysisRoutes(app, engineHandler, authMW)

	// 14. Start server
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info("starting server", "addr", addr)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

func errorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *engine.AppError
		if errors.As(err, &appErr) {
			return c.Status(appErr.Status).JSON(engine.ErrorResponse{Error: appErr})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(engine.ErrorResponse{
				Error: &engine.AppError{Code: "HTTP_ERROR", Message: fiberErr.Message},
			})
		}

		log.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(engine.ErrorResponse{
			Error: &engine.AppError{
				Code:    "INTERNAL_ERROR",
				Message: "Internal server error",
			},
		})
	}
}
