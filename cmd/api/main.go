package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/activity-points-api/internal/config"
	"github.com/noah-isme/activity-points-api/internal/database"
	"github.com/noah-isme/activity-points-api/internal/handler"
	"github.com/noah-isme/activity-points-api/internal/middleware"
	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/internal/repository"
	"github.com/noah-isme/activity-points-api/internal/router"
	"github.com/noah-isme/activity-points-api/internal/service"
	"github.com/noah-isme/activity-points-api/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.WorkflowEntity{}, &models.TransitionRecord{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	probes := map[string]handler.Probe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	} else {
		logger.Warn().Msg("redis disabled: points summary is not cached and transitions are not published to redis")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	entityRepo := repository.NewWorkflowEntityRepository(db)
	recordRepo := repository.NewTransitionRecordRepository(db)

	engine := workflow.NewEngine(workflow.DefaultPolicy())
	publisher := service.NewTransitionPublisher(redisClient, natsConn, cfg.EventsChannel)
	audit := service.NewAuditRecorder(recordRepo, publisher, logger)
	guard := service.NewTransitionGuard(entityRepo, logger)
	entityService := service.NewEntityService(entityRepo, audit, engine.Policy(), validate, redisClient, cfg.SummaryCacheTTL, logger)
	workflowService := service.NewWorkflowService(entityRepo, recordRepo, engine, guard, audit, logger,
		service.WithTransitionRetries(cfg.MaxRetries),
		service.WithTransitionListener(entityService),
	)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		WorkflowHandler:    handler.NewWorkflowHandler(workflowService, validate, logger),
		EntityHandler:      handler.NewEntityHandler(entityService, logger),
		HealthProbes:       probes,
		IdentityMiddleware: middleware.Identity(cfg.AuthMode, cfg.JWTSecret),
	})

	logger.Info().
		Str("address", cfg.HTTPAddress()).
		Str("database", cfg.DatabaseDriver).
		Str("auth_mode", cfg.AuthMode).
		Int("max_retries", cfg.MaxRetries).
		Msg("starting activity points api")

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
