package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-contest-api/internal/config"
	"github.com/noah-isme/gema-contest-api/internal/database"
	"github.com/noah-isme/gema-contest-api/internal/handler"
	"github.com/noah-isme/gema-contest-api/internal/middleware"
	"github.com/noah-isme/gema-contest-api/internal/observability"
	"github.com/noah-isme/gema-contest-api/internal/repository"
	"github.com/noah-isme/gema-contest-api/internal/router"
	"github.com/noah-isme/gema-contest-api/internal/service"
	"github.com/noah-isme/gema-contest-api/pkg/judge"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis disabled, leaderboard cache and cross node events are off")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	judgeClient, closeJudge, err := newJudgeClient(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create judge client: %v", err)
	}
	defer closeJudge()

	validate := validator.New(validator.WithRequiredStructEnabled())

	contestRepo := repository.NewContestRepository(db)
	problemRepo := repository.NewProblemRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	violationRepo := repository.NewViolationRepository(db)
	submissionRepo := repository.NewContestSubmissionRepository(db)
	resultRepo := repository.NewResultRepository(db)

	eventService := service.NewContestEventService(redisClient, cfg.EventsChannel, natsConn, logger)
	resultService := service.NewResultService(resultRepo, sessionRepo, questionRepo, redisClient, cfg.LeaderboardCacheTTL, eventService, logger)
	registrationService := service.NewRegistrationService(contestRepo, registrationRepo, logger)
	sessionService := service.NewSessionService(contestRepo, registrationRepo, sessionRepo, violationRepo, resultService, eventService, validate, logger, service.SessionConfig{
		WarningThreshold: cfg.WarningThreshold,
	})
	proctoringService := service.NewProctoringService(sessionRepo, violationRepo, sessionService, eventService, validate, logger, cfg.WarningThreshold)
	grader := service.NewGrader(judgeClient, logger)
	submissionService := service.NewContestSubmissionService(contestRepo, sessionRepo, problemRepo, submissionRepo, resultService, grader, eventService, validate, logger)
	sweeper := service.NewTimeoutSweeper(sessionRepo, contestRepo, sessionService, cfg.SweepInterval, logger)

	backgroundCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	eventService.Start(backgroundCtx)
	sweeper.Start(backgroundCtx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.AllowOrigins,
		AccessLog:    cfg.AppEnv != "production",
	})
	router.Register(app, cfg, router.Dependencies{
		RegistrationHandler:      handler.NewRegistrationHandler(registrationService, logger),
		SessionHandler:           handler.NewSessionHandler(sessionService, logger),
		ContestSubmissionHandler: handler.NewContestSubmissionHandler(submissionService, logger),
		LeaderboardHandler:       handler.NewLeaderboardHandler(resultService, logger),
		ProctoringHandler:        handler.NewProctoringHandler(proctoringService, eventService, logger),
		JWTMiddleware:            middleware.JWTProtected(cfg.JWTSecret),
		SubmissionLimiter:        middleware.RateLimit("submissions", cfg.SubmissionsPerMinute, time.Minute),
		HealthProbes:             healthProbes(db, redisClient, natsConn),
		MetricsHandler:           observability.MetricsHandler(),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, cfg.ShutdownTimeout, stopBackground)
}

func newJudgeClient(cfg config.Config, logger zerolog.Logger) (judge.Client, func(), error) {
	switch cfg.JudgeDriver {
	case config.JudgeDriverDocker:
		client, err := judge.NewDockerClient(judge.DockerConfig{
			Host:           cfg.DockerHost,
			WorkspaceRoot:  filepath.Join(os.TempDir(), "contest-runs"),
			MemoryLimitMB:  int64(cfg.CodeRunMemoryMB),
			CPUShares:      int64(cfg.CodeRunCPUShares),
			CompileTimeout: cfg.ExecutionTimeout,
			Logger:         logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, func() { _ = client.Close() }, nil
	default:
		client, err := judge.NewJudge0Client(judge.Judge0Config{
			BaseURL:        cfg.JudgeURL,
			AuthToken:      cfg.JudgeAuthToken,
			PollInterval:   cfg.JudgePollInterval,
			MaxPolls:       cfg.JudgeMaxPolls,
			RequestTimeout: cfg.JudgeRequestTimeout,
			Logger:         logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	}
}

func waitForShutdown(app *fiber.App, timeout time.Duration, stopBackground context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
