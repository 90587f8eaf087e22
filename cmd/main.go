package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/solacegrove/solace-backend/internal/config"
	"github.com/solacegrove/solace-backend/internal/db"
	"github.com/solacegrove/solace-backend/internal/logger"
	"github.com/solacegrove/solace-backend/internal/repos"
	"github.com/solacegrove/solace-backend/internal/services"
	"github.com/solacegrove/solace-backend/internal/utils"
)

func main() {
	once := flag.Bool("once", false, "run a single grouping pass and exit")
	flag.Parse()

	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	log.Info("Loading grouping configuration from main...")
	cfg, err := config.LoadBatch(log)
	if err != nil {
		log.Fatal("Invalid grouping configuration", "error", err)
	}
	runInterval := utils.GetEnvAsDuration("GROUPING_RUN_INTERVAL", time.Hour, log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Redis run lock
	var lock services.RunLock
	redisAddr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if redisAddr == "" {
		log.Warn("REDIS_ADDR not set, running without a cross-process lock")
		lock = services.NewNoopRunLock()
	} else {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:        redisAddr,
			DialTimeout: 5 * time.Second,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal("Redis ping failed", "error", err)
		}
		lock = services.NewRedisRunLock(rdb, log, cfg.RunLockTTL)
	}

	// Repos
	log.Info("Setting up Repos from main...")
	observationRepo := repos.NewObservationRepo(thePG, log)
	lifeEventRepo := repos.NewLifeEventRepo(thePG, log)
	profileRepo := repos.NewProfileRepo(thePG, log)
	groupRepo := repos.NewGroupRepo(thePG, log)
	circleRepo := repos.NewCircleRepo(thePG, log)
	membershipRepo := repos.NewMembershipRepo(thePG, log)
	reviewRunRepo := repos.NewReviewRunRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
	profileService := services.NewProfileService(thePG, log, cfg, observationRepo, lifeEventRepo, profileRepo)
	circleAllocator := services.NewCircleAllocator(log, cfg, circleRepo, membershipRepo)
	groupingService := services.NewGroupingService(
		thePG, log, cfg,
		profileRepo, groupRepo, circleRepo, membershipRepo, reviewRunRepo,
		profileService, circleAllocator, lock,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		if err := runPass(ctx, log, groupingService); err != nil {
			os.Exit(1)
		}
		return
	}

	log.Info("Grouping scheduler started", "interval", runInterval.String())
	ticker := time.NewTicker(runInterval)
	defer ticker.Stop()

	_ = runPass(ctx, log, groupingService)
	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down grouping scheduler")
			return
		case <-ticker.C:
			_ = runPass(ctx, log, groupingService)
		}
	}
}

func runPass(ctx context.Context, log *logger.Logger, svc services.GroupingService) error {
	report, err := svc.RunOnce(ctx)
	if errors.Is(err, services.ErrRunInProgress) {
		return nil
	}
	if err != nil {
		log.Error("Grouping run failed", "error", err)
		return err
	}
	if report.Failures > 0 {
		log.Warn("Grouping run completed with failures", "failures", report.Failures)
	}
	return nil
}
