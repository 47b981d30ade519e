// Package main is the Routine Hub worker. It keeps derived state fresh in the
// background: expired catch-up plans are rolled over to the current period
// and users who fall behind pace are nudged.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/alem-hub/routine-hub/config"
	"github.com/alem-hub/routine-hub/internal/application/command"
	"github.com/alem-hub/routine-hub/internal/application/eventhandler"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/internal/infrastructure/locking"
	"github.com/alem-hub/routine-hub/internal/infrastructure/messaging"
	"github.com/alem-hub/routine-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/routine-hub/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/routine-hub/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/routine-hub/internal/infrastructure/scheduler"
	"github.com/alem-hub/routine-hub/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/routine-hub/internal/infrastructure/service"
	ophttp "github.com/alem-hub/routine-hub/internal/interface/http"
	"github.com/alem-hub/routine-hub/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
		Format: logger.Format(cfg.Observability.LogFormat),
	}).With(logger.String("app", cfg.App.Name), logger.String("env", string(cfg.App.Environment)))
	logger.SetDefault(log)
	ctx = logger.WithContext(ctx, log)

	metrics.RegisterTimezoneObserver()
	log.Info("starting worker", logger.Timezone(cfg.App.DefaultTimezone))

	// ─────────────────────────────────────────────────────────────────────────
	// 2. POSTGRES
	// ─────────────────────────────────────────────────────────────────────────
	pgConfig := postgres.DefaultConfig()
	pgConfig.URL = cfg.Database.URL
	pgConfig.MaxConns = cfg.Database.MaxConns
	pgConfig.MinConns = cfg.Database.MinConns
	pgConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgConfig.ConnectAttempts = cfg.Database.ConnectAttempts

	db, err := postgres.NewConnection(ctx, pgConfig)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.NewMigrator(db).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	health := ophttp.NewHealthChecker(cfg.App.Name)
	health.AddCheck("postgres", ophttp.PingCheck(db))

	routines := postgres.NewRoutineRepository(db)
	executions := postgres.NewExecutionRepository(db)
	plans := postgres.NewCatchupPlanRepository(db)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		locker      shared.UserLocker = locking.NewKeyedMutex()
		invalidator eventhandler.ProgressInvalidator
	)
	if !cfg.Redis.Disabled {
		redisConfig := redis.DefaultConfig()
		redisConfig.URL = cfg.Redis.URL
		redisConfig.Addr = cfg.Redis.Addr
		redisConfig.Password = cfg.Redis.Password
		redisConfig.DB = cfg.Redis.DB
		redisConfig.PoolSize = cfg.Redis.PoolSize

		cache, err := redis.NewCache(ctx, redisConfig)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer cache.Close()
		health.AddCheck("redis", ophttp.PingCheck(cache))

		locker = redis.NewUserLocker(cache, cfg.Redis.LockTTL, cfg.Redis.LockAttempts)
		invalidator = redis.NewProgressCache(cache, cfg.Redis.ProgressTTL)
		log.Info("redis connection established")
	} else {
		log.Warn("redis disabled, user locks are process-local")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS AND SUBSCRIPTIONS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	bus := messaging.NewInMemoryEventBus(busConfig)
	defer bus.Close()

	notifier := service.NewLogNotifier(log)
	catchupConfig := eventhandler.DefaultCatchupNeededConfig()
	catchupConfig.Cooldown = cfg.Engine.CatchupCooldown

	subs := eventhandler.Subscriptions{
		LevelUp:       eventhandler.NewOnLevelUpHandler(notifier, log),
		CatchupNeeded: eventhandler.NewOnCatchupNeededHandler(notifier, log, catchupConfig),
	}
	if invalidator != nil {
		subs.ExecutionChanged = eventhandler.NewOnExecutionChangedHandler(invalidator, log)
	}
	if err := subs.Register(bus); err != nil {
		return fmt.Errorf("failed to register event handlers: %w", err)
	}

	timezones := service.NewStaticTimezoneResolver(cfg.App.DefaultTimezone, cfg.Timezones)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{
		Tick:       time.Second,
		JobTimeout: cfg.Scheduler.JobTimeout,
		Logger:     log,
	})
	if cfg.Scheduler.Enabled {
		schedule, err := scheduler.ParseSchedule(cfg.Scheduler.RollSchedule)
		if err != nil {
			return fmt.Errorf("scheduler.roll_schedule: %w", err)
		}
		roller := command.NewRollCatchupPlansHandler(routines, executions, plans, locker, timezones, bus, nil)
		if err := sched.Register(jobs.NewRollCatchupPlansJob(roller, cfg.Scheduler.RollBatchSize), schedule); err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = sched.Stop() }()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. OPERATIONAL ENDPOINTS
	// ─────────────────────────────────────────────────────────────────────────
	var srv *ophttp.Server
	var srvErr <-chan error
	if cfg.Observability.MetricsAddr != "" {
		httpConfig := ophttp.DefaultConfig()
		httpConfig.Addr = cfg.Observability.MetricsAddr
		httpConfig.Version = cfg.App.Name
		srv = ophttp.NewServer(httpConfig, health, log)
		srvErr = srv.StartAsync()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
	case err := <-srvErr:
		if err != nil {
			return err
		}
		<-ctx.Done()
	}
	log.Info("shutting down", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http server shutdown failed", logger.Err(err))
		}
	}
	return nil
}
