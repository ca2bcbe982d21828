package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/slotswap/internal/cache"
	"github.com/iliyamo/slotswap/internal/config"
	"github.com/iliyamo/slotswap/internal/database"
	"github.com/iliyamo/slotswap/internal/handler"
	"github.com/iliyamo/slotswap/internal/logger"
	"github.com/iliyamo/slotswap/internal/middleware"
	"github.com/iliyamo/slotswap/internal/notify"
	"github.com/iliyamo/slotswap/internal/queue"
	"github.com/iliyamo/slotswap/internal/repository"
	"github.com/iliyamo/slotswap/internal/router"
	"github.com/iliyamo/slotswap/internal/swap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialect, err := database.ParseDialect(cfg.DBDriver)
	if err != nil {
		return err
	}
	conn := database.ConnConfig{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
		Path: cfg.DBPath,
	}
	db, err := database.Connect(dialect, conn)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	if err := migrate(ctx, db, dialect, log); err != nil {
		return err
	}
	readDB, err := database.ConnectReader(dialect, conn)
	if err != nil {
		return fmt.Errorf("connect read pool: %w", err)
	}
	if readDB != nil {
		defer readDB.Close()
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable; profile cache, response cache and rate limiting disabled")
	} else {
		defer rdb.Close()
	}

	users := repository.NewUserRepo(db)
	names := users
	if readDB != nil {
		names = repository.NewUserRepo(readDB)
	}
	profiles := cache.NewProfiles(names, rdb, cfg.ProfileCacheTTL, log)
	broker := notify.NewBroker(notify.DefaultBuffer)

	var (
		gen     *middleware.Generation
		changes swap.Publisher = broker
	)
	cacheCfg := config.LoadCacheConfig()
	if rdb != nil {
		gen = middleware.NewGeneration(rdb, cacheCfg.Prefix)
		changes = gen.Publisher(broker, log)
		go func() {
			if err := gen.Invalidate(ctx, broker, log); err != nil {
				log.Error("cache invalidation stopped", slog.String("error", err.Error()))
			}
		}()
	}
	engine := swap.New(db, dialect, profiles, changes, swap.WithLogger(log), swap.WithReadDB(readDB))

	if cfg.RabbitURL != "" && cfg.ChangesBridge {
		startBridge(ctx, cfg, broker, log)
	}

	e := router.New(router.Deps{
		Log:    log,
		Health: handler.Health(db),
		Auth: &handler.AuthHandler{
			Users: users, JWTSecret: cfg.JWTSecret, AccessTTLMin: cfg.AccessTTLMin,
			BcryptCost: cfg.BcryptCost, Log: log,
		},
		Slots:     &handler.SlotHandler{Slots: engine, Log: log},
		Swaps:     &handler.SwapHandler{Swaps: engine, Log: log},
		Events:    &handler.EventsHandler{Broker: broker, Log: log},
		JWTSecret: cfg.JWTSecret,
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
		Cache:     middleware.NewRedisCache(cacheCfg, rdb, gen),
	})

	addr := ":" + cfg.Port
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", addr), slog.String("env", cfg.Env), slog.String("db", string(dialect)))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	// end open event streams first so Shutdown does not wait on them
	broker.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func migrate(ctx context.Context, db *sqlx.DB, d database.Dialect, log *slog.Logger) error {
	applied, err := database.Migrate(ctx, db.DB, d)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if len(applied) > 0 {
		log.Info("migrations applied", slog.Any("versions", applied))
	}
	return nil
}

// startBridge relays local changes to peers and peer changes to local
// subscribers through RabbitMQ.
func startBridge(ctx context.Context, cfg config.Config, broker *notify.Broker, log *slog.Logger) {
	origin := uuid.NewString()
	pub := queue.NewPublisher(cfg.RabbitURL, cfg.ChangesExchange, origin, log)
	go func() {
		defer pub.Close()
		if err := queue.Forward(ctx, broker, pub, log); err != nil {
			log.Error("change relay stopped", slog.String("error", err.Error()))
		}
	}()
	go func() {
		_ = queue.NewConsumer(cfg.RabbitURL, cfg.ChangesExchange, origin, broker, log).Run(ctx)
	}()
	log.Info("change bridge started", slog.String("exchange", cfg.ChangesExchange), slog.String("origin", origin))
}
