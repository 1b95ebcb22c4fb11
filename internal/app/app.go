// Package app assembles the ledger, its store and the notification pipeline
// from configuration. Both the server and walletctl start from here.
package app

import (
	"context" // Startup and shutdown
	"errors"  // Joined close errors
	"fmt"     // Error wrapping

	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
	"gorm.io/gorm"                 // GORM ORM library

	"github.com/The-Quan/atm-banking-2/internal/api"        // Admin store contract
	"github.com/The-Quan/atm-banking-2/internal/cache"      // Read cache
	"github.com/The-Quan/atm-banking-2/internal/config"     // Configuration
	"github.com/The-Quan/atm-banking-2/internal/db"         // SQL connection
	"github.com/The-Quan/atm-banking-2/internal/identity"   // User store contract
	"github.com/The-Quan/atm-banking-2/internal/ledger"     // Ledger engine
	"github.com/The-Quan/atm-banking-2/internal/memstore"   // In-memory backend
	"github.com/The-Quan/atm-banking-2/internal/notify"     // Notification pipeline
	"github.com/The-Quan/atm-banking-2/internal/repository" // gorm backend
)

// memoryQueueSize bounds the in-process notification backlog
const memoryQueueSize = 1024

// Backend is what both storage implementations provide
type Backend interface {
	ledger.Store
	ledger.UserDirectory
	identity.UserStore
	api.AdminStore
	ListAccountIDs(ctx context.Context) ([]int64, error)
}

var (
	_ Backend = (*memstore.Store)(nil)
	_ Backend = (*repository.Repository)(nil)
)

// App holds the assembled components
type App struct {
	Config *config.Config
	Store  Backend
	Engine *ledger.Engine
	Redis  *redis.Client // nil when REDIS_ADDR is empty
	Cache  *cache.Cache
	Queue  notify.Queue
	Worker *notify.Worker

	sql     *gorm.DB
	closers []func() error
}

// New connects to storage and Redis and builds the engine
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.openStore(); err != nil {
		return nil, err
	}
	if err := a.openRedis(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Cache = cache.New(a.Redis, cfg.CacheTTL)

	if a.Redis != nil {
		a.Queue = notify.NewRedisQueue(a.Redis)
	} else {
		a.Queue = notify.NewMemoryQueue(memoryQueueSize)
	}
	sender, err := a.sender()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Worker = notify.NewWorker(a.Queue, sender, cfg.NotifyMaxAttempts, cfg.NotifyRetryDelay)

	lc, err := cfg.Ledger()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Engine, err = ledger.NewEngine(a.Store, a.Store, lc, ledger.WithNotifier(notify.NewEnqueuer(a.Queue)))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openStore() error {
	if a.Config.DBDriver == config.DriverMemory {
		a.Store = memstore.New()
		logrus.Warn("Using in-memory store, data is lost on exit")
		return nil
	}
	gdb, err := db.Open(a.Config)
	if err != nil {
		return err
	}
	if err := db.Migrate(gdb); err != nil {
		_ = db.Close(gdb)
		return fmt.Errorf("app: migrate: %w", err)
	}
	a.sql = gdb
	a.Store = repository.New(gdb)
	a.closers = append(a.closers, func() error { return db.Close(gdb) })
	return nil
}

func (a *App) openRedis(ctx context.Context) error {
	if a.Config.RedisAddr == "" {
		logrus.Info("REDIS_ADDR not set, cache disabled and notifications queued in process")
		return nil
	}
	// Setup Redis client
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.Config.RedisAddr, // Redis server address
		Password: a.Config.RedisPass, // Redis password
		DB:       a.Config.RedisDB,   // Redis database number
	})
	// Test Redis connection
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("app: connect to Redis: %w", err)
	}
	a.Redis = rdb
	a.closers = append(a.closers, rdb.Close)
	return nil
}

func (a *App) sender() (notify.Sender, error) {
	cfg := a.Config
	switch cfg.NotifySender {
	case config.SenderSMTP:
		return notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
			Currency: cfg.Currency,
		}), nil
	case config.SenderKafka:
		s := notify.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.SenderLog:
		return notify.LogSender{Currency: cfg.Currency}, nil
	}
	return nil, fmt.Errorf("app: unknown notification sender %q", cfg.NotifySender)
}

// Probes are the health checks for the configured dependencies
func (a *App) Probes() map[string]api.Probe {
	probes := map[string]api.Probe{}
	if a.sql != nil {
		probes["database"] = func(ctx context.Context) error {
			sqlDB, err := a.sql.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if a.Redis != nil {
		probes["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	return probes
}

// Close releases connections in reverse order of opening
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
