// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/execgate/execgate/adapters/clock"
	"github.com/execgate/execgate/adapters/durable"
	"github.com/execgate/execgate/adapters/memory"
	"github.com/execgate/execgate/adapters/metrics"
	redisadapter "github.com/execgate/execgate/adapters/redis"
	"github.com/execgate/execgate/adapters/sqlite"
	"github.com/execgate/execgate/adapters/upstream"
	"github.com/execgate/execgate/app"
	"github.com/execgate/execgate/config"
	"github.com/execgate/execgate/ports"
	"github.com/execgate/execgate/web"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	holder     *config.Holder
	executions *app.ExecutionService
	directory  *memory.InstanceDirectory
	db         *sqlite.DB

	// closers run in reverse order on shutdown
	closers []func()
}

// New creates and initializes the application from a config file.
// With hotReload enabled, plan and instance changes apply without a
// restart.
func New(cfgPath string, hotReload bool) (*App, error) {
	logger := setupLoggerFromEnv()

	holder, err := config.NewHolder(cfgPath, logger)
	if err != nil {
		return nil, err
	}
	cfg := holder.Get()

	logger = setupLogger(cfg.Logging)
	logger.Info().Msg("initializing execgate")

	a := &App{
		Logger:  logger,
		Metrics: metrics.New(),
		holder:  holder,
	}

	if err := a.initServices(cfg); err != nil {
		return nil, err
	}
	a.initHTTPServer(cfg)

	if hotReload {
		holder.OnChange(a.applyConfig)
		if err := holder.WatchFile(); err != nil {
			logger.Warn().Err(err).Msg("config file watch unavailable")
		}
		holder.WatchSignals()
	}

	return a, nil
}

func (a *App) initServices(cfg *config.Config) error {
	ctx := context.Background()

	plans, err := cfg.PlanTable()
	if err != nil {
		return err
	}

	a.directory = memory.NewInstanceDirectory(cfg.InstanceSeed()...)

	fetcher := upstream.New(a.directory, upstream.Config{
		Timeout:         cfg.Upstream.Timeout,
		MaxIdleConns:    cfg.Upstream.MaxIdleConns,
		IdleConnTimeout: cfg.Upstream.IdleConnTimeout,
	}, a.Logger)

	var (
		cacheStore ports.CacheStore
		quotaStore ports.QuotaStore
		rateStore  ports.RateLimitStore
	)

	needsRedis := cfg.Cache.Backend == "redis" || cfg.Quota.Backend == "redis"
	var redisCounters *redisadapter.CounterStore
	if needsRedis {
		client, err := redisadapter.Connect(ctx, redisadapter.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, func() { client.Close() })
		redisCounters = redisadapter.NewCounterStore(client)

		if cfg.Cache.Backend == "redis" {
			cacheStore = redisadapter.NewCacheStore(client)
		}
		a.Logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")
	}

	if cacheStore == nil {
		store := memory.NewCacheStore(memory.CacheStoreConfig{
			NumShards:     cfg.Cache.NumShards,
			SweepInterval: cfg.Cache.SweepInterval,
		})
		a.closers = append(a.closers, func() { store.Close() })
		cacheStore = store
	}

	switch cfg.Quota.Backend {
	case "redis":
		quotaStore = durable.NewQuotaStore(redisCounters)
		rateStore = durable.NewRateLimitStore(redisCounters)
	case "sqlite":
		db, err := sqlite.Open(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return fmt.Errorf("migrate: %w", err)
		}
		a.db = db
		a.closers = append(a.closers, func() { db.Close() })
		a.Logger.Info().Str("dsn", cfg.Database.DSN).Msg("database initialized")

		counters := sqlite.NewCounterStore(db)
		quotaStore = durable.NewQuotaStore(counters)
		rateStore = durable.NewRateLimitStore(counters)
	default:
		qs := memory.NewQuotaStore(memory.QuotaStoreConfig{})
		a.closers = append(a.closers, func() { qs.Close() })
		quotaStore = qs

		rs := memory.NewRateLimitStore(memory.RateLimitStoreConfig{})
		a.closers = append(a.closers, func() { rs.Close() })
		rateStore = rs
	}

	a.executions = app.NewExecutionService(app.ExecutionDeps{
		Cache:     cacheStore,
		Quota:     quotaStore,
		RateLimit: rateStore,
		Fetcher:   fetcher,
		Clock:     clock.Real{},
		Logger:    a.Logger,
		Metrics:   a.Metrics,
	}, app.ExecutionConfig{
		Plans:      plans,
		FetchWait:  cfg.Upstream.FetchWait,
		RateWindow: time.Duration(cfg.RateLimit.WindowSecs) * time.Second,
		RateBurst:  cfg.RateLimit.BurstTokens,
	})

	return nil
}

func (a *App) initHTTPServer(cfg *config.Config) {
	handler := web.NewHandler(web.Deps{
		Executions: a.executions,
		Logger:     a.Logger,
		Metrics:    a.Metrics,
	})

	a.HTTPServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// applyConfig applies a reloaded configuration to running services.
// Only hot-reloadable fields take effect; the rest need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	plans, err := cfg.PlanTable()
	if err != nil {
		a.Metrics.ConfigReloadErrors.Inc()
		a.Logger.Error().Err(err).Msg("reloaded plans invalid, keeping current table")
	} else {
		a.executions.UpdatePlans(plans)
		a.Metrics.ConfigReloads.Inc()
		a.Logger.Info().Int("plans", len(cfg.Plans)).Msg("plan table updated")
	}

	for _, inst := range cfg.InstanceSeed() {
		a.directory.Register(inst)
	}
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("server listening")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Expired counter rows accumulate without a purge pass.
	stopPurge := make(chan struct{})
	if a.db != nil {
		go a.purgeLoop(stopPurge)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case sig := <-sigCh:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	close(stopPurge)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	a.holder.Stop()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func (a *App) purgeLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			counters := sqlite.NewCounterStore(a.db)
			if n, err := counters.Purge(ctx); err != nil {
				a.Logger.Warn().Err(err).Msg("counter purge failed")
			} else if n > 0 {
				a.Logger.Debug().Int64("rows", n).Msg("purged expired counters")
			}
			cancel()
		case <-stop:
			return
		}
	}
}

func setupLoggerFromEnv() zerolog.Logger {
	return setupLogger(config.LoggingConfig{
		Level:  os.Getenv(config.EnvLogLevel),
		Format: os.Getenv(config.EnvLogFormat),
	})
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	return logger.Level(level).With().Timestamp().Logger()
}
