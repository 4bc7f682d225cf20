// sqlpool runs a bounded connection pool against a database or Redis
// server and serves its statistics, metrics and health checks over HTTP.
//
// Usage:
//
//	sqlpool [flags]
//
// Flags:
//
//	-config string
//	    Path to configuration file, TOML or YAML (default "~/.sqlpool/config.toml")
//	-backend string
//	    Backend to pool, "sql" or "redis" (overrides config)
//	-dsn string
//	    Database data source name (overrides config)
//	-v
//	    Enable verbose logging
//	-version
//	    Print version and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/go-i2p/sqlpool/lib/admin"
	"github.com/go-i2p/sqlpool/lib/config"
	"github.com/go-i2p/sqlpool/lib/metrics"
	"github.com/go-i2p/sqlpool/lib/pool"
	"github.com/go-i2p/sqlpool/lib/redisconn"
	"github.com/go-i2p/sqlpool/lib/resilience"
	"github.com/go-i2p/sqlpool/lib/sqlconn"
	"github.com/go-i2p/sqlpool/version"
)

func main() {
	os.Exit(run())
}

// backend is what run needs from either pool flavor.
type backend interface {
	Stats() pool.Stats
	Close() error
}

// service is an opened backend and the check the admin server runs on it.
type service struct {
	backend
	check func(context.Context) error
}

func run() int {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	defaultConfigPath := filepath.Join(homeDir, ".sqlpool", "config.toml")

	configPath := flag.String("config", defaultConfigPath, "Path to configuration file (TOML, or YAML by extension)")
	backendName := flag.String("backend", "", "Backend to pool: sql or redis (overrides config)")
	dsn := flag.String("dsn", "", "Database data source name (overrides config)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "sqlpool - Bounded connection pool with idle reclamation\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  sqlpool [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("sqlpool version %s\n", version.Full())
		return 0
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return 1
	}
	if *backendName != "" {
		cfg.Backend = config.Backend(*backendName)
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		return 1
	}

	metrics.RecordStartTime()

	var breaker *resilience.Breaker
	if cfg.Breaker.Enabled {
		breaker = resilience.New(string(cfg.Backend), cfg.BreakerConfig())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	svc, err := open(ctx, cfg, breaker)
	cancel()
	if err != nil {
		logger.Error("failed to open pool", "backend", cfg.Backend, "error", err)
		return 1
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("closing pool", "error", err)
		}
	}()

	stats := svc.Stats()
	logger.Info("sqlpool started",
		"backend", cfg.Backend,
		"min", stats.MinSize,
		"max", stats.MaxSize,
		"idle_timeout", stats.IdleTimeout,
		"version", version.Version,
	)

	var srv *admin.Server
	if cfg.Admin.Enabled {
		srv, err = admin.New(admin.Config{
			ListenAddr:        cfg.Admin.Listen,
			Source:            svc,
			Backend:           string(cfg.Backend),
			Check:             svc.check,
			Breaker:           breaker,
			RequestsPerSecond: 20,
			BurstSize:         40,
			Logger:            logger,
		})
		if err != nil {
			logger.Error("failed to create admin server", "error", err)
			return 1
		}
		if err := srv.Start(); err != nil {
			logger.Error("failed to start admin server", "error", err)
			return 1
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received signal, shutting down", "signal", sig)

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
			return 1
		}
	}

	logger.Info("sqlpool stopped")
	return 0
}

// open creates the configured pool and runs one connectivity check.
func open(ctx context.Context, cfg *config.Config, breaker *resilience.Breaker) (*service, error) {
	var svc *service
	switch cfg.Backend {
	case config.BackendSQL:
		opts := []sqlconn.Option{sqlconn.WithValidationTimeout(cfg.Database.ValidationTimeout.Std())}
		if breaker != nil {
			opts = append(opts, sqlconn.WithBreaker(breaker))
		}
		db, err := sqlconn.Open(cfg.Database.Driver, cfg.Database.DSN, cfg.PoolConfig(), opts...)
		if err != nil {
			return nil, err
		}
		svc = &service{backend: db, check: func(ctx context.Context) error {
			conn, err := db.Conn(ctx)
			if err != nil {
				return err
			}
			return errors.Join(conn.PingContext(ctx), conn.Release())
		}}

	case config.BackendRedis:
		var opts []redisconn.Option
		if breaker != nil {
			opts = append(opts, redisconn.WithBreaker(breaker))
		}
		p, err := redisconn.New(&redis.Options{
			Addr:     cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.PoolConfig(), opts...)
		if err != nil {
			return nil, err
		}
		svc = &service{backend: p, check: func(ctx context.Context) error {
			conn, err := p.Conn(ctx)
			if err != nil {
				return err
			}
			return errors.Join(conn.Ping(ctx), conn.Release())
		}}

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if err := svc.check(ctx); err != nil {
		svc.Close()
		return nil, err
	}
	return svc, nil
}
