// Command auth-service runs the authentication HTTP server. Storage is
// chosen by configuration: Postgres when DATABASE_DSN is set (with Redis as
// an optional refresh-token backend), in-memory otherwise for local runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cropwise/auth-service/internal/auth"
	"github.com/cropwise/auth-service/internal/config"
	"github.com/cropwise/auth-service/internal/directory"
	"github.com/cropwise/auth-service/internal/httpapi"
	"github.com/cropwise/auth-service/internal/password"
	"github.com/cropwise/auth-service/internal/refresh"
	"github.com/cropwise/auth-service/internal/store"
	"github.com/cropwise/auth-service/internal/token"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return fmt.Errorf("init hasher: %w", err)
	}

	signer, err := token.NewSigner(token.Config{
		Secret:    []byte(cfg.JWT.Secret),
		Issuer:    cfg.JWT.Issuer,
		AccessTTL: cfg.JWT.AccessTTL,
		Leeway:    cfg.JWT.Leeway,
	})
	if err != nil {
		return fmt.Errorf("init signer: %w", err)
	}

	dir, refreshStore, cleanup, err := buildStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	mgr, err := refresh.NewManager(refreshStore, cfg.Refresh.TTL)
	if err != nil {
		return fmt.Errorf("init refresh manager: %w", err)
	}

	authenticator, err := auth.New(auth.Config{
		Directory: dir,
		Hasher:    hasher,
		Signer:    signer,
		Refresh:   mgr,
		AccessTTL: cfg.JWT.AccessTTL,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("init authenticator: %w", err)
	}

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Auth:      authenticator,
		Directory: dir,
		Logger:    log,
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}
	var zc zap.Config
	if cfg.Production {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

// buildStorage selects the directory and refresh-token backends. Without a
// DSN everything lives in memory, which suits local development and tests
// but loses state on restart.
func buildStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (directory.Directory, refresh.Store, func(), error) {
	if cfg.Database.DSN == "" {
		log.Warn("no DATABASE_DSN, using in-memory storage")
		if cfg.Redis.Addr != "" {
			client, err := newRedisClient(ctx, cfg.Redis)
			if err != nil {
				return nil, nil, nil, err
			}
			return directory.NewMemory(), store.NewRedis(client, cfg.Redis.Prefix), func() { client.Close() }, nil
		}
		return directory.NewMemory(), store.NewMemory(), func() {}, nil
	}

	if err := runMigrations(cfg.Database, log); err != nil {
		return nil, nil, nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	dir := directory.NewPostgres(pool)

	if cfg.Redis.Addr != "" {
		client, err := newRedisClient(ctx, cfg.Redis)
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		cleanup := func() {
			client.Close()
			pool.Close()
		}
		return dir, store.NewRedis(client, cfg.Redis.Prefix), cleanup, nil
	}

	return dir, store.NewPostgres(pool), pool.Close, nil
}

func newRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func runMigrations(cfg config.DatabaseConfig, log *zap.Logger) error {
	m, err := migrate.New(cfg.MigrationsPath, cfg.DSN)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("migrations up to date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	log.Info("migrations applied")
	return nil
}
