// Package app wires configuration, storage, and HTTP surfaces into a
// runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sensorops/userdir/internal/config"
	"github.com/sensorops/userdir/internal/db"
	adminapi "github.com/sensorops/userdir/internal/http/api/admin"
	"github.com/sensorops/userdir/internal/http/api/front"
	"github.com/sensorops/userdir/internal/ratelimit"
	"github.com/sensorops/userdir/internal/settings"
	"github.com/sensorops/userdir/internal/store"
	"github.com/sensorops/userdir/internal/watcher"
	log "github.com/sirupsen/logrus"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(ctx, conn)
}

// buildLimiter picks the rate limiter backend from config. Redis is used
// when an address is configured so limits hold across instances.
func buildLimiter(rlCfg config.RateLimitConfig) ratelimit.Limiter {
	if rlCfg.RedisAddr == "" {
		return ratelimit.NewMemoryLimiter()
	}
	prefix := rlCfg.RedisPrefix
	if prefix == "" {
		prefix = settings.DefaultRateLimitRedisPrefix
	}
	client := redis.NewClient(&redis.Options{
		Addr:     rlCfg.RedisAddr,
		Password: rlCfg.RedisPassword,
		DB:       rlCfg.RedisDB,
	})
	return ratelimit.NewRedisLimiter(client, prefix)
}

// RunServer boots the directory service: database, snapshot watcher, and
// the admin and front HTTP APIs.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(ctx, conn); errMigrate != nil {
		return errMigrate
	}

	bootstrap, errBootstrap := config.LoadBootstrapAdmin(configPath)
	if errBootstrap != nil {
		return errBootstrap
	}
	if errEnsure := EnsureBootstrapAdmin(ctx, conn, bootstrap); errEnsure != nil {
		return errEnsure
	}

	jwtConfig, errJWT := config.LoadJWTConfig(configPath)
	if errJWT != nil {
		return errJWT
	}
	serverConfig, errServer := config.LoadServerConfig(configPath, defaultPort)
	if errServer != nil {
		return errServer
	}
	rlConfig, errRL := config.LoadRateLimitConfig(configPath)
	if errRL != nil {
		return errRL
	}
	limiter := buildLimiter(rlConfig)

	records := store.NewRecordStore(conn)
	directory := watcher.NewDirectoryWatcher(conn)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go directory.Run(runCtx)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	adminapi.RegisterAdminRoutes(engine, conn, records, jwtConfig, limiter, rlConfig.LoginPerSecond)
	front.RegisterFrontRoutes(engine, directory, limiter, rlConfig.LookupPerSecond)

	addr := fmt.Sprintf(":%d", serverConfig.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	log.WithField("addr", addr).Info("server started")

	select {
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
		<-serveErr
		return nil
	case errServe := <-serveErr:
		if errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			return errServe
		}
		return nil
	}
}
