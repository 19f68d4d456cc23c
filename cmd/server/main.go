// Command server runs the DevRadar check-in board API.
//
//	@title			DevRadar API
//	@version		1.0
//	@description	Location check-in board for developers.
//	@BasePath		/api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-devradar-backend/docs"
	"github.com/tbourn/go-devradar-backend/internal/config"
	"github.com/tbourn/go-devradar-backend/internal/feed"
	httpapi "github.com/tbourn/go-devradar-backend/internal/http"
	"github.com/tbourn/go-devradar-backend/internal/identity"
	"github.com/tbourn/go-devradar-backend/internal/observability"
	"github.com/tbourn/go-devradar-backend/internal/repo"
	"github.com/tbourn/go-devradar-backend/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := config.LoadDotenv(""); err != nil {
		// logger is not configured yet
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load .env")
	}
	cfg := config.MustLoad()
	log := sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	gin.SetMode(cfg.GinMode)
	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = version

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	broker := feed.NewBroker(feed.Config{Buffer: cfg.Roster.FeedBuffer}, log.With().Str("component", "feed").Logger())
	defer func() { _ = broker.Close() }()
	if err := repo.RegisterChangeFeed(db, broker, log); err != nil {
		return err
	}

	host := identity.NewFingerprintProvider(func() identity.Signals {
		return identity.HostSignals(cfg.OTEL.ServiceName, version)
	})
	app := httpapi.NewApp(db, broker, host, cfg, log)

	r := gin.New()
	httpapi.RegisterRoutes(r, app, cfg)

	// background workers stop with ctx
	workers, cancelWorkers := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancelWorkers()
		wg.Wait()
	}()
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(workers); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("worker", name).Msg("worker stopped")
			}
		}()
	}
	if app.Hub != nil {
		spawn("hub", app.Hub.Run)
	}
	spawn("roster", app.Roster.Run)
	spawn("idempotency-purge", func(ctx context.Context) error {
		return purgeIdempotency(ctx, db, cfg.IdempotencyPurge, log)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

// purgeIdempotency removes expired idempotency keys every interval.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration, log zerolog.Logger) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired idempotency keys removed")
			}
		}
	}
}
