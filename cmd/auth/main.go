package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	ecM "github.com/labstack/echo/v4/middleware"

	"github.com/commandlinecommandos/campus-marketplace/internal/config"
	"github.com/commandlinecommandos/campus-marketplace/internal/httpserver"
	"github.com/commandlinecommandos/campus-marketplace/internal/logging"
	"github.com/commandlinecommandos/campus-marketplace/internal/middleware"
	"github.com/commandlinecommandos/campus-marketplace/internal/mykafka"
	"github.com/commandlinecommandos/campus-marketplace/internal/ratelimit"
	"github.com/commandlinecommandos/campus-marketplace/internal/repo"
	"github.com/commandlinecommandos/campus-marketplace/internal/service"
	"github.com/commandlinecommandos/campus-marketplace/internal/tokens"
)

const pruneInterval = time.Hour

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	codec := &tokens.Codec{
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	}

	svc := &service.AuthService{
		Repo:  &repo.GormRepo{DB: db},
		Codec: codec,
	}

	var producer *mykafka.Producer
	if cfg.KafkaAddress != "" {
		producer = mykafka.NewProducer(cfg.KafkaAddress)
		svc.Events = producer
	}

	e := echo.New()
	e.Pre(ecM.RemoveTrailingSlash())
	e.Use(ecM.Recover(), ecM.RequestID(), ecM.Secure())
	e.Use(middleware.RequestLogger(logger))

	authGate := ratelimit.NewGate(ratelimit.AuthProfile)
	generalGate := ratelimit.NewGate(ratelimit.GeneralProfile)

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{Svc: svc},
		Auth:        middleware.NewBearerAuth(codec),
		AuthGate:    authGate,
		GeneralGate: generalGate,
	})

	pruneCtx, prunesCancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if pruned, err := svc.PruneExpiredTokens(pruneCtx); err != nil {
					logger.Error("token_prune_failed", "error", err)
				} else if pruned > 0 {
					logger.Info("tokens_pruned", "count", pruned)
				}
			case <-pruneCtx.Done():
				return
			}
		}
	}()

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	prunesCancel()
	authGate.Close()
	generalGate.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "error", err)
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("kafka close error", "error", err)
		}
	}
}
