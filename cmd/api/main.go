package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"appeals-platform/internal/audit"
	"appeals-platform/internal/auth"
	"appeals-platform/internal/config"
	"appeals-platform/internal/httpapi"
	"appeals-platform/internal/obs"
	"appeals-platform/internal/rbac"
	"appeals-platform/internal/roles"
	"appeals-platform/pkg/logger"
	"appeals-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// shareLinkTTL bounds how long a trace share link stays resolvable.
const shareLinkTTL = 7 * 24 * time.Hour

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	tokens, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	obs.Init()

	catalog := rbac.NewCatalog()
	admins := rbac.NewPostgresAdminRepo(db)
	auditSvc := audit.NewService(audit.NewPostgresRepository(db))
	registry := roles.NewRegistry(roles.NewPostgresRepository(db), catalog)

	h := &httpapi.Handlers{
		Catalog:  catalog,
		Registry: registry,
		Audit:    auditSvc,
		Shares:   audit.NewShareLinks(rdb, shareLinkTTL),
		Admins:   admins,
		Tokens:   tokens,
		Redis:    rdb,
		Cfg:      cfg,
		Log:      log,
	}
	guard := rbac.NewGuard(catalog, admins, httpapi.DenialLog{Audit: auditSvc, Log: log})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(obs.Middleware())

	registerRoutes(r, h, guard, auth.RequireAccessToken(tokens), db)

	go retentionSweep(rootCtx, log, auditSvc, cfg.Audit.RetentionDays)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Exports stream large CSV bodies; keep the write window generous.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

// retentionSweep purges audit entries past the retention horizon once an hour
// until the root context is cancelled.
func retentionSweep(ctx context.Context, log *slog.Logger, svc *audit.Service, retentionDays int) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
		sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
		purged, err := svc.PurgeOlderThan(sweepCtx, cutoff)
		cancel()
		if err != nil {
			log.Error("audit retention sweep failed", "err", err)
			continue
		}
		obs.ObserveAuditPurge(purged)
		if purged > 0 {
			log.Info("audit retention sweep", "purged", purged, "cutoff", cutoff)
		}
	}
}
