// Command bbs-server wires every BBS component together and serves
// TerminalEndpoints/AuthEndpoints over HTTP, the way the teacher's
// cmd/gateway composes its services at process start.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/boardwalkbbs/server/internal/audit"
	"github.com/boardwalkbbs/server/internal/bbs/apps/bulletin"
	"github.com/boardwalkbbs/server/internal/bbs/capability"
	"github.com/boardwalkbbs/server/internal/bbs/domain"
	"github.com/boardwalkbbs/server/internal/bbs/localloader"
	"github.com/boardwalkbbs/server/internal/bbs/ratelimit"
	"github.com/boardwalkbbs/server/internal/bbs/registry"
	"github.com/boardwalkbbs/server/internal/bbs/remoteloader"
	"github.com/boardwalkbbs/server/internal/bbs/session"
	"github.com/boardwalkbbs/server/internal/bbs/shell"
	"github.com/boardwalkbbs/server/internal/bbs/store"
	"github.com/boardwalkbbs/server/internal/bbs/store/memory"
	"github.com/boardwalkbbs/server/internal/bbs/store/postgres"
	"github.com/boardwalkbbs/server/internal/bbsconfig"
	"github.com/boardwalkbbs/server/internal/bbshttp"
	"github.com/boardwalkbbs/server/internal/bbslog"
)

func main() {
	boot := logrus.New()
	boot.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := bbsconfig.Load()
	if err != nil {
		boot.WithError(err).Fatal("failed to load configuration")
	}

	st, closeStore := mustOpenStore(boot, cfg)
	defer closeStore()

	log := bbslog.NewDefault("bbs-server")
	auditLog := audit.New(os.Stdout)
	sessions := session.New(st, log)
	limiter := mustBuildLimiter(boot, cfg)

	reg := registry.New(log, func(appID string) any {
		return capability.New(appID, st, sessions, limiter, log, auditLog)
	}, auditLog)

	if err := reg.Register(bulletin.New(), domain.OriginBuiltin); err != nil {
		boot.WithError(err).Warn("builtin app failed to register")
	}

	factories := map[string]localloader.Factory{
		bulletin.ID: func() domain.App { return bulletin.New() },
	}
	local := localloader.New(cfg.LocalModulesDir, factories, log)
	if err := local.ScanAndRegister(reg); err != nil {
		boot.WithError(err).Warn("local module scan failed")
	}

	remoteCfg := remoteloader.DefaultConfig()
	remoteCfg.AllowedHosts = cfg.AllowedHosts()
	remote := remoteloader.New(remoteCfg, remoteloader.NewHTTPFetcher(nil), limiter, log)

	sh := shell.New(reg, sessions, remote, log)
	server := bbshttp.New(sh, sessions, reg, st, log, auditLog)

	var auth *bbshttp.JWTMiddleware
	if cfg.JWTSigningKey != "" {
		auth = bbshttp.NewJWTMiddleware(cfg.JWTSigningKey, log, []string{
			"/terminal/init", "/terminal/command", "/terminal/session",
			"/auth/register", "/auth/login", "/auth/me",
		})
	}

	cors := bbshttp.NewCORS(cfg.CORSOrigins())
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.Router(auth, cors),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SessionReapCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := sessions.Reap(ctx, time.Now().Add(-cfg.SessionReapAfter)); err != nil {
			log.Warn("scheduled session reap failed", "reason", err.Error())
		}
	}); err != nil {
		boot.WithError(err).Fatal("invalid session reap cron expression")
	}
	if _, err := scheduler.AddFunc(cfg.RemoteRefreshCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		reg.RefreshRemoteAll(ctx, remote)
	}); err != nil {
		boot.WithError(err).Fatal("invalid remote refresh cron expression")
	}
	scheduler.Start()
	defer scheduler.Stop()

	go func() {
		boot.WithField("addr", cfg.HTTPAddr).Info("bbs-server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			boot.WithError(err).Fatal("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	boot.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
}

func mustOpenStore(boot *logrus.Logger, cfg bbsconfig.Config) (store.Store, func()) {
	if cfg.StoreDSN == "memory" {
		return memory.New(), func() {}
	}
	if err := postgres.Migrate(cfg.StoreDSN); err != nil {
		boot.WithError(err).Fatal("failed to apply schema migrations")
	}
	pg, err := postgres.Open(cfg.StoreDSN)
	if err != nil {
		boot.WithError(err).Fatal("failed to open store")
	}
	return pg, func() { _ = pg.Close() }
}

func mustBuildLimiter(boot *logrus.Logger, cfg bbsconfig.Config) ratelimit.Limiter {
	if cfg.RedisAddr == "" {
		return ratelimit.NewLocal(nil)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		boot.WithError(err).Warn("redis unreachable, falling back to local rate limiter")
		return ratelimit.NewLocal(nil)
	}
	return ratelimit.NewRedis(client, nil)
}
