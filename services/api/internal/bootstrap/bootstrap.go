// Package bootstrap assembles the api service's dependencies from config so
// the HTTP server and the floodctl CLI share one wiring path.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"floodwatch/internal/ratelimit"
	"floodwatch/internal/security"
	"floodwatch/internal/util"
	"floodwatch/pkg/govfeed"
	"floodwatch/pkg/reconcile"
	"floodwatch/pkg/scheduler"
	"floodwatch/pkg/storage"
	"floodwatch/pkg/store"
	"floodwatch/services/api/internal/app"
	"floodwatch/services/api/internal/config"
	"floodwatch/services/api/internal/server"
)

const (
	defaultLoginPerMinute    = 10
	defaultRegisterPerMinute = 5
)

// Runtime holds constructed dependencies and the resources to release.
type Runtime struct {
	Config config.FileConfig
	Logger *slog.Logger
	Store  store.Store
	Engine *reconcile.Engine
	App    *app.App

	loginLimiter    *ratelimit.FixedWindowLimiter
	registerLimiter *ratelimit.FixedWindowLimiter
	alerter         *security.AuditAlerter
	closers         []func() error
}

// Build connects to Postgres and, when configured, Redis and MinIO. The store
// is pinged before Build returns.
func Build(ctx context.Context, cfg config.FileConfig, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = rt.Close()
		}
	}()

	sessionTTL, err := config.ParseDuration(cfg.SessionTTL, store.DefaultSessionTTL)
	if err != nil {
		return nil, err
	}
	sessions, err := store.NewJWTSessionStore(cfg.JWTSecret, sessionTTL, store.JWTOptions{
		Issuer:           cfg.JWTIssuer,
		AllowShortSecret: cfg.IsDevelopment(),
	})
	if err != nil {
		return nil, fmt.Errorf("init sessions: %w", err)
	}

	gormStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	rt.Store = gormStore
	rt.closers = append(rt.closers, gormStore.Close)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = gormStore.Ping(pingCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("ping store: %w", err)
	}

	var guard reconcile.Guard
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		redisGuard, err := reconcile.NewRedisGuard(cfg.RedisAddr, cfg.RedisPassword, "")
		if err != nil {
			return nil, fmt.Errorf("init sync guard: %w", err)
		}
		guard = redisGuard
		rt.closers = append(rt.closers, redisGuard.Close)
		if err := rt.initLimiters(); err != nil {
			return nil, err
		}
		rt.alerter, err = security.NewAuditAlerter(cfg.RedisAddr, cfg.RedisPassword, "")
		if err != nil {
			return nil, fmt.Errorf("init security alerter: %w", err)
		}
		rt.closers = append(rt.closers, rt.alerter.Close)
	} else {
		logger.Warn("redis not configured, sync lease is process-local and rate limiting is off")
	}

	feedTimeout, err := config.ParseDuration(cfg.FeedTimeout, govfeed.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	rt.Engine = reconcile.New(rt.Store, govfeed.NewClient(cfg.GovAPIKey, feedTimeout), guard, reconcile.Config{
		FloodURL:   cfg.GovFloodAPIURL,
		ShelterURL: cfg.GovShelterAPIURL,
	})

	var photos storage.ObjectStore
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioStore, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("init photo storage: %w", err)
		}
		photos = minioStore
	} else {
		logger.Info("object storage not configured, photo uploads disabled")
	}

	rt.App, err = app.New(app.Config{
		Store:       rt.Store,
		Sessions:    sessions,
		Engine:      rt.Engine,
		Photos:      photos,
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("init app: %w", err)
	}
	ok = true
	return rt, nil
}

func (rt *Runtime) initLimiters() error {
	login := rt.Config.LoginRateLimitPerMinute
	if login == 0 {
		login = defaultLoginPerMinute
	}
	register := rt.Config.RegisterRateLimitPerMinute
	if register == 0 {
		register = defaultRegisterPerMinute
	}
	var err error
	rt.loginLimiter, err = ratelimit.NewRedisFixedWindowLimiter(rt.Config.RedisAddr, rt.Config.RedisPassword, "", login, time.Minute)
	if err != nil {
		return fmt.Errorf("init login limiter: %w", err)
	}
	rt.closers = append(rt.closers, rt.loginLimiter.Close)
	rt.registerLimiter, err = ratelimit.NewRedisFixedWindowLimiter(rt.Config.RedisAddr, rt.Config.RedisPassword, "", register, time.Minute)
	if err != nil {
		return fmt.Errorf("init register limiter: %w", err)
	}
	rt.closers = append(rt.closers, rt.registerLimiter.Close)
	return nil
}

// ServerConfig returns the HTTP server wiring. Limiters and the alerter are
// left nil when Redis is not configured.
func (rt *Runtime) ServerConfig() (server.Config, error) {
	trusted, err := util.NewTrustedProxies(rt.Config.TrustedProxyCIDRs)
	if err != nil {
		return server.Config{}, fmt.Errorf("trusted proxies: %w", err)
	}
	cfg := server.Config{
		App:            rt.App,
		AllowedOrigins: rt.Config.AllowedOrigins,
		TrustedProxies: trusted,
	}
	if rt.loginLimiter != nil {
		cfg.LoginLimiter = rt.loginLimiter
	}
	if rt.registerLimiter != nil {
		cfg.RegisterLimiter = rt.registerLimiter
	}
	if rt.alerter != nil {
		cfg.Alerter = rt.alerter
	}
	return cfg, nil
}

// Scheduler builds the periodic flood and shelter sync jobs.
func (rt *Runtime) Scheduler(now time.Time) (*scheduler.Supervisor, error) {
	floodRule, err := scheduler.ParseRule(orDefault(rt.Config.FloodSyncRule, scheduler.Hourly), now)
	if err != nil {
		return nil, fmt.Errorf("flood sync rule: %w", err)
	}
	shelterRule, err := scheduler.ParseRule(orDefault(rt.Config.ShelterSyncRule, scheduler.EveryTwoHours), now)
	if err != nil {
		return nil, fmt.Errorf("shelter sync rule: %w", err)
	}
	return scheduler.New(rt.Logger,
		rt.syncJob("flood-sync", floodRule, rt.Engine.SyncFloods),
		rt.syncJob("shelter-sync", shelterRule, rt.Engine.SyncShelters),
	), nil
}

func (rt *Runtime) syncJob(name string, rule *rrule.RRule, sync func(context.Context) reconcile.Result) scheduler.Job {
	logger := rt.Logger.With("job", name)
	return scheduler.Job{
		Name: name,
		Rule: rule,
		Run: func(ctx context.Context) {
			ctx = util.ContextWithLogger(ctx, logger)
			sync(reconcile.WithTrigger(ctx, reconcile.TriggerSchedule))
		},
	}
}

// Close releases every resource Build opened, newest first.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
