// Package app wires the calcsync server runtime: config, logging, storage,
// HTTP routes and the realtime gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"calcsync/cmd/identity"
	authapi "calcsync/cmd/internal/auth/api"
	"calcsync/cmd/internal/auth/session"
	"calcsync/cmd/internal/fanout"
	"calcsync/cmd/internal/invite"
	"calcsync/cmd/internal/realtime"
	"calcsync/cmd/internal/records"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const loginCounterPrefix = "calcsync:login:"

// App is the calcsync server runtime.
type App struct {
	cfg Config
	log Logger

	pool *pgxpool.Pool
	rdb  *redis.Client

	registry *realtime.Registry
	relay    *fanout.RedisRelay
	handler  http.Handler
}

// New connects the configured backends and builds the HTTP handler.
func New(ctx context.Context, cfg Config, log Logger) (_ *App, err error) {
	a := &App{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.DatabaseURL != "" {
		if a.pool, err = NewDBPool(ctx, cfg); err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		log.Info("db.enabled", "schema", cfg.DBSchema)
	} else {
		log.Info("db.disabled.inmemory_store")
	}
	if cfg.RedisURL != "" {
		if a.rdb, err = NewRedisClient(ctx, cfg.RedisURL); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		log.Info("redis.enabled", "relay", cfg.RelayEnabled)
	}

	users, err := a.userStore(ctx)
	if err != nil {
		return nil, err
	}
	hasher := a.hasher()
	if _, _, err := identity.EnsureAdmin(ctx, users, hasher, identity.AdminAccount{
		Username: cfg.Admin.Username,
		Password: cfg.Admin.Password,
		Email:    cfg.Admin.Email,
	}, log); err != nil {
		return nil, err
	}

	codec, err := session.NewCodec(cfg.Auth)
	if err != nil {
		return nil, err
	}
	verifier := session.NewVerifier(codec, users, nil)

	rtMetrics := realtime.NewMetrics(metrics)
	a.registry = realtime.NewRegistry(log, rtMetrics)
	disp := realtime.NewDispatcher(a.registry, log, rtMetrics)
	ctrl := realtime.NewController(verifier, a.registry, disp, log, rtMetrics, realtime.ControllerOptions{
		SendQueueSize: cfg.WS.SendQueueSize,
	})
	gateway := realtime.NewGateway(log, ctrl, realtime.GatewayConfig{
		OriginRequired:    cfg.WS.OriginRequired,
		AllowedOrigins:    cfg.WS.AllowedOrigins,
		DevInsecure:       cfg.WS.DevInsecure,
		WriteTimeout:      cfg.WS.WriteTimeout,
		ReadIdleTimeout:   cfg.WS.ReadIdleTimeout,
		HeartbeatInterval: cfg.WS.HeartbeatInterval,
		HeartbeatTimeout:  cfg.WS.HeartbeatTimeout,
	})

	var pub fanout.Publisher = fanout.NewLocal(disp)
	if a.rdb != nil && cfg.RelayEnabled {
		a.relay = fanout.NewRedisRelay(a.rdb, disp, log, metrics)
		pub = a.relay
	}

	recStore, err := a.recordStore(ctx)
	if err != nil {
		return nil, err
	}
	recHandler := records.NewHandler(records.NewService(recStore, pub, nil, log), log, cfg.AuthAPI.MaxBodyBytes)

	invites, err := a.inviteService(ctx)
	if err != nil {
		return nil, err
	}

	authOpts := []authapi.HandlerOption{authapi.WithHasher(hasher), authapi.WithInvites(invites)}
	if a.rdb != nil {
		authOpts = append(authOpts, authapi.WithFailureCounter(authapi.NewRedisCounter(a.rdb, loginCounterPrefix)))
	}
	authHandler, err := authapi.NewHandler(log, users, codec, verifier, cfg.AuthAPI, authOpts...)
	if err != nil {
		return nil, err
	}

	a.handler = newRouter(routes{
		log:      log,
		cfg:      cfg,
		pool:     a.pool,
		rdb:      a.rdb,
		relay:    a.relay != nil,
		gateway:  gateway,
		registry: a.registry,
		auth:     authHandler,
		records:  recHandler,
		metrics:  metrics,
	})
	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

func (a *App) userStore(ctx context.Context) (identity.Store, error) {
	var users identity.Store
	if a.pool != nil {
		pg, err := identity.NewPostgresStore(a.pool, identity.WithSchema(a.cfg.DBSchema))
		if err != nil {
			return nil, err
		}
		if err := ensureSchema(ctx, "identity", pg); err != nil {
			return nil, err
		}
		users = pg
	} else {
		users = identity.NewMemoryStore()
	}
	if a.rdb != nil && a.cfg.UserCacheTTL > 0 {
		users = identity.NewCachedStore(users, a.rdb, a.cfg.UserCacheTTL, a.log)
	}
	return users, nil
}

func (a *App) recordStore(ctx context.Context) (records.Store, error) {
	if a.pool == nil {
		return records.NewMemoryStore(), nil
	}
	pg, err := records.NewPostgresStore(a.pool, records.WithSchema(a.cfg.DBSchema))
	if err != nil {
		return nil, err
	}
	if err := ensureSchema(ctx, "records", pg); err != nil {
		return nil, err
	}
	return pg, nil
}

func (a *App) inviteService(ctx context.Context) (*invite.Service, error) {
	var store invite.Store = invite.NewMemoryStore()
	if a.pool != nil {
		pg, err := invite.NewPostgresStore(a.pool, invite.WithSchema(a.cfg.DBSchema))
		if err != nil {
			return nil, err
		}
		if err := ensureSchema(ctx, "invite", pg); err != nil {
			return nil, err
		}
		store = pg
	}

	var opts []invite.Option
	if key := a.cfg.AuthAPI.InviteHashKey; key != "" {
		opts = append(opts, invite.WithHashKey([]byte(key)))
	}
	return invite.NewService(store, opts...)
}

func (a *App) hasher() identity.Hasher {
	h := identity.DefaultHasher()
	if v := a.cfg.Argon2.MemoryKiB; v > 0 {
		h.Params.MemoryKiB = v
	}
	if v := a.cfg.Argon2.Iterations; v > 0 {
		h.Params.Iterations = v
	}
	if v := a.cfg.Argon2.Parallelism; v > 0 {
		h.Params.Parallelism = v
	}
	return h
}

// Run serves HTTP and the relay subscriber until ctx is cancelled or one of
// them fails, then shuts down gracefully and releases the backends.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.pool != nil, "relay", a.relay != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	if a.relay != nil {
		g.Go(func() error { return a.relay.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	err := g.Wait()
	if err != nil {
		a.log.Error("server.fail", "err", err)
		return err
	}
	a.log.Info("server.stopped", "open_channels", a.registry.Total())
	return nil
}

func (a *App) close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn("redis.close.fail", "err", err)
		}
		a.rdb = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}
