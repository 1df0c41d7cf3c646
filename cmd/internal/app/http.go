package app

import (
	"net/http"
	"time"

	authapi "calcsync/cmd/internal/auth/api"
	"calcsync/cmd/internal/httpjson"
	"calcsync/cmd/internal/realtime"
	"calcsync/cmd/internal/records"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// routes is everything the router needs. Nil pool or rdb means the
// dependency is not configured.
type routes struct {
	log      Logger
	cfg      Config
	pool     *pgxpool.Pool
	rdb      *redis.Client
	relay    bool
	gateway  *realtime.Gateway
	registry *realtime.Registry
	auth     *authapi.Handler
	records  *records.Handler
	metrics  *prometheus.Registry
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Identities  int    `json:"identities"`
	Database    bool   `json:"database"`
	Redis       bool   `json:"redis"`
	Relay       bool   `json:"relay"`
}

func newRouter(d routes) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/readyz", d.readyz)
	r.Handle("/metrics", promhttp.HandlerFor(d.metrics, promhttp.HandlerOpts{}))

	r.Get("/ws", d.gateway.ServeHTTP)
	r.Get("/ws/{userID}", d.gateway.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", d.health)
		d.auth.Routes(r)
		r.Group(func(r chi.Router) {
			r.Use(d.auth.RequireUser)
			d.records.Routes(r)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpjson.Error(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpjson.Error(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	var h http.Handler = r
	h = WithCORS(h, d.cfg, d.log)
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, d.log)
	h = WithRecover(h, d.log)
	h = WithRequestID(h)
	return h
}

func (d routes) readyz(w http.ResponseWriter, r *http.Request) {
	if d.cfg.ReadinessRequireDB && d.pool == nil {
		http.Error(w, "db not configured", http.StatusServiceUnavailable)
		return
	}
	if d.pool != nil {
		if err := PingDB(r.Context(), d.pool, 2*time.Second); err != nil {
			d.log.Info("readyz.db.not_ready", "err", err)
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	}
	if d.rdb != nil {
		if err := PingRedis(r.Context(), d.rdb, 2*time.Second); err != nil {
			d.log.Info("readyz.redis.not_ready", "err", err)
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}

func (d routes) health(w http.ResponseWriter, _ *http.Request) {
	httpjson.Write(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Connections: d.registry.Total(),
		Identities:  len(d.registry.Identities()),
		Database:    d.pool != nil,
		Redis:       d.rdb != nil,
		Relay:       d.relay,
	})
}
