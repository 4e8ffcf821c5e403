package main

import (
	"context"
	"net/http"

	"github.com/BaSui01/dailycrew/api/handlers"
	"github.com/BaSui01/dailycrew/config"
	"github.com/BaSui01/dailycrew/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// publicPaths 不需要认证的端点
var publicPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

// routes 路由依赖
type routes struct {
	health    *handlers.HealthHandler
	events    *handlers.EventHandler
	users     *handlers.UserHandler
	websocket http.Handler
	metrics   HTTPRecorder
}

// newRouter 构建 API 路由与中间件链。ctx 控制限流器的后台清理。
func newRouter(ctx context.Context, sc config.ServerConfig, rt routes, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		Recovery(logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(logger),
		OTelTracing(),
	)
	if rt.metrics != nil {
		r.Use(MetricsMiddleware(rt.metrics))
	}
	r.Use(
		CORS(sc.CORSAllowedOrigins),
		Auth(sc, publicPaths, logger),
		RateLimiter(ctx, float64(sc.RateLimitRPS), sc.RateLimitBurst, logger),
	)

	r.Get("/health", rt.health.HandleHealth)
	r.Get("/healthz", rt.health.HandleHealth)
	r.Get("/ready", rt.health.HandleReady)
	r.Get("/readyz", rt.health.HandleReady)
	r.Get("/version", rt.health.HandleVersion)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/events", rt.events.HandleEvent)
		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/", rt.users.HandleGet)
			r.Patch("/preferences", rt.users.HandlePreferences)
			r.Put("/integrations/{kind}", rt.users.HandleIntegration)
		})
		if rt.websocket != nil {
			r.Get("/ws", rt.websocket.ServeHTTP)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteErrorMessage(w, r, http.StatusNotFound, types.ErrNotFound, "route not found", logger)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", logger)
	})
	return r
}
