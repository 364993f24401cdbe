// Package pipremium предоставляет маршруты и сборку основного приложения.
package pipremium

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/mirfateev/pi-premium/internal/http/handlers/auth/verify"
	"github.com/mirfateev/pi-premium/internal/http/handlers/health"
	"github.com/mirfateev/pi-premium/internal/http/handlers/payment/approve"
	"github.com/mirfateev/pi-premium/internal/http/handlers/payment/complete"
	"github.com/mirfateev/pi-premium/internal/http/handlers/user/status"
	"github.com/mirfateev/pi-premium/internal/http/middlewarectx"
	applibjwt "github.com/mirfateev/pi-premium/internal/lib/jwt"
	identityservice "github.com/mirfateev/pi-premium/internal/services/identity"
	paymentservice "github.com/mirfateev/pi-premium/internal/services/payment"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, jwtMaker applibjwt.Maker,
	identityService *identityservice.Service, paymentService *paymentservice.Service) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытая конечная точка: вход по токену доступа сети Pi
		r.Post("/auth/verify", verify.New(logger, identityService).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(jwtMaker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/payments/approve", approve.New(logger, paymentService).ServeHTTP)
			r.Post("/payments/complete", complete.New(logger, paymentService).ServeHTTP)
			r.Get("/users/me", status.New(logger, identityService).ServeHTTP)
			r.Get("/users/{uid}", status.New(logger, identityService).ServeHTTP)
		})
	})

	r.Get("/health", health.New())
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
