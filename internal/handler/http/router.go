package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hotelkalsubai/backend/internal/auth"
	"github.com/hotelkalsubai/backend/internal/domain"
	"github.com/hotelkalsubai/backend/internal/service"
	"github.com/hotelkalsubai/backend/pkg/health"
	"github.com/hotelkalsubai/backend/pkg/middleware"
)

// NewRouter creates a chi router with all account service routes registered.
func NewRouter(
	authService *service.AuthService,
	userService *service.UserService,
	jwtManager *auth.JWTManager,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsConfig CORSConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("account"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Auth and recovery endpoints (public)
	authHandler := NewAuthHandler(authService, logger)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/forgot-password", authHandler.ForgotPassword)
		r.Post("/reset-password", authHandler.ResetPassword)
		r.Post("/request-otp", authHandler.RequestOTP)
		r.Post("/verify-otp", authHandler.VerifyOTP)
		r.Post("/google", authHandler.GoogleLogin)
		r.Post("/facebook", authHandler.FacebookLogin)
	})

	// Token validator that bridges to our internal JWTManager.
	tokenValidator := func(token string) (*middleware.Claims, error) {
		claims, err := jwtManager.Verify(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{
			UserID:   claims.UserID,
			Username: claims.Username,
			Email:    claims.Email,
			Roles:    claims.Roles,
		}, nil
	}

	// Administrative user management (ADMIN role required)
	adminHandler := NewAdminHandler(userService, authService, logger)
	r.Route("/api/v1/admin/users", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(tokenValidator))
		r.Use(middleware.RequireRole(domain.RoleAdmin))

		r.Get("/", adminHandler.ListUsers)
		r.Post("/", adminHandler.CreateAdminUser)
		r.Get("/{id}", adminHandler.GetUser)
		r.Put("/{id}/role", adminHandler.UpdateUserRole)
		r.Delete("/{id}", adminHandler.DeleteUser)
	})

	return r
}
