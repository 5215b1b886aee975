package server

import (
	"net/http"

	"github.com/marcogenualdo/qf-auth/internal/auth"
	"github.com/marcogenualdo/qf-auth/internal/handlers"
	"github.com/marcogenualdo/qf-auth/internal/metrics"
	"github.com/marcogenualdo/qf-auth/internal/middleware"
	"github.com/marcogenualdo/qf-auth/internal/proxy"
)

// Handler builds the routed handler with the full middleware chain.
func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	pendingCodec, err := auth.NewPendingCodec(s.cfg.Server, s.cfg.OAuth.CookieSecret)
	if err != nil {
		return nil, err
	}
	sessionCodec, err := auth.NewSessionCodec(s.cfg.Server, s.cfg.OAuth.CookieSecret)
	if err != nil {
		return nil, err
	}

	coordinator := auth.NewRefreshCoordinator(s.provider, s.cfg.OAuth.TokenTimeout, s.metrics, s.logger)
	resourceClient := &http.Client{Timeout: s.cfg.Backend.Timeout}
	gateway := proxy.NewGateway(s.cfg.OAuth, resourceClient, coordinator, s.metrics, s.logger)

	sessionMiddleware := middleware.NewSessionMiddleware(sessionCodec, coordinator, s.logger)

	loginHandler := handlers.NewLoginHandler(s.cfg, pendingCodec, s.provider, s.metrics, s.logger)
	callbackHandler := handlers.NewCallbackHandler(s.cfg, pendingCodec, sessionCodec,
		auth.NewReplayGuard(s.cache), s.provider, s.metrics, s.logger)
	logoutHandler := handlers.NewLogoutHandler(s.cfg, sessionCodec, s.logger)
	sessionHandler := handlers.NewSessionHandler(sessionCodec)
	userHandler := handlers.NewUserHandler(gateway, sessionCodec, s.logger)
	healthHandler := handlers.NewHealthHandler(s.cfg, s.cache, s.logger)

	limit := func(h http.Handler) http.Handler { return h }
	if s.cfg.RateLimit.Enabled() {
		if s.rateLimiter == nil {
			s.rateLimiter = middleware.NewRateLimiter(s.cfg.RateLimit, s.logger)
		}
		limit = s.rateLimiter.Middleware
	}

	mux.Handle("GET /api/auth/login", limit(loginHandler))
	mux.Handle("GET /api/auth/callback", limit(callbackHandler))
	mux.Handle("GET /api/auth/logout", logoutHandler)
	mux.Handle("POST /api/auth/logout", logoutHandler)
	mux.Handle("GET /api/auth/session", sessionHandler)

	mux.Handle("GET /api/user/profile",
		sessionMiddleware.RequireSession(handlers.ProfileSignInMessage)(http.HandlerFunc(userHandler.Profile)))
	mux.Handle("GET /api/user/collections",
		sessionMiddleware.RequireSession(handlers.CollectionsSignInMessage)(http.HandlerFunc(userHandler.Collections)))

	mux.Handle("GET /health", healthHandler)
	mux.Handle("GET /metrics", metrics.Handler(s.gatherer))

	handler := middleware.RequestID(
		middleware.Recovery(s.logger)(
			middleware.Logging(s.logger)(
				addSecurityHeaders(mux),
			),
		),
	)

	return handler, nil
}

func addSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}
