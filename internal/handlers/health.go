package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/marcogenualdo/qf-auth/internal/cache"
	"github.com/marcogenualdo/qf-auth/internal/config"
)

type HealthHandler struct {
	cfg       config.Config
	cache     cache.Cache
	logger    *slog.Logger
	startTime time.Time
}

func NewHealthHandler(cfg config.Config, cache cache.Cache, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		cfg:       cfg,
		cache:     cache,
		logger:    logger,
		startTime: time.Now(),
	}
}

type HealthResponse struct {
	Status string      `json:"status"`
	Uptime string      `json:"uptime"`
	Cache  CacheHealth `json:"cache"`
	OAuth  OAuthHealth `json:"oauth"`
}

type CacheHealth struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type OAuthHealth struct {
	Env        string `json:"env"`
	AuthBase   string `json:"auth_base_url"`
	APIBase    string `json:"api_base_url"`
	ClientAuth string `json:"client_auth"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status: "healthy",
		Uptime: time.Since(h.startTime).String(),
		OAuth: OAuthHealth{
			Env:        string(h.cfg.OAuth.Env),
			AuthBase:   h.cfg.OAuth.AuthBaseURL,
			APIBase:    h.cfg.OAuth.APIBaseURL,
			ClientAuth: h.cfg.OAuth.ClientAuth.String(),
		},
	}

	response.Cache.Type = h.cfg.Cache.Type
	if err := h.checkCache(ctx); err != nil {
		h.logger.Warn("cache health check failed", "error", err)
		response.Cache.Status = "error: " + err.Error()
		response.Status = "degraded"
	} else {
		response.Cache.Status = "connected"
	}

	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func (h *HealthHandler) checkCache(ctx context.Context) error {
	if err := h.cache.Ping(ctx); err != nil {
		return err
	}
	if err := h.cache.Set(ctx, "health:check", []byte("ok"), time.Minute); err != nil {
		return err
	}
	if _, err := h.cache.Get(ctx, "health:check"); err != nil {
		return err
	}
	return h.cache.Delete(ctx, "health:check")
}
