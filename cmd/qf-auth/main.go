package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/marcogenualdo/qf-auth/internal/auth/oidc"
	"github.com/marcogenualdo/qf-auth/internal/cache"
	"github.com/marcogenualdo/qf-auth/internal/config"
	"github.com/marcogenualdo/qf-auth/internal/metrics"
	"github.com/marcogenualdo/qf-auth/internal/server"
)

const (
	version           = "1.0.0"
	defaultConfigPath = "/etc/qf-auth/config.yaml"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	configPathShort := flag.String("c", defaultConfigPath, "path to configuration file (short)")
	showVersion := flag.Bool("version", false, "show version and exit")
	showHelp := flag.Bool("help", false, "show help and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("qf-auth v%s\n", version)
		os.Exit(0)
	}

	if *showHelp {
		fmt.Println("qf-auth - Quran Foundation OAuth2 PKCE sign-in and session service")
		fmt.Println("\nUsage:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfgPath := *configPath
	if *configPathShort != defaultConfigPath {
		cfgPath = *configPathShort
	}

	if err := run(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	if err := config.LoadDotEnv(".env.local", ".env"); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info("starting qf-auth",
		"version", version,
		"qf_env", cfg.OAuth.Env,
		"client_auth", cfg.OAuth.ClientAuth.String(),
	)

	cacheInstance, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}
	logger.Info("cache initialized", "type", cfg.Cache.Type)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(registry)

	provider, err := oidc.NewProvider(context.Background(), cfg.OAuth, recorder)
	if err != nil {
		return fmt.Errorf("failed to create OAuth provider: %w", err)
	}
	logger.Info("oauth provider initialized",
		"auth_base_url", cfg.OAuth.AuthBaseURL,
		"verify_id_token", cfg.OAuth.VerifyIDToken,
	)

	srv, err := server.New(*cfg, cacheInstance, provider, recorder, registry, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
