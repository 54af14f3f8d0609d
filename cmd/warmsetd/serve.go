package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"warmsetd/internal/config"
	"warmsetd/internal/httpapi"
	"warmsetd/internal/manager"
	"warmsetd/internal/registry"
	"warmsetd/internal/repo"
	"warmsetd/internal/snapshot"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var flags config.Config
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP daemon",
		Example: "  warmsetd serve --repo-dir ~/models --bind llama-7b-novaq\n" +
			"  warmsetd serve -c /etc/warmsetd.yaml --addr :9090",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(opts.configPath, os.LookupEnv, flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, newLogger(cfg.LogLevel))
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.Addr, "addr", "", "HTTP listen address, e.g. :8080")
	f.StringVar(&flags.RepoURL, "repo-url", "", "Base URL of the model repository")
	f.StringVar(&flags.RepoDir, "repo-dir", "", "Directory serving models as <model>/manifest.* and <model>/chunks/")
	f.IntVar(&flags.RepoTimeoutSeconds, "repo-timeout-seconds", 0, "Per-request timeout for the HTTP repository")
	f.Int64Var(&flags.CacheBudgetBytes, "cache-budget-bytes", 0, "Byte budget of the chunk cache")
	f.Uint32Var(&flags.PrefetchDepth, "prefetch-depth", 0, "Chunks fetched by bind before the binding is committed")
	f.IntVar(&flags.DefaultMaxTokens, "default-max-tokens", 0, "Token count when a request omits max_tokens (1-256)")
	f.BoolVar(&flags.BlockOnQualityFailure, "block-on-quality-failure", false, "Reject generation when the bound model fails the quality gate")
	f.StringVar(&flags.BindOnStart, "bind", "", "Model to bind at startup")
	f.StringVar(&flags.SnapshotPath, "snapshot", "", "SQLite file for the warm-set snapshot (restored on start, written on shutdown)")
	f.StringVar(&flags.LogLevel, "log-level", "", "Log level: trace|debug|info|warn|error|off")
	f.Int64Var(&flags.MaxBodyBytes, "max-body-bytes", 0, "Maximum JSON request body size")
	f.IntVar(&flags.RequestTimeoutSeconds, "request-timeout-seconds", 0, "Timeout for bind, prefetch and generate requests (0 disables)")
	f.BoolVar(&flags.CORSEnabled, "cors", false, "Enable CORS")
	f.StringSliceVar(&flags.CORSAllowedOrigins, "cors-origins", nil, "Allowed CORS origins")
	f.StringSliceVar(&flags.CORSAllowedMethods, "cors-methods", nil, "Allowed CORS methods")
	f.StringSliceVar(&flags.CORSAllowedHeaders, "cors-headers", nil, "Allowed CORS headers")
	return cmd
}

// resolveConfig layers defaults, WARMSETD_* environment, the config file and
// finally explicit flags, then validates the result.
func resolveConfig(path string, lookup func(string) (string, bool), flags config.Config) (config.Config, error) {
	cfg := config.Defaults()
	env, err := config.FromEnv(lookup)
	if err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	cfg = config.Merge(cfg, env)
	if path != "" {
		file, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = config.Merge(cfg, file)
	}
	cfg = config.Merge(cfg, flags)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openRepo returns the configured repository, or nil when none is configured.
func openRepo(cfg config.Config) (repo.Client, error) {
	switch {
	case cfg.RepoURL != "":
		hc := &http.Client{Timeout: time.Duration(cfg.RepoTimeoutSeconds) * time.Second}
		return repo.NewHTTPClient(cfg.RepoURL, hc), nil
	case cfg.RepoDir != "":
		d, err := registry.Open(cfg.RepoDir)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, nil
	}
}

// service adds the recent-event view to the manager for GET /events.
type service struct {
	*manager.Manager
	*manager.MemoryPublisher
}

func newService(cfg config.Config, log zerolog.Logger) (service, error) {
	client, err := openRepo(cfg)
	if err != nil {
		return service{}, fmt.Errorf("open repository: %w", err)
	}
	ring := manager.NewRingPublisher(256)
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Repo:                  client,
		CacheBudgetBytes:      cfg.CacheBudgetBytes,
		PrefetchDepth:         cfg.PrefetchDepth,
		DefaultMaxTokens:      cfg.DefaultMaxTokens,
		BlockOnQualityFailure: cfg.BlockOnQualityFailure,
		Logger:                &log,
		Publisher:             ring,
	})
	return service{Manager: mgr, MemoryPublisher: ring}, nil
}

func configureHTTP(cfg config.Config, log zerolog.Logger) {
	httpapi.SetLogger(log)
	httpapi.SetDefaultRequestLogLevel(requestLogLevel(cfg.LogLevel))
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetRequestTimeoutSeconds(int64(cfg.RequestTimeoutSeconds))
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSAllowedOrigins, cfg.CORSAllowedMethods, cfg.CORSAllowedHeaders)
}

func runServe(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	svc, err := newService(cfg, log)
	if err != nil {
		return err
	}
	if err := prometheus.Register(manager.NewCollector(svc.Manager)); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if cfg.RepoURL == "" && cfg.RepoDir == "" {
		log.Warn().Msg("no repository configured; bind will fail until one is set")
	}

	var store *snapshot.Store
	if cfg.SnapshotPath != "" {
		store, err = snapshot.Open(cfg.SnapshotPath)
		if err != nil {
			return err
		}
		defer store.Close()
		restored, err := store.Restore(ctx, svc.Manager)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.SnapshotPath).Msg("snapshot restore failed")
		} else if restored {
			log.Info().Str("path", cfg.SnapshotPath).Int("entries", svc.Manager.Cache().Len()).Msg("snapshot restored")
		}
	}

	if cfg.BindOnStart != "" && !svc.Manager.Ready() {
		if err := svc.Manager.Bind(ctx, cfg.BindOnStart); err != nil {
			log.Error().Err(err).Str("model_id", cfg.BindOnStart).Msg("bind on start failed")
		}
	}

	configureHTTP(cfg, log)
	httpapi.SetBaseContext(ctx)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Msg("warmsetd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown error")
		}
		return nil
	})
	err = g.Wait()

	if store != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if perr := store.Persist(sctx, svc.Manager); perr != nil {
			log.Error().Err(perr).Str("path", cfg.SnapshotPath).Msg("snapshot write failed")
		} else {
			log.Info().Str("path", cfg.SnapshotPath).Msg("snapshot written")
		}
	}
	return err
}
