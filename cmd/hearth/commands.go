package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hearthfire/hearth/internal/auth"
	"github.com/hearthfire/hearth/internal/config"
	"github.com/hearthfire/hearth/internal/engine"
	"github.com/hearthfire/hearth/internal/llm"
	"github.com/hearthfire/hearth/internal/observability"
	"github.com/hearthfire/hearth/internal/plugins"
	"github.com/hearthfire/hearth/internal/sessions"
	"github.com/hearthfire/hearth/internal/tools"
	"github.com/hearthfire/hearth/internal/web"
	"github.com/hearthfire/hearth/pkg/models"
)

// shutdownGrace bounds how long accepted turns may drain on shutdown.
const shutdownGrace = 30 * time.Second

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "hearth",
		Short:        "Local-first messaging gateway for chat-completion backends",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCommand(), newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gateway version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "hearth", web.Version)
		},
	}
}

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics(nil)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	router, err := llm.NewRouter(&cfg.LLM)
	if err != nil {
		return err
	}
	cache := llm.NewCacheManager(&cfg.LLM.Cache)
	client := llm.NewClient(&cfg.LLM)

	registry := tools.NewRegistry()
	registry.OnChange(func(name string, removed bool) {
		for source, count := range registry.CountBySource() {
			metrics.RegistryTools.WithLabelValues(string(source)).Set(float64(count))
		}
		logger.Info(ctx, "tool registry changed", "tool", name, "removed", removed)
	})

	if err := tools.RegisterBuiltins(registry, store); err != nil {
		return fmt.Errorf("register builtins: %w", err)
	}
	if err := plugins.Apply(registry); err != nil {
		return fmt.Errorf("register plugins: %w", err)
	}
	if cfg.Tools.UserDir != "" {
		for path, err := range tools.LoadDir(cfg.Tools.UserDir, registry) {
			logger.Warn(ctx, "skill file rejected at startup", "path", path, "error", err)
		}
	}

	policy := tools.NewPolicyEngine(cfg.Tools.Policies, cfg.Tools.Categories)
	executor := tools.NewExecutor(registry, policy, nil, logger, metrics)

	eng := engine.New(store, client, router, cache, registry, executor, policy, logger, metrics, engine.Config{
		MaxIterations: cfg.Engine.MaxIterations,
		TurnTimeout:   time.Duration(cfg.Engine.TurnTimeoutSecs) * time.Second,
		HistoryWindow: cfg.Sessions.HistoryWindow,
	})

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tools.UserDir != "" && cfg.Tools.Watch {
		watcher := tools.NewWatcher(cfg.Tools.UserDir, registry, logger)
		if err := watcher.Start(runCtx); err != nil {
			logger.Warn(runCtx, "skill watcher unavailable", "error", err)
		}
	}

	server := web.NewServer(eng, auth.NewService(cfg.Server.Tokens), logger, metrics, cfg.Tools.UserDir)
	server.SetRequestTimeout(time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(runCtx, "gateway listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-runCtx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	graceCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := eng.Shutdown(graceCtx); err != nil {
		logger.Warn(context.Background(), "turns did not drain", "error", err)
	}
	return httpServer.Shutdown(graceCtx)
}

func openStore(cfg *config.Config) (sessions.Store, error) {
	scope := models.Scope(cfg.Sessions.Scope)
	if cfg.Sessions.DatabasePath == "" {
		return sessions.NewMemoryStore(scope), nil
	}
	store, err := sessions.NewSQLiteStore(cfg.Sessions.DatabasePath, scope)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return store, nil
}
