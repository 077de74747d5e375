// flowbot server — receives chat-vendor webhooks, matches events to
// scenarios, and executes their steps.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/flowbotio/flowbot/pkg/actions"
	"github.com/flowbotio/flowbot/pkg/api"
	"github.com/flowbotio/flowbot/pkg/cache"
	"github.com/flowbotio/flowbot/pkg/chat"
	"github.com/flowbotio/flowbot/pkg/config"
	"github.com/flowbotio/flowbot/pkg/scenario"
	"github.com/flowbotio/flowbot/pkg/scheduler"
	"github.com/flowbotio/flowbot/pkg/storage"
	"github.com/flowbotio/flowbot/pkg/tasks"
	"github.com/flowbotio/flowbot/pkg/tenant"
	"github.com/flowbotio/flowbot/pkg/userstate"
	"github.com/flowbotio/flowbot/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func main() {
	configPath := flag.String("config",
		getEnv("CONFIG_PATH", "flowbot.yaml"),
		"Path to configuration file")
	flag.Parse()

	log := newLogger()
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil {
		log.Warn("could not load .env file, continuing with existing environment", "error", err)
	}

	log.Info("starting flowbot",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Load(*configPath, log)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Tenant and user state repositories. With DB_HOST set the bot
	// directory and user state persist in Postgres; otherwise the static
	// tenants file serves lookups and user state is cache-only.
	var (
		tenantRepo storage.TenantRepository
		stateRepo  storage.UserStateRepository
	)
	if os.Getenv("DB_HOST") != "" {
		dbCfg, err := storage.LoadConfigFromEnv()
		if err != nil {
			log.Error("failed to load database config", "error", err)
			os.Exit(1)
		}
		pool, err := storage.NewPool(ctx, dbCfg)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		repo := storage.NewPostgresRepository(pool)
		tenantRepo, stateRepo = repo, repo
		log.Info("connected to postgres", "host", dbCfg.Host, "database", dbCfg.Database)
	} else {
		if cfg.TenantsConfigPath == "" {
			log.Error("no database configured and tenants_config_path is empty")
			os.Exit(1)
		}
		static, err := storage.LoadStaticRepository(cfg.TenantsConfigPath)
		if err != nil {
			log.Error("failed to load tenants config", "error", err)
			os.Exit(1)
		}
		tenantRepo = static
		log.Info("loaded static tenants config", "path", cfg.TenantsConfigPath)
	}

	// 3. Cache, tenant directory, user state
	cacheMgr := cache.NewManager(&cfg.Cache)
	defer cacheMgr.Shutdown()

	tenants := tenant.NewDirectory(cacheMgr, tenantRepo, log)
	states := userstate.NewManager(cacheMgr, stateRepo, log)

	// 4. Task manager and action hub
	taskMgr := tasks.NewManager(&cfg.Queue)
	hub := actions.NewHub(taskMgr, log)
	if err := actions.RegisterBuiltins(hub, actions.BuiltinDeps{
		Chat:    chat.NewNopClient(log),
		Cache:   cacheMgr,
		States:  states,
		Tenants: tenants,
	}); err != nil {
		log.Error("failed to register builtin actions", "error", err)
		os.Exit(1)
	}
	log.Info("action hub ready", "actions", hub.Names())

	// 5. Scenario index and engine
	loader := scenario.NewLoader(cfg.ScenariosDir, cfg.TriggersDir, log)
	indexes := scenario.NewIndexManager(loader, cacheMgr, log)
	engine := scenario.NewEngine(indexes, hub, taskMgr, states, log)

	// 6. Per-tenant startup: webhook secrets and cron registration
	tenantIDs, err := tenantRepo.TenantIDs(ctx)
	if err != nil {
		log.Error("failed to list tenants", "error", err)
		os.Exit(1)
	}

	secrets := api.NewSecretRegistry(cacheMgr)
	sched := scheduler.New(indexes, engine, log)
	for _, tenantID := range tenantIDs {
		botID, err := tenantRepo.BotIDByTenant(ctx, tenantID)
		if err != nil {
			log.Error("tenant has no bot binding, skipping", "tenant_id", tenantID, "error", err)
			continue
		}
		secrets.Register(botID, tenantID)
		if err := sched.RegisterTenant(tenantID); err != nil {
			log.Error("failed to register tenant schedules", "tenant_id", tenantID, "error", err)
		}
	}
	log.Info("tenants registered", "count", len(tenantIDs))

	sched.Start()

	// 7. HTTP server
	server := api.NewServer(cfg.HTTP, engine, taskMgr, secrets, indexes, log)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		log.Error("server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown, reverse of startup. Each component gets its own
	// budget so one stuck stage cannot consume the whole window.
	shutdownStage := func(name string, stop func(context.Context) error) {
		stageCtx, cancel := context.WithTimeout(ctx, cfg.Shutdown.PluginTimeout)
		defer cancel()
		if err := stop(stageCtx); err != nil {
			log.Error("shutdown stage failed", "stage", name, "error", err)
		}
	}

	shutdownStage("http", server.Shutdown)
	shutdownStage("scheduler", func(c context.Context) error {
		sched.Stop(c)
		return nil
	})
	shutdownStage("tasks", func(c context.Context) error {
		taskMgr.Shutdown(c)
		return nil
	})

	log.Info("shutdown complete")
}
