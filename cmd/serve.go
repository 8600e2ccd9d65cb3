package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/blogem/ha-gateway/authenticator"
	"github.com/blogem/ha-gateway/bridge"
	"github.com/blogem/ha-gateway/config"
	"github.com/blogem/ha-gateway/configfs"
	"github.com/blogem/ha-gateway/controllers"
	"github.com/blogem/ha-gateway/database"
	"github.com/blogem/ha-gateway/observability"
	"github.com/blogem/ha-gateway/querysafety"
	"github.com/blogem/ha-gateway/ratelimit"
	"github.com/blogem/ha-gateway/realtime"
	"github.com/blogem/ha-gateway/repositories"
	"github.com/blogem/ha-gateway/services"
	"github.com/blogem/ha-gateway/supervisor"
	"github.com/blogem/ha-gateway/userctx"
)

const shutdownTimeout = 10 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP and WebSocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port, overriding PORT and the add-on options")
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Port = servePort
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	// Locate the recorder database. The gateway still starts without one.
	dbPath, dbFound := database.FindRecorderDatabase(cfg.DatabasePath, database.DefaultRecorderCandidates)
	if !dbFound {
		logger.Warn("recorder database not found", "configured", cfg.DatabasePath)
	}

	auditDB, err := database.InitializeAuditDatabase(cfg.AuditDatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize audit database: %w", err)
	}
	defer auditDB.Close()

	// Initialize repositories
	repos := repositories.NewRepositories(dbPath, auditDB)

	store, err := configfs.NewLocalStore(configfs.Options{
		Root:       cfg.ConfigRoot,
		ConfigFile: cfg.ConfigFile,
		Retention:  cfg.BackupRetention,
	})
	if err != nil {
		return fmt.Errorf("failed to open configuration root: %w", err)
	}

	checker := supervisor.NewClient(cfg.SupervisorURL, cfg.SupervisorToken, cfg.SupervisorTimeout)
	if !checker.Available() {
		logger.Info("supervisor token not set, configuration changes are committed without a core check")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	limiter, err := ratelimit.New(ratelimit.Config{MaxRequests: cfg.RateLimit, Window: cfg.RateLimitWindow})
	if err != nil {
		return err
	}
	observability.TrackRateLimitIdentities(registry, limiter.Len)

	hub := realtime.NewHub(metrics, logger)
	defer hub.Close()

	status := services.StatusOptions{
		DatabasePath:     dbPath,
		DatabaseFound:    dbFound,
		ExternalAccess:   cfg.ExternalAccess,
		WebSocketEnabled: cfg.WebSocket,
		AvailableMethods: bridge.MethodNames(),
		WebSocketEvents:  realtime.Events,
	}
	if cfg.WebSocket {
		status.WebSocketClients = hub
	}

	// Initialize services
	srvs := services.NewServices(repos, services.Options{
		Policy: querysafety.Policy{
			AllowAllQueries: cfg.AllowAllQueries,
			AllowedTables:   cfg.AllowedTables,
		},
		MaxRowLimit:       cfg.MaxRowLimit,
		Store:             store,
		Checker:           checker,
		SupervisorTimeout: cfg.SupervisorTimeout,
		Status:            status,
		Metrics:           metrics,
		Logger:            logger,
	})

	router := bridge.NewRouter(bridge.Options{
		Services: srvs,
		Limiter:  limiter,
		Metrics:  metrics,
		Logger:   logger,
	})

	auth := authenticator.NewAPIKeyProvider(cfg.APIKey)

	// Initialize controllers
	ctrl := controllers.NewControllers(router, srvs, auth)

	routeOpts := controllers.RouteOptions{
		Auth:           auth,
		ExternalAccess: cfg.ExternalAccess,
		TrustProxy:     cfg.TrustProxyHeaders,
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	}
	if cfg.WebSocket {
		routeOpts.WebSocket = hub.Handler(router, func(r *http.Request) string {
			return userctx.GetCaller(r.Context())
		})
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Push recorder changes to WebSocket clients
	if cfg.WebSocket && dbFound {
		watcher, err := realtime.NewDatabaseWatcher(dbPath, realtime.DefaultDebounce, func() {
			hub.NotifyDatabaseUpdated(dbPath)
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create database watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("database watcher not started", "error", err)
		}
		defer watcher.Stop()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           controllers.NewRouter(ctrl, routeOpts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("🚀 Home Assistant Gateway %s starting on port %d\n", services.Version, cfg.Port)
	fmt.Printf("📂 Visit: http://localhost:%d/api\n", cfg.Port)
	if dbFound {
		fmt.Printf("🗃️  Database: %s\n", dbPath)
	} else {
		fmt.Printf("⚠️  Database: not found (%s)\n", cfg.DatabasePath)
	}
	fmt.Printf("🛠️  Config root: %s\n", store.Root())
	fmt.Printf("🔐 External access: %t, API key: %t\n", cfg.ExternalAccess, auth.Enabled())
	if cfg.OptionsLoaded {
		fmt.Println("📝 Loaded add-on options")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown
	hub.Close()
	return server.Shutdown(shutdownCtx)
}
