/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave workflow server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load config (file, then environment)
  2. Initialize SQLite store and apply the seed
  3. Build ledger, metrics, notification queue and workflow engine
  4. Configure HTTP router
  5. Run server and notification worker until a signal arrives

COMMAND-LINE FLAGS:
  -config  YAML config file (optional)
  -port    HTTP server port, overrides addr when set
  -db      SQLite database path, overrides db when set
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Deliver queued notifications
  4. Close database connection

EXAMPLES:
  ./server -config=leave.yaml
  ./server -db=":memory:" -port=3000
  LEAVE_ENFORCEMENT=soft ./server

SEE ALSO:
  - config/config.go: Settings and environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/leave-workflow/api"
	"github.com/warp/leave-workflow/balance"
	"github.com/warp/leave-workflow/config"
	"github.com/warp/leave-workflow/metrics"
	"github.com/warp/leave-workflow/notify"
	"github.com/warp/leave-workflow/store/sqlite"
	"github.com/warp/leave-workflow/workflow"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Addr = fmt.Sprintf(":%d", *port)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	ledger := balance.New(store,
		balance.WithFloor(cfg.Balance.Floor),
		balance.WithLogger(logger.With("component", "ledger")),
	)
	if err := cfg.Seed.Apply(ctx, store, ledger); err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}

	enforcement, _ := cfg.EnforcementMode()
	m := metrics.New()
	queue := notify.NewQueue(notify.NewLog(logger), cfg.Notify.QueueSize,
		notify.WithQueueLogger(logger),
		notify.WithDepthGauge(m.SetQueueDepth),
	)

	engine := workflow.New(workflow.Deps{
		Store:     store,
		Ledger:    ledger,
		Holidays:  store,
		Directory: store,
		Emitter:   queue,
		Recorder:  m,
		Logger:    logger.With("component", "workflow"),
	}, workflow.Options{
		Enforcement: enforcement,
		LinkPrefix:  cfg.Notify.LinkPrefix,
	})

	handler := api.NewHandler(engine, ledger, store, store, logger)
	handler.Health = store
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Metrics:        m,
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// The queue outlives the server so decisions made while draining
	// connections are still delivered.
	queueCtx, stopQueue := context.WithCancel(context.WithoutCancel(ctx))
	defer stopQueue()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "addr", cfg.Addr, "db", cfg.DBPath, "enforcement", enforcement.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return queue.Run(queueCtx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 30*time.Second)
		defer cancel()
		defer stopQueue()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
