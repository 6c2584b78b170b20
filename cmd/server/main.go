/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave workflow engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Wire the workflow engine (resolver, chain builder, service,
     escalation engine, document coordinator, advisor)
  4. Configure HTTP router and background sweeper
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port            HTTP server port (default: 8080)
  -db              SQLite database path (default: leave.db)
                   Use ":memory:" for an in-memory database
  -sweep-interval  Escalation sweep interval (default: 1h)
  -seed            Load the demo organization on startup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the escalation sweeper
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/leave.db"

  # Run with in-memory database and demo data
  ./server -db=":memory:" -seed

  # Sweep every ten minutes
  ./server -sweep-interval=10m

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/warp/leave-engine/advisor"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/document"
	"github.com/warp/leave-engine/store/sqlite"
	"github.com/warp/leave-engine/workdays"
	"github.com/warp/leave-engine/workflow"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "leave.db", "SQLite database path")
	sweepInterval := flag.Duration("sweep-interval", time.Hour, "escalation sweep interval")
	seed := flag.Bool("seed", false, "load the demo organization on startup")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	// Workflow engine wiring
	calc := workdays.NewCalculator(store, workdays.DefaultCacheTTL)
	outbox := workflow.NewOutbox(
		&api.LogNotifier{Log: log},
		&api.LogMailer{Log: log},
		&api.DocRegenerator{Docs: store, Log: log},
		log,
	)
	resolver := &workflow.RuleResolver{Rules: store, Users: store, Log: log}
	chain := &workflow.ChainBuilder{Users: store, Collapse: workflow.CollapseDrop, Audit: store, Log: log}
	service := &workflow.Service{
		Store:    store,
		Audit:    store,
		Resolver: resolver,
		Chain:    chain,
		Workdays: calc,
		Outbox:   outbox,
		Log:      log,
	}
	engine := &workflow.EscalationEngine{
		Store:  store,
		Chain:  chain,
		Audit:  store,
		Outbox: outbox,
		Log:    log,
	}
	coordinator := &document.Coordinator{
		Docs:     store,
		Workflow: store,
		Chain:    chain,
		Audit:    store,
		Outbox:   outbox,
		Log:      log,
	}
	suggester := &advisor.Advisor{Users: store, Requests: store, Workdays: calc}

	metrics := api.NewMetrics(prometheus.DefaultRegisterer)
	handler := &api.Handler{
		Store:       store,
		Audit:       store,
		Docs:        store,
		Holidays:    store,
		Service:     service,
		Engine:      engine,
		Coordinator: coordinator,
		Advisor:     suggester,
		Workdays:    calc,
		Log:         log,
		Metrics:     metrics,
	}

	if *seed {
		if err := handler.Seed(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("failed to seed demo organization")
		}
		log.Info().Msg("demo organization loaded")
	}

	// Background escalation sweeper
	sweeper := api.NewSweeper(engine, *sweepInterval, metrics, log)
	sweeper.Start()

	// Create router and server
	router := api.NewRouter(handler)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", *port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server stopped")
}
