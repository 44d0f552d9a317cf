package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keepsake-ai/keepsake/internal/config"
	"github.com/keepsake-ai/keepsake/internal/engine"
	"github.com/keepsake-ai/keepsake/internal/oracle"
	"github.com/keepsake-ai/keepsake/internal/server"
	"github.com/keepsake-ai/keepsake/internal/store"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Check for ANTHROPIC_API_KEY env override
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Oracle.AnthropicKey == "" {
		cfg.Oracle.AnthropicKey = key
	}

	// Resolve database path
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Create oracle client and engine. Without an oracle the server still
	// runs: recall and record reads work, judgment operations degrade.
	var eng *engine.Engine
	client, err := oracle.NewClient(cfg.Oracle)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: oracle not configured (%v), extraction disabled\n", err)
		eng = engine.New(db, nil, time.Duration(cfg.Oracle.TimeoutSeconds)*time.Second)
	} else {
		eng = engine.New(db, client, time.Duration(cfg.Oracle.TimeoutSeconds)*time.Second)
		fmt.Fprintf(os.Stderr, "  oracle: %s (%s)\n", cfg.Oracle.Provider, cfg.Oracle.Model)
	}
	defer eng.Stop()

	if cfg.Engine.PruneIntervalMinutes > 0 {
		eng.StartPruneTimer(time.Duration(cfg.Engine.PruneIntervalMinutes) * time.Minute)
		fmt.Fprintf(os.Stderr, "  prune: every %dm\n", cfg.Engine.PruneIntervalMinutes)
	}

	srv := server.New(db, eng, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "keepsake serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", dbPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
