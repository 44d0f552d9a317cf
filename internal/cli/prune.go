package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/keepsake-ai/keepsake/internal/config"
	"github.com/keepsake-ai/keepsake/internal/engine"
	"github.com/keepsake-ai/keepsake/internal/oracle"
	"github.com/keepsake-ai/keepsake/internal/store"
	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Review knowledge sources and deactivate stale ones",
	RunE:  runPrune,
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Oracle.AnthropicKey == "" {
		cfg.Oracle.AnthropicKey = key
	}

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

	client, err := oracle.NewClient(cfg.Oracle)
	if err != nil {
		return fmt.Errorf("oracle required for pruning: %w", err)
	}

	eng := engine.New(db, client, time.Duration(cfg.Oracle.TimeoutSeconds)*time.Second)
	defer eng.Stop()

	report, err := eng.PruneSources(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("reviewed %d source(s): %d deactivated, %d failed\n",
		report.Reviewed, report.Deactivated, report.Failed)
	return nil
}
