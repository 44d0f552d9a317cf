package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/keepsake-ai/keepsake/internal/config"
	"github.com/keepsake-ai/keepsake/internal/engine"
	"github.com/keepsake-ai/keepsake/internal/store"
	"github.com/spf13/cobra"
)

var recallModality string

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Search stored memories and knowledge sources",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRecall,
}

func init() {
	recallCmd.Flags().StringVar(&recallModality, "modality", "chat", "modality to record the access under")
}

func runRecall(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
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

	// Recall is pure keyword search, no oracle needed.
	eng := engine.New(db, nil, 0)
	defer eng.Stop()

	query := strings.Join(args, " ")
	result, err := eng.Recall(query, recallModality)
	if err != nil {
		return err
	}

	if len(result.Memories) == 0 && len(result.Sources) == 0 {
		fmt.Println("no matches")
		return nil
	}

	for _, m := range result.Memories {
		age := time.Since(time.UnixMilli(m.CreatedAt)).Round(time.Minute)
		fmt.Printf("[%s] (%s, importance %d, %s ago)\n  %s\n",
			m.Type, m.Modality, m.Importance, age, m.Content)
		if len(m.Tags) > 0 {
			fmt.Printf("  tags: %s\n", strings.Join(m.Tags, ", "))
		}
	}
	for _, src := range result.Sources {
		fmt.Printf("[source] %s\n  %s\n", src.Title, src.Summary)
	}
	return nil
}
