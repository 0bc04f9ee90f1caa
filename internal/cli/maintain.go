package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"engram/internal/config"
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run the decay and prune pass once, ignoring the daily guard",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		db, eng, err := buildEngine(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		decayed, pruned, err := eng.Lifecycle.RunOnce(context.Background())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "decayed %d records, pruned %d to archival-only\n", decayed, pruned)
		return nil
	},
}
