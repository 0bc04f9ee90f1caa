package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"engram/internal/config"
	"engram/internal/profile"
	"engram/internal/store"
)

var profileCmd = &cobra.Command{
	Use:   "profile <user-id>",
	Short: "Show a user's accepted profile, staged proposals and bond level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		dbPath := cfg.Database.Path
		if dbPath == "" {
			if dbPath, err = store.DefaultDBPath(); err != nil {
				return err
			}
		}
		db, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		userID := args[0]
		attrs, err := db.ListAttributes(userID)
		if err != nil {
			return err
		}
		proposals, err := db.ListProposals(userID)
		if err != nil {
			return err
		}
		recs, err := db.ListIndexed(userID, 0)
		if err != nil {
			return err
		}

		bond := profile.Bond(attrs, len(recs))
		fmt.Printf("user %s: %s (level %d/7, depth %d%%)\n\n", userID, bond.Name, bond.Level, bond.Depth)

		if len(attrs) == 0 {
			fmt.Println("no accepted attributes")
		}
		for _, a := range attrs {
			fmt.Printf("  %-40s %s (x%d)\n", a.Key, a.Value, a.Confirmations)
		}
		if len(proposals) > 0 {
			fmt.Println("\nstaged proposals:")
			for _, p := range proposals {
				fmt.Printf("  %-40s %s (%d confirmations)\n", p.Key, p.Value, p.Confirmations)
			}
		}
		return nil
	},
}
