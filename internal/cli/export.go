package cli

import (
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"engram/internal/config"
	"engram/internal/export"
	"engram/internal/store"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <user-id>",
	Short: "Export a user's conversation history",
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
		msgs, err := db.ArchivedMessages(userID, 0, 0, 0)
		if err != nil {
			return err
		}
		unarchived, err := db.UnarchivedMessages(userID)
		if err != nil {
			return err
		}
		msgs = append(msgs, unarchived...)
		sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt < msgs[j].CreatedAt })

		data, err := export.Messages(msgs, exportFormat)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "jsonl",
		"output format ("+strings.Join(export.Formats, ", ")+")")
}
