package main

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, closeDB, err := openDB()
		if err != nil {
			return err
		}
		defer closeDB()
		logger.Info("database migrated", "driver", cfg.DBDriver)
		return nil
	},
}
