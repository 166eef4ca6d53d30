package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"chatdesk/internal/app"
	"chatdesk/internal/logger"
)

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			defer logger.Close()

			applied, err := app.Migrate(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "Database schema is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(out, "Applied migration %s\n", v)
			}
			return nil
		},
	}
}
