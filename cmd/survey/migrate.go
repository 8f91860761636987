package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"survey-backend/internal/config"
	"survey-backend/internal/store"
)

func migrateCmd(configFile *string) *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := store.New(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			if status {
				list, err := db.MigrationStatus(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "MIGRATION\tAPPLIED\tAT")
				for _, m := range list {
					at := "-"
					if m.AppliedAt != nil {
						at = m.AppliedAt.Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(w, "%s\t%t\t%s\n", m.ID, m.Applied, at)
				}
				return w.Flush()
			}

			ran, err := db.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if len(ran) == 0 {
				fmt.Fprintln(out, "schema is up to date")
			}
			for _, id := range ran {
				fmt.Fprintf(out, "applied %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "list migrations without applying them")
	return cmd
}
