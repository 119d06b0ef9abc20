package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/repromitra/telehealth/libs/db"
	"github.com/repromitra/telehealth/migrations"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func migrateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	var target int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPool(cmd, v, func(ctx context.Context, pool *db.Pool) error {
				count, err := db.NewMigrator(pool, migrations.Files).Up(ctx, target)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
				return nil
			})
		},
	}
	up.Flags().IntVar(&target, "target", 0, "stop after this version (0 applies everything)")
	cmd.AddCommand(up)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPool(cmd, v, func(ctx context.Context, pool *db.Pool) error {
				statuses, err := db.NewMigrator(pool, migrations.Files).Status(ctx)
				if err != nil {
					return fmt.Errorf("migration status: %w", err)
				}
				writeStatus(cmd, statuses)
				return nil
			})
		},
	})
	return cmd
}

func writeStatus(cmd *cobra.Command, statuses []db.MigrationStatus) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Version, s.Name, status, appliedAt)
	}
	_ = tw.Flush()
}
