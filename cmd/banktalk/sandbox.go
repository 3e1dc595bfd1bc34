package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/banktalk/internal/cli"
	"github.com/Veraticus/banktalk/internal/storage"
)

func sandboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Prepare the local SQLite data store",
		Long: `The sandbox is a SQLite database that stands in for the banking data
service when data.source is "sandbox".`,
	}
	cmd.AddCommand(sandboxMigrateCmd(), sandboxSeedCmd())
	return cmd
}

func sandboxMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the sandbox schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			db, err := openSandbox(cmd.Context(), a.cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // read-only after migration

			version, err := db.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
				fmt.Sprintf("%s is at schema version %d", db.Path(), version)))
			return nil
		},
	}
}

func sandboxSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed [fixtures.yaml]",
		Short: "Replace the sandbox contents with fixtures",
		Long: `Replace every customer, account, beneficiary, card, loan and transfer in
the sandbox with the given fixtures file, or with the built-in fixtures when
no file is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var fixtures *storage.Fixtures
			if len(args) == 1 {
				fixtures, err = storage.LoadFixtures(args[0])
			} else {
				fixtures, err = storage.DefaultFixtures()
			}
			if err != nil {
				return err
			}

			db, err := openSandbox(cmd.Context(), a.cfg.Database.Path)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := db.Close(); closeErr != nil {
					slog.Error("Failed to close database", "error", closeErr)
				}
			}()

			if err := db.Seed(cmd.Context(), fixtures); err != nil {
				return fmt.Errorf("failed to seed sandbox: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
				"Seeded %s with %d customers and %d accounts",
				db.Path(), len(fixtures.Customers), len(fixtures.Accounts))))
			return nil
		},
	}
}
