package cmd

import (
	"context"
	"fmt"

	"github.com/vibast-solutions/ms-go-accounts/app/repository"
	"github.com/vibast-solutions/ms-go-accounts/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "Apply or inspect database migrations",
	Long:      `Run the embedded goose migrations against the configured database. Defaults to "up".`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{repository.MigrateUp, repository.MigrateDown, repository.MigrateStatus},
	RunE:      runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	command := repository.MigrateUp
	if len(args) == 1 {
		command = args[0]
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err = configureLogging(cfg); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, dialect, err := repository.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	logrus.WithFields(logrus.Fields{"driver": dialect, "command": command}).Info("Running migrations")
	return repository.Migrate(ctx, db, dialect, command)
}
