package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kj800x/cicd-controller/internal/config"
	"github.com/kj800x/cicd-controller/internal/store"
	"github.com/kj800x/cicd-controller/pkg/logger"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending store migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.NewLogger(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})

			// store.Open applies every pending goose migration before returning.
			s, err := store.Open(context.Background(), cfg.DatabasePath, log)
			if err != nil {
				return err
			}
			defer s.Close()

			log.Info("migrations applied", "path", cfg.DatabasePath)
			return nil
		},
	}
}
