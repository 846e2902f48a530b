package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rosterly/rosterly-backend/pkg/config"
	"github.com/rosterly/rosterly-backend/pkg/logger"
	"github.com/spf13/cobra"
)

const serviceName = "scheduling-service"

var (
	cfg *config.Config
	log *logger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Shift assignment lifecycle and auto-scheduling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load configuration with validation (fails fast in production if required config is missing)
			var err error
			cfg, err = config.LoadWithValidation(serviceName)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log = logger.New(serviceName, cfg.Server.Environment)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	rootCmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newAutoscheduleCommand(),
		newReconcileHoursCommand(),
		newCompleteCommand(),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}
