package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rosterly/rosterly-backend/pkg/database"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	var down int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.New(&cfg.Database, log)
			if err != nil {
				return err
			}
			defer db.Close()

			if down > 0 {
				return db.MigrateDown(down)
			}
			return db.Migrate()
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "roll back this many migrations instead")
	return cmd
}

func newAutoscheduleCommand() *cobra.Command {
	var managerID string

	cmd := &cobra.Command{
		Use:   "autoschedule",
		Short: "Fill a manager's understaffed future shifts from availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.scheduler.Run(cmd.Context(), managerID)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&managerID, "manager", "", "manager whose shifts are scheduled")
	cmd.MarkFlagRequired("manager")
	return cmd
}

func newReconcileHoursCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile-hours",
		Short: "Rewrite this week's hours cache and refresh fill status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			return a.jobs.ReconcileHours(cmd.Context())
		},
	}
}

func newCompleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "complete-past",
		Short: "Complete or expire assignments of past shifts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.assignments.CompletePast(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
