package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dimitrije/starter-api/internal/config"
	"github.com/dimitrije/starter-api/internal/database"
	"github.com/dimitrije/starter-api/internal/services"
	"github.com/spf13/cobra"
)

func main() {
	var subject, price, status string

	cmd := &cobra.Command{
		Use:           "set-plan",
		Short:         "Set the billing plan of a user record",
		Long: `Set the billing plan of a user record.

Only DATABASE_URL is required; PLAN_PRICES is read to print the plan name.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return setPlan(cmd.Context(), subject, price, status)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject id of the record")
	cmd.Flags().StringVar(&price, "price", "", "billing price id, empty clears the plan")
	cmd.Flags().StringVar(&status, "status", "active", "subscription status")
	_ = cmd.MarkFlagRequired("subject")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setPlan(ctx context.Context, subject, price, status string) error {
	cfg, err := config.LoadAdmin()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if price == "" {
		status = ""
	}

	record, err := services.NewRecordService(db).SetBilling(ctx, subject, price, status)
	if errors.Is(err, services.ErrNotFound) {
		return fmt.Errorf("no record found for subject %s", subject)
	}
	if err != nil {
		return err
	}

	plan := cfg.PlanPrices[price]
	if plan == "" {
		plan = "(none)"
	}
	fmt.Printf("Updated %s: price=%q status=%q plan=%s\n", record.SubjectID, price, status, plan)
	return nil
}
