/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"
	"time"

	"github.com/mautops/rdrealty-lms/internal/container"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// depreciateCmd represents the depreciate command
var depreciateCmd = &cobra.Command{
	Use:   "depreciate",
	Short: "Post monthly depreciation once",
	Long: `Post every monthly depreciation entry that is due on or before --as-of
and exit. Runs are idempotent: months that were already posted are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		asOf := time.Now()
		if raw, _ := cmd.Flags().GetString("as-of"); raw != "" {
			if asOf, err = time.Parse("2006-01-02", raw); err != nil {
				return fmt.Errorf("--as-of must be YYYY-MM-DD: %w", err)
			}
		}

		ctx := cmd.Context()
		ctr, err := container.NewContainer(ctx, cfg, "", logger)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		result, err := ctr.Depreciation().Run(ctx, asOf)
		if err != nil {
			return fmt.Errorf("depreciation run failed: %w", err)
		}
		logger.WithFields(logrus.Fields{
			"as_of":   asOf.Format("2006-01-02"),
			"assets":  result.Assets,
			"entries": result.Entries,
			"amount":  result.Amount.String(),
			"failed":  len(result.Failed),
		}).Info("depreciation posted")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(depreciateCmd)
	depreciateCmd.Flags().String("as-of", "", "Post entries due on or before this date, YYYY-MM-DD (default: today)")
}
