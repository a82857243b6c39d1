// progress.go implements the "mirrorplay progress" command.
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show your XP, level, streak, and tier",
	RunE:  runProgress,
}

func runProgress(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.shutdown()

	progress, err := a.client.GetProgress(context.Background())
	if err != nil {
		return fmt.Errorf("failed to fetch progress: %w", err)
	}

	fmt.Printf("Level %d, %d XP\n", progress.Level, progress.XP)
	fmt.Printf("Streak: %d day(s)\n", progress.StreakDays)
	fmt.Printf("Tier: %s\n", progress.Tier)
	return nil
}
