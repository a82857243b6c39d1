// practice.go implements the "mirrorplay practice" command: one recorded
// take against a prompt, scored server-side.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/api"
	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/capture"
)

var (
	practicePrompt   string
	practiceCategory string
)

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Record a single practice take and get it scored",
	Long: `Record one spoken take against a prompt. The take submits itself once
you stop speaking; press Enter to stop it early.`,
	RunE: runPractice,
}

func init() {
	practiceCmd.Flags().StringVar(&practicePrompt, "prompt", "", "Prompt to practice against (required)")
	practiceCmd.Flags().StringVar(&practiceCategory, "category", "general", "Practice category")
	practiceCmd.MarkFlagRequired("prompt")
}

func runPractice(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	finalized := make(chan *capture.Recording, 1)
	cfg := recorderConfig(a)
	cfg.OnAutoStop = func(rec *capture.Recording) {
		select {
		case finalized <- rec:
		default:
		}
	}

	recorder, err := capture.NewRecorder(cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create recorder: %w", err)
	}

	if a.monitor != nil {
		a.monitor.RegisterStats("recorder", func() any { return recorder.GetStats() })
	}

	fmt.Printf("Prompt: %s\n", practicePrompt)
	fmt.Println("Recording... stop speaking to submit, or press Enter to stop now.")

	a.metrics.RecordRecordingStarted()
	if err := recorder.Start(ctx); err != nil {
		a.metrics.RecordRecordingCancelled()
		return fmt.Errorf("failed to start recording: %w", err)
	}

	lines := readLines(ctx)

	var recording *capture.Recording
	select {
	case recording = <-finalized:

	case <-lines:
		recording, err = recorder.Stop()
		if err != nil {
			a.metrics.RecordRecordingCancelled()
			return fmt.Errorf("failed to stop recording: %w", err)
		}

	case <-ctx.Done():
		if _, err := recorder.Stop(); err != nil && err != capture.ErrNotRecording {
			a.logger.Warn("Failed to stop recorder on cancellation", slog.String("error", err.Error()))
		}
		a.metrics.RecordRecordingCancelled()
		fmt.Println("\nTake discarded.")
		return nil
	}

	a.metrics.RecordRecordingCompleted(recording.Duration.Seconds(), recording.AutoStopped)
	a.metrics.RecordTranscriptionRequest()
	submittedAt := time.Now()

	fmt.Println("Scoring your take...")

	result, err := a.client.SubmitPractice(ctx, &api.PracticeSubmission{
		AudioBase64: base64.StdEncoding.EncodeToString(recording.AudioData),
		Duration:    recording.Duration.Seconds(),
		Prompt:      practicePrompt,
		Category:    practiceCategory,
	})
	if err != nil {
		a.metrics.RecordTranscriptionFailure(time.Since(submittedAt).Seconds())
		if errors.Is(err, api.ErrDailyLimit) {
			a.metrics.RecordDailyLimitHit()
			fmt.Println("You've reached today's free practice limit. Upgrade to keep practicing: https://mirrorplay.app/upgrade")
			return nil
		}
		return fmt.Errorf("failed to submit practice take: %w", err)
	}
	a.metrics.RecordTranscriptionSuccess(time.Since(submittedAt).Seconds())

	fmt.Printf("\nScore %d", result.Score)
	if result.Feedback != "" {
		fmt.Printf(" (%s)", result.Feedback)
	}
	if result.XPAwarded > 0 {
		fmt.Printf(" (+%d XP)", result.XPAwarded)
	}
	fmt.Println()
	if result.StreakDays > 0 {
		fmt.Printf("Streak: %d day(s)\n", result.StreakDays)
	}
	return nil
}
