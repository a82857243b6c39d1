// rehearse.go implements the "mirrorplay rehearse" command: an interactive
// solo practice loop where spoken responses are auto-submitted on silence
// and typed responses go through the same scoring path.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/api"
	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/capture"
	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/rehearsal"
)

var rehearseScenario string

var rehearseCmd = &cobra.Command{
	Use:   "rehearse",
	Short: "Run a solo rehearsal scenario",
	Long: `Rehearse a scenario against the AI counterpart. Press Enter to answer
by voice (the take submits itself once you stop speaking), or type your
response directly. Type "quit" to leave the session.`,
	RunE: runRehearse,
}

func init() {
	rehearseCmd.Flags().StringVar(&rehearseScenario, "scenario", "", "Scenario ID to rehearse (required)")
	rehearseCmd.MarkFlagRequired("scenario")
}

func runRehearse(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := rehearsal.NewSession(rehearseScenario, a.client, recorderConfig(a), a.logger)
	if err != nil {
		return fmt.Errorf("failed to create rehearsal session: %w", err)
	}

	session.SetMetrics(a.metrics)

	if a.monitor != nil {
		a.monitor.RegisterStats("rehearsal", func() any { return session.GetStats() })
		a.monitor.RegisterStats("recorder", func() any { return session.RecorderStats() })
	}

	fmt.Printf("Rehearsing scenario %q. Press Enter to speak, type to answer, \"quit\" to leave.\n\n", rehearseScenario)

	lines := readLines(ctx)

	for !session.Completed() {
		fmt.Print("> ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Println("\nSession interrupted.")
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if line == "quit" || line == "q" {
			fmt.Println("Leaving the session.")
			return nil
		}

		var reply *api.RehearsalReply
		var transcript string

		if line == "" {
			reply, transcript, err = recordTurn(ctx, a, session, lines)
		} else {
			transcript = line
			reply, err = session.Respond(ctx, line)
		}

		if err != nil {
			if errors.Is(err, context.Canceled) {
				fmt.Println("\nSession interrupted.")
				return nil
			}
			if errors.Is(err, api.ErrDailyLimit) {
				a.metrics.RecordDailyLimitHit()
				fmt.Println("\nYou've reached today's free practice limit. Upgrade to keep rehearsing: https://mirrorplay.app/upgrade")
				return nil
			}
			fmt.Printf("That didn't go through: %v\n\n", err)
			continue
		}

		printReply(transcript, reply)
	}

	stats := session.GetStats()
	fmt.Printf("Scenario complete! %d XP earned over %d turns.\n", stats.TotalXP, stats.TurnsSubmitted)
	return nil
}

// recordTurn runs one spoken turn. A second Enter press while recording stops
// the take immediately instead of waiting for silence.
func recordTurn(ctx context.Context, a *app, session *rehearsal.Session, lines <-chan string) (*api.RehearsalReply, string, error) {
	fmt.Println("Recording... stop speaking to submit, or press Enter to stop now.")

	a.metrics.RecordRecordingStarted()

	recordCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Forward an Enter press to an explicit stop while the take is live.
	go func() {
		select {
		case <-recordCtx.Done():
		case <-lines:
			if err := session.StopRecording(); err != nil && err != capture.ErrNotRecording {
				a.logger.Warn("Explicit stop failed", slog.String("error", err.Error()))
			}
		}
	}()

	reply, transcript, err := session.RecordAndRespond(recordCtx)
	if err != nil {
		a.metrics.RecordRecordingCancelled()
		return nil, "", err
	}

	a.metrics.RecordRecordingCompleted(session.Elapsed().Seconds(), true)
	return reply, transcript, nil
}

func printReply(transcript string, reply *api.RehearsalReply) {
	fmt.Printf("\nYou said: %s\n", transcript)
	fmt.Printf("Counterpart: %s\n", reply.Reply)
	fmt.Printf("Score %d", reply.Score)
	if reply.Feedback != "" {
		fmt.Printf(" (%s)", reply.Feedback)
	}
	if reply.XPAwarded > 0 {
		fmt.Printf(" (+%d XP)", reply.XPAwarded)
	}
	fmt.Print("\n\n")
}

// recorderConfig maps the loaded configuration onto the recorder
func recorderConfig(a *app) capture.Config {
	return capture.Config{
		SampleRate:         a.cfg.Audio.SampleRate,
		FrameSize:          a.cfg.Audio.FrameSize,
		ReferenceCeiling:   a.cfg.Audio.ReferenceCeiling,
		SilenceThreshold:   a.cfg.Silence.GetThresholdDuration(),
		LoudnessFloor:      a.cfg.Silence.LoudnessFloor,
		MaxDuration:        a.cfg.Recording.GetMaxDuration(),
		PreferredEncodings: a.cfg.Recording.PreferredEncodings,
	}
}

// readLines feeds stdin lines to a channel so reads can race with ctx
func readLines(ctx context.Context) <-chan string {
	lines := make(chan string)
	scanner := bufio.NewScanner(os.Stdin)

	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	return lines
}
