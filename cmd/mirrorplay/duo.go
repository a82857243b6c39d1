// duo.go implements the "mirrorplay duo" commands: hosting and joining a
// turn-based two-person practice session.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/api"
	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/duo"
)

var duoScenario string

var duoCmd = &cobra.Command{
	Use:   "duo",
	Short: "Practice with a partner in a shared session",
}

var duoHostCmd = &cobra.Command{
	Use:   "host",
	Short: "Host a new duo session and wait for a partner",
	RunE:  runDuoHost,
}

var duoJoinCmd = &cobra.Command{
	Use:   "join <session-id>",
	Short: "Join a duo session by ID",
	Args:  cobra.ExactArgs(1),
	RunE:  runDuoJoin,
}

func init() {
	duoHostCmd.Flags().StringVar(&duoScenario, "scenario", "", "Scenario ID to practice (required)")
	duoHostCmd.MarkFlagRequired("scenario")

	duoCmd.AddCommand(duoHostCmd)
	duoCmd.AddCommand(duoJoinCmd)
}

func runDuoHost(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := duo.Host(ctx, a.client, duoScenario, a.logger)
	if err != nil {
		return err
	}

	fmt.Printf("Session created. Share this ID with your partner: %s\n", session.ID())
	fmt.Println("Waiting for them to join...")

	return duoLoop(ctx, a, session)
}

func runDuoJoin(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := duo.Join(ctx, a.client, args[0], a.logger)
	if err != nil {
		return err
	}

	fmt.Printf("Joined session %s.\n", session.ID())

	return duoLoop(ctx, a, session)
}

// duoLoop drives one side of the session: server-pushed updates render the
// partner's messages, stdin lines become our turns.
func duoLoop(ctx context.Context, a *app, session *duo.Session) error {
	if a.monitor != nil {
		a.monitor.RegisterStats("duo", func() any { return session.GetStats() })
	}

	feed, err := duo.OpenLiveFeed(ctx, a.cfg.Client.BaseURL, a.cfg.Client.APIKey, session, a.logger)
	if err != nil {
		return fmt.Errorf("failed to open live feed: %w", err)
	}
	defer feed.Close()

	fmt.Println("Type your message when it's your turn; \"done\" ends the session once it's long enough; \"quit\" leaves.")

	lines := readLines(ctx)
	seen := len(session.Messages())
	promptTurn(session)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nSession interrupted.")
			return nil

		case update, ok := <-feed.Updates():
			if !ok {
				fmt.Println("Live feed closed.")
				return nil
			}
			seen = printNewMessages(session, update.Messages, seen)
			if update.Status == duo.StatusCompleted {
				fmt.Println("Session completed. Nicely done, both of you.")
				return nil
			}
			promptTurn(session)

		case line, lineOk := <-lines:
			if !lineOk {
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if text == "quit" || text == "q" {
				fmt.Println("Leaving the session.")
				return nil
			}
			if text == "done" {
				if !session.CanComplete() {
					fmt.Printf("Keep going a little longer: at least %d messages before wrapping up.\n", duo.MinMessagesToComplete)
					continue
				}
				if _, err := session.Complete(ctx); err != nil {
					fmt.Printf("Could not complete the session: %v\n", err)
					continue
				}
				a.metrics.RecordDuoSessionCompleted()
				fmt.Println("Session completed. Nicely done, both of you.")
				return nil
			}

			remote, err := session.Send(ctx, text)
			if err != nil {
				if errors.Is(err, duo.ErrNotYourTurn) {
					a.metrics.RecordDuoRejectedOutOfTurn()
					fmt.Println("Hold on, it's your partner's turn.")
					continue
				}
				if errors.Is(err, api.ErrDailyLimit) {
					fmt.Println("You've reached today's free practice limit. Upgrade to keep practicing: https://mirrorplay.app/upgrade")
					return nil
				}
				fmt.Printf("That didn't go through: %v\n", err)
				continue
			}

			a.metrics.RecordDuoMessageSent()
			seen = printNewMessages(session, remote.Messages, seen)
		}
	}
}

// printNewMessages renders messages past the seen index and returns the new
// high-water mark
func printNewMessages(session *duo.Session, messages []api.DuoMessage, seen int) int {
	for i := seen; i < len(messages); i++ {
		m := messages[i]
		who := m.Role
		if m.Role == session.Role() {
			who = "you"
		}
		fmt.Printf("[%s] %s", who, m.Text)
		if m.Score > 0 {
			fmt.Printf(" (score %d)", m.Score)
		}
		fmt.Println()
	}
	if len(messages) > seen {
		return len(messages)
	}
	return seen
}

func promptTurn(session *duo.Session) {
	switch {
	case session.Status() == duo.StatusPendingInvite:
	case session.MyTurn():
		fmt.Print("Your turn > ")
	default:
		fmt.Println("Waiting for your partner...")
	}
}
