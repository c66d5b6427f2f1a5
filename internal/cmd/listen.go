package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inercia/twinbridge/internal/client"
	"github.com/inercia/twinbridge/internal/logging"
)

var (
	listenSend         string
	listenAgent        string
	listenConversation string
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Open the real-time channel and print inbound frames",
	Long: `Open the real-time channel of the configured user and print every
inbound frame until interrupted or the service closes the channel.

Examples:
  twinbridge listen --user user123
  twinbridge listen --user user123 --send "Hello team!" --agent team_coordinator`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.User.ID == "" {
			return fmt.Errorf("listen requires a user: set --user, TWIN_USER_ID or user.id")
		}
		sm, err := newClient().Sessions()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return runListen(ctx, cmd.OutOrStdout(), sm, listenRequest{
			userID:         cfg.User.ID,
			message:        listenSend,
			agentID:        listenAgent,
			conversationID: listenConversation,
		})
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().StringVarP(&listenSend, "send", "s", "", "Message to send once the channel is open")
	listenCmd.Flags().StringVarP(&listenAgent, "agent", "a", client.DefaultAgentID, "Agent ID for --send")
	listenCmd.Flags().StringVar(&listenConversation, "conversation", "", "Conversation ID for --send")
}

type listenRequest struct {
	userID         string
	message        string
	agentID        string
	conversationID string
}

// runListen prints session events until the session closes. Cancelling ctx
// closes the session and returns nil.
func runListen(ctx context.Context, w io.Writer, sm *client.SessionManager, req listenRequest) error {
	logger := logging.WithUser(logging.CLI(), req.userID)

	sess, err := sm.Open(ctx, req.userID)
	if err != nil {
		return err
	}
	defer sess.Close()

	for ev := range sess.Events() {
		switch ev.Kind {
		case client.EventOpened:
			fmt.Fprintf(w, "🔌 Connected to %s\n", sess.URL())
			if req.message == "" {
				continue
			}
			if err := sess.Send(req.message, req.agentID, req.conversationID); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			logger.Debug("message sent", "agent_id", req.agentID)
		case client.EventFrame:
			fmt.Fprintln(w, string(ev.Frame.Raw))
		case client.EventMalformed:
			fmt.Fprintf(w, "⚠️  Malformed frame: %v\n", ev.Err)
		case client.EventFailed:
			logger.Debug("session failed", "error", ev.Err)
		case client.EventClosed:
			fmt.Fprintf(w, "🔌 Disconnected: %s\n", ev.Reason)
		}
	}

	// Interrupts are a normal way to stop listening.
	if ctx.Err() != nil {
		return nil
	}
	if err := sess.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
