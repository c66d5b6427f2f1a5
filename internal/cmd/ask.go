package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inercia/twinbridge/internal/client"
	"github.com/inercia/twinbridge/internal/conversion"
)

var (
	askAgent        string
	askConversation string
	askFormat       string

	collabTarget  string
	collabMode    string
	collabContext []string
	collabFormat  string
)

var askCmd = &cobra.Command{
	Use:   "ask MESSAGE...",
	Short: "Send a message to one agent",
	Long: `Send a message to one agent and print its reply.

Examples:
  twinbridge ask --agent karti_database "How should we index transactions?"
  twinbridge ask --agent niyas_ai --conversation conv-42 "And for embeddings?"
  twinbridge ask --agent nayeem_mobile --format html "Sketch the login screen"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := conversion.ParseFormat(askFormat)
		if err != nil {
			return err
		}
		return runAsk(cmd.Context(), cmd.OutOrStdout(), newClient(), askRequest{
			message:        strings.Join(args, " "),
			agentID:        askAgent,
			userID:         cfg.User.ID,
			conversationID: askConversation,
			format:         format,
		})
	},
}

var collaborateCmd = &cobra.Command{
	Use:   "collaborate MESSAGE...",
	Short: "Send a message through the team coordinator",
	Long: `Send a message through the multi-agent routing endpoint.

In orchestrator mode the team coordinator picks the agent. In direct
mode --target names it. Learning capture is always requested.

Examples:
  twinbridge collaborate "Plan the Q4 mobile release"
  twinbridge collaborate --mode direct --target karti_database "Review the schema"
  twinbridge collaborate --context priority=high --context team=payments "Estimate the migration"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := conversion.ParseFormat(collabFormat)
		if err != nil {
			return err
		}
		extra, err := parseContext(collabContext)
		if err != nil {
			return err
		}
		return runCollaborate(cmd.Context(), cmd.OutOrStdout(), newClient(), collabRequest{
			message: strings.Join(args, " "),
			target:  collabTarget,
			mode:    collabMode,
			userID:  cfg.User.ID,
			context: extra,
			format:  format,
		})
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(collaborateCmd)

	askCmd.Flags().StringVarP(&askAgent, "agent", "a", client.DefaultAgentID, "Agent ID to talk to")
	askCmd.Flags().StringVar(&askConversation, "conversation", "", "Continue an existing conversation")
	askCmd.Flags().StringVarP(&askFormat, "format", "f", "text", "Output format: text, html or json")

	collaborateCmd.Flags().StringVarP(&collabTarget, "target", "t", "", "Target agent ID")
	collaborateCmd.Flags().StringVarP(&collabMode, "mode", "m", client.ModeOrchestrator, "Collaboration mode (orchestrator, direct)")
	collaborateCmd.Flags().StringArrayVar(&collabContext, "context", nil, "Context entry as key=value (repeatable)")
	collaborateCmd.Flags().StringVarP(&collabFormat, "format", "f", "text", "Output format: text, html or json")
}

type askRequest struct {
	message        string
	agentID        string
	userID         string
	conversationID string
	format         conversion.Format
}

func runAsk(ctx context.Context, w io.Writer, c *client.Client, req askRequest) error {
	var opts []client.ConversationOption
	if req.userID != "" {
		opts = append(opts, client.WithUserID(req.userID))
	}
	if req.conversationID != "" {
		opts = append(opts, client.WithConversationID(req.conversationID))
	}
	reply, err := c.StartConversation(ctx, req.message, req.agentID, opts...)
	if err != nil {
		return err
	}
	return printReply(w, reply, req.format)
}

type collabRequest struct {
	message string
	target  string
	mode    string
	userID  string
	context map[string]any
	format  conversion.Format
}

func runCollaborate(ctx context.Context, w io.Writer, c *client.Client, req collabRequest) error {
	opts := []client.CollaborateOption{client.WithMode(req.mode)}
	if req.target != "" {
		opts = append(opts, client.WithTargetAgent(req.target))
	}
	if req.userID != "" {
		opts = append(opts, client.WithCollaborationUser(req.userID))
	}
	if len(req.context) > 0 {
		opts = append(opts, client.WithContext(req.context))
	}
	reply, err := c.Collaborate(ctx, req.message, opts...)
	if err != nil {
		return err
	}
	return printReply(w, reply, req.format)
}

// parseContext turns key=value pairs into a context map.
func parseContext(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid context %q: want key=value", p)
		}
		out[key] = value
	}
	return out, nil
}
