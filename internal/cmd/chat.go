package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/shlex"
	"github.com/reeflective/readline"
	"github.com/spf13/cobra"

	"github.com/inercia/twinbridge/internal/client"
	"github.com/inercia/twinbridge/internal/conversion"
	"github.com/inercia/twinbridge/internal/logging"
)

var (
	chatMode  string
	chatAgent string
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat with the agent team",
	Long: `Start an interactive chat with the twin system.

In orchestrator mode (default) the team coordinator routes each message.
In direct mode messages go to the selected agent.

Commands:
  /mode orchestrator|direct  - Switch chat mode
  /agent <name or id>        - Select the agent (switches to direct mode)
  /agents                    - List agents with their memory counts
  /history                   - Show chat history
  /clear                     - Clear chat history
  /help                      - Show available commands
  /quit, /exit               - Exit the chat`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&chatMode, "mode", "m", "", "Initial mode: orchestrator or direct (default from config)")
	chatCmd.Flags().StringVarP(&chatAgent, "agent", "a", "", "Initial agent for direct mode (default from config)")
}

// slashCommands defines the available slash commands with their descriptions.
var slashCommands = []struct {
	name        string
	description string
}{
	{"/mode", "Switch mode: orchestrator or direct"},
	{"/agent", "Select the agent for direct mode"},
	{"/agents", "List agents"},
	{"/history", "Show chat history"},
	{"/clear", "Clear chat history"},
	{"/help", "Show available commands"},
	{"/quit", "Exit the chat"},
	{"/exit", "Exit the chat (alias)"},
}

// exchange is one entry of the local chat history.
type exchange struct {
	Timestamp string
	Mode      string
	Agent     string
	Message   string
	Response  string
}

// chatState holds the REPL state. It is only used from the REPL goroutine.
type chatState struct {
	client *client.Client
	out    io.Writer
	userID string

	mode    string
	agentID string
	agents  []client.AgentDescriptor
	history []exchange

	now func() time.Time
}

func newChatState(c *client.Client, out io.Writer, userID, mode, agentID string) *chatState {
	if mode == "" {
		mode = client.ModeOrchestrator
	}
	s := &chatState{
		client: c,
		out:    out,
		userID: userID,
		mode:   strings.ToLower(mode),
		now:    time.Now,
	}
	if s.mode == client.ModeDirect {
		s.agentID = agentID
	}
	return s
}

func runChat(cmd *cobra.Command, args []string) error {
	mode := cfg.Chat.Mode
	if chatMode != "" {
		mode = chatMode
	}
	agent := cfg.Chat.Agent
	if chatAgent != "" {
		agent = chatAgent
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := cmd.OutOrStdout()
	state := newChatState(newClient(), out, cfg.User.ID, mode, agent)
	if err := state.loadAgents(ctx); err != nil {
		return fmt.Errorf("cannot connect to twin system at %s: %w", cfg.Server.BaseURL, err)
	}
	fmt.Fprintf(out, "✅ Connected to %s - %d agents available\n", cfg.Server.BaseURL, len(state.agents))
	state.printHelp()

	// Create readline shell
	rl := readline.NewShell()
	rl.Prompt.Primary(func() string { return state.prompt() })
	rl.History.Add("default", readline.NewInMemoryHistory())
	rl.Completer = func(line []rune, cursor int) readline.Completions {
		return completeInput(string(line), cursor)
	}

	for {
		if ctx.Err() != nil {
			fmt.Fprintln(out, "\n👋 Goodbye!")
			return nil
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				fmt.Fprintln(out, "\n👋 Goodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := state.handleCommand(ctx, line); quit {
				return nil
			}
			continue
		}

		if err := state.send(ctx, line); err != nil {
			fmt.Fprintf(out, "\n❌ Error: %v\n", err)
		}
	}
}

func (s *chatState) prompt() string {
	if s.mode == client.ModeDirect && s.agentID != "" {
		return fmt.Sprintf("🎯 %s> ", s.agentID)
	}
	return "🤝 twin> "
}

func (s *chatState) loadAgents(ctx context.Context) error {
	agents, err := s.client.ListAgents(ctx)
	if err != nil {
		return err
	}
	s.agents = agents
	return nil
}

// findAgent resolves a name or ID, case-insensitively.
func (s *chatState) findAgent(nameOrID string) (client.AgentDescriptor, bool) {
	for _, a := range s.agents {
		if strings.EqualFold(a.ID, nameOrID) || strings.EqualFold(a.Name, nameOrID) {
			return a, true
		}
	}
	return client.AgentDescriptor{}, false
}

// handleCommand runs one slash command and reports whether the chat should end.
func (s *chatState) handleCommand(ctx context.Context, line string) bool {
	parts, err := shlex.Split(line)
	if err != nil || len(parts) == 0 {
		fmt.Fprintf(s.out, "❌ Cannot parse command: %v\n", err)
		return false
	}

	switch strings.ToLower(parts[0]) {
	case "/quit", "/exit":
		fmt.Fprintln(s.out, "👋 Goodbye!")
		return true
	case "/help":
		s.printHelp()
	case "/mode":
		if len(parts) < 2 {
			fmt.Fprintln(s.out, "❌ Please specify mode: /mode orchestrator or /mode direct")
			return false
		}
		switch mode := strings.ToLower(parts[1]); mode {
		case client.ModeOrchestrator:
			s.mode = mode
			s.agentID = ""
			fmt.Fprintln(s.out, "✅ Switched to ORCHESTRATOR mode")
		case client.ModeDirect:
			s.mode = mode
			fmt.Fprintln(s.out, "✅ Switched to DIRECT mode")
		default:
			fmt.Fprintln(s.out, "❌ Invalid mode. Use 'orchestrator' or 'direct'")
		}
	case "/agent":
		if len(parts) < 2 {
			fmt.Fprintln(s.out, "❌ Please specify agent name: /agent <name>")
			return false
		}
		name := strings.Join(parts[1:], " ")
		a, ok := s.findAgent(name)
		if !ok {
			fmt.Fprintf(s.out, "❌ Agent '%s' not found\n", name)
			return false
		}
		s.agentID = a.ID
		s.mode = client.ModeDirect
		fmt.Fprintf(s.out, "✅ Set target agent to %s (%s)\n", orDefault(a.Name, a.ID), a.Role)
	case "/agents":
		s.printAgents(ctx)
	case "/history":
		s.printHistory()
	case "/clear":
		s.history = nil
		fmt.Fprintln(s.out, "✅ Chat history cleared")
	default:
		fmt.Fprintf(s.out, "❓ Unknown command: %s (use /help for available commands)\n", parts[0])
	}
	return false
}

// send routes a message according to the current mode and records the exchange.
func (s *chatState) send(ctx context.Context, message string) error {
	opts := []client.CollaborateOption{
		client.WithMode(s.mode),
		client.WithContext(map[string]any{
			"interactive_session": true,
			"timestamp":           s.now().Format(time.RFC3339),
		}),
	}
	if s.userID != "" {
		opts = append(opts, client.WithCollaborationUser(s.userID))
	}
	if s.mode == client.ModeDirect {
		if s.agentID == "" {
			return errors.New("no agent selected for direct mode, use /agent <name> first")
		}
		opts = append(opts, client.WithTargetAgent(s.agentID))
	}

	logging.WithConversation(logging.CLI(), s.agentID, "").Debug("sending chat message", "mode", s.mode)
	reply, err := s.client.Collaborate(ctx, message, opts...)
	if err != nil {
		return err
	}

	ts := reply.Timestamp
	if ts == "" {
		ts = s.now().Format(time.RFC3339)
	}
	s.history = append(s.history, exchange{
		Timestamp: ts,
		Mode:      s.mode,
		Agent:     replyAuthor(reply),
		Message:   message,
		Response:  reply.Text(),
	})

	fmt.Fprintln(s.out)
	if err := printReply(s.out, reply, conversion.FormatText); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "⏰ %s\n", ts)
	return nil
}

func (s *chatState) printAgents(ctx context.Context) {
	if err := s.loadAgents(ctx); err != nil {
		fmt.Fprintf(s.out, "❌ Failed to load agents: %v\n", err)
		return
	}
	agents := make([]client.AgentDescriptor, len(s.agents))
	copy(agents, s.agents)
	for i, a := range agents {
		if a.MemoryEntries > 0 {
			continue
		}
		// Older services only report counts through the memory endpoint.
		if dump, err := s.client.GetMemory(ctx, a.ID); err == nil {
			agents[i].MemoryEntries = dump.MemoryEntries
		}
	}
	fmt.Fprintln(s.out, "\n👥 Available Agents:")
	printAgents(s.out, agents)
}

func (s *chatState) printHistory() {
	if len(s.history) == 0 {
		fmt.Fprintln(s.out, "📝 No chat history yet")
		return
	}
	fmt.Fprintln(s.out, "\n📝 Chat History:")
	for i, e := range s.history {
		fmt.Fprintf(s.out, "%d. [%s] %s\n", i+1, e.Timestamp, strings.ToUpper(e.Mode))
		fmt.Fprintf(s.out, "   👤 You: %s\n", truncate(e.Message, 100))
		fmt.Fprintf(s.out, "   🤖 %s: %s\n", e.Agent, truncate(e.Response, 100))
	}
}

func (s *chatState) printHelp() {
	fmt.Fprintln(s.out, `
Available commands:
  /mode orchestrator|direct  - Switch chat mode
  /agent <name or id>        - Select the agent (switches to direct mode)
  /agents                    - List agents
  /history                   - Show chat history
  /clear                     - Clear chat history
  /help                      - Show this help message
  /quit, /exit               - Exit the chat

Tips:
  - Quote multi-word names: /agent "Team Coordinator"
  - Use up/down arrows for message history
  - Use Tab to autocomplete slash commands`)
}

// completeInput provides tab completion for the chat input.
// It completes slash commands when the input starts with "/".
func completeInput(line string, cursor int) readline.Completions {
	matches := matchingCommands(completionPrefix(line, cursor))
	if len(matches) == 0 {
		return readline.Completions{}
	}

	// Format: value1, desc1, value2, desc2, ...
	pairs := make([]string, 0, len(matches)*2)
	for _, i := range matches {
		pairs = append(pairs, slashCommands[i].name, slashCommands[i].description)
	}
	return readline.CompleteValuesDescribed(pairs...).
		Tag("commands").
		NoSpace('/')
}

// completionPrefix returns the text before the cursor. The cursor counts
// runes, not bytes.
func completionPrefix(line string, cursor int) string {
	runes := []rune(line)
	cursor = min(max(cursor, 0), len(runes))
	return string(runes[:cursor])
}

// matchingCommands returns the indexes of the slash commands that complete
// text. Text that is not a bare slash command prefix matches nothing.
func matchingCommands(text string) []int {
	if !strings.HasPrefix(text, "/") || strings.ContainsRune(text, ' ') {
		return nil
	}
	var out []int
	for i, cmd := range slashCommands {
		if strings.HasPrefix(cmd.name, text) {
			out = append(out, i)
		}
	}
	return out
}
