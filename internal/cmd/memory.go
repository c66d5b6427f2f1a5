package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inercia/twinbridge/internal/client"
)

var (
	memoryEnhanced bool
	memoryLimit    int
	agentJSON      bool
)

var memoryCmd = &cobra.Command{
	Use:   "memory AGENT",
	Short: "Show what an agent remembers",
	Long: `Show what an agent remembers.

Without --enhanced the legacy memory dump is printed. With --enhanced the
scoped memory store is queried, narrowed to --user when set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMemory(cmd.Context(), cmd.OutOrStdout(), newClient(), args[0], cfg.User.ID, memoryEnhanced, memoryLimit, agentJSON)
	},
}

var personalityCmd = &cobra.Command{
	Use:   "personality AGENT",
	Short: "Show the traits an agent has learned",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPersonality(cmd.Context(), cmd.OutOrStdout(), newClient(), args[0], agentJSON)
	},
}

var contextCmd = &cobra.Command{
	Use:   "context AGENT",
	Short: "Show the current context window of an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runContext(cmd.Context(), cmd.OutOrStdout(), newClient(), args[0], cfg.User.ID, agentJSON)
	},
}

var learnCmd = &cobra.Command{
	Use:   "learn AGENT",
	Short: "Trigger a learning pass for an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLearn(cmd.Context(), cmd.OutOrStdout(), newClient(), args[0], cfg.User.ID)
	},
}

func init() {
	for _, c := range []*cobra.Command{memoryCmd, personalityCmd, contextCmd} {
		c.Flags().BoolVar(&agentJSON, "json", false, "Print the raw payload as JSON")
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(learnCmd)

	memoryCmd.Flags().BoolVarP(&memoryEnhanced, "enhanced", "e", false, "Query the scoped memory store")
	memoryCmd.Flags().IntVarP(&memoryLimit, "limit", "n", client.DefaultMemoryLimit, "Maximum number of memories (enhanced only)")
}

func runMemory(ctx context.Context, w io.Writer, c *client.Client, agentID, userID string, enhanced bool, limit int, asJSON bool) error {
	if !enhanced {
		dump, err := c.GetMemory(ctx, agentID)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(w, dump.Raw, dump)
		}
		fmt.Fprintf(w, "🧠 %s: %d memories\n", orDefault(dump.AgentName, dump.AgentID, agentID), dump.MemoryEntries)
		for _, r := range dump.RecentMemory {
			fmt.Fprintf(w, "  [%s] 👤 %s\n", r.Timestamp, truncate(r.Input, 100))
			fmt.Fprintf(w, "  %s 🤖 %s\n", strings.Repeat(" ", len(r.Timestamp)+2), truncate(r.Response, 100))
		}
		return nil
	}

	mem, err := c.GetEnhancedMemory(ctx, agentID, userID, limit)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(w, mem.Raw, mem)
	}
	scope := "all users"
	if userID != "" {
		scope = "user " + userID
	}
	fmt.Fprintf(w, "🧠 %s (%s): %d memories\n", orDefault(mem.AgentID, agentID), scope, len(mem.Memories))
	printMemoryEntries(w, mem.Memories)
	return nil
}

func printMemoryEntries(w io.Writer, entries []client.MemoryEntry) {
	for _, m := range entries {
		fmt.Fprintf(w, "  • [%s] %s (importance %.2f)\n", m.MemoryType, truncate(m.Content, 120), m.Importance)
	}
}

func runPersonality(ctx context.Context, w io.Writer, c *client.Client, agentID string, asJSON bool) error {
	p, err := c.GetPersonality(ctx, agentID)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(w, p.Raw, p)
	}
	fmt.Fprintf(w, "🎭 %s\n", orDefault(p.AgentID, agentID))
	printTraits(w, "Communication style", p.CommunicationStyle)
	printTraits(w, "Technical preferences", p.TechnicalPreferences)
	printTraits(w, "Response patterns", p.ResponsePatterns)
	if len(p.ExpertiseAreas) > 0 {
		fmt.Fprintf(w, "  Expertise: %s\n", strings.Join(p.ExpertiseAreas, ", "))
	}
	if len(p.LearnedPhrases) > 0 {
		fmt.Fprintf(w, "  Phrases: %s\n", strings.Join(p.LearnedPhrases, "; "))
	}
	if p.LastUpdated != "" {
		fmt.Fprintf(w, "  Last updated: %s\n", p.LastUpdated)
	}
	return nil
}

func printTraits(w io.Writer, title string, traits map[string]any) {
	if len(traits) == 0 {
		return
	}
	keys := make([]string, 0, len(traits))
	for k := range traits {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "  %s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "    %s: %v\n", k, traits[k])
	}
}

func runContext(ctx context.Context, w io.Writer, c *client.Client, agentID, userID string, asJSON bool) error {
	win, err := c.GetContext(ctx, agentID, userID)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(w, win.Raw, win)
	}
	if win.CurrentTopic != "" {
		fmt.Fprintf(w, "📌 Topic: %s\n", win.CurrentTopic)
	}
	fmt.Fprintf(w, "💬 Recent conversations: %d\n", len(win.RecentConversations))
	printMemoryEntries(w, win.RecentConversations)
	fmt.Fprintf(w, "📚 Relevant knowledge: %d\n", len(win.RelevantKnowledge))
	printMemoryEntries(w, win.RelevantKnowledge)
	printTraits(w, "User preferences", win.UserPreferences)
	return nil
}

func runLearn(ctx context.Context, w io.Writer, c *client.Client, agentID, userID string) error {
	result, err := c.TriggerLearning(ctx, agentID, userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "✅ Learning triggered for %s\n", agentID)
	if len(result.Raw) > 0 && string(result.Raw) != "null" {
		return printJSON(w, result.Raw, result.Fields)
	}
	return nil
}

func orDefault(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
