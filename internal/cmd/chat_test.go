package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inercia/twinbridge/internal/client"
)

func TestMatchingCommands(t *testing.T) {
	names := func(idx []int) []string {
		var out []string
		for _, i := range idx {
			out = append(out, slashCommands[i].name)
		}
		return out
	}

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty input", "", nil},
		{"non-slash input", "hello", nil},
		{"slash only shows all commands", "/", []string{"/mode", "/agent", "/agents", "/history", "/clear", "/help", "/quit", "/exit"}},
		{"partial /a matches agent and agents", "/a", []string{"/agent", "/agents"}},
		{"full /agents matches itself", "/agents", []string{"/agents"}},
		{"partial /h matches history and help", "/h", []string{"/history", "/help"}},
		{"partial /e matches exit", "/e", []string{"/exit"}},
		{"unknown prefix", "/xyz", nil},
		{"arguments stop completion", "/mode dir", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(matchingCommands(tt.text)))
		})
	}
}

func TestCompleteInput_CursorBeyondLine(t *testing.T) {
	assert.NotPanics(t, func() {
		completeInput("/h", 100)
		completeInput("/help extra", 2)
		completeInput("", 0)
	})
}

func TestCompletionPrefix(t *testing.T) {
	tests := []struct {
		line   string
		cursor int
		want   string
	}{
		{"/help", 3, "/he"},
		{"héllo", 2, "hé"},
		{"日本 /a", 4, "日本 /"},
		{"/agent Café", 11, "/agent Café"},
		{"/h", 100, "/h"},
		{"/h", -1, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, completionPrefix(tt.line, tt.cursor), "line %q cursor %d", tt.line, tt.cursor)
	}
}

func TestSlashCommandsDefinition(t *testing.T) {
	seen := map[string]bool{}
	for _, cmd := range slashCommands {
		assert.True(t, strings.HasPrefix(cmd.name, "/"), "command %q should start with /", cmd.name)
		assert.NotEmpty(t, cmd.description, "command %q should have a description", cmd.name)
		assert.False(t, seen[cmd.name], "duplicate command %q", cmd.name)
		seen[cmd.name] = true
	}
}

func newTestChat(t *testing.T, mode, agent string) (*chatState, *fakeTwin, *bytes.Buffer) {
	t.Helper()
	fake := newFakeTwin(t)
	var out bytes.Buffer
	s := newChatState(fake.client(), &out, "user123", mode, agent)
	s.now = func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) }
	require.NoError(t, s.loadAgents(context.Background()))
	return s, fake, &out
}

func TestChatState_ModeCommands(t *testing.T) {
	s, _, out := newTestChat(t, "", "")
	ctx := context.Background()

	assert.Equal(t, client.ModeOrchestrator, s.mode)

	assert.False(t, s.handleCommand(ctx, "/mode direct"))
	assert.Equal(t, client.ModeDirect, s.mode)

	assert.False(t, s.handleCommand(ctx, "/mode swarm"))
	assert.Equal(t, client.ModeDirect, s.mode)
	assert.Contains(t, out.String(), "Invalid mode")

	s.agentID = "karti_database"
	assert.False(t, s.handleCommand(ctx, "/MODE Orchestrator"))
	assert.Equal(t, client.ModeOrchestrator, s.mode)
	assert.Empty(t, s.agentID, "orchestrator mode clears the agent")

	assert.False(t, s.handleCommand(ctx, "/mode"))
	assert.Contains(t, out.String(), "Please specify mode")
}

func TestChatState_AgentCommand(t *testing.T) {
	s, _, out := newTestChat(t, "", "")
	ctx := context.Background()

	s.handleCommand(ctx, "/agent karti")
	assert.Equal(t, "karti_database", s.agentID)
	assert.Equal(t, client.ModeDirect, s.mode)

	s.handleCommand(ctx, "/agent NAYEEM_MOBILE")
	assert.Equal(t, "nayeem_mobile", s.agentID)

	s.handleCommand(ctx, `/agent "Team Coordinator"`)
	assert.Equal(t, "team_coordinator", s.agentID)

	s.handleCommand(ctx, "/agent team coordinator")
	assert.Equal(t, "team_coordinator", s.agentID)

	s.handleCommand(ctx, "/agent nobody")
	assert.Equal(t, "team_coordinator", s.agentID)
	assert.Contains(t, out.String(), "Agent 'nobody' not found")

	s.handleCommand(ctx, `/agent "unterminated`)
	assert.Contains(t, out.String(), "Cannot parse command")
}

func TestChatState_QuitAndUnknown(t *testing.T) {
	s, _, out := newTestChat(t, "", "")
	ctx := context.Background()

	assert.True(t, s.handleCommand(ctx, "/quit"))
	assert.True(t, s.handleCommand(ctx, "/exit"))
	assert.False(t, s.handleCommand(ctx, "/bogus"))
	assert.Contains(t, out.String(), "Unknown command: /bogus")
}

func TestChatState_SendOrchestrator(t *testing.T) {
	s, fake, out := newTestChat(t, "", "")
	ctx := context.Background()

	require.NoError(t, s.send(ctx, "Plan the Q4 release"))

	req := fake.last(t)
	assert.Equal(t, "/twin-system", req.Path)
	assert.Equal(t, "Plan the Q4 release", req.Body["user_message"])
	assert.Equal(t, "orchestrator", req.Body["collaboration_mode"])
	assert.Equal(t, true, req.Body["enable_learning"])
	assert.Equal(t, "user123", req.Body["user_id"])
	assert.NotContains(t, req.Body, "target_agent")
	assert.Equal(t, map[string]any{
		"interactive_session": true,
		"timestamp":           "2025-01-01T12:00:00Z",
	}, req.Body["context"])

	assert.Contains(t, out.String(), "routed: Plan the Q4 release")
	require.Len(t, s.history, 1)
	assert.Equal(t, "orchestrator", s.history[0].Mode)
	assert.Equal(t, "2025-01-01T10:00:00Z", s.history[0].Timestamp)
}

func TestChatState_SendDirect(t *testing.T) {
	s, fake, _ := newTestChat(t, "direct", "karti_database")
	ctx := context.Background()

	require.NoError(t, s.send(ctx, "Review the schema"))

	req := fake.last(t)
	assert.Equal(t, "direct", req.Body["collaboration_mode"])
	assert.Equal(t, "karti_database", req.Body["target_agent"])
}

func TestChatState_SendDirectWithoutAgent(t *testing.T) {
	s, fake, _ := newTestChat(t, "direct", "")

	err := s.send(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no agent selected")
	assert.Zero(t, fake.count(), "no request should reach the service")
}

func TestChatState_HistoryAndClear(t *testing.T) {
	s, _, out := newTestChat(t, "", "")
	ctx := context.Background()

	s.handleCommand(ctx, "/history")
	assert.Contains(t, out.String(), "No chat history yet")

	require.NoError(t, s.send(ctx, "first"))
	out.Reset()
	s.handleCommand(ctx, "/history")
	assert.Contains(t, out.String(), "1. [2025-01-01T10:00:00Z] ORCHESTRATOR")
	assert.Contains(t, out.String(), "You: first")

	s.handleCommand(ctx, "/clear")
	assert.Empty(t, s.history)
}

func TestChatState_AgentsCommand(t *testing.T) {
	s, _, out := newTestChat(t, "", "")

	s.handleCommand(context.Background(), "/agents")
	assert.Contains(t, out.String(), "Karti (Database Engineer) [karti_database] - 7 memories")
}

func TestChatState_Prompt(t *testing.T) {
	s, _, _ := newTestChat(t, "direct", "niyas_ai")
	assert.Equal(t, "🎯 niyas_ai> ", s.prompt())

	s.mode = client.ModeOrchestrator
	assert.Equal(t, "🤝 twin> ", s.prompt())
}
