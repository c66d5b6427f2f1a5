package client

import (
	"encoding/json"
	"strings"
)

// Status is the envelope status field.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Envelope is the response wrapper used by every endpoint of the service.
type Envelope struct {
	Status    Status          `json:"status"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// Collaboration modes observed on the service. The mode is sent as a
// free-form string; these are conveniences, not an exhaustive list.
const (
	ModeOrchestrator = "orchestrator"
	ModeDirect       = "direct"
)

// DefaultAgentID is the agent addressed by real-time frames when the caller
// does not name one.
const DefaultAgentID = "team_coordinator"

// AgentDescriptor describes one addressable agent.
type AgentDescriptor struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Role      string   `json:"role"`
	Expertise []string `json:"expertise"`
	// MemoryEntries is reported by some service versions; zero when absent.
	MemoryEntries int `json:"memory_entries,omitempty"`
}

// ContentBlock is one block of an agent reply.
type ContentBlock struct {
	Text string `json:"text"`
}

// ReplyMessage is the assistant message inside an AgentReply.
type ReplyMessage struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// AgentReply is the payload returned by StartConversation and Collaborate.
type AgentReply struct {
	Message           ReplyMessage `json:"message"`
	Response          string       `json:"response,omitempty"`
	Timestamp         string       `json:"timestamp,omitempty"`
	Model             string       `json:"model,omitempty"`
	Agent             string       `json:"agent,omitempty"`
	AgentID           string       `json:"agent_id,omitempty"`
	Role              string       `json:"role,omitempty"`
	CollaborationMode string       `json:"collaboration_mode,omitempty"`
	ConversationID    string       `json:"conversation_id,omitempty"`

	// Raw holds the undecoded data payload.
	Raw json.RawMessage `json:"-"`
}

// Text returns the reply text. Content blocks are joined with newlines;
// a plain "response" field is used when the reply has no content blocks.
func (r *AgentReply) Text() string {
	if r == nil {
		return ""
	}
	if len(r.Message.Content) == 0 {
		return r.Response
	}
	parts := make([]string, 0, len(r.Message.Content))
	for _, b := range r.Message.Content {
		parts = append(parts, b.Text)
	}
	return strings.Join(parts, "\n")
}

// MemoryRecord is one entry of the legacy memory dump.
type MemoryRecord struct {
	Timestamp string `json:"timestamp"`
	Input     string `json:"input"`
	Response  string `json:"response"`
	SessionID string `json:"session_id,omitempty"`
}

// MemoryDump is the payload of the legacy memory endpoint.
type MemoryDump struct {
	AgentID       string         `json:"agent_id"`
	AgentName     string         `json:"agent_name,omitempty"`
	MemoryEntries int            `json:"memory_entries"`
	RecentMemory  []MemoryRecord `json:"recent_memory"`

	Raw json.RawMessage `json:"-"`
}

// MemoryEntry is one scoped memory returned by the enhanced memory endpoint.
type MemoryEntry struct {
	ID         string         `json:"id"`
	AgentID    string         `json:"agent_id"`
	UserID     string         `json:"user_id,omitempty"`
	Content    string         `json:"content"`
	MemoryType string         `json:"memory_type"`
	Importance float64        `json:"importance"`
	Timestamp  string         `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
}

// EnhancedMemory is the payload of the enhanced memory endpoint.
// Memories are returned exactly as the server sent them.
type EnhancedMemory struct {
	AgentID  string        `json:"agent_id"`
	UserID   string        `json:"user_id,omitempty"`
	Memories []MemoryEntry `json:"memories"`

	Raw json.RawMessage `json:"-"`
}

// Personality holds the traits an agent has learned.
type Personality struct {
	AgentID              string         `json:"agent_id"`
	CommunicationStyle   map[string]any `json:"communication_style,omitempty"`
	TechnicalPreferences map[string]any `json:"technical_preferences,omitempty"`
	ResponsePatterns     map[string]any `json:"response_patterns,omitempty"`
	LearnedPhrases       []string       `json:"learned_phrases,omitempty"`
	ExpertiseAreas       []string       `json:"expertise_areas,omitempty"`
	LastUpdated          string         `json:"last_updated,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ContextWindow is the agent's current conversational context.
type ContextWindow struct {
	RecentConversations []MemoryEntry  `json:"recent_conversations"`
	RelevantKnowledge   []MemoryEntry  `json:"relevant_knowledge"`
	UserPreferences     map[string]any `json:"user_preferences,omitempty"`
	CurrentTopic        string         `json:"current_topic,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// LearningResult is the payload returned by TriggerLearning.
// Its shape is service-defined; Fields holds the decoded object.
type LearningResult struct {
	Fields map[string]any

	Raw json.RawMessage
}

// conversationRequest is the body of POST /conversation.
type conversationRequest struct {
	Message        string `json:"message"`
	AgentID        string `json:"agent_id"`
	UserID         string `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// invocationRequest is the body of POST /invocations.
type invocationRequest struct {
	Input invocationInput `json:"input"`
}

type invocationInput struct {
	Prompt string `json:"prompt"`
}

// invocationResponse is either {"output": {...}} or an error {"detail": ...}.
type invocationResponse struct {
	Output json.RawMessage `json:"output"`
	Detail json.RawMessage `json:"detail"`
}

// detailText returns the error detail. Validation errors arrive as a list
// and are returned as raw JSON.
func (r invocationResponse) detailText() string {
	var s string
	if err := json.Unmarshal(r.Detail, &s); err == nil {
		return s
	}
	return string(r.Detail)
}

// collaborationRequest is the body of POST /twin-system.
type collaborationRequest struct {
	UserMessage       string         `json:"user_message"`
	TargetAgent       string         `json:"target_agent,omitempty"`
	CollaborationMode string         `json:"collaboration_mode"`
	Context           map[string]any `json:"context,omitempty"`
	UserID            string         `json:"user_id,omitempty"`
	EnableLearning    bool           `json:"enable_learning"`
}
