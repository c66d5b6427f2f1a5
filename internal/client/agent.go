package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultMemoryLimit is the limit sent by GetEnhancedMemory when the caller
// passes a non-positive value.
const DefaultMemoryLimit = 50

// agentPath builds /agent/{id}/{suffix}.
func agentPath(agentID, suffix string) string {
	return "/agent/" + url.PathEscape(agentID) + "/" + suffix
}

// withUser adds user_id when it is set. An absent user means the agent-global view.
func withUser(q queryParams, userID string) queryParams {
	if userID == "" {
		return q
	}
	return q.add("user_id", userID)
}

// GetMemory returns the legacy memory dump of an agent.
func (c *Client) GetMemory(ctx context.Context, agentID string) (*MemoryDump, error) {
	const op = "get memory"
	if strings.TrimSpace(agentID) == "" {
		return nil, invalidArgument(op, "agent_id")
	}
	env, err := c.do(ctx, op, http.MethodGet, agentPath(agentID, "memory"), nil, nil)
	if err != nil {
		return nil, err
	}
	dump, err := decodeData[MemoryDump](op, env)
	if err != nil {
		return nil, err
	}
	dump.Raw = env.Data
	return &dump, nil
}

// GetEnhancedMemory returns memories of an agent, narrowed to userID when set.
// The server applies limit; the client never truncates the result.
func (c *Client) GetEnhancedMemory(ctx context.Context, agentID, userID string, limit int) (*EnhancedMemory, error) {
	const op = "get enhanced memory"
	if strings.TrimSpace(agentID) == "" {
		return nil, invalidArgument(op, "agent_id")
	}
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	q := withUser(nil, userID).add("limit", strconv.Itoa(limit))

	env, err := c.do(ctx, op, http.MethodGet, agentPath(agentID, "enhanced-memory"), q, nil)
	if err != nil {
		return nil, err
	}
	mem, err := decodeData[EnhancedMemory](op, env)
	if err != nil {
		return nil, err
	}
	mem.Raw = env.Data
	return &mem, nil
}

// GetPersonality returns the traits an agent has learned.
func (c *Client) GetPersonality(ctx context.Context, agentID string) (*Personality, error) {
	const op = "get personality"
	if strings.TrimSpace(agentID) == "" {
		return nil, invalidArgument(op, "agent_id")
	}
	env, err := c.do(ctx, op, http.MethodGet, agentPath(agentID, "personality"), nil, nil)
	if err != nil {
		return nil, err
	}
	p, err := decodeData[Personality](op, env)
	if err != nil {
		return nil, err
	}
	p.Raw = env.Data
	return &p, nil
}

// GetContext returns the current context window of an agent.
func (c *Client) GetContext(ctx context.Context, agentID, userID string) (*ContextWindow, error) {
	const op = "get context"
	if strings.TrimSpace(agentID) == "" {
		return nil, invalidArgument(op, "agent_id")
	}
	env, err := c.do(ctx, op, http.MethodGet, agentPath(agentID, "context"), withUser(nil, userID), nil)
	if err != nil {
		return nil, err
	}
	w, err := decodeData[ContextWindow](op, env)
	if err != nil {
		return nil, err
	}
	w.Raw = env.Data
	return &w, nil
}

// TriggerLearning asks the service to run a learning pass for an agent.
func (c *Client) TriggerLearning(ctx context.Context, agentID, userID string) (*LearningResult, error) {
	const op = "trigger learning"
	if strings.TrimSpace(agentID) == "" {
		return nil, invalidArgument(op, "agent_id")
	}
	env, err := c.do(ctx, op, http.MethodPost, agentPath(agentID, "learn"), withUser(nil, userID), nil)
	if err != nil {
		return nil, err
	}
	result := &LearningResult{Raw: env.Data}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &result.Fields); err != nil {
			// Non-object payloads are kept raw only.
			if _, ok := err.(*json.UnmarshalTypeError); !ok {
				return nil, &TransportError{Op: op, Err: fmt.Errorf("decode data: %w", err)}
			}
			result.Fields = nil
		}
	}
	return result, nil
}
