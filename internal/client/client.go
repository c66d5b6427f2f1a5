package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/inercia/twinbridge/internal/logging"
)

// DefaultBaseURL is the address of a locally running service.
const DefaultBaseURL = "http://localhost:8080"

// Client issues requests against the twin system REST API.
// A Client is immutable once built and safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
	requestIDs bool
	limiter    *rate.Limiter

	timeout    time.Duration
	hasTimeout bool
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. The client is copied, so later
// options never modify the caller's value. A nil client is ignored.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		if c != nil {
			client.httpClient = c
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		client.timeout = d
		client.hasTimeout = true
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(client *Client) {
		if l != nil {
			client.logger = l
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(client *Client) {
		client.userAgent = ua
	}
}

// WithRequestIDs toggles the X-Request-ID header. Enabled by default.
func WithRequestIDs(enabled bool) Option {
	return func(client *Client) {
		client.requestIDs = enabled
	}
}

// WithRateLimit paces outgoing requests to rps requests per second with the
// given burst. A non-positive rps disables pacing. Requests are delayed,
// never retried or dropped.
func WithRateLimit(rps float64, burst int) Option {
	return func(client *Client) {
		if rps <= 0 {
			client.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New creates a new client.
// baseURL should be the service address (e.g., "http://localhost:8080");
// an empty value selects DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:     logging.Client(),
		userAgent:  "twinbridge",
		requestIDs: true,
	}
	for _, opt := range opts {
		opt(c)
	}

	hc := *c.httpClient
	if c.hasTimeout {
		hc.Timeout = c.timeout
	}
	c.httpClient = &hc
	return c
}

// BaseURL returns the base URL of the client.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Sessions returns a session manager for the real-time endpoint of the
// same service.
func (c *Client) Sessions(opts ...ManagerOption) (*SessionManager, error) {
	opts = append([]ManagerOption{WithSessionLogger(logging.Session())}, opts...)
	return NewSessionManager(c.baseURL, opts...)
}

// HealthCheck calls the liveness endpoint and returns the envelope.
func (c *Client) HealthCheck(ctx context.Context) (*Envelope, error) {
	return c.do(ctx, "health check", http.MethodGet, "/ping", nil, nil)
}

// ListAgents returns the agents known to the service, in server order.
func (c *Client) ListAgents(ctx context.Context) ([]AgentDescriptor, error) {
	const op = "list agents"
	env, err := c.do(ctx, op, http.MethodGet, "/agents", nil, nil)
	if err != nil {
		return nil, err
	}

	// The list is either the data itself or wrapped as {"agents": [...]}.
	var agents []AgentDescriptor
	if err := json.Unmarshal(env.Data, &agents); err == nil {
		return agents, nil
	}
	var wrapped struct {
		Agents []AgentDescriptor `json:"agents"`
	}
	if err := json.Unmarshal(env.Data, &wrapped); err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("decode data: %w", err)}
	}
	return wrapped.Agents, nil
}

// ConversationOption configures StartConversation.
type ConversationOption func(*conversationRequest)

// WithUserID attributes the conversation to a user. Without it the service
// treats the caller as anonymous.
func WithUserID(userID string) ConversationOption {
	return func(r *conversationRequest) {
		r.UserID = userID
	}
}

// WithConversationID continues an existing conversation thread. Without it
// the service starts a new one.
func WithConversationID(conversationID string) ConversationOption {
	return func(r *conversationRequest) {
		r.ConversationID = conversationID
	}
}

// StartConversation sends a message to a single agent and returns its reply.
func (c *Client) StartConversation(ctx context.Context, message, agentID string, opts ...ConversationOption) (*AgentReply, error) {
	const op = "start conversation"
	if strings.TrimSpace(message) == "" {
		return nil, invalidArgument(op, "message")
	}
	if strings.TrimSpace(agentID) == "" {
		return nil, invalidArgument(op, "agent_id")
	}

	req := conversationRequest{Message: message, AgentID: agentID}
	for _, opt := range opts {
		opt(&req)
	}

	env, err := c.do(ctx, op, http.MethodPost, "/conversation", nil, req)
	if err != nil {
		return nil, err
	}
	reply, err := decodeData[AgentReply](op, env)
	if err != nil {
		return nil, err
	}
	reply.Raw = env.Data
	return &reply, nil
}

// CollaborateOption configures Collaborate.
type CollaborateOption func(*collaborationRequest)

// WithTargetAgent asks the service to route the message to one agent.
func WithTargetAgent(agentID string) CollaborateOption {
	return func(r *collaborationRequest) {
		r.TargetAgent = agentID
	}
}

// WithMode sets the collaboration mode. The default is ModeOrchestrator.
func WithMode(mode string) CollaborateOption {
	return func(r *collaborationRequest) {
		if mode != "" {
			r.CollaborationMode = mode
		}
	}
}

// WithContext attaches free-form context to the request.
func WithContext(c map[string]any) CollaborateOption {
	return func(r *collaborationRequest) {
		r.Context = c
	}
}

// WithCollaborationUser attributes the request to a user.
func WithCollaborationUser(userID string) CollaborateOption {
	return func(r *collaborationRequest) {
		r.UserID = userID
	}
}

// Collaborate sends a message through the multi-agent routing endpoint.
// Learning capture is always requested.
func (c *Client) Collaborate(ctx context.Context, userMessage string, opts ...CollaborateOption) (*AgentReply, error) {
	const op = "collaborate"
	if strings.TrimSpace(userMessage) == "" {
		return nil, invalidArgument(op, "user_message")
	}

	req := collaborationRequest{
		UserMessage:       userMessage,
		CollaborationMode: ModeOrchestrator,
	}
	for _, opt := range opts {
		opt(&req)
	}
	req.EnableLearning = true

	env, err := c.do(ctx, op, http.MethodPost, "/twin-system", nil, req)
	if err != nil {
		return nil, err
	}
	reply, err := decodeData[AgentReply](op, env)
	if err != nil {
		return nil, err
	}
	reply.Raw = env.Data
	return &reply, nil
}

// Invoke sends a prompt to the invocation endpoint, which always answers
// through the team coordinator. Unlike the other endpoints the reply is
// wrapped as {"output": {...}} and failures carry a "detail" field.
func (c *Client) Invoke(ctx context.Context, prompt string) (*AgentReply, error) {
	const op = "invoke"
	if strings.TrimSpace(prompt) == "" {
		return nil, invalidArgument(op, "prompt")
	}

	req := invocationRequest{Input: invocationInput{Prompt: prompt}}
	status, raw, err := c.roundTrip(ctx, op, http.MethodPost, "/invocations", nil, req)
	if err != nil {
		return nil, err
	}

	var resp invocationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &TransportError{Op: op, StatusCode: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	if status >= http.StatusBadRequest || present(resp.Detail) {
		if !present(resp.Detail) {
			return nil, &TransportError{Op: op, StatusCode: status, Err: fmt.Errorf("unexpected status %d", status)}
		}
		return nil, &RemoteError{Op: op, Message: resp.detailText(), StatusCode: status}
	}
	if !present(resp.Output) {
		return nil, &TransportError{Op: op, StatusCode: status, Err: errors.New("response has no output")}
	}

	var reply AgentReply
	if err := json.Unmarshal(resp.Output, &reply); err != nil {
		return nil, &TransportError{Op: op, StatusCode: status, Err: fmt.Errorf("decode output: %w", err)}
	}
	reply.Raw = resp.Output
	return &reply, nil
}

// do performs one request and validates the envelope.
// It never retries.
func (c *Client) do(ctx context.Context, op, method, path string, query queryParams, body any) (*Envelope, error) {
	status, raw, err := c.roundTrip(ctx, op, method, path, query, body)
	if err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &TransportError{Op: op, StatusCode: status, Err: fmt.Errorf("decode envelope: %w", err)}
	}

	switch env.Status {
	case StatusSuccess:
		return &env, nil
	case StatusError:
		return nil, &RemoteError{
			Op:         op,
			Message:    env.Message,
			Timestamp:  env.Timestamp,
			StatusCode: status,
		}
	default:
		return nil, &TransportError{
			Op:         op,
			StatusCode: status,
			Err:        fmt.Errorf("unexpected envelope status %q", env.Status),
		}
	}
}

// roundTrip sends one request and returns the status code and body.
func (c *Client) roundTrip(ctx context.Context, op, method, path string, query queryParams, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: marshal: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	target := c.baseURL + path
	if q := query.encode(); q != "" {
		target += "?" + q
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	logger := c.logger.With("op", op, "method", method, "path", path)
	if c.requestIDs {
		id := uuid.NewString()
		req.Header.Set("X-Request-ID", id)
		logger = logger.With("request_id", id)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, &TransportError{Op: op, Err: fmt.Errorf("rate limit: %w", err)}
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Debug("request failed", "error", err)
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	logger.Debug("response received", "status", resp.StatusCode, "duration", time.Since(start), "bytes", len(raw))

	return resp.StatusCode, raw, nil
}

// decodeData decodes the envelope data into T. Missing or null data yields
// the zero value.
func decodeData[T any](op string, env *Envelope) (T, error) {
	var out T
	if !present(env.Data) {
		return out, nil
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, &TransportError{Op: op, Err: fmt.Errorf("decode data: %w", err)}
	}
	return out, nil
}

// present reports whether raw holds a non-null JSON value.
func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// queryParams keeps query parameters in insertion order.
type queryParams [][2]string

func (q queryParams) add(key, value string) queryParams {
	return append(q, [2]string{key, value})
}

func (q queryParams) encode() string {
	if len(q) == 0 {
		return ""
	}
	parts := make([]string, 0, len(q))
	for _, kv := range q {
		parts = append(parts, url.QueryEscape(kv[0])+"="+url.QueryEscape(kv[1]))
	}
	return strings.Join(parts, "&")
}
