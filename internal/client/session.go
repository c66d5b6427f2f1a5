package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/inercia/twinbridge/internal/logging"
)

const (
	defaultEventBuffer      = 256
	defaultHandshakeTimeout = 10 * time.Second
	closeWriteTimeout       = time.Second
)

// SessionManager opens real-time sessions against ws(s)://<host>/ws/{user_id}.
// It holds no per-session state; every Open yields an independent Session.
type SessionManager struct {
	base        *url.URL
	dialer      *websocket.Dialer
	header      http.Header
	logger      *slog.Logger
	eventBuffer int

	handshakeTimeout    time.Duration
	hasHandshakeTimeout bool
}

// ManagerOption configures a SessionManager.
type ManagerOption func(*SessionManager)

// WithDialer sets the WebSocket dialer. The dialer is copied, so later
// options never modify the caller's value.
func WithDialer(d *websocket.Dialer) ManagerOption {
	return func(m *SessionManager) {
		if d != nil {
			m.dialer = d
		}
	}
}

// WithHandshakeTimeout sets the handshake timeout of the dialer.
func WithHandshakeTimeout(d time.Duration) ManagerOption {
	return func(m *SessionManager) {
		m.handshakeTimeout = d
		m.hasHandshakeTimeout = true
	}
}

// WithHeader adds headers to the handshake request.
func WithHeader(h http.Header) ManagerOption {
	return func(m *SessionManager) {
		m.header = h.Clone()
	}
}

// WithSessionLogger sets the logger used by sessions.
func WithSessionLogger(l *slog.Logger) ManagerOption {
	return func(m *SessionManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithEventBuffer sets how many events a session queues for its consumer.
func WithEventBuffer(n int) ManagerOption {
	return func(m *SessionManager) {
		if n > 0 {
			m.eventBuffer = n
		}
	}
}

// NewSessionManager creates a manager for the service at baseURL.
// http and https base URLs are mapped to ws and wss.
func NewSessionManager(baseURL string, opts ...ManagerOption) (*SessionManager, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	// Convert http(s) to ws(s)
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("parse base URL: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse base URL: missing host in %q", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""

	m := &SessionManager{
		base: u,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		logger:      logging.Session(),
		eventBuffer: defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(m)
	}

	d := *m.dialer
	if m.hasHandshakeTimeout {
		d.HandshakeTimeout = m.handshakeTimeout
	}
	m.dialer = &d
	return m, nil
}

// URLFor returns the real-time endpoint for a user.
func (m *SessionManager) URLFor(userID string) string {
	u := *m.base
	u.Path = m.base.Path + "/ws/" + userID
	u.RawPath = m.base.EscapedPath() + "/ws/" + url.PathEscape(userID)
	return u.String()
}

// Open starts a session for userID and returns it in StateConnecting.
// The handshake runs in the background; use WaitOpen or Events to observe
// the outcome. Cancelling ctx closes the session.
func (m *SessionManager) Open(ctx context.Context, userID string) (*Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalidArgument("open session", "user_id")
	}

	sessCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		userID: userID,
		url:    m.URLFor(userID),
		logger: logging.WithUser(m.logger, userID),
		ctx:    sessCtx,
		cancel: cancel,
		state:  StateConnecting,
		queue:  make(chan Event, m.eventBuffer),
		events: make(chan Event),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}

	go s.watchContext()
	go s.run(m.dialer, m.header)

	return s, nil
}

// FrameHandler receives inbound frames.
type FrameHandler func(Frame)

// Session is one real-time channel bound to a single user.
// It owns at most one transport and is safe for concurrent use.
type Session struct {
	userID string
	url    string
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	err      error
	reason   string
	handlers []FrameHandler

	// writeMu serializes writes on conn.
	writeMu sync.Mutex

	// queue holds events until the pump started by Events forwards them.
	// The terminal events are kept apart in final so they are never lost.
	evMu       sync.Mutex
	evClosed   bool
	subscribed bool
	queue      chan Event
	final      []Event
	events     chan Event
	pumpOnce   sync.Once

	readyOnce sync.Once
	ready     chan struct{}
	done      chan struct{}
}

// UserID returns the user the session is bound to.
func (s *Session) UserID() string {
	return s.userID
}

// URL returns the endpoint the session connects to.
func (s *Session) URL() string {
	return s.url
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the transport error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// CloseReason returns why the session closed, or "" while it is not closed.
func (s *Session) CloseReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Events returns the inbound event stream. It always ends with Closed,
// preceded by Failed when the session ended on an error, and the channel is
// closed afterwards.
//
// Once Events has been called, reading from the transport pauses while the
// queue is full. Before that, frames that do not fit are dropped from the
// stream; handlers still see them.
func (s *Session) Events() <-chan Event {
	s.pumpOnce.Do(func() {
		s.evMu.Lock()
		s.subscribed = true
		s.evMu.Unlock()
		go s.pump()
	})
	return s.events
}

// pump forwards queued events, then the terminal ones, and closes events.
func (s *Session) pump() {
	defer close(s.events)
	for ev := range s.queue {
		s.events <- ev
	}
	s.evMu.Lock()
	final := s.final
	s.evMu.Unlock()
	for _, ev := range final {
		s.events <- ev
	}
}

// Done is closed once the session reaches StateClosed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// OnMessage registers a handler invoked once per inbound frame, in arrival
// order, from the session's read goroutine.
func (s *Session) OnMessage(h FrameHandler) {
	if h == nil {
		return
	}
	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()
}

// WaitOpen blocks until the handshake finishes. It returns nil if the
// session is open, the handshake error if it failed, or ctx.Err().
func (s *Session) WaitOpen(ctx context.Context) error {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateOpen {
		return nil
	}
	if s.err != nil {
		return s.err
	}
	return ErrNotConnected
}

// Wait blocks until the session is closed or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send writes one frame {message, agent_id, conversation_id?}. An empty
// agentID selects DefaultAgentID. If the session is not open nothing is
// written and ErrNotConnected is returned.
func (s *Session) Send(message, agentID, conversationID string) error {
	if agentID == "" {
		agentID = DefaultAgentID
	}
	payload, err := json.Marshal(outboundFrame{
		Message:        message,
		AgentID:        agentID,
		ConversationID: conversationID,
	})
	if err != nil {
		return fmt.Errorf("send: marshal: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	state, conn := s.state, s.conn
	s.mu.Unlock()

	if state != StateOpen {
		s.logger.Debug("send skipped", "state", state.String())
		return ErrNotConnected
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		// The session closed while the frame was being written.
		if errors.Is(err, websocket.ErrCloseSent) || s.State() == StateClosed {
			return ErrNotConnected
		}
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// Close closes the session. It is idempotent and cancels a pending handshake.
func (s *Session) Close() error {
	s.mu.Lock()
	state, conn := s.state, s.conn
	s.mu.Unlock()

	if state == StateClosed {
		return nil
	}

	if state == StateOpen && conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWriteTimeout))
		s.writeMu.Unlock()
	}

	s.finish("closed by client", nil)
	return nil
}

// run performs the handshake and then reads frames until the session ends.
func (s *Session) run(d *websocket.Dialer, header http.Header) {
	conn, resp, err := d.DialContext(s.ctx, s.url, header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("websocket connect: %w (status %s)", err, resp.Status)
		} else {
			err = fmt.Errorf("websocket connect: %w", err)
		}
		s.finish("handshake failed", &TransportError{Op: "open session", Err: err})
		return
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.state = StateOpen
	s.mu.Unlock()

	s.logger.Debug("session open", "url", s.url)
	s.emit(Event{Kind: EventOpened})
	s.readyOnce.Do(func() { close(s.ready) })

	s.readLoop(conn)
}

// watchContext closes the session when its context ends.
func (s *Session) watchContext() {
	select {
	case <-s.ctx.Done():
		s.finish("context done: "+s.ctx.Err().Error(), nil)
	case <-s.done:
	}
}

// readLoop reads messages from the WebSocket connection.
func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.finishWithReadError(err)
			return
		}
		s.dispatch(data)
	}
}

// dispatch parses one frame and hands it to handlers and the event stream.
func (s *Session) dispatch(data []byte) {
	frame, err := parseFrame(data)
	if err != nil {
		s.logger.Warn("dropping malformed frame", "error", err, "bytes", len(data))
		raw := make([]byte, len(data))
		copy(raw, data)
		s.emit(Event{Kind: EventMalformed, Raw: raw, Err: err})
		return
	}

	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	handlers := make([]FrameHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, h := range handlers {
		h(frame)
	}
	s.emit(Event{Kind: EventFrame, Frame: frame})
}

func (s *Session) finishWithReadError(err error) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		reason := fmt.Sprintf("remote closed: %d %s", ce.Code, ce.Text)
		switch ce.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			s.finish(reason, nil)
		default:
			s.finish(reason, &TransportError{Op: "receive", Err: err})
		}
		return
	}
	s.finish("connection lost", &TransportError{Op: "receive", Err: err})
}

// finish moves the session to StateClosed exactly once and emits the
// final events.
func (s *Session) finish(reason string, cause error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.err = cause
	s.reason = reason
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		conn.Close()
	}
	s.readyOnce.Do(func() { close(s.ready) })

	final := make([]Event, 0, 2)
	if cause != nil {
		s.logger.Warn("session failed", "reason", reason, "error", cause)
		final = append(final, Event{Kind: EventFailed, Err: cause})
	} else {
		s.logger.Debug("session closed", "reason", reason)
	}
	final = append(final, Event{Kind: EventClosed, Reason: reason})

	s.evMu.Lock()
	s.evClosed = true
	s.final = final
	close(s.queue)
	s.evMu.Unlock()

	close(s.done)
}

// emit queues a non-terminal event. With a subscriber it waits for room
// until the session starts closing.
func (s *Session) emit(ev Event) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	if s.evClosed {
		return
	}
	if s.subscribed {
		select {
		case s.queue <- ev:
		case <-s.ctx.Done():
			s.logger.Debug("session closing, event not queued", "kind", ev.Kind.String())
		}
		return
	}
	select {
	case s.queue <- ev:
	default:
		s.logger.Warn("event queue full, dropping event", "kind", ev.Kind.String())
	}
}
