package client

import (
	"context"
	"fmt"
)

// SendAndWait opens a session for userID, sends one message once the
// session is open and returns the first frame received afterwards.
// The session is closed when the function returns.
func (m *SessionManager) SendAndWait(ctx context.Context, userID, message, agentID, conversationID string) (*Frame, error) {
	sess, err := m.Open(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	frames := make(chan Frame, 1)
	sess.OnMessage(func(f Frame) {
		select {
		case frames <- f:
		default:
		}
	})

	if err := sess.WaitOpen(ctx); err != nil {
		return nil, fmt.Errorf("wait open: %w", err)
	}
	if err := sess.Send(message, agentID, conversationID); err != nil {
		return nil, err
	}

	select {
	case f := <-frames:
		return &f, nil
	case <-sess.Done():
		if err := sess.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("session closed before a reply: %s", sess.CloseReason())
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
