// Package client provides a Go client for the twin system service: a REST
// client for the agent endpoints and a session manager for the per-user
// real-time channel.
//
// # Basic Usage
//
// Create a client and list agents:
//
//	c := client.New("http://localhost:8080")
//	agents, err := c.ListAgents(ctx)
//
// Talk to one agent:
//
//	reply, err := c.StartConversation(ctx, "How do we cache sessions?", "karti_database",
//	    client.WithUserID("user123"))
//	fmt.Println(reply.Text())
//
// Let the coordinator route the request:
//
//	reply, err := c.Collaborate(ctx, "Plan the Q4 mobile release")
//
// Every call returns the envelope's data decoded into a typed value. An
// envelope with status "error" yields a *RemoteError; anything that prevents
// reading a well-formed envelope yields a *TransportError. Missing required
// arguments yield ErrInvalidArgument before any request is made. Calls are
// never retried.
//
// # Real-time Sessions
//
// Open a session and consume its events:
//
//	sm, err := c.Sessions()
//	sess, err := sm.Open(ctx, "user123")
//	defer sess.Close()
//
//	sess.OnMessage(func(f client.Frame) {
//	    fmt.Println(string(f.Raw))
//	})
//	if err := sess.WaitOpen(ctx); err != nil {
//	    return err
//	}
//	sess.Send("Hello team!", "team_coordinator", "")
//
// A session moves from connecting to open to closed; closed is terminal and
// there is no automatic reconnect. Send on a session that is not open
// returns ErrNotConnected and writes nothing.
//
// Events returns the same frames as a typed stream that always ends with
// Closed. Once it has been called, a slow consumer slows down reading from
// the connection instead of losing frames.
//
// # Thread Safety
//
// Client, SessionManager and Session are safe for concurrent use. Frame
// handlers are invoked from a single goroutine (the read loop), so handler
// implementations must be thread-safe if they access shared state.
package client
