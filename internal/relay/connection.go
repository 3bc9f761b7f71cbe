package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ehrlich-b/teleterm/internal/oauth"
	"github.com/ehrlich-b/teleterm/internal/protocol"
	"github.com/google/uuid"
)

// connState is the per-connection state machine's current state.
type connState int

const (
	stateAccepted connState = iota
	stateOauthPending
	stateLoggedIn
	stateStreaming
	stateWatching
)

func (s connState) String() string {
	switch s {
	case stateAccepted:
		return "accepted"
	case stateOauthPending:
		return "oauth_pending"
	case stateLoggedIn:
		return "logged_in"
	case stateStreaming:
		return "streaming"
	case stateWatching:
		return "watching"
	default:
		return "unknown"
	}
}

// Connection is one accepted socket's session state. Its state fields are
// only ever mutated from its own read-loop goroutine; the orchestrator and
// other connections' goroutines interact with it only through its send and
// shutdown methods or through Orchestrator-owned maps, mirroring the
// paired read/write goroutine split used throughout this package.
type Connection struct {
	id         uuid.UUID
	conn       net.Conn
	remoteAddr string
	orch       *Orchestrator
	log        *slog.Logger

	out       chan protocol.Message
	closeOnce sync.Once

	state     connState
	username  string
	size      protocol.Size
	sessionID uuid.UUID
	oauthFlow *oauth.Flow
}

func newConnection(id uuid.UUID, conn net.Conn, orch *Orchestrator) *Connection {
	return &Connection{
		id:         id,
		conn:       conn,
		remoteAddr: conn.RemoteAddr().String(),
		orch:       orch,
		log:        orch.log.With("conn", id.String(), "remote", conn.RemoteAddr().String()),
		out:        make(chan protocol.Message, orch.queueSize),
		state:      stateAccepted,
	}
}

// send enqueues a message for the write loop, dropping the connection with
// a Disconnected notice if the outbound queue is already full — the bounded
// backpressure behavior called for in the concurrency model. Safe to call
// from any goroutine (a connection's own read loop, or another
// connection's, when the orchestrator fans out to watchers).
func (c *Connection) send(m protocol.Message) {
	select {
	case c.out <- m:
	default:
		c.log.Warn(ErrOutboundQueueFull.Error())
		// Free one slot so the Disconnected notice fits in the full queue.
		select {
		case <-c.out:
		default:
		}
		select {
		case c.out <- protocol.Disconnected{}:
		default:
		}
		c.shutdown()
	}
}

// shutdown closes the outbound queue exactly once. The write loop is the
// only goroutine that ever closes the underlying net.Conn, once it has
// drained whatever was already queued (including a final Error or
// Disconnected message) — this avoids a race where the read loop closes
// the socket out from under a write still in flight.
func (c *Connection) shutdown() {
	c.closeOnce.Do(func() { close(c.out) })
}

// serve runs the connection's read loop until it closes or errors; the
// caller (the accept loop) spawns this in its own goroutine and a sibling
// writeLoop goroutine.
func (c *Connection) serve(ctx context.Context) {
	defer c.orch.unregister(c)
	defer c.shutdown()
	go c.writeLoop()

	lim := c.orch.frameLimits
	idle := c.orch.idleTimeout

	for {
		if idle > 0 {
			c.conn.SetReadDeadline(time.Now().Add(idle))
		}
		msg, err := protocol.ReadMessage(c.conn, lim)
		if err != nil {
			if isTimeout(err) {
				c.send(protocol.Error{Message: ErrIdleTimeout.Error()})
			}
			c.logClose(err)
			return
		}

		if !c.rateLimitAllows(msg) {
			c.send(protocol.Error{Message: ErrRateLimited.Error()})
			c.logClose(ErrRateLimited)
			return
		}

		if err := c.handle(ctx, msg); err != nil {
			c.send(protocol.Error{Message: err.Error()})
			c.logClose(err)
			return
		}
	}
}

func (c *Connection) rateLimitAllows(msg protocol.Message) bool {
	if _, ok := msg.(protocol.TerminalOutput); ok {
		return true // exempt per the relay's rate limiting policy
	}
	key := c.username
	if key == "" {
		key = "unauthenticated" // one bucket shared by every connection not yet logged in
	}
	return c.orch.rateLimit.Allow(key)
}

// writeLoop is the only goroutine that ever closes c.conn. It drains c.out
// until shutdown closes it (flushing any final Error or Disconnected
// message queued right before shutdown), then closes the socket.
func (c *Connection) writeLoop() {
	defer c.conn.Close()
	for msg := range c.out {
		if err := protocol.WriteMessage(c.conn, msg, c.orch.frameLimits); err != nil {
			c.shutdown()
			return
		}
		if _, ok := msg.(protocol.Disconnected); ok {
			c.shutdown()
			return
		}
	}
}

func (c *Connection) logClose(err error) {
	if err == nil {
		c.log.Info("connection closed")
	} else {
		c.log.Info("connection closed", "reason", err.Error())
	}
	c.shutdown()
}

// handle dispatches one decoded message according to the connection's
// current state, generalizing the per-state legal-message table into a
// plain switch.
func (c *Connection) handle(ctx context.Context, msg protocol.Message) error {
	switch c.state {
	case stateAccepted:
		return c.handleAccepted(ctx, msg)
	case stateOauthPending:
		return c.handleOauthPending(ctx, msg)
	case stateLoggedIn:
		return c.handleLoggedIn(msg)
	case stateStreaming:
		return c.handleStreaming(msg)
	case stateWatching:
		return c.handleWatching(msg)
	default:
		return fmt.Errorf("relay: connection in unknown state")
	}
}

// handleAccepted implements the Accepted state: only Login is legal here,
// everything else (including Heartbeat) is an UnauthenticatedMessage.
func (c *Connection) handleAccepted(ctx context.Context, msg protocol.Message) error {
	login, ok := msg.(protocol.Login)
	if !ok {
		return ErrNotLoggedIn
	}
	if err := validateSize(login.Size); err != nil {
		return err
	}
	c.size = login.Size

	switch login.Auth.Kind {
	case protocol.AuthKindPlain:
		if !c.orch.loginAllowed("plain") {
			return ErrAuthTypeNotAllowed
		}
		if login.Auth.Username == "" {
			return ErrAuthFailed
		}
		c.username = login.Auth.Username
		c.state = stateLoggedIn
		c.send(protocol.LoggedIn{Username: c.username})
		return nil

	case protocol.AuthKindOauth:
		if c.orch.oauthMediator == nil || !c.orch.loginAllowed(login.Auth.Provider) {
			return ErrAuthTypeNotAllowed
		}

		// A returning client names the id from a prior OauthCliRequest; if a
		// cached refresh token still exists for it, finish the login entirely
		// server-side with no browser round trip.
		if login.Auth.FlowID != "" {
			username, ok, err := c.orch.oauthMediator.TryCachedLogin(ctx, login.Auth.Provider, login.Auth.FlowID)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrAuthFailed, err)
			}
			if ok {
				c.username = username
				c.state = stateLoggedIn
				c.send(protocol.LoggedIn{Username: c.username})
				return nil
			}
			// No cache hit (or it raced with a concurrent write): fall
			// through to the interactive flow rather than failing outright.
		}

		flow, authorizeURL, err := c.orch.oauthMediator.StartFlow(login.Auth.Provider)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		c.oauthFlow = flow
		c.state = stateOauthPending
		c.send(protocol.OauthCliRequest{URL: authorizeURL, ID: flow.ID})
		return nil

	default:
		return ErrAuthFailed
	}
}

// handleOauthPending implements the LoggingIn row: only OauthCliResponse is
// legal.
func (c *Connection) handleOauthPending(ctx context.Context, msg protocol.Message) error {
	resp, ok := msg.(protocol.OauthCliResponse)
	if !ok {
		return ErrNotLoggedIn
	}
	if c.oauthFlow == nil {
		return ErrAuthFailed
	}
	if resp.Code == "" {
		return ErrMissingAuthCode
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	username, err := c.orch.oauthMediator.ExchangeCode(exchangeCtx, c.oauthFlow, resp.Code)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	c.oauthFlow = nil
	c.username = username
	c.state = stateLoggedIn
	c.send(protocol.LoggedIn{Username: c.username})
	return nil
}

func (c *Connection) handleLoggedIn(msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.Heartbeat:
		c.send(protocol.Heartbeat{})
		return nil
	case protocol.Resize:
		if err := validateSize(m.Size); err != nil {
			return err
		}
		c.size = m.Size
		return nil
	case protocol.ListSessions:
		c.send(protocol.Sessions{Sessions: c.orch.listSessions()})
		return nil
	case protocol.StartStreaming:
		c.orch.startStreaming(c)
		c.state = stateStreaming
		return nil
	case protocol.StartWatching:
		if err := c.orch.startWatching(c, m.ID); err != nil {
			return err
		}
		c.state = stateWatching
		return nil
	default:
		return ErrWrongState
	}
}

func (c *Connection) handleStreaming(msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.Heartbeat:
		c.send(protocol.Heartbeat{})
		return nil
	case protocol.TerminalOutput:
		c.orch.streamerOutput(c, m.Data)
		return nil
	case protocol.Resize:
		if err := validateSize(m.Size); err != nil {
			return err
		}
		c.size = m.Size
		c.orch.streamerResize(c, m.Size)
		return nil
	default:
		return ErrWrongState
	}
}

func (c *Connection) handleWatching(msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.Heartbeat:
		c.send(protocol.Heartbeat{})
		return nil
	case protocol.Resize:
		if err := validateSize(m.Size); err != nil {
			return err
		}
		c.size = m.Size
		return nil
	default:
		return ErrWrongState
	}
}

// validateSize rejects terminal dimensions the wire protocol refuses to
// carry.
func validateSize(sz protocol.Size) error {
	if sz.Rows >= 1000 || sz.Cols >= 1000 {
		return ErrTermTooBig
	}
	return nil
}

// isTimeout reports whether err is the net.Conn read deadline firing,
// distinguishing the idle-timeout policy close (which gets an Error reply)
// from an ordinary transport error or clean EOF (which don't).
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
