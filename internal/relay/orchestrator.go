// Package relay implements the connection state machine (per-connection)
// and the orchestrator (relay-wide): the connection table, message
// fan-out between streamers and watchers, session listing, rate limiting,
// and idle timeouts.
package relay

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ehrlich-b/teleterm/internal/oauth"
	"github.com/ehrlich-b/teleterm/internal/protocol"
	"github.com/ehrlich-b/teleterm/internal/wire"
	"github.com/google/uuid"
)

// Config bounds an Orchestrator's resource usage and timeouts.
type Config struct {
	IdleTimeout         time.Duration
	OutboundQueueSize   int
	RateLimitEvents     int
	RateLimitWindow     time.Duration
	FrameLimits         wire.Limits
	AllowedLoginMethods []string
}

// DefaultConfig matches the defaults named in the relay's configuration
// surface.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:         120 * time.Second,
		OutboundQueueSize:   256,
		RateLimitEvents:     300,
		RateLimitWindow:     60 * time.Second,
		FrameLimits:         wire.DefaultLimits(),
		AllowedLoginMethods: []string{"plain", "recurse_center"},
	}
}

// Orchestrator owns the connection table and every live session. Both maps
// are shared by all connection goroutines and guarded by mu: all mutation
// happens through its methods under mu, never reached into directly by a
// connection's own read-loop goroutine.
type Orchestrator struct {
	log           *slog.Logger
	oauthMediator *oauth.Mediator
	rateLimit     *RateLimiter
	idleTimeout   time.Duration
	queueSize     int
	frameLimits   wire.Limits
	allowedLogins map[string]bool

	mu       sync.RWMutex
	conns    map[uuid.UUID]*Connection
	sessions map[uuid.UUID]*session
}

// New builds an Orchestrator ready to accept connections.
func New(log *slog.Logger, mediator *oauth.Mediator, cfg Config) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	allowed := make(map[string]bool, len(cfg.AllowedLoginMethods))
	for _, m := range cfg.AllowedLoginMethods {
		allowed[m] = true
	}
	return &Orchestrator{
		log:           log,
		oauthMediator: mediator,
		rateLimit:     NewRateLimiter(cfg.RateLimitEvents, cfg.RateLimitWindow),
		idleTimeout:   cfg.IdleTimeout,
		queueSize:     cfg.OutboundQueueSize,
		frameLimits:   cfg.FrameLimits,
		allowedLogins: allowed,
		conns:         make(map[uuid.UUID]*Connection),
		sessions:      make(map[uuid.UUID]*session),
	}
}

// loginAllowed reports whether method ("plain", or an oauth provider name
// such as "recurse_center") is permitted by the relay's configured
// allowed_login_methods.
func (o *Orchestrator) loginAllowed(method string) bool {
	return o.allowedLogins[method]
}

// HandleConn registers a freshly accepted socket and runs it to
// completion. Called once per accepted connection, in its own goroutine.
func (o *Orchestrator) HandleConn(ctx context.Context, conn net.Conn) {
	c := newConnection(uuid.New(), conn, o)
	o.mu.Lock()
	o.conns[c.id] = c
	o.mu.Unlock()
	o.log.Info("connection accepted", "conn", c.id.String(), "remote", c.remoteAddr)
	c.serve(ctx)
}

func (o *Orchestrator) unregister(c *Connection) {
	o.mu.Lock()
	delete(o.conns, c.id)
	o.mu.Unlock()

	if c.state == stateStreaming {
		o.endSession(c.sessionID)
	} else if c.state == stateWatching {
		o.stopWatching(c)
	}
}

// startStreaming registers c as the streamer for a brand-new session.
func (o *Orchestrator) startStreaming(c *Connection) {
	id := uuid.New()
	size := c.size
	if size.Rows == 0 || size.Cols == 0 {
		size = protocol.Size{Rows: 24, Cols: 80}
	}
	s := newSession(id, c.username, size)

	o.mu.Lock()
	o.sessions[id] = s
	o.mu.Unlock()

	c.sessionID = id
	o.log.Info("session started", "session", id.String(), "username", c.username)
}

// startWatching attaches c as a watcher of sessionID, sending it the
// catch-up pair: a Resize to the streamer's current size, followed by a
// TerminalOutput carrying a full snapshot — always in that order, and
// always before any live diff (addWatcher registers c under the session's
// lock before releasing it, so a concurrent streamerOutput can't race a
// diff in ahead of this catch-up).
func (o *Orchestrator) startWatching(c *Connection, sessionID uuid.UUID) error {
	o.mu.RLock()
	s, ok := o.sessions[sessionID]
	o.mu.RUnlock()
	if !ok {
		return ErrUnknownSession
	}

	size, snapshot := s.addWatcher(c)
	c.sessionID = sessionID
	c.send(protocol.Resize{Size: size})
	c.send(protocol.TerminalOutput{Data: snapshot})
	o.log.Info("watcher attached", "session", sessionID.String(), "watcher", c.id.String(),
		"snapshot_size", humanize.Bytes(uint64(len(snapshot))))
	return nil
}

func (o *Orchestrator) stopWatching(c *Connection) {
	o.mu.RLock()
	s, ok := o.sessions[c.sessionID]
	o.mu.RUnlock()
	if ok {
		s.removeWatcher(c.id)
	}
}

// streamerOutput feeds data into the streamer's session model and fans out
// the resulting minimal diff to every current watcher.
func (o *Orchestrator) streamerOutput(c *Connection, data []byte) {
	o.mu.RLock()
	s, ok := o.sessions[c.sessionID]
	o.mu.RUnlock()
	if !ok {
		return
	}

	diff := s.process(data)
	if diff == nil {
		return
	}
	_, watchers := s.snapshot()
	for _, w := range watchers {
		w.send(protocol.TerminalOutput{Data: diff})
	}
}

// streamerResize applies a resize to the streamer's session and forwards it
// to every watcher so their local rendering can follow along.
func (o *Orchestrator) streamerResize(c *Connection, size protocol.Size) {
	o.mu.RLock()
	s, ok := o.sessions[c.sessionID]
	o.mu.RUnlock()
	if !ok {
		return
	}
	s.resize(size)
	_, watchers := s.snapshot()
	for _, w := range watchers {
		w.send(protocol.Resize{Size: size})
	}
}

// endSession tears down a streamer's session, notifying every watcher.
func (o *Orchestrator) endSession(sessionID uuid.UUID) {
	o.mu.Lock()
	s, ok := o.sessions[sessionID]
	delete(o.sessions, sessionID)
	o.mu.Unlock()
	if !ok {
		return
	}

	_, watchers := s.snapshot()
	for _, w := range watchers {
		w.send(protocol.Disconnected{})
	}
	s.close()
	o.log.Info("session ended", "session", sessionID.String())
}

// listSessions returns the current roster for a ListSessions reply.
func (o *Orchestrator) listSessions() []protocol.Session {
	o.mu.RLock()
	sessions := make([]*session, 0, len(o.sessions))
	for _, s := range o.sessions {
		sessions = append(sessions, s)
	}
	o.mu.RUnlock()

	out := make([]protocol.Session, 0, len(sessions))
	for _, s := range sessions {
		desc, _ := s.snapshot()
		out = append(out, desc)
	}
	return out
}

// ConnectionCount reports the number of currently accepted connections.
func (o *Orchestrator) ConnectionCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.conns)
}

// SessionCount reports the number of currently live sessions.
func (o *Orchestrator) SessionCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.sessions)
}

// EvictStaleRateLimits runs periodically to bound the rate limiter's
// per-username map.
func (o *Orchestrator) EvictStaleRateLimits(maxIdle time.Duration) {
	o.rateLimit.EvictStale(maxIdle)
}
