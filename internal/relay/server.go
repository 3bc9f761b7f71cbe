package relay

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/ehrlich-b/teleterm/internal/relaytls"
)

// Server owns a listener and the Orchestrator serving every connection it
// accepts: a plain TCP accept loop, with no HTTP layer involved.
type Server struct {
	listener net.Listener
	tls      *relaytls.Stage
	orch     *Orchestrator
	log      *slog.Logger
}

// NewServer wraps an already-bound listener. tlsStage may be nil for a
// plaintext relay (tests, or a deployment that terminates TLS upstream).
func NewServer(listener net.Listener, tlsStage *relaytls.Stage, orch *Orchestrator, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{listener: listener, tls: tlsStage, orch: orch, log: log}
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is canceled or the listener errors.
// Each accepted connection is handled in its own goroutine per the
// concurrency model; Serve itself returns once the listener closes.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		raw, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}

		if s.tls == nil {
			go s.orch.HandleConn(ctx, raw)
			continue
		}

		// The handshake runs in its own goroutine (so one slow or hostile
		// client can't stall accepting the next connection), but still
		// completes before HandleConn ever sees the socket: a failed
		// handshake is logged and dropped here, never reaching the
		// orchestrator's connection table or its ordinary read-loop error
		// path.
		go func() {
			conn, err := s.tls.Accept(ctx, raw)
			if err != nil {
				s.log.Warn("tls handshake failed", "remote", raw.RemoteAddr().String(), "error", err.Error())
				raw.Close()
				return
			}
			s.orch.HandleConn(ctx, conn)
		}()
	}
}

// StartBackgroundSweeps runs the periodic rate-limiter eviction, bounding
// the relay's own per-username limiter map.
func (s *Server) StartBackgroundSweeps(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.orch.EvictStaleRateLimits(30 * time.Minute)
			}
		}
	}()
}
