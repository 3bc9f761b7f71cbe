package relay

import (
	"sync"
	"time"

	"github.com/ehrlich-b/teleterm/internal/protocol"
	"github.com/ehrlich-b/teleterm/internal/term"
	"github.com/google/uuid"
)

// session is one live streaming session: a streamer connection, its
// terminal model, and the set of connections watching it.
type session struct {
	id       uuid.UUID
	username string

	mu         sync.Mutex
	model      *term.Model
	prevScreen *term.Screen
	watchers   map[uuid.UUID]*Connection
	lastOutput time.Time
}

func newSession(id uuid.UUID, username string, size protocol.Size) *session {
	return &session{
		id:         id,
		username:   username,
		model:      term.New(int(size.Cols), int(size.Rows)),
		watchers:   make(map[uuid.UUID]*Connection),
		lastOutput: time.Now(),
	}
}

// addWatcher registers w and returns the streamer's current size and a
// full catch-up snapshot, in the order the catch-up pair must be sent.
func (s *session) addWatcher(w *Connection) (protocol.Size, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers[w.id] = w
	cols, rows := s.model.Size()
	return protocol.Size{Rows: uint16(rows), Cols: uint16(cols)}, s.model.Snapshot()
}

func (s *session) removeWatcher(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers, id)
}

// process feeds streamer output into the model and returns the minimal diff
// to broadcast to watchers, or nil if nothing changed.
func (s *session) process(data []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model.Process(data)
	diff := s.model.Diff(s.prevScreen)
	s.prevScreen = s.model.Capture()
	s.lastOutput = time.Now()
	return diff
}

func (s *session) resize(size protocol.Size) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model.Resize(int(size.Cols), int(size.Rows))
	s.prevScreen = s.model.Capture()
}

func (s *session) snapshot() (protocol.Session, []*Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cols, rows := s.model.Size()
	watchers := make([]*Connection, 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	return protocol.Session{
		ID:       s.id,
		Username: s.username,
		Title:    s.model.Title(),
		Size:     protocol.Size{Rows: uint16(rows), Cols: uint16(cols)},
		Idle:     uint32(time.Since(s.lastOutput).Seconds()),
		Watchers: uint32(len(watchers)),
	}, watchers
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model.Close()
}
