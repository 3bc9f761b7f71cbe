package protocol

import (
	"fmt"

	"github.com/ehrlich-b/teleterm/internal/wire"
	"github.com/google/uuid"
)

// MessageType is the one-byte frame type tag.
type MessageType byte

const (
	TypeLogin MessageType = iota + 1
	TypeStartStreaming
	TypeStartWatching
	TypeHeartbeat
	TypeTerminalOutput
	TypeListSessions
	TypeSessions
	TypeDisconnected
	TypeError
	TypeResize
	TypeLoggedIn
	TypeOauthCliRequest
	TypeOauthCliResponse
)

func (t MessageType) String() string {
	switch t {
	case TypeLogin:
		return "Login"
	case TypeStartStreaming:
		return "StartStreaming"
	case TypeStartWatching:
		return "StartWatching"
	case TypeHeartbeat:
		return "Heartbeat"
	case TypeTerminalOutput:
		return "TerminalOutput"
	case TypeListSessions:
		return "ListSessions"
	case TypeSessions:
		return "Sessions"
	case TypeDisconnected:
		return "Disconnected"
	case TypeError:
		return "Error"
	case TypeResize:
		return "Resize"
	case TypeLoggedIn:
		return "LoggedIn"
	case TypeOauthCliRequest:
		return "OauthCliRequest"
	case TypeOauthCliResponse:
		return "OauthCliResponse"
	default:
		return fmt.Sprintf("MessageType(%d)", byte(t))
	}
}

// Message is implemented by every variant in the closed vocabulary.
type Message interface {
	Type() MessageType
	encode(w *wire.Writer)
}

// Login is sent by a connection immediately after accept to authenticate
// and declare its terminal size and kind.
type Login struct {
	Auth     Auth
	TermType string
	Size     Size
}

func (Login) Type() MessageType { return TypeLogin }
func (m Login) encode(w *wire.Writer) {
	w.PutU8(byte(m.Auth.Kind))
	switch m.Auth.Kind {
	case AuthKindPlain:
		w.PutString(m.Auth.Username)
	case AuthKindOauth:
		w.PutString(m.Auth.Provider)
		w.PutString(m.Auth.FlowID)
	}
	w.PutString(m.TermType)
	w.PutSize(m.Size.Rows, m.Size.Cols)
}

// StartStreaming asks the relay to register the connection as a new
// session's streamer.
type StartStreaming struct{}

func (StartStreaming) Type() MessageType   { return TypeStartStreaming }
func (StartStreaming) encode(w *wire.Writer) {}

// StartWatching asks the relay to attach the connection as a watcher of an
// existing session.
type StartWatching struct {
	ID uuid.UUID
}

func (StartWatching) Type() MessageType { return TypeStartWatching }
func (m StartWatching) encode(w *wire.Writer) {
	w.PutString(m.ID.String())
}

// Heartbeat keeps an otherwise idle connection's read timeout from firing.
type Heartbeat struct{}

func (Heartbeat) Type() MessageType   { return TypeHeartbeat }
func (Heartbeat) encode(w *wire.Writer) {}

// TerminalOutput carries terminal bytes. From a streamer it is raw output;
// the relay feeds that into the session's terminal model and sends each
// watcher a rendered catch-up snapshot or screen diff, not the raw bytes.
type TerminalOutput struct {
	Data []byte
}

func (TerminalOutput) Type() MessageType { return TypeTerminalOutput }
func (m TerminalOutput) encode(w *wire.Writer) {
	w.PutBytes(m.Data)
}

// ListSessions asks the relay for the current session roster.
type ListSessions struct{}

func (ListSessions) Type() MessageType   { return TypeListSessions }
func (ListSessions) encode(w *wire.Writer) {}

// Sessions is the relay's reply to ListSessions.
type Sessions struct {
	Sessions []Session
}

func (Sessions) Type() MessageType { return TypeSessions }
func (m Sessions) encode(w *wire.Writer) {
	w.PutU32(uint32(len(m.Sessions)))
	for _, s := range m.Sessions {
		w.PutString(s.ID.String())
		w.PutString(s.Username)
		w.PutString(s.Title)
		w.PutSize(s.Size.Rows, s.Size.Cols)
		w.PutU32(s.Idle)
		w.PutU32(s.Watchers)
	}
}

// Disconnected tells a watcher its session ended, or tells a slow watcher it
// was dropped for falling behind.
type Disconnected struct{}

func (Disconnected) Type() MessageType   { return TypeDisconnected }
func (Disconnected) encode(w *wire.Writer) {}

// Error reports a protocol or authentication failure before closing the
// connection.
type Error struct {
	Message string
}

func (Error) Type() MessageType { return TypeError }
func (m Error) encode(w *wire.Writer) {
	w.PutString(m.Message)
}

// Resize is sent by a streamer when its terminal size changes, and relayed
// to every watcher of that session.
type Resize struct {
	Size Size
}

func (Resize) Type() MessageType { return TypeResize }
func (m Resize) encode(w *wire.Writer) {
	w.PutSize(m.Size.Rows, m.Size.Cols)
}

// LoggedIn confirms a successful Login and carries the resolved username
// (which, for Oauth logins, is derived server-side and unknown to the
// client beforehand).
type LoggedIn struct {
	Username string
}

func (LoggedIn) Type() MessageType { return TypeLoggedIn }
func (m LoggedIn) encode(w *wire.Writer) {
	w.PutString(m.Username)
}

// OauthCliRequest carries the provider authorize URL a CLI client should
// open in a browser to complete an Oauth login, plus the id the relay has
// allocated for this pending flow. A client that records this id can pass
// it back in a later Login.Auth.FlowID to skip the browser round trip if
// the relay still holds a cached refresh token for it.
type OauthCliRequest struct {
	URL string
	ID  string
}

func (OauthCliRequest) Type() MessageType { return TypeOauthCliRequest }
func (m OauthCliRequest) encode(w *wire.Writer) {
	w.PutString(m.URL)
	w.PutString(m.ID)
}

// OauthCliResponse is sent by the client back to the relay once the
// provider redirect has delivered an authorization code. The relay
// resolves it against whichever flow this connection itself started — no
// explicit flow id needs to travel over the wire for the match.
type OauthCliResponse struct {
	Code string
}

func (OauthCliResponse) Type() MessageType { return TypeOauthCliResponse }
func (m OauthCliResponse) encode(w *wire.Writer) {
	w.PutString(m.Code)
}

// Encode serializes m into a wire.Frame ready for wire.WriteFrame.
func Encode(m Message) wire.Frame {
	w := wire.NewWriter()
	m.encode(w)
	return wire.Frame{Type: byte(m.Type()), Payload: w.Bytes()}
}

// Decode parses a wire.Frame into its Message variant.
func Decode(f wire.Frame) (Message, error) {
	r := wire.NewReader(f.Payload)
	var (
		m   Message
		err error
	)
	switch MessageType(f.Type) {
	case TypeLogin:
		m, err = decodeLogin(r)
	case TypeStartStreaming:
		m = StartStreaming{}
	case TypeStartWatching:
		m, err = decodeStartWatching(r)
	case TypeHeartbeat:
		m = Heartbeat{}
	case TypeTerminalOutput:
		m, err = decodeTerminalOutput(r)
	case TypeListSessions:
		m = ListSessions{}
	case TypeSessions:
		m, err = decodeSessions(r)
	case TypeDisconnected:
		m = Disconnected{}
	case TypeError:
		m, err = decodeError(r)
	case TypeResize:
		m, err = decodeResize(r)
	case TypeLoggedIn:
		m, err = decodeLoggedIn(r)
	case TypeOauthCliRequest:
		m, err = decodeOauthCliRequest(r)
	case TypeOauthCliResponse:
		m, err = decodeOauthCliResponse(r)
	default:
		return nil, wire.ErrInvalidMessageType
	}
	if err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeLogin(r *wire.Reader) (Message, error) {
	kind, err := r.U8()
	if err != nil {
		return nil, err
	}
	var auth Auth
	switch AuthKind(kind) {
	case AuthKindPlain:
		username, err := r.String()
		if err != nil {
			return nil, err
		}
		auth = PlainAuth(username)
	case AuthKindOauth:
		provider, err := r.String()
		if err != nil {
			return nil, err
		}
		flowID, err := r.String()
		if err != nil {
			return nil, err
		}
		auth = OauthAuth(provider, flowID)
	default:
		return nil, fmt.Errorf("protocol: invalid auth kind %d", kind)
	}
	termType, err := r.String()
	if err != nil {
		return nil, err
	}
	rows, cols, err := r.Size()
	if err != nil {
		return nil, err
	}
	return Login{Auth: auth, TermType: termType, Size: Size{Rows: rows, Cols: cols}}, nil
}

func decodeStartWatching(r *wire.Reader) (Message, error) {
	s, err := r.String()
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("protocol: StartWatching id: %w", err)
	}
	return StartWatching{ID: id}, nil
}

func decodeTerminalOutput(r *wire.Reader) (Message, error) {
	data, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	return TerminalOutput{Data: data}, nil
}

func decodeSessions(r *wire.Reader) (Message, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	sessions := make([]Session, 0, n)
	for i := uint32(0); i < n; i++ {
		idStr, err := r.String()
		if err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("protocol: Session id: %w", err)
		}
		username, err := r.String()
		if err != nil {
			return nil, err
		}
		title, err := r.String()
		if err != nil {
			return nil, err
		}
		rows, cols, err := r.Size()
		if err != nil {
			return nil, err
		}
		idle, err := r.U32()
		if err != nil {
			return nil, err
		}
		watchers, err := r.U32()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, Session{
			ID: id, Username: username, Title: title,
			Size: Size{Rows: rows, Cols: cols}, Idle: idle, Watchers: watchers,
		})
	}
	return Sessions{Sessions: sessions}, nil
}

func decodeError(r *wire.Reader) (Message, error) {
	s, err := r.String()
	if err != nil {
		return nil, err
	}
	return Error{Message: s}, nil
}

func decodeResize(r *wire.Reader) (Message, error) {
	rows, cols, err := r.Size()
	if err != nil {
		return nil, err
	}
	return Resize{Size: Size{Rows: rows, Cols: cols}}, nil
}

func decodeLoggedIn(r *wire.Reader) (Message, error) {
	s, err := r.String()
	if err != nil {
		return nil, err
	}
	return LoggedIn{Username: s}, nil
}

func decodeOauthCliRequest(r *wire.Reader) (Message, error) {
	url, err := r.String()
	if err != nil {
		return nil, err
	}
	id, err := r.String()
	if err != nil {
		return nil, err
	}
	return OauthCliRequest{URL: url, ID: id}, nil
}

func decodeOauthCliResponse(r *wire.Reader) (Message, error) {
	s, err := r.String()
	if err != nil {
		return nil, err
	}
	return OauthCliResponse{Code: s}, nil
}
