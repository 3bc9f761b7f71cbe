// Package protocol defines the closed message vocabulary exchanged between
// a relay and its connections, and the wire encoding for each variant atop
// internal/wire's frame and field primitives.
package protocol

import "github.com/google/uuid"

// Size is a terminal grid dimension, encoded as {u16 rows, u16 cols}.
type Size struct {
	Rows uint16
	Cols uint16
}

// Session describes one live streaming session, as reported by ListSessions.
type Session struct {
	ID       uuid.UUID
	Username string
	Title    string
	Size     Size
	Idle     uint32 // seconds since the streamer last sent TerminalOutput
	Watchers uint32
}

// AuthKind distinguishes the two ways a connection can authenticate.
type AuthKind byte

const (
	AuthKindPlain AuthKind = 1
	AuthKindOauth AuthKind = 2
)

// Auth is the login credential sum type: a plain username, or an OAuth
// provider name plus, optionally, the id of an earlier flow the relay
// allocated in an OauthCliRequest (empty on a first login).
type Auth struct {
	Kind     AuthKind
	Username string // set when Kind == AuthKindPlain
	Provider string // set when Kind == AuthKindOauth
	FlowID   string // set when Kind == AuthKindOauth and the client kept an id from an earlier flow
}

// PlainAuth builds a Plain-variant Auth.
func PlainAuth(username string) Auth {
	return Auth{Kind: AuthKindPlain, Username: username}
}

// OauthAuth builds an Oauth-variant Auth for the named provider.
func OauthAuth(provider, flowID string) Auth {
	return Auth{Kind: AuthKindOauth, Provider: provider, FlowID: flowID}
}
