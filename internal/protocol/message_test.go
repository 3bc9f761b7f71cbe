package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/ehrlich-b/teleterm/internal/wire"
	"github.com/google/uuid"
)

func roundTrip(t *testing.T, m Message) Message {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteMessage(&buf, m, wire.DefaultLimits()); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	got, err := ReadMessage(&buf, wire.DefaultLimits())
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return got
}

func TestRoundTripEachVariant(t *testing.T) {
	sessionID := uuid.New()
	cases := []Message{
		Login{Auth: PlainAuth("alice"), TermType: "xterm-256color", Size: Size{Rows: 24, Cols: 80}},
		Login{Auth: OauthAuth("recurse_center", "flow-123"), TermType: "xterm", Size: Size{Rows: 40, Cols: 120}},
		StartStreaming{},
		StartWatching{ID: sessionID},
		Heartbeat{},
		TerminalOutput{Data: []byte("hello\x1b[0m")},
		ListSessions{},
		Sessions{Sessions: []Session{{ID: sessionID, Username: "alice", Title: "vim", Size: Size{Rows: 24, Cols: 80}, Idle: 5, Watchers: 2}}},
		Disconnected{},
		Error{Message: "bad auth"},
		Resize{Size: Size{Rows: 50, Cols: 200}},
		LoggedIn{Username: "alice"},
		OauthCliRequest{URL: "https://example.com/authorize", ID: "flow-123"},
		OauthCliResponse{Code: "auth-code-xyz"},
	}

	for _, want := range cases {
		got := roundTrip(t, want)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round trip mismatch for %T: got %+v, want %+v", want, got, want)
		}
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	f := wire.Frame{Type: 255, Payload: nil}
	_, err := Decode(f)
	if !errors.Is(err, wire.ErrInvalidMessageType) {
		t.Fatalf("expected ErrInvalidMessageType, got %v", err)
	}
}

func TestDecodeRejectsExtraData(t *testing.T) {
	f := Encode(Heartbeat{})
	f.Payload = append(f.Payload, 0xFF)
	_, err := Decode(f)
	if !errors.Is(err, wire.ErrExtraMessageData) {
		t.Fatalf("expected ErrExtraMessageData, got %v", err)
	}
}

func TestMessageTypeString(t *testing.T) {
	if TypeLogin.String() != "Login" {
		t.Fatalf("unexpected String(): %s", TypeLogin.String())
	}
	if MessageType(200).String() == "" {
		t.Fatal("expected non-empty fallback string for unknown type")
	}
}
