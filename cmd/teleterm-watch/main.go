// Command teleterm-watch is a minimal reference watcher: it logs in, lists
// sessions, attaches to one, and writes every TerminalOutput payload it
// receives straight to stdout.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/ehrlich-b/teleterm/internal/protocol"
	"github.com/ehrlich-b/teleterm/internal/wire"
	"github.com/google/uuid"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4144", "relay address")
	username := flag.String("username", "", "plain-auth username")
	sessionFlag := flag.String("session", "", "session id to watch (defaults to the first listed)")
	flag.Parse()

	if *username == "" {
		fmt.Fprintln(os.Stderr, "usage: teleterm-watch -username NAME [-session ID]")
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer conn.Close()

	lim := wire.DefaultLimits()

	login := protocol.Login{
		Auth:     protocol.PlainAuth(*username),
		TermType: "xterm-256color",
		Size:     protocol.Size{Rows: 24, Cols: 80},
	}
	if err := protocol.WriteMessage(conn, login, lim); err != nil {
		fmt.Fprintln(os.Stderr, "login:", err)
		os.Exit(1)
	}
	if msg, err := protocol.ReadMessage(conn, lim); err != nil {
		fmt.Fprintln(os.Stderr, "login:", err)
		os.Exit(1)
	} else if _, ok := msg.(protocol.LoggedIn); !ok {
		fmt.Fprintln(os.Stderr, "login rejected:", msg)
		os.Exit(1)
	}

	sessionID, err := resolveSessionID(conn, lim, *sessionFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := protocol.WriteMessage(conn, protocol.StartWatching{ID: sessionID}, lim); err != nil {
		fmt.Fprintln(os.Stderr, "start watching:", err)
		os.Exit(1)
	}

	for {
		msg, err := protocol.ReadMessage(conn, lim)
		if err != nil {
			return
		}
		switch m := msg.(type) {
		case protocol.TerminalOutput:
			os.Stdout.Write(m.Data)
		case protocol.Disconnected:
			return
		case protocol.Error:
			fmt.Fprintln(os.Stderr, "relay error:", m.Message)
			return
		}
	}
}

func resolveSessionID(conn net.Conn, lim wire.Limits, want string) (uuid.UUID, error) {
	if want != "" {
		return uuid.Parse(want)
	}

	if err := protocol.WriteMessage(conn, protocol.ListSessions{}, lim); err != nil {
		return uuid.UUID{}, err
	}
	msg, err := protocol.ReadMessage(conn, lim)
	if err != nil {
		return uuid.UUID{}, err
	}
	sessions, ok := msg.(protocol.Sessions)
	if !ok {
		return uuid.UUID{}, fmt.Errorf("unexpected message %#v", msg)
	}
	if len(sessions.Sessions) == 0 {
		return uuid.UUID{}, fmt.Errorf("no sessions to watch")
	}
	return sessions.Sessions[0].ID, nil
}
