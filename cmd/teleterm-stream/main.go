// Command teleterm-stream is a minimal reference streamer: it logs in,
// sends StartStreaming, then relays stdin bytes to the relay as
// TerminalOutput frames until stdin closes. It pipes raw bytes rather than
// managing a pty itself — pty/subprocess management is a collaborating
// process's job, not the relay's.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/ehrlich-b/teleterm/internal/protocol"
	"github.com/ehrlich-b/teleterm/internal/wire"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4144", "relay address")
	username := flag.String("username", "", "plain-auth username")
	rows := flag.Int("rows", 24, "terminal rows")
	cols := flag.Int("cols", 80, "terminal cols")
	flag.Parse()

	if *username == "" {
		fmt.Fprintln(os.Stderr, "usage: teleterm-stream -username NAME")
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
		Size:     protocol.Size{Rows: uint16(*rows), Cols: uint16(*cols)},
	}
	if err := protocol.WriteMessage(conn, login, lim); err != nil {
		fmt.Fprintln(os.Stderr, "login:", err)
		os.Exit(1)
	}
	if _, err := readExpect[protocol.LoggedIn](conn, lim); err != nil {
		fmt.Fprintln(os.Stderr, "login rejected:", err)
		os.Exit(1)
	}

	if err := protocol.WriteMessage(conn, protocol.StartStreaming{}, lim); err != nil {
		fmt.Fprintln(os.Stderr, "start streaming:", err)
		os.Exit(1)
	}

	reader := bufio.NewReaderSize(os.Stdin, 4096)
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if werr := protocol.WriteMessage(conn, protocol.TerminalOutput{Data: chunk}, lim); werr != nil {
				fmt.Fprintln(os.Stderr, "write:", werr)
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func readExpect[T protocol.Message](conn net.Conn, lim wire.Limits) (T, error) {
	var zero T
	msg, err := protocol.ReadMessage(conn, lim)
	if err != nil {
		return zero, err
	}
	if e, ok := msg.(protocol.Error); ok {
		return zero, fmt.Errorf("relay error: %s", e.Message)
	}
	got, ok := msg.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected message %#v", msg)
	}
	return got, nil
}
