// Package term implements the VT100 terminal model a streaming connection's
// screen state is kept in: it turns raw output bytes into a screen grid and
// can render either a full catch-up payload or a minimal diff against an
// older screen.
package term

import (
	"fmt"
	"strings"
	"sync"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/vt"
)

const maxScrollbackLines = 10000

// Model wraps a VT100 emulator with scrollback capture, mirroring the way
// a real terminal keeps history above the visible grid.
type Model struct {
	emu        *vt.Emulator
	scrollback []string
	sbHead     int
	sbLen      int

	mu           sync.Mutex
	altScreen    bool
	cursorHidden bool
	cols, rows   int
	title        string
}

// New creates a Model sized to cols x rows.
func New(cols, rows int) *Model {
	m := &Model{
		emu:        vt.NewEmulator(cols, rows),
		scrollback: make([]string, maxScrollbackLines),
		cols:       cols,
		rows:       rows,
	}
	m.emu.SetCallbacks(vt.Callbacks{
		ScrollOut: func(lines []uv.Line) {
			if m.altScreen {
				return
			}
			for _, line := range lines {
				rendered := line.Render()
				if m.sbLen == len(m.scrollback) {
					m.scrollback[m.sbHead] = ""
				}
				m.scrollback[m.sbHead] = rendered
				m.sbHead = (m.sbHead + 1) % len(m.scrollback)
				if m.sbLen < len(m.scrollback) {
					m.sbLen++
				}
			}
		},
		ScrollbackClear: func() {
			for i := range m.scrollback {
				m.scrollback[i] = ""
			}
			m.sbLen = 0
			m.sbHead = 0
		},
		AltScreen: func(on bool) {
			m.altScreen = on
		},
		CursorVisibility: func(visible bool) {
			m.cursorHidden = !visible
		},
	})
	return m
}

// Process feeds streamed output bytes to the emulator. Named Process rather
// than Write because callers should not treat a Model as an io.Writer meant
// for concurrent use from multiple goroutines — the orchestrator serializes
// calls per session.
func (m *Model) Process(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if title, ok := extractWindowTitle(p); ok {
		m.title = title
	}
	return m.emu.Write(p)
}

// Title returns the terminal's current window title, as set by the most
// recent OSC 0/1/2 sequence the streamer sent — the current window title
// shown in session listings.
func (m *Model) Title() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.title
}

// extractWindowTitle scans p for the last well-formed OSC 0/1/2 title
// sequence (ESC ] {0,1,2} ; text BEL | ESC ] {0,1,2} ; text ESC \), the two
// terminators xterm and its descendants both accept.
func extractWindowTitle(p []byte) (string, bool) {
	title, found := "", false
	for i := 0; i < len(p); i++ {
		if p[i] != 0x1b || i+1 >= len(p) || p[i+1] != ']' {
			continue
		}
		j := i + 2
		kind := 0
		for j < len(p) && p[j] >= '0' && p[j] <= '9' {
			kind = kind*10 + int(p[j]-'0')
			j++
		}
		if j >= len(p) || p[j] != ';' || (kind != 0 && kind != 1 && kind != 2) {
			continue
		}
		start := j + 1
		end := -1
		termLen := 0
		for k := start; k < len(p); k++ {
			if p[k] == 0x07 {
				end, termLen = k, 1
				break
			}
			if p[k] == 0x1b && k+1 < len(p) && p[k+1] == '\\' {
				end, termLen = k, 2
				break
			}
		}
		if end == -1 {
			continue
		}
		title, found = string(p[start:end]), true
		i = end + termLen - 1
	}
	return title, found
}

// Resize changes the terminal dimensions, following a Resize message.
func (m *Model) Resize(cols, rows int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emu.Resize(cols, rows)
	m.cols = cols
	m.rows = rows
}

// Size returns the current dimensions.
func (m *Model) Size() (cols, rows int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cols, m.rows
}

// Screen is an immutable snapshot of the visible grid plus cursor state,
// used as the "previous screen" argument to Diff.
type Screen struct {
	rows         []string
	cursorX      int
	cursorY      int
	cursorHidden bool
}

// Capture takes an immutable snapshot of the current visible grid. Callers
// hold on to the result and pass it to a later Diff call.
func (m *Model) Capture() *Screen {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos := m.emu.CursorPosition()
	return &Screen{
		rows:         splitRows(m.emu.Render(), m.rows),
		cursorX:      pos.X,
		cursorY:      pos.Y,
		cursorHidden: m.cursorHidden,
	}
}

// Snapshot produces a full catch-up payload: scrollback replay, a complete
// grid repaint, and a cursor position/visibility restore. This is what a
// newly attached watcher receives before any diff.
func (m *Model) Snapshot() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var buf strings.Builder

	lines := m.scrollbackLines()
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteString("\r\n")
	}
	if len(lines) > 0 {
		for range m.rows - 1 {
			buf.WriteByte('\n')
		}
	}

	buf.WriteString("\x1b[m\x1b[H")
	buf.WriteString(m.emu.Render())

	pos := m.emu.CursorPosition()
	fmt.Fprintf(&buf, "\x1b[%d;%dH", pos.Y+1, pos.X+1)

	if m.cursorHidden {
		buf.WriteString("\x1b[?25l")
	} else {
		buf.WriteString("\x1b[?25h")
	}

	return []byte(buf.String())
}

// Diff renders the minimal escape sequence needed to bring a watcher who
// last saw prev up to the current screen: only rows whose rendered text
// changed are repainted, addressed by absolute cursor position, followed by
// a cursor position/visibility restore. If prev is nil, or its row count no
// longer matches the current screen (a resize happened), Diff falls back to
// a full Snapshot so a dimension mismatch never produces garbled output.
func (m *Model) Diff(prev *Screen) []byte {
	m.mu.Lock()
	cur := &Screen{
		rows:         splitRows(m.emu.Render(), m.rows),
		cursorX:      m.emu.CursorPosition().X,
		cursorY:      m.emu.CursorPosition().Y,
		cursorHidden: m.cursorHidden,
	}
	m.mu.Unlock()

	if prev == nil || len(prev.rows) != len(cur.rows) {
		return m.Snapshot()
	}

	var buf strings.Builder
	buf.WriteString("\x1b[m")
	changed := false
	for i := range cur.rows {
		if prev.rows[i] == cur.rows[i] {
			continue
		}
		changed = true
		fmt.Fprintf(&buf, "\x1b[%d;1H\x1b[2K", i+1)
		buf.WriteString(cur.rows[i])
	}
	if !changed && prev.cursorX == cur.cursorX && prev.cursorY == cur.cursorY && prev.cursorHidden == cur.cursorHidden {
		return nil
	}

	fmt.Fprintf(&buf, "\x1b[%d;%dH", cur.cursorY+1, cur.cursorX+1)
	if cur.cursorHidden {
		buf.WriteString("\x1b[?25l")
	} else {
		buf.WriteString("\x1b[?25h")
	}
	return []byte(buf.String())
}

// ScrollbackLen returns the number of scrollback lines currently stored.
func (m *Model) ScrollbackLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sbLen
}

// Close releases the emulator's resources.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emu.Close()
}

func (m *Model) scrollbackLines() []string {
	if m.sbLen == 0 {
		return nil
	}
	lines := make([]string, m.sbLen)
	start := (m.sbHead - m.sbLen + len(m.scrollback)) % len(m.scrollback)
	for i := range m.sbLen {
		lines[i] = m.scrollback[(start+i)%len(m.scrollback)]
	}
	return lines
}

// splitRows splits a rendered grid into exactly want rows, padding with
// empty rows if the emulator produced fewer lines than expected so Diff
// never panics on index mismatch.
func splitRows(rendered string, want int) []string {
	rows := strings.Split(rendered, "\r\n")
	if len(rows) == 1 {
		rows = strings.Split(rendered, "\n")
	}
	for len(rows) < want {
		rows = append(rows, "")
	}
	return rows[:want]
}
