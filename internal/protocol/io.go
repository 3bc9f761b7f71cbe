package protocol

import (
	"io"

	"github.com/ehrlich-b/teleterm/internal/wire"
)

// ReadMessage reads and decodes one Message from r.
func ReadMessage(r io.Reader, lim wire.Limits) (Message, error) {
	f, err := wire.ReadFrame(r, lim)
	if err != nil {
		return nil, err
	}
	return Decode(f)
}

// WriteMessage encodes and writes one Message to w.
func WriteMessage(w io.Writer, m Message, lim wire.Limits) error {
	return wire.WriteFrame(w, Encode(m), lim)
}
