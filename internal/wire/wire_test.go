package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	lim := DefaultLimits()

	want := Frame{Type: 7, Payload: []byte("hello")}
	if err := WriteFrame(&buf, want, lim); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&buf, lim)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Type != want.Type || !bytes.Equal(got.Payload, want.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestReadFrameEOFBetweenFrames(t *testing.T) {
	var buf bytes.Buffer
	_, err := ReadFrame(&buf, DefaultLimits())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF on empty reader, got %v", err)
	}
}

func TestReadFrameRejectsOversizeLength(t *testing.T) {
	var buf bytes.Buffer
	lim := Limits{MaxFrameLen: 8, MinFrameLen: 0}
	WriteFrame(&buf, Frame{Type: 1, Payload: bytes.Repeat([]byte{'x'}, 20)}, DefaultLimits())

	_, err := ReadFrame(&buf, lim)
	if !errors.Is(err, ErrLenTooBig) {
		t.Fatalf("expected ErrLenTooBig, got %v", err)
	}
}

func TestWriteFrameRejectsOversizePayload(t *testing.T) {
	var buf bytes.Buffer
	lim := Limits{MaxFrameLen: 4, MinFrameLen: 0}
	err := WriteFrame(&buf, Frame{Type: 1, Payload: bytes.Repeat([]byte{'x'}, 20)}, lim)
	if !errors.Is(err, ErrLenTooBig) {
		t.Fatalf("expected ErrLenTooBig, got %v", err)
	}
}

func TestFieldRoundTrip(t *testing.T) {
	w := NewWriter()
	w.PutU8(42)
	w.PutU16(1000)
	w.PutU32(100000)
	w.PutString("héllo wörld")
	w.PutBytes([]byte{1, 2, 3})
	w.PutSize(24, 80)

	r := NewReader(w.Bytes())
	if v, err := r.U8(); err != nil || v != 42 {
		t.Fatalf("U8: %v, %v", v, err)
	}
	if v, err := r.U16(); err != nil || v != 1000 {
		t.Fatalf("U16: %v, %v", v, err)
	}
	if v, err := r.U32(); err != nil || v != 100000 {
		t.Fatalf("U32: %v, %v", v, err)
	}
	if s, err := r.String(); err != nil || s != "héllo wörld" {
		t.Fatalf("String: %q, %v", s, err)
	}
	if b, err := r.Bytes(); err != nil || !bytes.Equal(b, []byte{1, 2, 3}) {
		t.Fatalf("Bytes: %v, %v", b, err)
	}
	rows, cols, err := r.Size()
	if err != nil || rows != 24 || cols != 80 {
		t.Fatalf("Size: rows=%d cols=%d err=%v", rows, cols, err)
	}
	if err := r.Done(); err != nil {
		t.Fatalf("Done: %v", err)
	}
}

func TestReaderDoneDetectsExtraData(t *testing.T) {
	w := NewWriter()
	w.PutU8(1)
	w.PutU8(2)

	r := NewReader(w.Bytes())
	r.U8()
	if err := r.Done(); !errors.Is(err, ErrExtraMessageData) {
		t.Fatalf("expected ErrExtraMessageData, got %v", err)
	}
}

func TestReaderTruncatedFieldIsUnexpectedEOF(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_, err := r.U32()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected wrapped io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestStringRejectsInvalidUTF8(t *testing.T) {
	w := NewWriter()
	w.PutBytes([]byte{0xff, 0xfe, 0xfd})
	r := NewReader(w.Bytes())
	if _, err := r.String(); !errors.Is(err, ErrParseString) {
		t.Fatalf("expected ErrParseString, got %v", err)
	}
}
