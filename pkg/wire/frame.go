package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Message kind bytes. J/K/L start a request; O/E/R frame the response
// stream of a job submission.
const (
	KindJob  byte = 'J'
	KindKill byte = 'K'
	KindList byte = 'L'

	KindStdout byte = 'O'
	KindStderr byte = 'E'
	KindResult byte = 'R'
)

// Status bytes for the kill/list response side.
const (
	StatusOK   byte = '1'
	StatusFail byte = '0'
)

// MaxFrameBytes is the largest length prefix the worker protocol
// accepts; anything larger aborts the connection.
const MaxFrameBytes = 100 * 1024 * 1024

// ErrFrameTooLarge is returned by ReadFrame when a length prefix
// exceeds MaxFrameBytes.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// ReadKind reads the single message-kind byte that starts every request.
func ReadKind(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("read kind byte: %w", err)
	}
	return buf[0], nil
}

// WriteKind writes a single message-kind byte.
func WriteKind(w io.Writer, kind byte) error {
	if _, err := w.Write([]byte{kind}); err != nil {
		return fmt.Errorf("write kind byte: %w", err)
	}
	return nil
}

// ReadFrame reads a 4-byte big-endian length prefix followed by that
// many bytes, rejecting any prefix larger than MaxFrameBytes.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read frame length: %w", err)
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return body, nil
}

// WriteFrame writes a 4-byte big-endian length prefix followed by body.
func WriteFrame(w io.Writer, body []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// WriteKindFrame writes a kind byte followed by a length-prefixed body,
// the shape of every output ('O'/'E') and result ('R') frame.
func WriteKindFrame(w io.Writer, kind byte, body []byte) error {
	if err := WriteKind(w, kind); err != nil {
		return err
	}
	return WriteFrame(w, body)
}
