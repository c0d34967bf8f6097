// Package wire implements the size-prefixed msgpack framing shared by the
// runtime client and the RPC transport.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

const MaxFrameSize = 64 << 20

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// WriteFrame encodes v and writes it behind a 4-byte big endian length.
func WriteFrame(w io.Writer, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// ReadFrame reads a single frame written by WriteFrame and decodes it into v.
func ReadFrame(r io.Reader, v any) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return ErrFrameTooLarge
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("failed to read frame body: %w", err)
	}

	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	return nil
}
