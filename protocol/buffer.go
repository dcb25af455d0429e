package protocol

import (
	"bytes"
	"fmt"
	"io"
)

const (
	// DefaultReadSize is how many bytes the buffer asks the source for on
	// each pull.
	DefaultReadSize = 65536
)

var (
	crlf = []byte("\r\n")
)

// Buffer accumulates bytes pulled from a source and hands them out as
// CRLF-terminated lines or length-prefixed payloads.
//
// Bytes between the read and written cursors are valid and undelivered. When
// a read drains the buffer the cursors are reset to zero so a long lived
// connection doesn't grow the buffer across many small replies.
//
// Slices returned by ReadLine and ReadExact alias the internal storage and are
// only valid until the next call that pulls from the source.
type Buffer struct {
	src      io.Reader
	readSize int

	data    []byte
	written int
	read    int

	// scanned is how far past read we have already searched for CRLF
	scanned int
}

// NewBuffer creates a Buffer that pulls up to readSize bytes from src at a
// time.
func NewBuffer(src io.Reader, readSize int) *Buffer {
	if readSize <= 0 {
		readSize = DefaultReadSize
	}

	return &Buffer{
		src:      src,
		readSize: readSize,
	}
}

// Len returns the number of buffered, undelivered bytes.
func (b *Buffer) Len() int {
	return b.written - b.read
}

// Buffered returns the undelivered bytes without consuming them.
func (b *Buffer) Buffered() []byte {
	return b.data[b.read:b.written]
}

// Cursors returns the read and written cursors.
func (b *Buffer) Cursors() (read, written int) {
	return b.read, b.written
}

// Cap returns the size of the internal storage.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Fill pulls one chunk from the source. Cursors are only moved forward by the
// number of bytes actually received; an error leaves them untouched.
func (b *Buffer) Fill() error {
	if b.src == nil {
		return ErrConnectionClosed
	}

	if len(b.data)-b.written < b.readSize {
		b.grow()
	}

	n, err := b.src.Read(b.data[b.written : b.written+b.readSize])
	b.written += n

	if n > 0 {
		// Data first, the error (if any) will surface on the next pull
		return nil
	}

	if err != nil {
		return WrapIOError(err)
	}

	return nil
}

func (b *Buffer) grow() {
	size := 2 * len(b.data)
	if size < b.written+b.readSize {
		size = b.written + b.readSize
	}

	grown := make([]byte, size)
	copy(grown, b.data[:b.written])
	b.data = grown
}

// ReadLine returns the next CRLF-terminated line with the CRLF stripped,
// pulling from the source until a full line is buffered.
func (b *Buffer) ReadLine() ([]byte, error) {
	for {
		if idx := b.indexCRLF(); idx >= 0 {
			line := b.data[b.read : b.read+idx]
			b.advance(idx + len(crlf))
			return line, nil
		}

		if err := b.Fill(); err != nil {
			return nil, err
		}
	}
}

func (b *Buffer) indexCRLF() int {
	start := b.scanned
	if start > 0 {
		// A CR may have been the last byte we looked at
		start--
	}

	idx := bytes.Index(b.data[b.read+start:b.written], crlf)
	if idx < 0 {
		b.scanned = b.Len()
		return -1
	}

	return start + idx
}

// ReadExact returns exactly n payload bytes followed by a CRLF, with the CRLF
// stripped, pulling from the source until n+2 bytes are buffered.
func (b *Buffer) ReadExact(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrProtocol, n)
	}

	length := n + len(crlf)
	for b.Len() < length {
		if err := b.Fill(); err != nil {
			return nil, err
		}
	}

	frame := b.data[b.read : b.read+length]
	if !bytes.HasSuffix(frame, crlf) {
		return nil, fmt.Errorf("%w: expected CRLF after %d byte payload, got %q",
			ErrProtocol, n, frame[n:])
	}

	b.advance(length)
	return frame[:n], nil
}

func (b *Buffer) advance(n int) {
	b.read += n
	b.scanned = 0

	if b.read == b.written {
		b.purge()
	}
}

// purge resets both cursors once everything has been delivered.
func (b *Buffer) purge() {
	b.read = 0
	b.written = 0
	b.scanned = 0
}

// Close drops the source and any buffered bytes.
func (b *Buffer) Close() {
	b.src = nil
	b.data = nil
	b.purge()
}
