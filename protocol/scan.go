package protocol

import (
	"bytes"
	"fmt"
)

// FrameComplete reports whether p starts with at least one complete frame.
// It never consumes anything; an error means the bytes can never become a
// valid frame.
func FrameComplete(p []byte) (bool, error) {
	_, ok, err := frameEnd(p, 0, 0)
	return ok, err
}

// frameEnd returns the offset just past the frame starting at off, depth
// being how many arrays enclose it.
func frameEnd(p []byte, off, depth int) (int, bool, error) {
	idx := bytes.Index(p[off:], crlf)
	if idx < 0 {
		return 0, false, nil
	}

	line := p[off : off+idx]
	next := off + idx + len(crlf)

	if len(line) == 0 {
		return 0, false, fmt.Errorf("%w: empty frame", ErrProtocol)
	}

	switch Kind(line[0]) {
	case SimpleString, Error, Integer:
		return next, true, nil

	case BulkString:
		n, err := parseLength(line[1:], MaxBulkLen)
		if err != nil {
			return 0, false, err
		}

		if n == -1 {
			return next, true, nil
		}

		end := next + int(n) + len(crlf)
		if end > len(p) {
			return 0, false, nil
		}
		return end, true, nil

	case Array:
		n, err := parseLength(line[1:], MaxArrayLen)
		if err != nil {
			return 0, false, err
		}

		if n > 0 && depth >= MaxDepth {
			return 0, false, fmt.Errorf("%w: arrays nested deeper than %d", ErrLimitExceeded, MaxDepth)
		}

		for i := int64(0); i < n; i++ {
			var ok bool
			next, ok, err = frameEnd(p, next, depth+1)
			if !ok || err != nil {
				return 0, false, err
			}
		}
		return next, true, nil
	}

	return 0, false, fmt.Errorf("%w: unexpected type byte %q", ErrProtocol, line[0])
}
