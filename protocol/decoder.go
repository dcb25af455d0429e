package protocol

import (
	"bytes"
	"fmt"
	"strconv"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	// MaxBulkLen matches the default proto-max-bulk-len of a Redis server (512MB)
	MaxBulkLen = 512 * 1024 * 1024

	// MaxArrayLen bounds the element count of a single array frame
	MaxArrayLen = 1024 * 1024

	// MaxDepth bounds how deeply arrays may nest inside one frame
	MaxDepth = 512
)

// Decoder turns buffered bytes into Values. It holds no reference to the
// Buffer it reads from; the buffer is lent to it for one Decode call.
type Decoder struct {
	enc encoding.Encoding
}

// NewDecoder creates a Decoder. When encodingName is empty payloads are passed
// through untouched, otherwise bulk and simple strings are converted from
// that encoding to UTF-8.
func NewDecoder(encodingName string) (*Decoder, error) {
	if encodingName == "" {
		return &Decoder{}, nil
	}

	enc, err := htmlindex.Get(encodingName)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", encodingName, err)
	}

	return &Decoder{enc: enc}, nil
}

// Decode reads exactly one frame from buf. Nested arrays are decoded
// recursively in order.
//
// A server error frame is returned as an Error value, unless it reports a
// connection level problem in which case it is returned as the error.
func (d *Decoder) Decode(buf *Buffer) (Value, error) {
	return d.decode(buf, 0)
}

func (d *Decoder) decode(buf *Buffer, depth int) (Value, error) {
	line, err := buf.ReadLine()
	if err != nil {
		return Value{}, err
	}

	if len(line) == 0 {
		return Value{}, fmt.Errorf("%w: empty frame", ErrProtocol)
	}

	kind, rest := Kind(line[0]), line[1:]

	switch kind {
	case SimpleString:
		data, err := d.text(rest)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: SimpleString, Data: data}, nil

	case Error:
		respErr := ParseError(string(rest))
		if respErr.IsConnectionError() {
			return Value{}, respErr
		}
		return Value{Kind: Error, Data: bytes.Clone(rest)}, nil

	case Integer:
		n, err := parseInt(rest)
		if err != nil {
			return Value{}, fmt.Errorf("%w: invalid integer %q", ErrProtocol, rest)
		}
		return Value{Kind: Integer, Int: n}, nil

	case BulkString:
		n, err := parseLength(rest, MaxBulkLen)
		if err != nil {
			return Value{}, err
		}

		if n == -1 {
			return NullBulk(), nil
		}

		payload, err := buf.ReadExact(int(n))
		if err != nil {
			return Value{}, err
		}

		data, err := d.text(payload)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: BulkString, Data: data}, nil

	case Array:
		n, err := parseLength(rest, MaxArrayLen)
		if err != nil {
			return Value{}, err
		}

		if n == -1 {
			return NullArray(), nil
		}

		if n > 0 && depth >= MaxDepth {
			return Value{}, fmt.Errorf("%w: arrays nested deeper than %d", ErrLimitExceeded, MaxDepth)
		}

		elems := make([]Value, 0, n)
		for i := int64(0); i < n; i++ {
			elem, err := d.decode(buf, depth+1)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, elem)
		}
		return Value{Kind: Array, Elems: elems}, nil
	}

	return Value{}, fmt.Errorf("%w: unexpected type byte %q in %q", ErrProtocol, line[0], line)
}

// text copies b out of the buffer, converting it to UTF-8 if an encoding is
// configured.
func (d *Decoder) text(b []byte) ([]byte, error) {
	if d.enc == nil {
		return bytes.Clone(b), nil
	}

	out, err := d.enc.NewDecoder().Bytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding payload: %v", ErrProtocol, err)
	}

	return out, nil
}

func parseLength(b []byte, limit int64) (int64, error) {
	n, err := parseInt(b)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid length %q", ErrProtocol, b)
	}

	if n < -1 {
		return 0, fmt.Errorf("%w: invalid length %d", ErrProtocol, n)
	}

	if n > limit {
		return 0, fmt.Errorf("%w: length %d exceeds %d", ErrLimitExceeded, n, limit)
	}

	return n, nil
}

func parseInt(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, strconv.ErrSyntax
	}

	return strconv.ParseInt(string(b), 10, 64)
}
