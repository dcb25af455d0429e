package protocol

import (
	"fmt"
	"io"
	"strconv"
)

var (
	OkTerminal = []byte("+OK\r\n")
	Terminal   = crlf
)

// CommandEncoder packs a command name and its arguments into a request frame.
type CommandEncoder interface {
	Encode(name string, args ...interface{}) ([]byte, error)
}

// MultiBulkEncoder encodes commands as RESP arrays of bulk strings.
type MultiBulkEncoder struct{}

// Encode implements CommandEncoder.
func (MultiBulkEncoder) Encode(name string, args ...interface{}) ([]byte, error) {
	return AppendCommand(nil, name, args...)
}

var _ CommandEncoder = MultiBulkEncoder{}

// AppendCommand appends the multi-bulk encoding of the command to dst.
//
// Arguments are converted to bulk strings: strings and byte slices as is,
// integers and floats in decimal notation, bools as 1 or 0, nil as an empty
// string and fmt.Stringers through their String method.
func AppendCommand(dst []byte, name string, args ...interface{}) ([]byte, error) {
	dst = appendHeader(dst, Array, int64(len(args)+1))
	dst = appendBulk(dst, []byte(name))

	for i, arg := range args {
		var err error
		if dst, err = appendArg(dst, arg); err != nil {
			return nil, fmt.Errorf("%s argument %d: %w", name, i+1, err)
		}
	}

	return dst, nil
}

func appendArg(dst []byte, arg interface{}) ([]byte, error) {
	switch a := arg.(type) {
	case string:
		return appendBulk(dst, []byte(a)), nil
	case []byte:
		return appendBulk(dst, a), nil
	case int:
		return appendBulk(dst, strconv.AppendInt(nil, int64(a), 10)), nil
	case int8:
		return appendBulk(dst, strconv.AppendInt(nil, int64(a), 10)), nil
	case int16:
		return appendBulk(dst, strconv.AppendInt(nil, int64(a), 10)), nil
	case int32:
		return appendBulk(dst, strconv.AppendInt(nil, int64(a), 10)), nil
	case int64:
		return appendBulk(dst, strconv.AppendInt(nil, a, 10)), nil
	case uint:
		return appendBulk(dst, strconv.AppendUint(nil, uint64(a), 10)), nil
	case uint8:
		return appendBulk(dst, strconv.AppendUint(nil, uint64(a), 10)), nil
	case uint16:
		return appendBulk(dst, strconv.AppendUint(nil, uint64(a), 10)), nil
	case uint32:
		return appendBulk(dst, strconv.AppendUint(nil, uint64(a), 10)), nil
	case uint64:
		return appendBulk(dst, strconv.AppendUint(nil, a, 10)), nil
	case float32:
		return appendBulk(dst, strconv.AppendFloat(nil, float64(a), 'f', -1, 32)), nil
	case float64:
		return appendBulk(dst, strconv.AppendFloat(nil, a, 'f', -1, 64)), nil
	case bool:
		if a {
			return appendBulk(dst, []byte("1")), nil
		}
		return appendBulk(dst, []byte("0")), nil
	case nil:
		return appendBulk(dst, nil), nil
	case fmt.Stringer:
		return appendBulk(dst, []byte(a.String())), nil
	}

	return nil, fmt.Errorf("unsupported argument type %T", arg)
}

func appendHeader(dst []byte, kind Kind, n int64) []byte {
	dst = append(dst, byte(kind))
	dst = strconv.AppendInt(dst, n, 10)
	return append(dst, crlf...)
}

func appendBulk(dst []byte, b []byte) []byte {
	dst = appendHeader(dst, BulkString, int64(len(b)))
	dst = append(dst, b...)
	return append(dst, crlf...)
}

// AppendValue appends the wire encoding of v to dst.
func AppendValue(dst []byte, v Value) []byte {
	switch v.Kind {
	case SimpleString, Error:
		dst = append(dst, byte(v.Kind))
		dst = append(dst, v.Data...)
		return append(dst, crlf...)

	case Integer:
		return appendHeader(dst, Integer, v.Int)

	case BulkString:
		if v.Null {
			return appendHeader(dst, BulkString, -1)
		}
		return appendBulk(dst, v.Data)

	case Array:
		if v.Null {
			return appendHeader(dst, Array, -1)
		}

		dst = appendHeader(dst, Array, int64(len(v.Elems)))
		for _, elem := range v.Elems {
			dst = AppendValue(dst, elem)
		}
		return dst
	}

	return dst
}

func WriteValue(w io.Writer, v Value) error {
	_, err := w.Write(AppendValue(nil, v))
	return err
}

func WriteOk(w io.Writer) error {
	_, err := w.Write(OkTerminal)
	return err
}

func WriteError(w io.Writer, errMsg string) error {
	return WriteValue(w, ErrorValue(errMsg))
}

func WriteBulk(w io.Writer, b []byte) error {
	if b == nil {
		return WriteValue(w, NullBulk())
	}

	return WriteValue(w, Bulk(b))
}

// WriteCommand encodes and writes a command in one Write call.
func WriteCommand(w io.Writer, name string, args ...interface{}) error {
	b, err := AppendCommand(nil, name, args...)
	if err != nil {
		return err
	}

	_, err = w.Write(b)
	return err
}
