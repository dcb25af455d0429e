package protocol

import (
	"strconv"
	"strings"
)

// Kind identifies the RESP type of a Value. The constants are the wire type
// bytes.
type Kind byte

const (
	SimpleString Kind = '+'
	Error        Kind = '-'
	Integer      Kind = ':'
	BulkString   Kind = '$'
	Array        Kind = '*'
)

func (k Kind) String() string {
	switch k {
	case SimpleString:
		return "simple-string"
	case Error:
		return "error"
	case Integer:
		return "integer"
	case BulkString:
		return "bulk-string"
	case Array:
		return "array"
	}

	return "unknown(" + strconv.Quote(string(k)) + ")"
}

// Value is one decoded RESP frame.
//
// A null bulk string or null array has Null set and is distinct from an empty
// string (Data is empty, Null is false) or an empty array (Elems is empty, Null
// is false).
type Value struct {
	Kind  Kind
	Data  []byte
	Int   int64
	Elems []Value
	Null  bool
}

// Simple builds a simple string value.
func Simple(s string) Value {
	return Value{Kind: SimpleString, Data: []byte(s)}
}

// Bulk builds a bulk string value.
func Bulk(b []byte) Value {
	return Value{Kind: BulkString, Data: b}
}

// BulkText builds a bulk string value from s.
func BulkText(s string) Value {
	return Value{Kind: BulkString, Data: []byte(s)}
}

// Int builds an integer value.
func Int(n int64) Value {
	return Value{Kind: Integer, Int: n}
}

// List builds an array value.
func List(elems ...Value) Value {
	if elems == nil {
		elems = []Value{}
	}

	return Value{Kind: Array, Elems: elems}
}

// NullBulk is the `$-1` value.
func NullBulk() Value {
	return Value{Kind: BulkString, Null: true}
}

// NullArray is the `*-1` value.
func NullArray() Value {
	return Value{Kind: Array, Null: true}
}

// ErrorValue builds an error value carrying msg.
func ErrorValue(msg string) Value {
	return Value{Kind: Error, Data: []byte(msg)}
}

// Err returns the server error carried by an error value, or nil.
func (v Value) Err() error {
	if v.Kind != Error {
		return nil
	}

	return ParseError(string(v.Data))
}

// Text returns the payload of string-like values as a string.
func (v Value) Text() string {
	if v.Kind == Integer {
		return strconv.FormatInt(v.Int, 10)
	}

	return string(v.Data)
}

// Interface converts the value into plain Go types:
//
//	simple string -> string
//	error         -> error (*ResponseError)
//	integer       -> int64
//	bulk string   -> []byte, or nil when null
//	array         -> []interface{}, or nil when null
func (v Value) Interface() interface{} {
	switch v.Kind {
	case SimpleString:
		return string(v.Data)

	case Error:
		return v.Err()

	case Integer:
		return v.Int

	case BulkString:
		if v.Null {
			return nil
		}
		return v.Data

	case Array:
		if v.Null {
			return nil
		}

		out := make([]interface{}, len(v.Elems))
		for i, elem := range v.Elems {
			out[i] = elem.Interface()
		}
		return out
	}

	return nil
}

func (v Value) String() string {
	switch v.Kind {
	case SimpleString, Error:
		return string(v.Data)

	case Integer:
		return strconv.FormatInt(v.Int, 10)

	case BulkString:
		if v.Null {
			return "(nil)"
		}
		return strconv.Quote(string(v.Data))

	case Array:
		if v.Null {
			return "(nil)"
		}

		parts := make([]string, len(v.Elems))
		for i, elem := range v.Elems {
			parts[i] = elem.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}

	return v.Kind.String()
}
