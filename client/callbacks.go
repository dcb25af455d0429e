package client

import (
	"fmt"

	"github.com/luma/gredis/protocol"
)

// Callback post-processes a decoded reply. Params carries per-call options
// supplied with the command.
type Callback func(v protocol.Value, params map[string]interface{}) (interface{}, error)

// Callbacks maps command names to the Callback applied to their replies. It
// is built once at startup and only read afterwards.
type Callbacks struct {
	table map[protocol.Command]Callback
}

func NewCallbacks() *Callbacks {
	return &Callbacks{table: make(map[protocol.Command]Callback)}
}

// DefaultCallbacks returns a table covering the typed command helpers.
func DefaultCallbacks() *Callbacks {
	c := NewCallbacks()

	for _, name := range []protocol.Command{protocol.PING, protocol.SET, protocol.SELECT, protocol.AUTH, protocol.FLUSHDB} {
		c.Register(name, BoolReply)
	}

	for _, name := range []protocol.Command{protocol.GET, protocol.ECHO} {
		c.Register(name, StringReply)
	}

	for _, name := range []protocol.Command{
		protocol.DEL, protocol.EXISTS, protocol.INCR, protocol.LPUSH, protocol.RPUSH, protocol.PUBLISH,
	} {
		c.Register(name, IntReply)
	}

	for _, name := range []protocol.Command{protocol.LRANGE, protocol.KEYS, protocol.BLPOP} {
		c.Register(name, StringsReply)
	}

	return c
}

// Register sets the Callback for name, replacing any existing one.
func (c *Callbacks) Register(name protocol.Command, cb Callback) *Callbacks {
	c.table[protocol.CommandName(string(name))] = cb
	return c
}

func (c *Callbacks) Lookup(name protocol.Command) (Callback, bool) {
	cb, ok := c.table[name]
	return cb, ok
}

// Clone copies the table so it can be extended without touching the
// original.
func (c *Callbacks) Clone() *Callbacks {
	clone := NewCallbacks()
	for name, cb := range c.table {
		clone.table[name] = cb
	}

	return clone
}

func unexpected(v protocol.Value) error {
	return fmt.Errorf("%w: unexpected %s reply %s", protocol.ErrProtocol, v.Kind, v)
}

// BoolReply maps OK and PONG to true, integers to whether they are non-zero.
func BoolReply(v protocol.Value, _ map[string]interface{}) (interface{}, error) {
	switch v.Kind {
	case protocol.SimpleString:
		s := string(v.Data)
		return s == "OK" || s == "PONG", nil

	case protocol.Integer:
		return v.Int != 0, nil

	case protocol.BulkString:
		// SET with NX or XX replies with a null bulk when nothing was set
		return !v.Null, nil
	}

	return nil, unexpected(v)
}

// StringReply maps bulk and simple strings to string, null to nil.
func StringReply(v protocol.Value, _ map[string]interface{}) (interface{}, error) {
	switch v.Kind {
	case protocol.SimpleString, protocol.BulkString:
		if v.Null {
			return nil, nil
		}
		return string(v.Data), nil
	}

	return nil, unexpected(v)
}

func IntReply(v protocol.Value, _ map[string]interface{}) (interface{}, error) {
	if v.Kind != protocol.Integer {
		return nil, unexpected(v)
	}

	return v.Int, nil
}

// StringsReply maps an array to []string, a null array to nil. Null elements
// become empty strings.
func StringsReply(v protocol.Value, _ map[string]interface{}) (interface{}, error) {
	if v.Kind != protocol.Array {
		return nil, unexpected(v)
	}

	if v.Null {
		return nil, nil
	}

	out := make([]string, len(v.Elems))
	for i, elem := range v.Elems {
		out[i] = elem.Text()
	}

	return out, nil
}
