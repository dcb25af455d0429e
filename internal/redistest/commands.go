package redistest

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/luma/gredis/protocol"
)

var (
	replyOK   = protocol.Simple("OK")
	replyPong = protocol.Simple("PONG")
)

func errorReply(format string, args ...interface{}) protocol.Value {
	return protocol.ErrorValue(fmt.Sprintf(format, args...))
}

func arityError(name protocol.Command) protocol.Value {
	return errorReply("ERR wrong number of arguments for '%s' command", strings.ToLower(name.String()))
}

var notInteger = errors.New("ERR value is not an integer or out of range")

// dispatch runs one request and returns its replies. quit reports that the
// connection should be closed once they are written.
func (c *Conn) dispatch(req *protocol.Request) (replies []protocol.Value, quit bool) {
	one := func(v protocol.Value) []protocol.Value {
		return []protocol.Value{v}
	}

	args := req.Args

	switch req.Name {
	case protocol.QUIT:
		return one(replyOK), true

	case protocol.AUTH:
		return one(c.auth(args)), false

	case "HELLO":
		return one(errorReply("ERR unknown command 'HELLO', with args beginning with: ")), false
	}

	if !c.authenticated {
		return one(protocol.ErrorValue("NOAUTH Authentication required.")), false
	}

	store := c.server.store

	switch req.Name {
	case "CLIENT":
		return one(replyOK), false

	case protocol.PING:
		if len(args) > 0 {
			return one(protocol.Bulk(args[0])), false
		}
		return one(replyPong), false

	case protocol.ECHO:
		if len(args) != 1 {
			return one(arityError(req.Name)), false
		}
		return one(protocol.Bulk(args[0])), false

	case protocol.SELECT:
		if len(args) != 1 {
			return one(arityError(req.Name)), false
		}

		db, err := strconv.Atoi(string(args[0]))
		if err != nil {
			return one(protocol.ErrorValue(notInteger.Error())), false
		}

		if db < 0 || db >= c.server.databases {
			return one(protocol.ErrorValue("ERR DB index is out of range")), false
		}

		c.db = db
		return one(replyOK), false

	case protocol.GET:
		if len(args) != 1 {
			return one(arityError(req.Name)), false
		}

		value, err := store.Get(c.db, string(args[0]))
		if err != nil {
			return one(protocol.ErrorValue(err.Error())), false
		}

		if value == nil {
			return one(protocol.NullBulk()), false
		}
		return one(protocol.Bulk(value)), false

	case protocol.SET:
		return one(c.set(args)), false

	case protocol.DEL:
		if len(args) == 0 {
			return one(arityError(req.Name)), false
		}
		return one(protocol.Int(store.Del(c.db, toStrings(args)...))), false

	case protocol.EXISTS:
		if len(args) == 0 {
			return one(arityError(req.Name)), false
		}
		return one(protocol.Int(store.Exists(c.db, toStrings(args)...))), false

	case protocol.INCR:
		if len(args) != 1 {
			return one(arityError(req.Name)), false
		}
		return one(c.incr(string(args[0]))), false

	case protocol.LPUSH, protocol.RPUSH:
		if len(args) < 2 {
			return one(arityError(req.Name)), false
		}

		n, err := store.Push(c.db, string(args[0]), req.Name == protocol.LPUSH, args[1:]...)
		if err != nil {
			return one(protocol.ErrorValue(err.Error())), false
		}
		return one(protocol.Int(n)), false

	case protocol.LRANGE:
		return one(c.lrange(args)), false

	case protocol.BLPOP:
		return one(c.blpop(args)), false

	case protocol.KEYS:
		if len(args) != 1 {
			return one(arityError(req.Name)), false
		}
		return one(bulks(store.Keys(c.db, string(args[0])))), false

	case protocol.FLUSHDB:
		store.FlushDB(c.db)
		return one(replyOK), false

	case protocol.PUBLISH:
		if len(args) != 2 {
			return one(arityError(req.Name)), false
		}

		n, err := c.server.Publish(string(args[0]), args[1])
		if err != nil {
			c.log.Warn("Publish did not reach every subscriber",
				zap.Int64("receivers", n),
				zap.Error(err))
		}
		return one(protocol.Int(n)), false

	case protocol.SUBSCRIBE, protocol.PSUBSCRIBE:
		if len(args) == 0 {
			return one(arityError(req.Name)), false
		}
		c.subscribe(req.Name, toStrings(args))
		return nil, false

	case protocol.UNSUBSCRIBE, protocol.PUNSUBSCRIBE:
		c.unsubscribe(req.Name, toStrings(args))
		return nil, false
	}

	return one(errorReply("ERR unknown command '%s'", req.Name)), false
}

func (c *Conn) auth(args [][]byte) protocol.Value {
	if len(args) != 1 {
		return arityError(protocol.AUTH)
	}

	if c.server.password == "" {
		return protocol.ErrorValue("ERR AUTH <password> called without any password configured for the default user")
	}

	if string(args[0]) != c.server.password {
		return protocol.ErrorValue("WRONGPASS invalid username-password pair or user is disabled.")
	}

	c.authenticated = true
	return replyOK
}

func (c *Conn) set(args [][]byte) protocol.Value {
	if len(args) < 2 {
		return arityError(protocol.SET)
	}

	key, value := string(args[0]), args[1]

	var nx, xx bool
	for _, opt := range args[2:] {
		switch strings.ToUpper(string(opt)) {
		case "NX":
			nx = true
		case "XX":
			xx = true
		default:
			return protocol.ErrorValue("ERR syntax error")
		}
	}

	if nx || xx {
		exists := c.server.store.Exists(c.db, key) > 0
		if nx && exists || xx && !exists {
			return protocol.NullBulk()
		}
	}

	c.server.store.Set(c.db, key, value)
	return replyOK
}

func (c *Conn) incr(key string) protocol.Value {
	var n int64

	_, err := c.server.store.Update(c.db, key, func(current []byte) ([]byte, error) {
		if current != nil {
			var err error
			if n, err = strconv.ParseInt(string(current), 10, 64); err != nil {
				return nil, notInteger
			}
		}

		n++
		return []byte(strconv.FormatInt(n, 10)), nil
	})

	if err != nil {
		return protocol.ErrorValue(err.Error())
	}

	return protocol.Int(n)
}

func (c *Conn) lrange(args [][]byte) protocol.Value {
	if len(args) != 3 {
		return arityError(protocol.LRANGE)
	}

	start, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		return protocol.ErrorValue(notInteger.Error())
	}

	stop, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		return protocol.ErrorValue(notInteger.Error())
	}

	values, err := c.server.store.Range(c.db, string(args[0]), start, stop)
	if err != nil {
		return protocol.ErrorValue(err.Error())
	}

	elems := make([]protocol.Value, len(values))
	for i, value := range values {
		elems[i] = protocol.Bulk(value)
	}

	return protocol.List(elems...)
}

func (c *Conn) blpop(args [][]byte) protocol.Value {
	if len(args) < 2 {
		return arityError(protocol.BLPOP)
	}

	seconds, err := strconv.ParseFloat(string(args[len(args)-1]), 64)
	if err != nil || seconds < 0 {
		return protocol.ErrorValue("ERR timeout is not a float or out of range")
	}

	keys := toStrings(args[:len(args)-1])
	timeout := time.Duration(seconds * float64(time.Second))

	key, value, ok := c.server.store.BlockingPop(c.ctx, c.db, keys, timeout)
	if !ok {
		return protocol.NullArray()
	}

	return protocol.List(protocol.BulkText(key), protocol.Bulk(value))
}

// subscribe queues its confirmations while holding subMu, so a message
// published to a new channel can't overtake them.
func (c *Conn) subscribe(name protocol.Command, targets []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	set, kind := c.channels, "subscribe"
	if name == protocol.PSUBSCRIBE {
		set, kind = c.patterns, "psubscribe"
	}

	for _, target := range targets {
		set[target] = struct{}{}
		c.confirm(kind, protocol.BulkText(target))
	}
}

func (c *Conn) unsubscribe(name protocol.Command, targets []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	set, kind := c.channels, "unsubscribe"
	if name == protocol.PUNSUBSCRIBE {
		set, kind = c.patterns, "punsubscribe"
	}

	if len(targets) == 0 {
		for target := range set {
			targets = append(targets, target)
		}
		sort.Strings(targets)
	}

	if len(targets) == 0 {
		c.confirm(kind, protocol.NullBulk())
		return
	}

	for _, target := range targets {
		delete(set, target)
		c.confirm(kind, protocol.BulkText(target))
	}
}

// confirm must be called with subMu held.
func (c *Conn) confirm(kind string, target protocol.Value) {
	count := int64(len(c.channels) + len(c.patterns))
	c.enqueue(protocol.AppendValue(nil, protocol.List(protocol.BulkText(kind), target, protocol.Int(count))))
}

func toStrings(args [][]byte) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = string(arg)
	}

	return out
}

func bulks(values []string) protocol.Value {
	elems := make([]protocol.Value, len(values))
	for i, value := range values {
		elems[i] = protocol.BulkText(value)
	}

	return protocol.List(elems...)
}
