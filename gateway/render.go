package gateway

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/luma/gredis/client"
	"github.com/luma/gredis/protocol"
)

var ErrBadRequest = errors.New("bad request")

// ParseCommand reads a command from a JSON body shaped like
//
//	{"command": "SET", "args": ["key", 1], "shard_hint": "key"}
//
// Arguments must be scalars. Numbers are sent exactly as written.
func ParseCommand(body []byte) (client.Cmd, error) {
	if !gjson.ValidBytes(body) {
		return client.Cmd{}, fmt.Errorf("%w: body is not valid JSON", ErrBadRequest)
	}

	parsed := gjson.ParseBytes(body)

	name := parsed.Get("command")
	if name.Type != gjson.String || name.Str == "" {
		return client.Cmd{}, fmt.Errorf("%w: command is required", ErrBadRequest)
	}

	cmd := client.Cmd{
		Name:      name.Str,
		ShardHint: parsed.Get("shard_hint").String(),
	}

	args := parsed.Get("args")
	if args.Exists() && !args.IsArray() {
		return client.Cmd{}, fmt.Errorf("%w: args must be an array", ErrBadRequest)
	}

	for i, arg := range args.Array() {
		switch arg.Type {
		case gjson.String:
			cmd.Args = append(cmd.Args, arg.Str)

		case gjson.Number:
			cmd.Args = append(cmd.Args, arg.Raw)

		case gjson.True, gjson.False:
			cmd.Args = append(cmd.Args, arg.Bool())

		case gjson.Null:
			cmd.Args = append(cmd.Args, nil)

		default:
			return client.Cmd{}, fmt.Errorf("%w: args[%d] must be a string, number, bool or null", ErrBadRequest, i)
		}
	}

	return cmd, nil
}

// Render encodes a command result as {"result": ...}. Raw protocol values
// are converted to plain JSON, bulk strings become strings.
func Render(result interface{}) ([]byte, error) {
	return sjson.SetBytes([]byte(`{}`), "result", plain(result))
}

// RenderError encodes err as {"error": ...}, adding the kind of server
// errors.
func RenderError(err error) []byte {
	out, _ := sjson.SetBytes([]byte(`{}`), "error", err.Error())

	var respErr *protocol.ResponseError
	if errors.As(err, &respErr) && respErr.Kind != "" {
		out, _ = sjson.SetBytes(out, "kind", respErr.Kind)
	}

	return out
}

func plain(result interface{}) interface{} {
	switch r := result.(type) {
	case protocol.Value:
		return plain(r.Interface())

	case []byte:
		return string(r)

	case []interface{}:
		out := make([]interface{}, len(r))
		for i, elem := range r {
			out[i] = plain(elem)
		}
		return out

	case error:
		return r.Error()
	}

	return result
}

// RenderMessage encodes a pub/sub message as a JSON object.
func RenderMessage(msg *client.Message) ([]byte, error) {
	out, err := sjson.SetBytes([]byte(`{}`), "type", msg.Type)
	if err != nil {
		return nil, err
	}

	if msg.Pattern != "" {
		if out, err = sjson.SetBytes(out, "pattern", msg.Pattern); err != nil {
			return nil, err
		}
	}

	if out, err = sjson.SetBytes(out, "channel", msg.Channel); err != nil {
		return nil, err
	}

	switch msg.Type {
	case client.MessageMessage, client.MessagePMessage:
		return sjson.SetBytes(out, "data", msg.Data)
	}

	return sjson.SetBytes(out, "count", msg.Count)
}
