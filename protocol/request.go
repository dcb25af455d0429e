package protocol

import (
	"fmt"
	"strings"
)

// Request is a command as received by a server: an array of bulk strings
// whose first element names the command.
type Request struct {
	Name Command
	Args [][]byte
}

// ReadRequest decodes the next request frame from buf.
func ReadRequest(d *Decoder, buf *Buffer) (*Request, error) {
	v, err := d.Decode(buf)
	if err != nil {
		return nil, err
	}

	return ParseRequest(v)
}

// ParseRequest interprets a decoded array as a Request.
func ParseRequest(v Value) (*Request, error) {
	if v.Kind != Array || v.Null || len(v.Elems) == 0 {
		return nil, fmt.Errorf("%w: request must be a non-empty array, got %s", ErrProtocol, v.Kind)
	}

	req := &Request{
		Args: make([][]byte, 0, len(v.Elems)-1),
	}

	for i, elem := range v.Elems {
		if elem.Kind != BulkString || elem.Null {
			return nil, fmt.Errorf("%w: request element %d must be a bulk string", ErrProtocol, i)
		}

		if i == 0 {
			req.Name = CommandName(string(elem.Data))
			continue
		}

		req.Args = append(req.Args, elem.Data)
	}

	return req, nil
}

func (r *Request) String() string {
	parts := make([]string, 0, len(r.Args)+1)
	parts = append(parts, string(r.Name))
	for _, arg := range r.Args {
		parts = append(parts, string(arg))
	}

	return strings.Join(parts, " ")
}
