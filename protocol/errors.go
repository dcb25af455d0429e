package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
)

var (
	// ErrProtocol is returned for malformed frames: unexpected type bytes,
	// unparsable integers or lengths, and missing terminators.
	ErrProtocol = errors.New("protocol error")

	// ErrTransport is a low-level I/O failure other than a timeout.
	ErrTransport = errors.New("transport error")

	// ErrTimeout is returned when a read or write misses its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrConnectionClosed is returned when the peer closes the stream. It is a
	// transport error for retry purposes.
	ErrConnectionClosed = fmt.Errorf("%w: connection closed by server", ErrTransport)

	// ErrConnection is returned when a connection cannot be established or
	// written to.
	ErrConnection = errors.New("connection error")

	// ErrAuthentication is returned when the AUTH handshake is rejected.
	ErrAuthentication = errors.New("authentication failed")

	// ErrInvalidDatabase is returned when the SELECT handshake is rejected.
	ErrInvalidDatabase = errors.New("invalid database")

	// ErrLimitExceeded is returned when a frame announces a length larger than
	// the decoder is willing to buffer.
	ErrLimitExceeded = fmt.Errorf("%w: limit exceeded", ErrProtocol)
)

// ResponseError is an error reported by the server in a `-` frame.
type ResponseError struct {
	// Kind is the leading upper-case word of the error, e.g. ERR or WRONGTYPE
	Kind    string
	Message string
}

func (e *ResponseError) Error() string {
	if e.Kind == "" {
		return e.Message
	}

	if e.Message == "" {
		return e.Kind
	}

	return e.Kind + " " + e.Message
}

// IsConnectionError reports whether the server is signalling a problem with
// the connection itself rather than with the command.
func (e *ResponseError) IsConnectionError() bool {
	switch e.Kind {
	case "LOADING":
		return true
	case "ERR":
		return e.Message == "max number of clients reached"
	}

	return false
}

// Unwrap lets connection-level server errors match ErrConnection.
func (e *ResponseError) Unwrap() error {
	if e.IsConnectionError() {
		return ErrConnection
	}

	return nil
}

// ParseError turns the text of a `-` frame into a ResponseError.
func ParseError(line string) *ResponseError {
	kind, message, _ := strings.Cut(line, " ")
	if !isKind(kind) {
		return &ResponseError{Message: line}
	}

	return &ResponseError{Kind: kind, Message: message}
}

// isKind reports whether word looks like an error kind: upper-case letters,
// possibly with digits or underscores after the first one.
func isKind(word string) bool {
	if word == "" || word[0] < 'A' || word[0] > 'Z' {
		return false
	}

	for i := 1; i < len(word); i++ {
		c := word[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '_' {
			return false
		}
	}

	return true
}

// IsResponseError reports whether err is (or wraps) a server reported error.
func IsResponseError(err error) bool {
	var respErr *ResponseError
	return errors.As(err, &respErr)
}

// WrapIOError classifies an error returned by a transport read or write into
// the protocol error taxonomy, keeping the original error in the chain.
func WrapIOError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrTransport), errors.Is(err, ErrConnection):
		// Already classified
		return err

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err

	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)

	case errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %w", ErrTransport, err)
}
