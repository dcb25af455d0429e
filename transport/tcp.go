package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luma/gredis/protocol"
)

// Stream is a connected byte stream to a server. Every blocking method is a
// point at which the caller can be interrupted by closing the stream or by
// moving its deadline.
type Stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)

	// Readable waits up to timeout for the stream to have bytes (or an EOF)
	// ready to read. A zero timeout polls without waiting
	Readable(timeout time.Duration) (bool, error)

	// Interrupt forces any blocked Read or Write to return immediately
	Interrupt()

	RemoteAddr() net.Addr
	Close() error
}

// Dialer opens Streams.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Stream, error)
}

// TCPDialer dials TCP Streams.
type TCPDialer struct {
	Options Options
}

func NewTCPDialer(options Options) *TCPDialer {
	if options.Log == nil {
		options.Log = zap.NewNop()
	}

	return &TCPDialer{Options: options}
}

// Dial implements Dialer. Failures wrap protocol.ErrConnection.
func (d *TCPDialer) Dial(ctx context.Context, addr string) (Stream, error) {
	dialer := &net.Dialer{
		Timeout:   d.Options.ConnectTimeout,
		KeepAlive: d.Options.KeepAlive,
	}

	if d.Options.KeepAlive == 0 {
		// net.Dialer turns keepalives on by default, a negative value disables them
		dialer.KeepAlive = -1
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("%w: connecting to %s: %w", protocol.ErrConnection, addr, err)
	}

	tcpConn := conn.(*net.TCPConn)

	if d.Options.ReadBuffer > 0 {
		if err := tcpConn.SetReadBuffer(d.Options.ReadBuffer); err != nil {
			tcpConn.Close()
			return nil, fmt.Errorf("%w: setting read buffer: %w", protocol.ErrConnection, err)
		}
	}

	return NewTCP(tcpConn, d.Options)
}

var _ Dialer = (*TCPDialer)(nil)

// TCP is a Stream over a TCP connection. Each Read and Write gets its own
// deadline derived from the socket timeout.
type TCP struct {
	conn *net.TCPConn

	poller *Poller

	mu          sync.Mutex
	interrupted bool
	closed      bool

	socketTimeout time.Duration
	trace         bool
	log           *zap.Logger
}

func NewTCP(conn *net.TCPConn, options Options) (*TCP, error) {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	poller, err := MakePoller(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: creating poller: %w", protocol.ErrConnection, err)
	}

	return &TCP{
		conn:          conn,
		poller:        poller,
		socketTimeout: options.SocketTimeout,
		trace:         options.Trace,
		log:           log.With(zap.String("addr", conn.RemoteAddr().String())),
	}, nil
}

func (t *TCP) deadline() time.Time {
	if t.socketTimeout <= 0 {
		return time.Time{}
	}

	return time.Now().Add(t.socketTimeout)
}

// Read reads into p. Errors are classified with protocol.WrapIOError.
func (t *TCP) Read(p []byte) (int, error) {
	if err := t.armDeadline(t.conn.SetReadDeadline); err != nil {
		return 0, err
	}

	if n := t.poller.Drain(p); n > 0 {
		return n, nil
	}

	n, err := t.conn.Read(p)
	if t.trace && n > 0 {
		t.log.Debug("read", zap.ByteString("data", p[:n]))
	}

	if err != nil {
		return n, protocol.WrapIOError(err)
	}

	return n, nil
}

// Write writes all of p. Errors are classified with protocol.WrapIOError.
func (t *TCP) Write(p []byte) (int, error) {
	if err := t.armDeadline(t.conn.SetWriteDeadline); err != nil {
		return 0, err
	}

	if t.trace {
		t.log.Debug("write", zap.ByteString("data", p))
	}

	n, err := t.conn.Write(p)
	if err != nil {
		return n, protocol.WrapIOError(err)
	}

	return n, nil
}

// armDeadline sets the per-operation deadline unless the stream has been
// interrupted, in which case the past deadline set by Interrupt must stay.
func (t *TCP) armDeadline(set func(time.Time) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return protocol.WrapIOError(net.ErrClosed)
	}

	if t.interrupted {
		return protocol.WrapIOError(errInterrupted)
	}

	return set(t.deadline())
}

var errInterrupted = errors.New("stream interrupted")

// Interrupt implements Stream.
func (t *TCP) Interrupt() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.interrupted = true
	if !t.closed {
		// A deadline in the past unblocks pending reads and writes
		t.conn.SetDeadline(time.Unix(1, 0))
	}
}

// Readable implements Stream.
func (t *TCP) Readable(timeout time.Duration) (bool, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return false, protocol.WrapIOError(net.ErrClosed)
	}

	return t.poller.Wait(timeout)
}

func (t *TCP) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// Close closes the connection. Calling it more than once is safe.
func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}

	t.closed = true

	if err := t.poller.Close(); err != nil {
		t.log.Warn("Poller did not close cleanly", zap.Error(err))
	}

	return t.conn.Close()
}

var _ Stream = (*TCP)(nil)
