package client

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/luma/gredis/protocol"
	"github.com/luma/gredis/transport"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}

	return fmt.Sprintf("State(%d)", int32(s))
}

// ConnectHook runs every time a Conn finishes its handshake. Returning an
// error fails the connect and disconnects.
type ConnectHook func(ctx context.Context, c *Conn) error

// Conn is a single connection to a server. It owns its Stream and the Buffer
// replies are decoded from.
//
// A Conn is not safe for concurrent use. One command's reply is read in full
// before the next command is sent.
type Conn struct {
	options Options
	addr    string

	state atomic.Int32

	stream  transport.Stream
	buf     *protocol.Buffer
	decoder *protocol.Decoder

	onConnect []ConnectHook

	log *zap.Logger
}

// NewConn creates a disconnected Conn. Nothing is dialled until Connect or
// the first command.
func NewConn(options Options) (*Conn, error) {
	options = options.withDefaults()

	decoder, err := protocol.NewDecoder(options.Encoding)
	if err != nil {
		return nil, err
	}

	return &Conn{
		options: options,
		addr:    options.Addr(),
		decoder: decoder,
		log:     options.Log.Named("conn").With(zap.String("addr", options.Addr())),
	}, nil
}

func (c *Conn) State() State {
	return State(c.state.Load())
}

func (c *Conn) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Conn) Options() Options {
	return c.options
}

// OnConnect registers a hook to run after every successful handshake.
func (c *Conn) OnConnect(hook ConnectHook) {
	c.onConnect = append(c.onConnect, hook)
}

// Connect dials the server and runs the handshake. It's a no-op when already
// connected.
func (c *Conn) Connect(ctx context.Context) error {
	if c.State() == Connected {
		return nil
	}

	c.setState(Connecting)

	stream, err := c.options.Dialer.Dial(ctx, c.addr)
	if err != nil {
		c.setState(Disconnected)
		return err
	}

	c.stream = stream
	c.buf = protocol.NewBuffer(stream, c.options.ReadSize)

	if err := c.handshake(ctx); err != nil {
		c.log.Warn("Handshake failed", zap.Error(err))
		c.Disconnect()
		return err
	}

	c.setState(Connected)

	for _, hook := range c.onConnect {
		if err := hook(ctx, c); err != nil {
			c.Disconnect()
			return err
		}
	}

	c.log.Debug("Connected", zap.Int("db", c.options.DB))

	return nil
}

func (c *Conn) handshake(ctx context.Context) error {
	if c.options.Password != "" {
		v, err := c.call(ctx, protocol.AUTH, c.options.Password)
		if protocol.IsResponseError(err) {
			return fmt.Errorf("%w: %w", protocol.ErrAuthentication, err)
		}

		if err != nil {
			return err
		}

		if !isOK(v) {
			return fmt.Errorf("%w: unexpected reply %s", protocol.ErrAuthentication, v)
		}
	}

	if c.options.DB != 0 {
		v, err := c.call(ctx, protocol.SELECT, c.options.DB)
		if protocol.IsResponseError(err) {
			return fmt.Errorf("%w %d: %w", protocol.ErrInvalidDatabase, c.options.DB, err)
		}

		if err != nil {
			return err
		}

		if !isOK(v) {
			return fmt.Errorf("%w %d: unexpected reply %s", protocol.ErrInvalidDatabase, c.options.DB, v)
		}
	}

	return nil
}

// call writes one command and reads its reply without auto-connecting.
func (c *Conn) call(ctx context.Context, name protocol.Command, args ...interface{}) (protocol.Value, error) {
	packed, err := c.options.Encoder.Encode(name.String(), args...)
	if err != nil {
		return protocol.Value{}, err
	}

	if err := c.write(ctx, packed); err != nil {
		return protocol.Value{}, err
	}

	return c.read(ctx)
}

// Do sends a command and reads its reply, connecting first if needed.
func (c *Conn) Do(ctx context.Context, name string, args ...interface{}) (protocol.Value, error) {
	if err := c.SendCommand(ctx, name, args...); err != nil {
		return protocol.Value{}, err
	}

	return c.ReadResponse(ctx)
}

// SendCommand encodes a command and writes it, connecting first if needed.
func (c *Conn) SendCommand(ctx context.Context, name string, args ...interface{}) error {
	packed, err := c.options.Encoder.Encode(name, args...)
	if err != nil {
		return err
	}

	return c.SendPacked(ctx, packed)
}

// SendPacked writes an already encoded command, connecting first if needed.
// A failed write disconnects.
func (c *Conn) SendPacked(ctx context.Context, packed []byte) error {
	if c.State() != Connected {
		if err := c.Connect(ctx); err != nil {
			return err
		}
	}

	return c.write(ctx, packed)
}

func (c *Conn) write(ctx context.Context, packed []byte) error {
	stop := c.watch(ctx)
	_, err := c.stream.Write(packed)

	if !stop() {
		c.Disconnect()
		return ctx.Err()
	}

	if err != nil {
		c.Disconnect()
		return fmt.Errorf("%w: writing to %s: %w", protocol.ErrConnection, c.addr, err)
	}

	return nil
}

// ReadResponse decodes one reply. A server error reply is returned both as
// the Value and as a *protocol.ResponseError, and leaves the Conn connected.
// Every other error disconnects.
func (c *Conn) ReadResponse(ctx context.Context) (protocol.Value, error) {
	if c.State() != Connected {
		return protocol.Value{}, fmt.Errorf("%w: reading from a disconnected connection", protocol.ErrConnectionClosed)
	}

	return c.read(ctx)
}

func (c *Conn) read(ctx context.Context) (protocol.Value, error) {
	stop := c.watch(ctx)
	v, err := c.decoder.Decode(c.buf)

	if !stop() {
		c.Disconnect()
		return protocol.Value{}, ctx.Err()
	}

	if err != nil {
		c.log.Debug("Read failed, disconnecting", zap.Error(err))
		c.Disconnect()
		return protocol.Value{}, err
	}

	if respErr := v.Err(); respErr != nil {
		return v, respErr
	}

	return v, nil
}

// watch interrupts the stream if ctx is done before the returned stop func is
// called. stop reports false when the interrupt already fired, in which case
// the stream can't be trusted.
func (c *Conn) watch(ctx context.Context) func() bool {
	if ctx.Done() == nil {
		return func() bool { return true }
	}

	return context.AfterFunc(ctx, c.stream.Interrupt)
}

// CanRead reports whether a complete reply can be decoded without blocking.
// When one isn't already buffered it waits up to timeout for the socket to
// become readable and pulls once.
func (c *Conn) CanRead(ctx context.Context, timeout time.Duration) (bool, error) {
	if c.State() != Connected {
		if err := c.Connect(ctx); err != nil {
			return false, err
		}
	}

	complete, err := protocol.FrameComplete(c.buf.Buffered())
	if err != nil || complete {
		if err != nil {
			c.Disconnect()
		}
		return complete, err
	}

	ready, err := c.stream.Readable(timeout)
	if err != nil {
		c.Disconnect()
		return false, protocol.WrapIOError(err)
	}

	if !ready {
		return false, nil
	}

	if err := c.buf.Fill(); err != nil {
		c.Disconnect()
		return false, err
	}

	complete, err = protocol.FrameComplete(c.buf.Buffered())
	if err != nil {
		c.Disconnect()
	}

	return complete, err
}

// Disconnect closes the stream and drops buffered bytes. Calling it on a
// disconnected Conn does nothing.
func (c *Conn) Disconnect() error {
	c.setState(Disconnected)

	if c.stream == nil {
		return nil
	}

	err := c.stream.Close()
	c.stream = nil

	c.buf.Close()
	c.buf = nil

	c.log.Debug("Disconnected")

	return err
}

func isOK(v protocol.Value) bool {
	return v.Kind == protocol.SimpleString && string(v.Data) == "OK"
}
