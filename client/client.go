package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/gredis/protocol"
)

// ErrSubscribeCommand is returned by Execute for the (P)SUBSCRIBE family.
// Those put a Conn into subscribed mode, use Client.PubSub instead.
var ErrSubscribeCommand = errors.New("subscribe commands need a dedicated connection, use Client.PubSub")

// Cmd is one command to execute.
type Cmd struct {
	Name string
	Args []interface{}

	// ShardHint routes the command when the pool is sharded
	ShardHint string

	// Params are handed to the reply Callback
	Params map[string]interface{}
}

// Client executes commands on Conns checked out of a Pool.
type Client struct {
	options   Options
	pool      Pool
	callbacks *Callbacks

	blockingOnce sync.Once
	blocking     *redis.Client

	metrics *metrics
	log     *zap.Logger
}

// New creates a Client backed by a ConnectionPool.
func New(options Options) (*Client, error) {
	options = options.withDefaults()

	pool, err := NewConnectionPool(options)
	if err != nil {
		return nil, err
	}

	return NewWithPool(options, pool), nil
}

// NewWithPool creates a Client that checks Conns out of pool.
func NewWithPool(options Options, pool Pool) *Client {
	options = options.withDefaults()

	return &Client{
		options:   options,
		pool:      pool,
		callbacks: options.Callbacks,
		metrics:   newMetrics(options.Registerer),
		log:       options.Log.Named("client"),
	}
}

func (c *Client) Options() Options {
	return c.options
}

func (c *Client) Pool() Pool {
	return c.pool
}

// Do executes name with args and no extra options.
func (c *Client) Do(ctx context.Context, name string, args ...interface{}) (interface{}, error) {
	return c.Execute(ctx, Cmd{Name: name, Args: args})
}

// Execute sends cmd on a pooled Conn and returns its reply after applying the
// Callback registered for the command. Without a Callback the decoded
// protocol.Value is returned as is.
//
// A failure caused by a timeout or the transport is retried once, on a
// freshly connected Conn, when RetryOnTimeout is set.
func (c *Client) Execute(ctx context.Context, cmd Cmd) (result interface{}, err error) {
	name := protocol.CommandName(cmd.Name)

	switch name {
	case protocol.SUBSCRIBE, protocol.PSUBSCRIBE, protocol.UNSUBSCRIBE, protocol.PUNSUBSCRIBE:
		return nil, fmt.Errorf("%w: %s", ErrSubscribeCommand, name)
	}

	packed, err := c.options.Encoder.Encode(name.String(), cmd.Args...)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	conn, err := c.pool.Get(ctx, name.String(), cmd.ShardHint)
	if err != nil {
		c.metrics.observe(name.String(), statusError, time.Since(start))
		return nil, err
	}

	defer func() {
		c.release(conn, err)
		c.metrics.observe(name.String(), status(err), time.Since(start))
	}()

	v, err := roundTrip(ctx, conn, packed)
	if err != nil && c.shouldRetry(ctx, err) {
		c.log.Info("Retrying command",
			zap.String("command", name.String()),
			zap.Error(err))
		c.metrics.retried(name.String())

		// The retry goes through a full Connect, handshake included
		conn.Disconnect()
		v, err = roundTrip(ctx, conn, packed)
	}

	if err != nil {
		return nil, err
	}

	cb, ok := c.callbacks.Lookup(name)
	if !ok {
		return v, nil
	}

	return cb(v, cmd.Params)
}

func roundTrip(ctx context.Context, conn *Conn, packed []byte) (protocol.Value, error) {
	if err := conn.SendPacked(ctx, packed); err != nil {
		return protocol.Value{}, err
	}

	return conn.ReadResponse(ctx)
}

// release returns conn to the pool, or discards it when the command left it
// disconnected.
func (c *Client) release(conn *Conn, err error) {
	if err != nil && conn.State() != Connected {
		c.pool.Remove(conn)
		return
	}

	c.pool.Put(conn)
}

func (c *Client) shouldRetry(ctx context.Context, err error) bool {
	if !c.options.RetryOnTimeout || ctx.Err() != nil {
		return false
	}

	return Retryable(err)
}

// Retryable reports whether err is a timeout or transport level failure that
// a fresh connection could fix. Server replies, protocol violations and
// rejected handshakes are never retryable.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case protocol.IsResponseError(err):
		return false
	case errors.Is(err, protocol.ErrProtocol),
		errors.Is(err, protocol.ErrAuthentication),
		errors.Is(err, protocol.ErrInvalidDatabase):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}

	return errors.Is(err, protocol.ErrTimeout) ||
		errors.Is(err, protocol.ErrTransport) ||
		errors.Is(err, protocol.ErrConnection)
}

func status(err error) string {
	switch {
	case err == nil:
		return statusOK
	case protocol.IsResponseError(err):
		return statusServerError
	}

	return statusError
}

// PubSub creates a PubSub on its own dedicated Conn.
func (c *Client) PubSub() (*PubSub, error) {
	conn, err := NewConn(c.options)
	if err != nil {
		return nil, err
	}

	return NewPubSub(conn), nil
}

// Close closes the pool and the blocking client, if one was created.
func (c *Client) Close() (err error) {
	err = c.pool.Close()

	if c.blocking != nil {
		err = multierr.Append(err, c.blocking.Close())
	}

	return err
}
