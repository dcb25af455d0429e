package client

import (
	"context"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewBlockingClient builds an independent go-redis client from the same
// Options. It dials its own sockets, nothing is shared with the Conns of a
// Client.
func NewBlockingClient(options Options) *redis.Client {
	options = options.withDefaults()

	return redis.NewClient(&redis.Options{
		Addr:     options.Addr(),
		DB:       options.DB,
		Password: options.Password,

		// RESP2, the same dialect the Conns speak
		Protocol: 2,

		DialTimeout:  options.ConnectTimeout,
		ReadTimeout:  blockingTimeout(options.SocketTimeout),
		WriteTimeout: blockingTimeout(options.SocketTimeout),
		PoolSize:     options.MaxConnections,

		Dialer: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{
				Timeout:   options.ConnectTimeout,
				KeepAlive: options.KeepAlive,
			}

			if options.KeepAlive == 0 {
				dialer.KeepAlive = -1
			}

			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}

			if tcpConn, ok := conn.(*net.TCPConn); ok {
				if err := tcpConn.SetReadBuffer(options.ReadSize); err != nil {
					conn.Close()
					return nil, err
				}
			}

			return conn, nil
		},
	})
}

// go-redis treats a zero timeout as "use the default" and -1 as "none".
func blockingTimeout(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}

	return d
}

// ToBlocking returns a go-redis client configured like c. It's created on
// first use and closed with c.
func (c *Client) ToBlocking() *redis.Client {
	c.blockingOnce.Do(func() {
		c.blocking = NewBlockingClient(c.options)
	})

	return c.blocking
}

// Pipeline returns a go-redis pipeline. Pipelined commands run on the
// blocking client, never on pooled Conns.
func (c *Client) Pipeline() redis.Pipeliner {
	return c.ToBlocking().Pipeline()
}
