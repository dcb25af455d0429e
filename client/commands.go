package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/luma/gredis/protocol"
)

// ErrNil is returned by the typed helpers when the server replied with a
// null.
var ErrNil = errors.New("nil reply")

func as[T any](result interface{}, err error) (T, error) {
	var zero T

	if err != nil {
		return zero, err
	}

	if result == nil {
		return zero, ErrNil
	}

	t, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("%w: expected %T, callback returned %T", protocol.ErrProtocol, zero, result)
	}

	return t, nil
}

func withKeys(keys []string, rest ...interface{}) []interface{} {
	args := make([]interface{}, 0, len(keys)+len(rest))
	for _, key := range keys {
		args = append(args, key)
	}

	return append(args, rest...)
}

func (c *Client) Ping(ctx context.Context) (bool, error) {
	return as[bool](c.Do(ctx, protocol.PING.String()))
}

func (c *Client) Echo(ctx context.Context, message string) (string, error) {
	return as[string](c.Do(ctx, protocol.ECHO.String(), message))
}

// Set stores value at key. args are appended as is, e.g. "EX", 10.
func (c *Client) Set(ctx context.Context, key string, value interface{}, args ...interface{}) (bool, error) {
	return as[bool](c.Do(ctx, protocol.SET.String(), append([]interface{}{key, value}, args...)...))
}

// Get returns ErrNil when key does not exist.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return as[string](c.Do(ctx, protocol.GET.String(), key))
}

func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	return as[int64](c.Do(ctx, protocol.DEL.String(), withKeys(keys)...))
}

func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	return as[int64](c.Do(ctx, protocol.EXISTS.String(), withKeys(keys)...))
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return as[int64](c.Do(ctx, protocol.INCR.String(), key))
}

func (c *Client) LPush(ctx context.Context, key string, values ...interface{}) (int64, error) {
	return as[int64](c.Do(ctx, protocol.LPUSH.String(), append([]interface{}{key}, values...)...))
}

func (c *Client) RPush(ctx context.Context, key string, values ...interface{}) (int64, error) {
	return as[int64](c.Do(ctx, protocol.RPUSH.String(), append([]interface{}{key}, values...)...))
}

func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return as[[]string](c.Do(ctx, protocol.LRANGE.String(), key, start, stop))
}

// BLPop blocks for up to timeout, rounded up to whole seconds, waiting for
// one of keys to have an element. A zero timeout blocks forever. It returns
// the key and the popped element, or ErrNil on timeout.
//
// The socket timeout applies to the wait, so it must be longer than timeout.
func (c *Client) BLPop(ctx context.Context, timeout time.Duration, keys ...string) ([]string, error) {
	seconds := int64(math.Ceil(timeout.Seconds()))
	return as[[]string](c.Do(ctx, protocol.BLPOP.String(), withKeys(keys, seconds)...))
}

// Publish returns the number of subscribers that received message.
func (c *Client) Publish(ctx context.Context, channel string, message interface{}) (int64, error) {
	return as[int64](c.Do(ctx, protocol.PUBLISH.String(), channel, message))
}

func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	return as[[]string](c.Do(ctx, protocol.KEYS.String(), pattern))
}

func (c *Client) FlushDB(ctx context.Context) (bool, error) {
	return as[bool](c.Do(ctx, protocol.FLUSHDB.String()))
}
