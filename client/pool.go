package client

import (
	"context"
	"errors"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrPoolExhausted = errors.New("connection pool exhausted")
	ErrPoolClosed    = errors.New("connection pool closed")
)

// Pool hands out Conns for commands. Every Get must be paired with either
// Put, when the Conn can be reused, or Remove, when it must be discarded.
type Pool interface {
	Get(ctx context.Context, commandName, shardHint string) (*Conn, error)
	Put(c *Conn)
	Remove(c *Conn)
	Close() error
}

// ConnectionPool is a basic Pool. Conns are created lazily and connect on
// first use.
type ConnectionPool struct {
	options Options

	mu     sync.Mutex
	idle   []*Conn
	inUse  map[*Conn]struct{}
	closed bool

	metrics *metrics
	log     *zap.Logger
}

func NewConnectionPool(options Options) (*ConnectionPool, error) {
	options = options.withDefaults()

	// Fail on a bad encoding now rather than at the first Get
	if _, err := NewConn(options); err != nil {
		return nil, err
	}

	return &ConnectionPool{
		options: options,
		inUse:   make(map[*Conn]struct{}),
		metrics: newMetrics(options.Registerer),
		log:     options.Log.Named("pool").With(zap.String("addr", options.Addr())),
	}, nil
}

// Get implements Pool. Selecting a Conn and marking it checked out happen
// under one lock.
func (p *ConnectionPool) Get(_ context.Context, _, _ string) (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	var conn *Conn

	if n := len(p.idle); n > 0 {
		conn = p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.metrics.poolAdd(poolIdle, -1)
	} else {
		if p.options.MaxConnections > 0 && len(p.inUse) >= p.options.MaxConnections {
			return nil, ErrPoolExhausted
		}

		var err error
		conn, err = NewConn(p.options)
		if err != nil {
			return nil, err
		}

		p.log.Debug("Created connection", zap.Int("inUse", len(p.inUse)+1))
	}

	p.inUse[conn] = struct{}{}
	p.metrics.poolAdd(poolInUse, 1)

	return conn, nil
}

// Put implements Pool.
func (p *ConnectionPool) Put(conn *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.release(conn) {
		return
	}

	if p.closed {
		conn.Disconnect()
		return
	}

	p.idle = append(p.idle, conn)
	p.metrics.poolAdd(poolIdle, 1)
}

// Remove implements Pool. The Conn is disconnected and forgotten.
func (p *ConnectionPool) Remove(conn *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.release(conn) {
		return
	}

	if err := conn.Disconnect(); err != nil {
		p.log.Warn("Connection did not close cleanly", zap.Error(err))
	}
}

func (p *ConnectionPool) release(conn *Conn) bool {
	if _, ok := p.inUse[conn]; !ok {
		p.log.Warn("Released a connection this pool does not own")
		return false
	}

	delete(p.inUse, conn)
	p.metrics.poolAdd(poolInUse, -1)

	return true
}

// Stats returns the number of idle and checked out Conns.
func (p *ConnectionPool) Stats() (idle, inUse int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.idle), len(p.inUse)
}

// Close disconnects idle Conns. Conns still checked out are disconnected as
// they come back.
func (p *ConnectionPool) Close() (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	for _, conn := range p.idle {
		err = multierr.Append(err, conn.Disconnect())
	}

	p.metrics.poolAdd(poolIdle, -float64(len(p.idle)))
	p.idle = nil

	return err
}

var _ Pool = (*ConnectionPool)(nil)

// ShardedPool routes commands over several pools by shard hint. Commands
// without a hint go to the first pool.
type ShardedPool struct {
	pools []Pool

	mu     sync.Mutex
	owners map[*Conn]Pool
}

func NewShardedPool(pools ...Pool) *ShardedPool {
	return &ShardedPool{
		pools:  pools,
		owners: make(map[*Conn]Pool),
	}
}

// NewShardedConnectionPool creates one ConnectionPool per options.
func NewShardedConnectionPool(options ...Options) (*ShardedPool, error) {
	pools := make([]Pool, 0, len(options))

	for _, o := range options {
		pool, err := NewConnectionPool(o)
		if err != nil {
			return nil, multierr.Append(err, NewShardedPool(pools...).Close())
		}

		pools = append(pools, pool)
	}

	return NewShardedPool(pools...), nil
}

func (s *ShardedPool) shard(hint string) Pool {
	if hint == "" || len(s.pools) == 1 {
		return s.pools[0]
	}

	return s.pools[xxhash.Sum64String(hint)%uint64(len(s.pools))]
}

// Get implements Pool.
func (s *ShardedPool) Get(ctx context.Context, commandName, shardHint string) (*Conn, error) {
	if len(s.pools) == 0 {
		return nil, ErrPoolClosed
	}

	pool := s.shard(shardHint)

	conn, err := pool.Get(ctx, commandName, shardHint)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.owners[conn] = pool
	s.mu.Unlock()

	return conn, nil
}

func (s *ShardedPool) owner(conn *Conn) Pool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool := s.owners[conn]
	delete(s.owners, conn)

	return pool
}

// Put implements Pool.
func (s *ShardedPool) Put(conn *Conn) {
	if pool := s.owner(conn); pool != nil {
		pool.Put(conn)
	}
}

// Remove implements Pool.
func (s *ShardedPool) Remove(conn *Conn) {
	if pool := s.owner(conn); pool != nil {
		pool.Remove(conn)
	}
}

// Close implements Pool.
func (s *ShardedPool) Close() (err error) {
	for _, pool := range s.pools {
		err = multierr.Append(err, pool.Close())
	}

	return err
}

var _ Pool = (*ShardedPool)(nil)
