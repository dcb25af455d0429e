package redistest

import (
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/luma/gredis/protocol"
)

var errConnClosed = errors.New("connection closed")

// Conn is one client connection. Requests are handled by a read loop and
// replies, including published messages, are written by a write loop.
type Conn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup

	server *Server
	conn   net.Conn

	writeQueue chan []byte

	// Only touched by the read loop
	db            int
	authenticated bool

	subMu    sync.Mutex
	channels map[string]struct{}
	patterns map[string]struct{}

	log *zap.Logger
}

func newConn(parentCtx context.Context, server *Server, conn net.Conn, log *zap.Logger) *Conn {
	ctx, cancel := context.WithCancel(parentCtx)

	return &Conn{
		ctx:           ctx,
		cancel:        cancel,
		server:        server,
		conn:          conn,
		writeQueue:    make(chan []byte, 127),
		authenticated: server.password == "",
		channels:      make(map[string]struct{}),
		patterns:      make(map[string]struct{}),
		log:           log.With(zap.String("remote", conn.RemoteAddr().String())),
	}
}

// Close stops both loops and closes the socket without waiting.
func (c *Conn) Close() {
	c.cancel()
	c.conn.Close()
}

// Start runs the read and write loops until the connection ends.
func (c *Conn) Start() {
	c.loopWaiter.Add(2)

	go func() {
		defer c.loopWaiter.Done()
		c.ReadLoop()
	}()

	go func() {
		defer c.loopWaiter.Done()
		c.WriteLoop()
	}()

	c.loopWaiter.Wait()
	c.conn.Close()
}

func (c *Conn) ReadLoop() {
	log := c.log.Named("readLoop")

	defer func() {
		// Tell the write loop to finish once the queued replies are out
		c.enqueue(nil)
		log.Debug("Read loop exited")
	}()

	decoder, err := protocol.NewDecoder("")
	if err != nil {
		log.Error("Failed to create decoder", zap.Error(err))
		return
	}

	buf := protocol.NewBuffer(c.conn, 0)

	for {
		req, err := protocol.ReadRequest(decoder, buf)
		if err != nil {
			if !errors.Is(err, protocol.ErrConnectionClosed) && c.ctx.Err() == nil {
				log.Warn("Failed to read client request", zap.Error(err))
				c.enqueue(protocol.AppendValue(nil, protocol.ErrorValue("ERR Protocol error: "+err.Error())))
			}
			return
		}

		if f, ok := c.server.record(req); ok {
			switch f.kind {
			case faultStall:
				log.Debug("Stalling", zap.Stringer("request", req))
				continue

			case faultDrop:
				log.Debug("Dropping connection", zap.Stringer("request", req))
				c.Close()
				return
			}
		}

		reply, quit := c.dispatch(req)
		for _, v := range reply {
			if err := c.enqueue(protocol.AppendValue(nil, v)); err != nil {
				return
			}
		}

		if quit {
			log.Debug("Client QUIT, exiting...")
			return
		}
	}
}

func (c *Conn) WriteLoop() {
	log := c.log.Named("writeLoop")

	for {
		select {
		case <-c.ctx.Done():
			return

		case data := <-c.writeQueue:
			if data == nil {
				// Our read loop has terminated, we should too
				c.Close()
				return
			}

			if _, err := c.conn.Write(data); err != nil {
				log.Warn("Failed to write from write queue", zap.Error(err))
				c.Close()
				return
			}
		}
	}
}

// enqueue hands data to the write loop. A nil data ends the write loop.
func (c *Conn) enqueue(data []byte) error {
	select {
	case <-c.ctx.Done():
		return errConnClosed

	case c.writeQueue <- data:
		return nil
	}
}

// deliveries returns the frames this connection should receive for a
// message published on channel.
func (c *Conn) deliveries(channel string, message []byte) []protocol.Value {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	var frames []protocol.Value

	if _, ok := c.channels[channel]; ok {
		frames = append(frames, protocol.List(
			protocol.BulkText("message"),
			protocol.BulkText(channel),
			protocol.Bulk(message),
		))
	}

	for pattern := range c.patterns {
		if matches(pattern, channel) {
			frames = append(frames, protocol.List(
				protocol.BulkText("pmessage"),
				protocol.BulkText(pattern),
				protocol.BulkText(channel),
				protocol.Bulk(message),
			))
		}
	}

	return frames
}
