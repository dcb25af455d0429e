// Package redistest runs an in-process RESP server for tests. It understands
// enough commands to exercise a client end to end, and can be told to stall
// or drop specific commands to provoke timeouts and disconnects.
package redistest

import (
	"context"
	"errors"
	"net"
	"path"
	"strconv"
	"sync"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/gredis/protocol"
)

type Options struct {
	// Addr defaults to an ephemeral port on 127.0.0.1
	Addr string

	// Password makes AUTH mandatory before any other command
	Password string

	// Databases is how many numbered databases SELECT accepts, 16 by default
	Databases int

	Log *zap.Logger
}

type Server struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr     string
	listener net.Listener

	password  string
	databases int

	store *Store

	mu          sync.Mutex
	activeConns map[*Conn]struct{}
	faults      map[protocol.Command]*fault
	received    []*protocol.Request

	log *zap.Logger
}

type faultKind int

const (
	faultStall faultKind = iota
	faultDrop
)

type fault struct {
	kind      faultKind
	remaining int
}

func NewServer(options Options) *Server {
	if options.Addr == "" {
		options.Addr = "127.0.0.1:0"
	}

	if options.Databases == 0 {
		options.Databases = 16
	}

	if options.Log == nil {
		options.Log = zap.NewNop()
	}

	return &Server{
		addr:        options.Addr,
		password:    options.Password,
		databases:   options.Databases,
		store:       NewStore(),
		activeConns: make(map[*Conn]struct{}),
		faults:      make(map[protocol.Command]*fault),
		log:         options.Log,
	}
}

// Start listens and returns once the server is accepting connections.
func (s *Server) Start(parentCtx context.Context) error {
	listener, err := reuseport.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parentCtx)
	s.cancel = cancel
	s.listener = listener
	s.addr = listener.Addr().String()

	s.log.Info("Listening", zap.String("addr", s.addr))

	s.stopWaiter.Add(1)
	go func() {
		defer s.stopWaiter.Done()

		if err := s.acceptLoop(ctx); err != nil {
			s.log.Error("Failed to accept", zap.Error(err))
		}
	}()

	return nil
}

func (s *Server) acceptLoop(ctx context.Context) error {
	var loopWaiter sync.WaitGroup
	defer loopWaiter.Wait()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				// The listener was closed while we were waiting for new connections
				// that's fine.
				return nil
			}

			return err
		}

		serverConn := newConn(ctx, s, conn, s.log.Named("conn"))
		s.addConn(serverConn)

		loopWaiter.Add(1)
		go func() {
			defer loopWaiter.Done()
			defer s.removeConn(serverConn)

			serverConn.Start()
		}()
	}
}

func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.addr)
	return host
}

func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.addr)
	n, _ := strconv.Atoi(port)
	return n
}

func (s *Server) Store() *Store {
	return s.store
}

// Close immediately closes the listener and every connection.
func (s *Server) Close() error {
	if s.cancel == nil {
		return nil
	}

	s.cancel()
	err := s.listener.Close()

	s.mu.Lock()
	for conn := range s.activeConns {
		conn.Close()
	}
	s.mu.Unlock()

	s.stopWaiter.Wait()

	if errors.Is(err, net.ErrClosed) {
		return nil
	}

	return err
}

// DisconnectAll closes every client connection but keeps listening.
func (s *Server) DisconnectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.activeConns {
		conn.Close()
	}
}

// StallNext makes the server read the next n commands called name without
// ever replying to them.
func (s *Server) StallNext(name string, n int) {
	s.setFault(name, faultStall, n)
}

// DropNext makes the server close the connection instead of replying to the
// next n commands called name.
func (s *Server) DropNext(name string, n int) {
	s.setFault(name, faultDrop, n)
}

func (s *Server) setFault(name string, kind faultKind, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.faults[protocol.CommandName(name)] = &fault{kind: kind, remaining: n}
}

// record stores req and returns the fault to apply to it, if any.
func (s *Server) record(req *protocol.Request) (*fault, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.received = append(s.received, req)

	f, ok := s.faults[req.Name]
	if !ok || f.remaining == 0 {
		return nil, false
	}

	f.remaining--
	return f, true
}

// Received returns every command read so far, in order.
func (s *Server) Received() []*protocol.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*protocol.Request, len(s.received))
	copy(out, s.received)
	return out
}

// Count returns how many commands called name were read.
func (s *Server) Count(name string) int {
	command := protocol.CommandName(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, req := range s.received {
		if req.Name == command {
			n++
		}
	}

	return n
}

// Reset forgets received commands and pending faults.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.received = nil
	s.faults = make(map[protocol.Command]*fault)
}

// Publish delivers message to every connection subscribed to channel,
// directly or through a pattern, and returns how many received it.
func (s *Server) Publish(channel string, message []byte) (receivers int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.activeConns {
		for _, frame := range conn.deliveries(channel, message) {
			if werr := conn.enqueue(protocol.AppendValue(nil, frame)); werr != nil {
				err = multierr.Append(err, werr)
				continue
			}

			receivers++
		}
	}

	return receivers, err
}

func (s *Server) addConn(conn *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeConns[conn] = struct{}{}
}

func (s *Server) removeConn(conn *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.activeConns, conn)
}

func matches(pattern, channel string) bool {
	ok, err := path.Match(pattern, channel)
	return err == nil && ok
}
