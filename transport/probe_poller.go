package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// minPoll is the shortest read deadline used to probe the socket, a deadline
// already in the past fails without looking at the socket at all.
const minPoll = time.Millisecond

// ProbePoller probes a socket for readability with a short deadline read.
// Bytes taken off the socket while probing are held until the next Drain.
// It works on any platform and backs Poller where epoll isn't available.
type ProbePoller struct {
	conn    *net.TCPConn
	pending []byte
	eof     bool
}

func NewProbePoller(conn *net.TCPConn) *ProbePoller {
	return &ProbePoller{conn: conn}
}

func (p *ProbePoller) Wait(timeout time.Duration) (bool, error) {
	if len(p.pending) > 0 || p.eof {
		return true, nil
	}

	deadline := time.Time{}
	if timeout >= 0 {
		if timeout < minPoll {
			timeout = minPoll
		}
		deadline = time.Now().Add(timeout)
	}

	if err := p.conn.SetReadDeadline(deadline); err != nil {
		return false, err
	}

	probe := make([]byte, 4096)
	n, err := p.conn.Read(probe)
	p.pending = probe[:n]

	switch {
	case n > 0:
		return true, nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return false, nil
	case errors.Is(err, io.EOF):
		p.eof = true
		return true, nil
	}

	return false, err
}

func (p *ProbePoller) Drain(dst []byte) int {
	n := copy(dst, p.pending)
	p.pending = p.pending[n:]
	return n
}

func (p *ProbePoller) Close() error {
	return nil
}
