//go:build !linux

package transport

import (
	"net"
)

type Poller = ProbePoller

func MakePoller(conn *net.TCPConn) (*Poller, error) {
	return NewProbePoller(conn), nil
}
