//go:build linux

package transport

import (
	"errors"
	"net"
	"syscall"
	"time"
)

// Poller waits for a socket to become readable using a dedicated epoll
// instance, without reading from it.
type Poller struct {
	fd     int
	sockFd int
}

func MakePoller(conn *net.TCPConn) (*Poller, error) {
	var (
		poller Poller
		err    error
	)

	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, err
	}

	// Open an epoll fd
	// https://man7.org/linux/man-pages/man2/epoll_create.2.html
	poller.fd, err = syscall.EpollCreate1(syscall.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	// Register our interest in reads (and the peer hanging up) on the socket
	// https://man7.org/linux/man-pages/man2/epoll_ctl.2.html
	var ctlErr error
	err = raw.Control(func(fd uintptr) {
		poller.sockFd = int(fd)
		event := &syscall.EpollEvent{
			Fd:     int32(fd),
			Events: syscall.EPOLLIN | syscall.EPOLLRDHUP,
		}
		ctlErr = syscall.EpollCtl(poller.fd, syscall.EPOLL_CTL_ADD, int(fd), event)
	})

	if err == nil {
		err = ctlErr
	}

	if err != nil {
		syscall.Close(poller.fd)
		return nil, err
	}

	return &poller, nil
}

// Wait blocks for up to timeout until the socket is readable. A negative
// timeout waits forever.
func (p *Poller) Wait(timeout time.Duration) (bool, error) {
	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}

	events := make([]syscall.EpollEvent, 1)

	for {
		n, err := syscall.EpollWait(p.fd, events, msec)
		if errors.Is(err, syscall.EINTR) {
			continue
		}

		if err != nil {
			return false, err
		}

		return n > 0, nil
	}
}

// Drain is a no-op, epoll never takes bytes off the socket.
func (p *Poller) Drain(_ []byte) int {
	return 0
}

func (p *Poller) Close() error {
	return syscall.Close(p.fd)
}
