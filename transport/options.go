package transport

import (
	"time"

	"go.uber.org/zap"
)

type Options struct {
	// ConnectTimeout bounds the TCP dial. Zero means no timeout
	ConnectTimeout time.Duration

	// SocketTimeout bounds every individual read and write. Zero means reads
	// and writes can block forever
	SocketTimeout time.Duration

	// KeepAlive enables TCP keepalives with the given period when non-zero
	KeepAlive time.Duration

	// ReadBuffer sets SO_RCVBUF on the socket when non-zero
	ReadBuffer int

	// Trace will dump packets to the logger at debug level. This is only
	// useful in local debugging
	Trace bool

	Log *zap.Logger
}
