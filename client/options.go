package client

import (
	"net"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luma/gredis/protocol"
	"github.com/luma/gredis/transport"
)

const (
	DefaultHost = "localhost"
	DefaultPort = 6379
)

type Options struct {
	Host     string
	Port     int
	DB       int
	Password string

	// SocketTimeout bounds every read and write on an established connection.
	// Zero means no timeout
	SocketTimeout time.Duration

	// ConnectTimeout bounds the TCP dial. Zero means no timeout
	ConnectTimeout time.Duration

	KeepAlive time.Duration

	// RetryOnTimeout allows a command that failed with a timeout or a
	// transport error to be sent once more on a fresh connection
	RetryOnTimeout bool

	// ReadSize is how many bytes are pulled from the socket per read. It is
	// also used as the socket receive buffer size
	ReadSize int

	// Encoding converts string payloads from the named charset to UTF-8. Empty
	// means payloads are returned as raw bytes
	Encoding string

	// MaxConnections caps the connections a pool will open. Zero means no cap
	MaxConnections int

	Encoder   protocol.CommandEncoder
	Dialer    transport.Dialer
	Callbacks *Callbacks

	// Registerer receives the client metrics. Nil disables metrics
	Registerer prometheus.Registerer

	Log *zap.Logger
}

// Addr returns the host:port the client connects to.
func (o Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

func (o Options) withDefaults() Options {
	if o.Host == "" {
		o.Host = DefaultHost
	}

	if o.Port == 0 {
		o.Port = DefaultPort
	}

	if o.ReadSize <= 0 {
		o.ReadSize = protocol.DefaultReadSize
	}

	if o.Encoder == nil {
		o.Encoder = protocol.MultiBulkEncoder{}
	}

	if o.Callbacks == nil {
		o.Callbacks = DefaultCallbacks()
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	if o.Dialer == nil {
		o.Dialer = transport.NewTCPDialer(transport.Options{
			ConnectTimeout: o.ConnectTimeout,
			SocketTimeout:  o.SocketTimeout,
			KeepAlive:      o.KeepAlive,
			ReadBuffer:     o.ReadSize,
			Log:            o.Log.Named("transport"),
		})
	}

	return o
}
