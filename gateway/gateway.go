// Package gateway exposes a Client over HTTP.
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	reuseport "github.com/kavu/go_reuseport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/luma/gredis/client"
	"github.com/luma/gredis/internal/meta"
	"github.com/luma/gredis/protocol"
)

type Options struct {
	// The address to listen for http requests on
	Addr string

	Client *client.Client

	// Gatherer is served on /metrics, the route is left out when it's nil
	Gatherer prometheus.Gatherer

	DebugHTTP bool

	Log *zap.Logger
}

type Server struct {
	addr   string
	client *client.Client
	router *gin.Engine
	http   *http.Server

	stopWaiter sync.WaitGroup

	log *zap.Logger
}

func NewServer(options Options) *Server {
	if options.Log == nil {
		options.Log = zap.NewNop()
	}

	s := &Server{
		addr:   options.Addr,
		client: options.Client,
		log:    options.Log,
	}

	s.router = setupRouter(options.DebugHTTP, options.Log)

	// Ping test
	s.router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	v1 := s.router.Group("/v1")
	v1.POST("/commands", s.execute)
	v1.GET("/keys/:key", s.getKey)

	if options.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(options.Gatherer, promhttp.HandlerOpts{})))
	}

	s.http = &http.Server{Handler: s.router}

	return s
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Logs all requests, like a combined access and error log, RFC3339 in UTC.
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping", "/metrics"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	r.Use(func(c *gin.Context) {
		c.Header("Server", meta.UserAgent())
	})

	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	listener, err := reuseport.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.addr = listener.Addr().String()
	// In-flight requests outlive ctx, Shutdown decides when they stop
	s.http.BaseContext = func(net.Listener) context.Context {
		return context.WithoutCancel(ctx)
	}

	s.log.Info("Listening", zap.String("addr", s.addr))

	s.stopWaiter.Add(1)
	go func() {
		defer s.stopWaiter.Done()

		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Http server errored", zap.Error(err))
		}
	}()

	return nil
}

func (s *Server) Addr() string {
	return s.addr
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.http.SetKeepAlivesEnabled(false)

	err := s.http.Shutdown(ctx)
	s.stopWaiter.Wait()

	return err
}

func (s *Server) execute(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		s.fail(c, err)
		return
	}

	cmd, err := ParseCommand(body)
	if err != nil {
		s.fail(c, err)
		return
	}

	result, err := s.client.Execute(c.Request.Context(), cmd)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.respond(c, result)
}

func (s *Server) getKey(c *gin.Context) {
	value, err := s.client.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		s.fail(c, err)
		return
	}

	s.respond(c, value)
}

func (s *Server) respond(c *gin.Context, result interface{}) {
	body, err := Render(result)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.Data(http.StatusOK, gin.MIMEJSON, body)
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}

	c.Data(status, gin.MIMEJSON, RenderError(err))
}

func statusFor(err error) int {
	var respErr *protocol.ResponseError

	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, client.ErrSubscribeCommand):
		return http.StatusBadRequest

	case errors.Is(err, client.ErrNil):
		return http.StatusNotFound

	case errors.As(err, &respErr) && !respErr.IsConnectionError():
		return http.StatusUnprocessableEntity

	case errors.Is(err, client.ErrPoolExhausted):
		return http.StatusServiceUnavailable

	case errors.Is(err, protocol.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	case errors.Is(err, protocol.ErrTransport),
		errors.Is(err, protocol.ErrConnection),
		errors.Is(err, protocol.ErrProtocol),
		errors.Is(err, protocol.ErrAuthentication),
		errors.Is(err, protocol.ErrInvalidDatabase):
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}
