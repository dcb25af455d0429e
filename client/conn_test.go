package client_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/gredis/client"
	"github.com/luma/gredis/internal/redistest"
	"github.com/luma/gredis/protocol"
)

var _ = Describe("Conn", func() {
	var (
		ctx    context.Context
		server *redistest.Server
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = startServer(redistest.Options{Password: "s3cret"})
	})

	AfterEach(func() {
		Expect(server.Close()).To(Succeed())
	})

	newConn := func(configure func(*client.Options)) *client.Conn {
		options := optionsFor(server)
		options.Password = "s3cret"
		if configure != nil {
			configure(&options)
		}

		conn, err := client.NewConn(options)
		Expect(err).To(Succeed())
		return conn
	}

	Describe("Connect()", func() {
		It("authenticates and selects the database", func() {
			conn := newConn(func(o *client.Options) { o.DB = 3 })
			defer conn.Disconnect()

			Expect(conn.State()).To(Equal(client.Disconnected))
			Expect(conn.Connect(ctx)).To(Succeed())
			Expect(conn.State()).To(Equal(client.Connected))

			received := server.Received()
			Expect(received).To(HaveLen(2))
			Expect(received[0].String()).To(Equal("AUTH s3cret"))
			Expect(received[1].String()).To(Equal("SELECT 3"))
		})

		It("is a no-op when already connected", func() {
			conn := newConn(nil)
			defer conn.Disconnect()

			Expect(conn.Connect(ctx)).To(Succeed())
			Expect(conn.Connect(ctx)).To(Succeed())
			Expect(server.Count("AUTH")).To(Equal(1))
		})

		It("fails with ErrAuthentication on a wrong password", func() {
			conn := newConn(func(o *client.Options) { o.Password = "wrong" })

			err := conn.Connect(ctx)
			Expect(errors.Is(err, protocol.ErrAuthentication)).To(BeTrue())
			Expect(conn.State()).To(Equal(client.Disconnected))
		})

		It("fails with ErrInvalidDatabase when SELECT is refused", func() {
			conn := newConn(func(o *client.Options) { o.DB = 99 })

			err := conn.Connect(ctx)
			Expect(errors.Is(err, protocol.ErrInvalidDatabase)).To(BeTrue())
			Expect(conn.State()).To(Equal(client.Disconnected))
		})

		It("fails with ErrConnection when nothing is listening", func() {
			conn := newConn(func(o *client.Options) {
				o.Port = 1
				o.ConnectTimeout = time.Second
			})

			Expect(errors.Is(conn.Connect(ctx), protocol.ErrConnection)).To(BeTrue())
		})

		It("runs connect hooks after the handshake", func() {
			conn := newConn(nil)
			defer conn.Disconnect()

			var states []client.State
			conn.OnConnect(func(_ context.Context, c *client.Conn) error {
				states = append(states, c.State())
				return nil
			})

			Expect(conn.Connect(ctx)).To(Succeed())
			Expect(states).To(Equal([]client.State{client.Connected}))
		})
	})

	Describe("Do()", func() {
		It("connects on first use", func() {
			conn := newConn(nil)
			defer conn.Disconnect()

			v, err := conn.Do(ctx, "PING")
			Expect(err).To(Succeed())
			Expect(v).To(Equal(protocol.Simple("PONG")))
		})

		It("returns server errors without disconnecting", func() {
			conn := newConn(nil)
			defer conn.Disconnect()

			_, err := conn.Do(ctx, "RPUSH", "list", "a")
			Expect(err).To(Succeed())

			v, err := conn.Do(ctx, "GET", "list")
			var respErr *protocol.ResponseError
			Expect(errors.As(err, &respErr)).To(BeTrue())
			Expect(respErr.Kind).To(Equal("WRONGTYPE"))
			Expect(v.Kind).To(Equal(protocol.Error))
			Expect(conn.State()).To(Equal(client.Connected))

			_, err = conn.Do(ctx, "PING")
			Expect(err).To(Succeed())
		})

		It("disconnects on a read timeout", func() {
			conn := newConn(func(o *client.Options) { o.SocketTimeout = 100 * time.Millisecond })
			server.StallNext("GET", 1)

			_, err := conn.Do(ctx, "GET", "foo")
			Expect(errors.Is(err, protocol.ErrTimeout)).To(BeTrue())
			Expect(conn.State()).To(Equal(client.Disconnected))
		})

		It("disconnects when the server hangs up mid command", func() {
			conn := newConn(nil)
			server.DropNext("GET", 1)

			_, err := conn.Do(ctx, "GET", "foo")
			Expect(errors.Is(err, protocol.ErrConnectionClosed)).To(BeTrue())
			Expect(conn.State()).To(Equal(client.Disconnected))
		})

		It("disconnects before returning when the context is cancelled", func() {
			conn := newConn(nil)
			server.StallNext("GET", 1)

			cancelCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()

			_, err := conn.Do(cancelCtx, "GET", "foo")
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(conn.State()).To(Equal(client.Disconnected))

			// The next command starts on a fresh connection
			v, err := conn.Do(ctx, "ECHO", "again")
			Expect(err).To(Succeed())
			Expect(v.Text()).To(Equal("again"))
			Expect(server.Count("AUTH")).To(Equal(2))
		})

		It("rejects arguments the encoder can't convert", func() {
			conn := newConn(nil)

			_, err := conn.Do(ctx, "SET", "key", struct{}{})
			Expect(err).To(HaveOccurred())
			Expect(server.Count("SET")).To(Equal(0))
		})
	})

	Describe("ReadResponse()", func() {
		It("fails when disconnected", func() {
			conn := newConn(nil)

			_, err := conn.ReadResponse(ctx)
			Expect(errors.Is(err, protocol.ErrConnectionClosed)).To(BeTrue())
		})
	})

	Describe("CanRead()", func() {
		It("is true only once a whole reply is available", func() {
			conn := newConn(nil)
			defer conn.Disconnect()

			Expect(conn.Connect(ctx)).To(Succeed())

			ready, err := conn.CanRead(ctx, 0)
			Expect(err).To(Succeed())
			Expect(ready).To(BeFalse())

			Expect(conn.SendCommand(ctx, "PING")).To(Succeed())

			Eventually(func() (bool, error) {
				return conn.CanRead(ctx, 50*time.Millisecond)
			}).Should(BeTrue())

			v, err := conn.ReadResponse(ctx)
			Expect(err).To(Succeed())
			Expect(v.Text()).To(Equal("PONG"))
		})
	})

	Describe("Disconnect()", func() {
		It("can be called twice", func() {
			conn := newConn(nil)
			Expect(conn.Connect(ctx)).To(Succeed())

			Expect(conn.Disconnect()).To(Succeed())
			Expect(conn.State()).To(Equal(client.Disconnected))

			Expect(conn.Disconnect()).To(Succeed())
			Expect(conn.State()).To(Equal(client.Disconnected))
		})

		It("is a no-op on a connection that never connected", func() {
			conn := newConn(nil)
			Expect(conn.Disconnect()).To(Succeed())
		})
	})

	Describe("NewConn()", func() {
		It("rejects unknown encodings", func() {
			_, err := client.NewConn(client.Options{Encoding: "klingon"})
			Expect(err).To(HaveOccurred())
		})
	})
})
