package client_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/gredis/client"
	"github.com/luma/gredis/internal/redistest"
)

var _ = Describe("blocking client", func() {
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

	It("carries over connection options", func() {
		options := optionsFor(server)
		options.Password = "s3cret"
		options.DB = 4
		options.SocketTimeout = 2 * time.Second
		options.ConnectTimeout = time.Second
		options.MaxConnections = 3
		options.ReadSize = 8192

		rdb := client.NewBlockingClient(options)
		defer rdb.Close()

		Expect(rdb.Options().Addr).To(Equal(server.Addr()))
		Expect(rdb.Options().DB).To(Equal(4))
		Expect(rdb.Options().Password).To(Equal("s3cret"))
		Expect(rdb.Options().ReadTimeout).To(Equal(2 * time.Second))
		Expect(rdb.Options().DialTimeout).To(Equal(time.Second))
		Expect(rdb.Options().PoolSize).To(Equal(3))

		Expect(rdb.Set(ctx, "shared", "value", 0).Err()).To(Succeed())

		c, err := client.New(options)
		Expect(err).To(Succeed())
		defer c.Close()

		Expect(c.Get(ctx, "shared")).To(Equal("value"))
	})

	It("runs pipelines on its own connections", func() {
		options := optionsFor(server)
		options.Password = "s3cret"

		c, err := client.New(options)
		Expect(err).To(Succeed())
		defer c.Close()

		Expect(c.ToBlocking()).To(BeIdenticalTo(c.ToBlocking()))

		pipe := c.Pipeline()
		incr := pipe.Incr(ctx, "counter")
		pipe.Incr(ctx, "counter")
		get := pipe.Get(ctx, "counter")

		_, err = pipe.Exec(ctx)
		Expect(err).To(Succeed())
		Expect(incr.Val()).To(Equal(int64(1)))
		Expect(get.Val()).To(Equal("2"))

		Expect(c.Get(ctx, "counter")).To(Equal("2"))
	})
})
