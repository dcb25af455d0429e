package redistest_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/luma/gredis/internal/redistest"
)

var _ = Describe("Server", func() {
	var (
		ctx    context.Context
		server *redistest.Server
		rdb    *redis.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = redistest.NewServer(redistest.Options{})
		Expect(server.Start(ctx)).To(Succeed())

		rdb = redis.NewClient(&redis.Options{
			Addr:        server.Addr(),
			Protocol:    2,
			ReadTimeout: 2 * time.Second,
		})
	})

	AfterEach(func() {
		rdb.Close()
		Expect(server.Close()).To(Succeed())
	})

	It("stores strings", func() {
		Expect(rdb.Set(ctx, "foo", "bar", 0).Err()).To(Succeed())
		Expect(rdb.Get(ctx, "foo").Val()).To(Equal("bar"))
		Expect(rdb.Get(ctx, "missing").Err()).To(Equal(redis.Nil))
		Expect(rdb.Incr(ctx, "n").Val()).To(Equal(int64(1)))
		Expect(rdb.Exists(ctx, "foo", "n", "missing").Val()).To(Equal(int64(2)))
		Expect(rdb.Del(ctx, "foo").Val()).To(Equal(int64(1)))
	})

	It("stores lists in insertion order", func() {
		Expect(rdb.RPush(ctx, "list", "a", "b", "c").Val()).To(Equal(int64(3)))
		Expect(rdb.LPush(ctx, "list", "z").Val()).To(Equal(int64(4)))
		Expect(rdb.LRange(ctx, "list", 0, -1).Val()).To(Equal([]string{"z", "a", "b", "c"}))
		Expect(rdb.LRange(ctx, "list", 1, 2).Val()).To(Equal([]string{"a", "b"}))
	})

	It("refuses string commands on lists", func() {
		Expect(rdb.RPush(ctx, "list", "a").Err()).To(Succeed())
		Expect(rdb.Get(ctx, "list").Err()).To(MatchError(ContainSubstring("WRONGTYPE")))
	})

	It("keeps databases apart", func() {
		other := redis.NewClient(&redis.Options{Addr: server.Addr(), Protocol: 2, DB: 3})
		defer other.Close()

		Expect(other.Set(ctx, "foo", "three", 0).Err()).To(Succeed())
		Expect(rdb.Get(ctx, "foo").Err()).To(Equal(redis.Nil))
		Expect(other.Get(ctx, "foo").Val()).To(Equal("three"))
	})

	It("wakes BLPOP when a list is pushed to", func() {
		done := make(chan []string, 1)
		go func() {
			defer GinkgoRecover()
			done <- rdb.BLPop(ctx, time.Second, "queue").Val()
		}()

		time.Sleep(50 * time.Millisecond)

		pusher := redis.NewClient(&redis.Options{Addr: server.Addr(), Protocol: 2})
		defer pusher.Close()
		Expect(pusher.RPush(ctx, "queue", "job").Err()).To(Succeed())

		Eventually(done).Should(Receive(Equal([]string{"queue", "job"})))
	})

	It("fans published messages out to subscribers", func() {
		sub := rdb.Subscribe(ctx, "news")
		defer sub.Close()

		_, err := sub.Receive(ctx)
		Expect(err).To(Succeed())

		n, err := server.Publish("news", []byte("hello"))
		Expect(err).To(Succeed())
		Expect(n).To(Equal(int64(1)))

		msg, err := sub.ReceiveMessage(ctx)
		Expect(err).To(Succeed())
		Expect(msg.Channel).To(Equal("news"))
		Expect(msg.Payload).To(Equal("hello"))
	})

	Describe("authentication", func() {
		It("refuses commands until AUTH succeeds", func() {
			secured := redistest.NewServer(redistest.Options{Password: "s3cret"})
			Expect(secured.Start(ctx)).To(Succeed())
			defer secured.Close()

			anonymous := redis.NewClient(&redis.Options{Addr: secured.Addr(), Protocol: 2})
			defer anonymous.Close()
			Expect(anonymous.Ping(ctx).Err()).To(MatchError(ContainSubstring("NOAUTH")))

			authed := redis.NewClient(&redis.Options{Addr: secured.Addr(), Protocol: 2, Password: "s3cret"})
			defer authed.Close()
			Expect(authed.Ping(ctx).Val()).To(Equal("PONG"))
		})
	})

	Describe("faults", func() {
		It("never replies to stalled commands", func() {
			server.StallNext("GET", 1)

			short := redis.NewClient(&redis.Options{
				Addr:        server.Addr(),
				Protocol:    2,
				ReadTimeout: 100 * time.Millisecond,
				MaxRetries:  -1,
			})
			defer short.Close()

			Expect(short.Get(ctx, "foo").Err()).To(HaveOccurred())
			Expect(short.Get(ctx, "foo").Err()).To(Equal(redis.Nil))
			Expect(server.Count("GET")).To(Equal(2))
		})

		It("drops the connection on dropped commands", func() {
			server.DropNext("PING", 1)

			Expect(rdb.Ping(ctx).Err()).To(HaveOccurred())
			Expect(server.Count("PING")).To(BeNumerically(">=", 1))
		})
	})
})
