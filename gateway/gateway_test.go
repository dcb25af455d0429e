package gateway_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luma/gredis/client"
	"github.com/luma/gredis/gateway"
	"github.com/luma/gredis/internal/redistest"
)

var _ = Describe("Server", func() {
	var (
		ctx     context.Context
		backend *redistest.Server
		c       *client.Client
		server  *gateway.Server
	)

	BeforeEach(func() {
		ctx = context.Background()

		backend = redistest.NewServer(redistest.Options{})
		Expect(backend.Start(ctx)).To(Succeed())

		registry := prometheus.NewRegistry()

		var err error
		c, err = client.New(client.Options{
			Host:          backend.Host(),
			Port:          backend.Port(),
			SocketTimeout: time.Second,
			Registerer:    registry,
		})
		Expect(err).To(Succeed())

		server = gateway.NewServer(gateway.Options{
			Addr:     "127.0.0.1:0",
			Client:   c,
			Gatherer: registry,
		})
	})

	AfterEach(func() {
		Expect(c.Close()).To(Succeed())
		Expect(backend.Close()).To(Succeed())
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		return rec
	}

	It("answers pings", func() {
		rec := do(http.MethodGet, "/ping", "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(Equal("pong"))
		Expect(rec.Header().Get("Server")).To(HavePrefix("gredis/"))
		Expect(rec.Header().Get("Server")).To(ContainSubstring("RESP2"))
	})

	It("executes commands", func() {
		rec := do(http.MethodPost, "/v1/commands", `{"command": "SET", "args": ["greeting", "hello"]}`)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(MatchJSON(`{"result": true}`))

		rec = do(http.MethodPost, "/v1/commands", `{"command": "rpush", "args": ["list", 1, 2]}`)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(MatchJSON(`{"result": 2}`))

		rec = do(http.MethodPost, "/v1/commands", `{"command": "LRANGE", "args": ["list", 0, -1]}`)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(MatchJSON(`{"result": ["1", "2"]}`))

		Expect(backend.Store().Get(0, "greeting")).To(Equal([]byte("hello")))
	})

	It("reads keys", func() {
		backend.Store().Set(0, "greeting", []byte("hello"))

		rec := do(http.MethodGet, "/v1/keys/greeting", "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(MatchJSON(`{"result": "hello"}`))

		rec = do(http.MethodGet, "/v1/keys/missing", "")
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("maps failures onto status codes", func() {
		rec := do(http.MethodPost, "/v1/commands", `{"args": []}`)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))

		rec = do(http.MethodPost, "/v1/commands", `{"command": "SUBSCRIBE", "args": ["news"]}`)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(backend.Count("SUBSCRIBE")).To(Equal(0))

		rec = do(http.MethodPost, "/v1/commands", `{"command": "NOPE"}`)
		Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
		Expect(rec.Body.String()).To(ContainSubstring(`"kind":"ERR"`))

		backend.StallNext("GET", 2)
		rec = do(http.MethodGet, "/v1/keys/slow", "")
		Expect(rec.Code).To(Equal(http.StatusGatewayTimeout))
	})

	It("serves metrics", func() {
		do(http.MethodPost, "/v1/commands", `{"command": "PING"}`)

		rec := do(http.MethodGet, "/metrics", "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`gredis_commands_total{command="PING",status="ok"} 1`))
	})

	It("listens on a real socket", func() {
		Expect(server.Start(ctx)).To(Succeed())
		defer func() {
			Expect(server.Shutdown(ctx)).To(Succeed())
		}()

		resp, err := http.Get("http://" + server.Addr() + "/ping")
		Expect(err).To(Succeed())
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		Expect(err).To(Succeed())
		Expect(string(body)).To(Equal("pong"))
	})
})
