package transport_test

import (
	"net"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/gredis/transport"
)

var _ = Describe("ProbePoller", func() {
	var (
		listener net.Listener
		client   *net.TCPConn
		server   net.Conn
		poller   *transport.ProbePoller
	)

	BeforeEach(func() {
		var err error
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		Expect(err).To(Succeed())

		accepted := make(chan net.Conn, 1)
		go func() {
			defer GinkgoRecover()

			conn, err := listener.Accept()
			Expect(err).To(Succeed())
			accepted <- conn
		}()

		conn, err := net.Dial("tcp", listener.Addr().String())
		Expect(err).To(Succeed())
		client = conn.(*net.TCPConn)

		Eventually(accepted).Should(Receive(&server))
		poller = transport.NewProbePoller(client)
	})

	AfterEach(func() {
		Expect(poller.Close()).To(Succeed())
		client.Close()
		server.Close()
		listener.Close()
	})

	It("reports nothing to read before the timeout", func() {
		start := time.Now()

		ready, err := poller.Wait(20 * time.Millisecond)
		Expect(err).To(Succeed())
		Expect(ready).To(BeFalse())
		Expect(time.Since(start)).To(BeNumerically(">=", 20*time.Millisecond))
	})

	It("still probes with a zero timeout", func() {
		ready, err := poller.Wait(0)
		Expect(err).To(Succeed())
		Expect(ready).To(BeFalse())
	})

	It("stashes probed bytes until they are drained", func() {
		_, err := server.Write([]byte("+OK\r\n"))
		Expect(err).To(Succeed())

		ready, err := poller.Wait(time.Second)
		Expect(err).To(Succeed())
		Expect(ready).To(BeTrue())

		// Still ready, the stash hasn't been drained
		ready, err = poller.Wait(0)
		Expect(err).To(Succeed())
		Expect(ready).To(BeTrue())

		dst := make([]byte, 3)
		Expect(poller.Drain(dst)).To(Equal(3))
		Expect(string(dst)).To(Equal("+OK"))

		Expect(poller.Drain(dst)).To(Equal(2))
		Expect(string(dst[:2])).To(Equal("\r\n"))

		Expect(poller.Drain(dst)).To(Equal(0))
	})

	It("is ready once the peer hangs up", func() {
		Expect(server.Close()).To(Succeed())

		ready, err := poller.Wait(time.Second)
		Expect(err).To(Succeed())
		Expect(ready).To(BeTrue())
		Expect(poller.Drain(make([]byte, 8))).To(Equal(0))
	})
})
