package protocol_test

import (
	"bytes"
	"strings"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/gredis/protocol"
)

var _ = Describe("Writer", func() {
	Describe("AppendCommand", func() {
		It("encodes a command as an array of bulk strings", func() {
			b, err := protocol.AppendCommand(nil, "SET", "key", []byte("value"))
			Expect(err).To(Succeed())
			Expect(string(b)).To(Equal("*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n"))
		})

		It("converts numbers, bools and nil", func() {
			b, err := protocol.AppendCommand(nil, "X", 12, int64(-3), uint8(7), 1.5, true, false, nil)
			Expect(err).To(Succeed())
			Expect(string(b)).To(Equal(
				"*8\r\n$1\r\nX\r\n$2\r\n12\r\n$2\r\n-3\r\n$1\r\n7\r\n$3\r\n1.5\r\n$1\r\n1\r\n$1\r\n0\r\n$0\r\n\r\n"))
		})

		It("uses String() for Stringers", func() {
			b, err := protocol.AppendCommand(nil, "EXPIRE", "k", 90*time.Second)
			Expect(err).To(Succeed())
			Expect(string(b)).To(HaveSuffix("$5\r\n1m30s\r\n"))
		})

		It("rejects unsupported argument types", func() {
			_, err := protocol.AppendCommand(nil, "SET", "key", struct{}{})
			Expect(err).To(MatchError(ContainSubstring("SET argument 2")))
		})

		It("round trips through the decoder", func() {
			b, err := protocol.MultiBulkEncoder{}.Encode("LPUSH", "list", "a", "b")
			Expect(err).To(Succeed())

			decoder, err := protocol.NewDecoder("")
			Expect(err).To(Succeed())

			req, err := protocol.ReadRequest(decoder, protocol.NewBuffer(bytes.NewReader(b), 0))
			Expect(err).To(Succeed())
			Expect(req.Name).To(Equal(protocol.LPUSH))
			Expect(req.Args).To(Equal([][]byte{[]byte("list"), []byte("a"), []byte("b")}))
			Expect(req.String()).To(Equal("LPUSH list a b"))
		})
	})

	Describe("WriteValue", func() {
		It("writes every kind of value", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteValue(w, protocol.List(
				protocol.Simple("OK"),
				protocol.ErrorValue("ERR nope"),
				protocol.Int(3),
				protocol.BulkText("hi"),
				protocol.NullBulk(),
				protocol.NullArray(),
				protocol.List(),
			))).To(Succeed())

			Expect(w.String()).To(Equal("*7\r\n+OK\r\n-ERR nope\r\n:3\r\n$2\r\nhi\r\n$-1\r\n*-1\r\n*0\r\n"))
		})

		It("writes what the decoder reads back", func() {
			original := protocol.List(protocol.BulkText("a"), protocol.List(protocol.Int(1), protocol.NullBulk()))

			w := bytes.NewBuffer([]byte{})
			Expect(protocol.WriteValue(w, original)).To(Succeed())

			decoded, err := decodeOne(w.String())
			Expect(err).To(Succeed())
			Expect(decoded).To(Equal(original))
		})
	})

	Describe("WriteOk", func() {
		It("ends in \r\n", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteOk(w)).To(Succeed())
			Expect(w.String()).To(HaveSuffix("\r\n"))
			Expect(w.String()).To(Equal("+OK\r\n"))
		})
	})

	Describe("WriteError", func() {
		It("include the error string", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteError(w, "ERR errMessage")).To(Succeed())
			Expect(w.String()).To(Equal("-ERR errMessage\r\n"))
		})
	})

	Describe("WriteBulk", func() {
		It("writes nil as a null bulk string", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteBulk(w, nil)).To(Succeed())
			Expect(protocol.WriteBulk(w, []byte{})).To(Succeed())
			Expect(w.String()).To(Equal("$-1\r\n$0\r\n\r\n"))
		})
	})

	Describe("WriteCommand", func() {
		It("writes the encoded command", func() {
			w := &strings.Builder{}

			Expect(protocol.WriteCommand(w, "GET", "missing")).To(Succeed())
			Expect(w.String()).To(Equal("*2\r\n$3\r\nGET\r\n$7\r\nmissing\r\n"))
		})
	})
})

var _ = Describe("FrameComplete()", func() {
	It("is false until the whole frame is buffered", func() {
		frame := "*2\r\n$5\r\nhello\r\n:1\r\n"

		for i := 0; i < len(frame); i++ {
			ok, err := protocol.FrameComplete([]byte(frame[:i]))
			Expect(err).To(Succeed())
			Expect(ok).To(BeFalse(), "prefix of %d bytes", i)
		}

		ok, err := protocol.FrameComplete([]byte(frame))
		Expect(err).To(Succeed())
		Expect(ok).To(BeTrue())
	})

	It("accepts null frames", func() {
		for _, frame := range []string{"$-1\r\n", "*-1\r\n", "*0\r\n"} {
			ok, err := protocol.FrameComplete([]byte(frame))
			Expect(err).To(Succeed())
			Expect(ok).To(BeTrue())
		}
	})

	It("reports corrupt frames", func() {
		_, err := protocol.FrameComplete([]byte("?\r\n"))
		Expect(err).To(HaveOccurred())
	})
})
