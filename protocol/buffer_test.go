package protocol_test

import (
	"errors"
	"io"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/gredis/protocol"
)

var _ = Describe("Buffer", func() {
	Describe("ReadLine()", func() {
		It("returns the line without the CRLF", func() {
			buf := protocol.NewBuffer(strings.NewReader("+OK\r\n"), 0)

			line, err := buf.ReadLine()
			Expect(err).To(Succeed())
			Expect(string(line)).To(Equal("+OK"))
		})

		It("keeps pulling until a line is complete", func() {
			src := newChunkReader("+hello world\r\n", 1)
			buf := protocol.NewBuffer(src, 16)

			line, err := buf.ReadLine()
			Expect(err).To(Succeed())
			Expect(string(line)).To(Equal("+hello world"))
			Expect(src.reads).To(Equal(len("+hello world\r\n")))
		})

		It("finds a CRLF split across two reads", func() {
			buf := protocol.NewBuffer(newChunkReader("+a\r\n", 3), 16)

			line, err := buf.ReadLine()
			Expect(err).To(Succeed())
			Expect(string(line)).To(Equal("+a"))
		})

		It("returns lines one at a time from a single read", func() {
			buf := protocol.NewBuffer(strings.NewReader(":1\r\n:2\r\n"), 0)

			first, err := buf.ReadLine()
			Expect(err).To(Succeed())
			Expect(string(first)).To(Equal(":1"))

			second, err := buf.ReadLine()
			Expect(err).To(Succeed())
			Expect(string(second)).To(Equal(":2"))
		})

		It("fails with ErrConnectionClosed when the source ends", func() {
			buf := protocol.NewBuffer(strings.NewReader("+partial"), 0)

			_, err := buf.ReadLine()
			Expect(errors.Is(err, protocol.ErrConnectionClosed)).To(BeTrue())
			Expect(errors.Is(err, protocol.ErrTransport)).To(BeTrue())
			Expect(errors.Is(err, io.EOF)).To(BeTrue())
		})
	})

	Describe("ReadExact()", func() {
		It("returns the payload without the trailing CRLF", func() {
			buf := protocol.NewBuffer(newChunkReader("hello\r\n", 2), 4)

			payload, err := buf.ReadExact(5)
			Expect(err).To(Succeed())
			Expect(string(payload)).To(Equal("hello"))
			Expect(buf.Len()).To(Equal(0))
		})

		It("is binary safe", func() {
			buf := protocol.NewBuffer(strings.NewReader("a\r\nb\r\n"), 0)

			payload, err := buf.ReadExact(4)
			Expect(err).To(Succeed())
			Expect(string(payload)).To(Equal("a\r\nb"))
		})

		It("rejects a payload that is not followed by CRLF", func() {
			buf := protocol.NewBuffer(strings.NewReader("helloXX"), 0)

			_, err := buf.ReadExact(5)
			Expect(errors.Is(err, protocol.ErrProtocol)).To(BeTrue())
		})
	})

	Describe("purging", func() {
		It("resets both cursors once everything buffered has been read", func() {
			buf := protocol.NewBuffer(strings.NewReader("+OK\r\n+OK\r\n"), 0)

			_, err := buf.ReadLine()
			Expect(err).To(Succeed())

			read, written := buf.Cursors()
			Expect(read).To(Equal(4))
			Expect(written).To(Equal(10))

			_, err = buf.ReadLine()
			Expect(err).To(Succeed())

			read, written = buf.Cursors()
			Expect(read).To(Equal(0))
			Expect(written).To(Equal(0))
		})

		It("does not grow across many sequential replies", func() {
			reply := "$5\r\nhello\r\n"
			src := newChunkReader(strings.Repeat(reply, 1000), len(reply))
			buf := protocol.NewBuffer(src, len(reply))
			decoder, err := protocol.NewDecoder("")
			Expect(err).To(Succeed())

			for i := 0; i < 1000; i++ {
				v, err := decoder.Decode(buf)
				Expect(err).To(Succeed())
				Expect(string(v.Data)).To(Equal("hello"))
			}

			Expect(buf.Cap()).To(BeNumerically("<=", 2*len(reply)))
		})
	})

	Describe("transport failures", func() {
		It("maps deadline errors to ErrTimeout without moving the cursors", func() {
			buf := protocol.NewBuffer(&stallReader{data: []byte("$5\r\nhel")}, 0)

			line, err := buf.ReadLine()
			Expect(err).To(Succeed())
			Expect(string(line)).To(Equal("$5"))

			readBefore, writtenBefore := buf.Cursors()

			_, err = buf.ReadExact(5)
			Expect(errors.Is(err, protocol.ErrTimeout)).To(BeTrue())

			read, written := buf.Cursors()
			Expect(read).To(Equal(readBefore))
			Expect(written).To(Equal(writtenBefore))
			Expect(string(buf.Buffered())).To(Equal("hel"))
		})

		It("fails with ErrConnectionClosed once closed", func() {
			buf := protocol.NewBuffer(strings.NewReader("+OK\r\n"), 0)
			buf.Close()

			_, err := buf.ReadLine()
			Expect(errors.Is(err, protocol.ErrConnectionClosed)).To(BeTrue())
		})
	})
})
