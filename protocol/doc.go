// Package protocol implements the client side of the Redis serialisation
// protocol (RESP): incremental framing of bytes arriving from a stream,
// decoding of frames into typed values, and encoding of commands.
//
// === General Syntax
//
// - lines are `\r\n` delimited
// - the first byte of a frame selects its type
// - lengths and counts are ASCII decimal, `-1` denotes null
//
// === Types
//
//   ```
//   +OK\r\n                      simple string
//   -ERR unknown command\r\n     error
//   :42\r\n                      integer
//   $5\r\nhello\r\n              bulk string
//   $-1\r\n                      null bulk string
//   *2\r\n$1\r\na\r\n:1\r\n      array, elements are frames themselves
//   *-1\r\n                      null array
//   ```
//
// A null bulk string and an empty bulk string (`$0\r\n\r\n`) are different
// things, as are a null array and an empty array (`*0\r\n`). Value keeps them
// apart with its Null flag.
//
// === Requests
//
// Clients send commands as an array of bulk strings, the first of which is
// the command name:
//
//   ```
//   > *3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n
//   < +OK\r\n
//   ```
//
// === Framing
//
// Network reads don't line up with frames. Buffer accumulates whatever the
// stream hands over and only releases complete lines or complete
// length-prefixed payloads, pulling more from the stream when it runs short.
// Decoder walks a frame on top of a Buffer, and FrameComplete answers whether
// a frame is fully buffered without consuming anything.
//
// === Errors
//
// Server errors are values, not failures: Decode returns them as Error
// values and only the caller decides whether to raise them. The exception is
// an error that says the connection itself is unusable (e.g. `-ERR max number
// of clients reached`), which Decode returns as an error.
package protocol
