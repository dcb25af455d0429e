package protocol

import "strings"

// Command is an upper-case command name.
type Command string

const (
	QUIT         Command = "QUIT"
	PING         Command = "PING"
	ECHO         Command = "ECHO"
	AUTH         Command = "AUTH"
	SELECT       Command = "SELECT"
	SET          Command = "SET"
	GET          Command = "GET"
	DEL          Command = "DEL"
	EXISTS       Command = "EXISTS"
	INCR         Command = "INCR"
	KEYS         Command = "KEYS"
	FLUSHDB      Command = "FLUSHDB"
	LPUSH        Command = "LPUSH"
	RPUSH        Command = "RPUSH"
	LRANGE       Command = "LRANGE"
	BLPOP        Command = "BLPOP"
	PUBLISH      Command = "PUBLISH"
	SUBSCRIBE    Command = "SUBSCRIBE"
	UNSUBSCRIBE  Command = "UNSUBSCRIBE"
	PSUBSCRIBE   Command = "PSUBSCRIBE"
	PUNSUBSCRIBE Command = "PUNSUBSCRIBE"
)

// CommandName normalises a command name for table lookups.
func CommandName(name string) Command {
	return Command(strings.ToUpper(name))
}

func (c Command) String() string {
	return string(c)
}
