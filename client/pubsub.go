package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/gredis/protocol"
)

var (
	ErrPubSubClosed  = errors.New("pubsub closed")
	ErrNotSubscribed = errors.New("not subscribed to any channel or pattern")
)

const (
	MessageSubscribe    = "subscribe"
	MessageUnsubscribe  = "unsubscribe"
	MessagePSubscribe   = "psubscribe"
	MessagePUnsubscribe = "punsubscribe"
	MessageMessage      = "message"
	MessagePMessage     = "pmessage"
)

// Message is one frame received by a PubSub.
type Message struct {
	Type string

	// Pattern is set for pmessage
	Pattern string
	Channel string
	Data    string

	// Count is the number of active subscriptions, set for the subscribe and
	// unsubscribe confirmations
	Count int64
}

func (m *Message) String() string {
	if m.Type == MessagePMessage {
		return fmt.Sprintf("%s(%s, %s): %s", m.Type, m.Pattern, m.Channel, m.Data)
	}

	return fmt.Sprintf("%s(%s): %s", m.Type, m.Channel, m.Data)
}

type MessageHandler func(*Message)

// PubSub keeps one Conn subscribed to channels and patterns. Subscriptions
// are replayed whenever the Conn reconnects.
//
// A PubSub is not safe for concurrent use.
type PubSub struct {
	conn *Conn

	channels map[string]MessageHandler
	patterns map[string]MessageHandler

	// IgnoreSubscribeMessages drops subscribe and unsubscribe confirmations
	// instead of returning them from GetMessage
	IgnoreSubscribeMessages bool

	closed bool

	log *zap.Logger
}

func NewPubSub(conn *Conn) *PubSub {
	p := &PubSub{
		conn:     conn,
		channels: make(map[string]MessageHandler),
		patterns: make(map[string]MessageHandler),
		log:      conn.log.Named("pubsub"),
	}

	conn.OnConnect(p.resubscribe)

	return p
}

func (p *PubSub) resubscribe(ctx context.Context, conn *Conn) (err error) {
	if channels := names(p.channels); len(channels) > 0 {
		p.log.Info("Resubscribing", zap.Strings("channels", channels))
		err = multierr.Append(err, conn.SendCommand(ctx, protocol.SUBSCRIBE.String(), toArgs(channels)...))
	}

	if patterns := names(p.patterns); len(patterns) > 0 {
		p.log.Info("Resubscribing", zap.Strings("patterns", patterns))
		err = multierr.Append(err, conn.SendCommand(ctx, protocol.PSUBSCRIBE.String(), toArgs(patterns)...))
	}

	return err
}

func names(set map[string]MessageHandler) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}

	sort.Strings(out)
	return out
}

func toArgs(names []string) []interface{} {
	args := make([]interface{}, len(names))
	for i, name := range names {
		args[i] = name
	}

	return args
}

// Channels returns the subscribed channels.
func (p *PubSub) Channels() []string {
	return names(p.channels)
}

// Patterns returns the subscribed patterns.
func (p *PubSub) Patterns() []string {
	return names(p.patterns)
}

// Subscribed reports whether there is at least one channel or pattern.
func (p *PubSub) Subscribed() bool {
	return len(p.channels) > 0 || len(p.patterns) > 0
}

func (p *PubSub) send(ctx context.Context, name protocol.Command, targets []string) error {
	if p.closed {
		return ErrPubSubClosed
	}

	return p.conn.SendCommand(ctx, name.String(), toArgs(targets)...)
}

func (p *PubSub) Subscribe(ctx context.Context, channels ...string) error {
	return p.subscribe(ctx, protocol.SUBSCRIBE, p.channels, channels, nil)
}

// SubscribeFunc subscribes to channel, messages on it go to handler instead
// of being returned by GetMessage.
func (p *PubSub) SubscribeFunc(ctx context.Context, channel string, handler MessageHandler) error {
	return p.subscribe(ctx, protocol.SUBSCRIBE, p.channels, []string{channel}, handler)
}

func (p *PubSub) PSubscribe(ctx context.Context, patterns ...string) error {
	return p.subscribe(ctx, protocol.PSUBSCRIBE, p.patterns, patterns, nil)
}

// PSubscribeFunc subscribes to pattern, messages matching it go to handler
// instead of being returned by GetMessage.
func (p *PubSub) PSubscribeFunc(ctx context.Context, pattern string, handler MessageHandler) error {
	return p.subscribe(ctx, protocol.PSUBSCRIBE, p.patterns, []string{pattern}, handler)
}

func (p *PubSub) subscribe(
	ctx context.Context,
	name protocol.Command,
	set map[string]MessageHandler,
	targets []string,
	handler MessageHandler,
) error {
	if len(targets) == 0 {
		return fmt.Errorf("%s needs at least one name", name)
	}

	if err := p.send(ctx, name, targets); err != nil {
		return err
	}

	for _, target := range targets {
		set[target] = handler
	}

	return nil
}

// Unsubscribe from channels, or from every channel when none are given.
// Channels leave the subscribed set as the server confirms them.
func (p *PubSub) Unsubscribe(ctx context.Context, channels ...string) error {
	return p.send(ctx, protocol.UNSUBSCRIBE, channels)
}

// PUnsubscribe from patterns, or from every pattern when none are given.
func (p *PubSub) PUnsubscribe(ctx context.Context, patterns ...string) error {
	return p.send(ctx, protocol.PUNSUBSCRIBE, patterns)
}

// GetMessage decodes the next frame. When block is false and a complete
// frame is not available right now it returns nil without waiting. A nil
// Message is also returned for frames consumed by a handler or dropped by
// IgnoreSubscribeMessages.
func (p *PubSub) GetMessage(ctx context.Context, block bool) (*Message, error) {
	if p.closed {
		return nil, ErrPubSubClosed
	}

	if p.conn.State() != Connected {
		if !p.Subscribed() {
			if block {
				return nil, ErrNotSubscribed
			}
			return nil, nil
		}

		if err := p.conn.Connect(ctx); err != nil {
			return nil, err
		}
	}

	if !block {
		ready, err := p.conn.CanRead(ctx, 0)
		if err != nil || !ready {
			return nil, err
		}
	}

	v, err := p.conn.ReadResponse(ctx)
	if err != nil {
		return nil, err
	}

	return p.handle(v)
}

func (p *PubSub) handle(v protocol.Value) (*Message, error) {
	if v.Kind != protocol.Array || len(v.Elems) < 3 {
		return nil, fmt.Errorf("%w: unexpected pubsub frame %s", protocol.ErrProtocol, v)
	}

	msg := &Message{
		Type:    strings.ToLower(v.Elems[0].Text()),
		Channel: v.Elems[1].Text(),
	}

	var handler MessageHandler

	switch msg.Type {
	case MessageMessage:
		msg.Data = v.Elems[2].Text()
		handler = p.channels[msg.Channel]

	case MessagePMessage:
		if len(v.Elems) < 4 {
			return nil, fmt.Errorf("%w: short pmessage frame %s", protocol.ErrProtocol, v)
		}

		msg.Pattern = msg.Channel
		msg.Channel = v.Elems[2].Text()
		msg.Data = v.Elems[3].Text()
		handler = p.patterns[msg.Pattern]

	case MessageSubscribe, MessagePSubscribe:
		msg.Count = v.Elems[2].Int

	case MessageUnsubscribe:
		msg.Count = v.Elems[2].Int
		delete(p.channels, msg.Channel)

	case MessagePUnsubscribe:
		msg.Count = v.Elems[2].Int
		delete(p.patterns, msg.Channel)

	default:
		return nil, fmt.Errorf("%w: unknown pubsub message type %q", protocol.ErrProtocol, msg.Type)
	}

	if handler != nil {
		handler(msg)
		return nil, nil
	}

	if p.IgnoreSubscribeMessages && msg.Type != MessageMessage && msg.Type != MessagePMessage {
		return nil, nil
	}

	return msg, nil
}

// Run calls fn for every message until ctx is done or reading fails. Read
// timeouts are not failures, the Conn reconnects and resubscribes on the
// next read.
func (p *PubSub) Run(ctx context.Context, fn MessageHandler) error {
	for {
		msg, err := p.GetMessage(ctx, true)

		switch {
		case ctx.Err() != nil:
			return ctx.Err()

		case errors.Is(err, protocol.ErrTimeout):
			p.log.Debug("No message before the socket timeout")
			continue

		case err != nil:
			return err
		}

		if msg != nil {
			fn(msg)
		}
	}
}

// Close disconnects. The PubSub can't be used afterwards.
func (p *PubSub) Close() error {
	if p.closed {
		return nil
	}

	p.closed = true
	p.channels = map[string]MessageHandler{}
	p.patterns = map[string]MessageHandler{}

	return p.conn.Disconnect()
}
