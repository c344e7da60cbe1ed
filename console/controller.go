package console

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/guseggert/wrapperconsole/protocol"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	defaultReadLimit    = 1 << 20
	defaultWriteTimeout = 10 * time.Second
	// outboxSize bounds commands waiting for the writer. Commands beyond it are dropped.
	outboxSize = 16
)

// ErrUnsupportedTransport is returned for console URLs that have no WebSocket equivalent.
var ErrUnsupportedTransport = errors.New("unsupported transport")

// Endpoint derives the channel URL from the console URL.
// https pages get wss, http pages get ws, and the path gets "ws" appended.
func Endpoint(page *url.URL) (string, error) {
	var scheme string
	switch page.Scheme {
	case "https":
		scheme = "wss"
	case "http":
		scheme = "ws"
	default:
		return "", fmt.Errorf("console scheme %q: %w", page.Scheme, ErrUnsupportedTransport)
	}
	u := url.URL{Scheme: scheme, Host: page.Host, Path: page.Path + "ws"}
	return u.String(), nil
}

// Controller owns the duplex channel to the supervisor.
// Inbound frames and closure are posted to the Loop and handled by the Session there.
// There is no reconnection: once the channel closes it stays closed.
type Controller struct {
	log     *zap.SugaredLogger
	page    *url.URL
	session *Session
	loop    Loop

	dialOpts     *websocket.DialOptions
	readLimit    int64
	writeTimeout time.Duration
	onOpen       func()
	onClose      func()
	onWrite      func(cmd protocol.Command, err error)

	// conn, outbox and closing are only touched on the loop.
	conn    *websocket.Conn
	outbox  chan outbound
	closing bool
}

// outbound is one item for the writer: a command frame, or a request to close.
type outbound struct {
	cmd   protocol.Command
	frame []byte
	close bool
}

type Option func(c *Controller)

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		c.log = l.Named("controller").Sugar()
	}
}

func WithDialOptions(o *websocket.DialOptions) Option {
	return func(c *Controller) {
		c.dialOpts = o
	}
}

func WithReadLimit(n int64) Option {
	return func(c *Controller) {
		c.readLimit = n
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.writeTimeout = d
	}
}

// WithOnOpen registers a function run on the loop once the channel is open.
func WithOnOpen(f func()) Option {
	return func(c *Controller) {
		c.onOpen = f
	}
}

// WithOnClose registers a function run on the loop after the channel closed or failed to open.
func WithOnClose(f func()) Option {
	return func(c *Controller) {
		c.onClose = f
	}
}

// WithOnWrite registers a function run on the loop after each command write attempt.
func WithOnWrite(f func(cmd protocol.Command, err error)) Option {
	return func(c *Controller) {
		c.onWrite = f
	}
}

func NewController(page *url.URL, session *Session, loop Loop, opts ...Option) *Controller {
	c := &Controller{
		log:          zap.NewNop().Sugar(),
		page:         page,
		session:      session,
		loop:         loop,
		readLimit:    defaultReadLimit,
		writeTimeout: defaultWriteTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start opens the channel in the background. It must be called once.
// If the console URL has no channel transport, a notice is logged to the session and nothing is dialed.
func (c *Controller) Start(ctx context.Context) {
	endpoint, err := Endpoint(c.page)
	if err != nil {
		c.log.Debugf("not connecting: %s", err)
		c.loop.Post(c.session.HandleUnsupported)
		return
	}
	go c.run(ctx, endpoint)
}

func (c *Controller) run(ctx context.Context, endpoint string) {
	c.log.Debugw("dialing WebSocket", "URL", endpoint)
	conn, _, err := websocket.Dial(ctx, endpoint, c.dialOpts)
	if err != nil {
		c.log.Debugf("dial error: %s", err)
		c.loop.Post(c.handleClosed)
		return
	}
	conn.SetReadLimit(c.readLimit)

	outbox := make(chan outbound, outboxSize)
	readDone := make(chan struct{})
	go c.write(ctx, conn, outbox, readDone)
	c.loop.Post(func() { c.handleOpen(conn, outbox) })

	defer close(readDone)
	for {
		typ, frame, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				c.log.Debugf("message reader got error: %s", err)
			} else {
				c.log.Debugf("conn closed: %s", err)
			}
			conn.Close(websocket.StatusNormalClosure, "")
			c.loop.Post(c.handleClosed)
			return
		}
		if typ != websocket.MessageText {
			c.log.Debugw("ignoring non-text frame", "Type", typ, "Len", len(frame))
			continue
		}
		c.loop.Post(func() { c.session.HandleFrame(frame) })
	}
}

// write drains the outbox in order until a close request or the end of the read loop.
// Blocking writes and the close handshake happen here so the loop never waits on the peer.
func (c *Controller) write(ctx context.Context, conn *websocket.Conn, outbox <-chan outbound, readDone <-chan struct{}) {
	for {
		select {
		case <-readDone:
			return
		case o := <-outbox:
			if o.close {
				if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
					c.log.Debugf("error closing conn: %s", err)
				}
				return
			}
			wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, o.frame)
			cancel()
			if err != nil {
				c.log.Debugf("error writing command: %s", err)
			}
			if c.onWrite != nil {
				cmd := o.cmd
				c.loop.Post(func() { c.onWrite(cmd, err) })
			}
		}
	}
}

func (c *Controller) handleOpen(conn *websocket.Conn, outbox chan outbound) {
	c.conn = conn
	c.outbox = outbox
	c.log.Debug("channel open")
	if c.onOpen != nil {
		c.onOpen()
	}
}

func (c *Controller) handleClosed() {
	c.conn = nil
	c.outbox = nil
	c.closing = false
	c.session.HandleClosed()
	if c.onClose != nil {
		c.onClose()
	}
}

// Connected reports whether a channel is open. Loop only.
func (c *Controller) Connected() bool { return c.conn != nil }

// Send encodes a command and hands it to the writer. Loop only.
// It never waits on the peer. It does nothing if no channel is open, the channel is closing
// or the payload is empty, and it drops the command when the writer is backed up.
// Write failures are only logged.
func (c *Controller) Send(cmd protocol.Command) {
	if c.conn == nil || c.closing || cmd.Payload == "" {
		return
	}
	b, err := protocol.EncodeCommand(cmd.Target, cmd.Payload)
	if err != nil {
		c.log.Debugf("dropping command: %s", err)
		return
	}
	select {
	case c.outbox <- outbound{cmd: cmd, frame: b}:
	default:
		c.log.Warnw("dropping command, writer is backed up", "Target", cmd.Target)
	}
}

// Close asks the writer to close the channel normally once earlier commands are written. Loop only.
// The handshake runs off the loop, and the closure is reported through the session like any other.
func (c *Controller) Close() {
	if c.conn == nil || c.closing {
		return
	}
	c.closing = true
	select {
	case c.outbox <- outbound{close: true}:
	default:
		conn := c.conn
		go func() {
			if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
				c.log.Debugf("error closing conn: %s", err)
			}
		}()
	}
}
