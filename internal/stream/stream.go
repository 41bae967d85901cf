// Package stream is the websocket side of the chat service.
package stream

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 10 * time.Second
	readLimit = 1 << 20
)

// Handler callbacks all run on the connection's read goroutine: OnOpen first,
// then one OnFrame per text frame, then exactly one OnClose. OnClose gets nil
// when the close was asked for with Conn.Close.
type Handler struct {
	OnOpen  func(conn *Conn)
	OnFrame func(frame []byte)
	OnClose func(err error)
}

type Dialer struct {
	sugar  *zap.SugaredLogger
	dialer *websocket.Dialer
}

func NewDialer(sugar *zap.SugaredLogger, handshakeTimeout time.Duration) *Dialer {
	return &Dialer{
		sugar: sugar,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
}

type Conn struct {
	sugar   *zap.SugaredLogger
	url     string
	conn    *websocket.Conn
	handler Handler

	writeMutex     sync.Mutex
	closeOnce      sync.Once
	closed         chan struct{}
	closeRequested bool
}

func (d *Dialer) Open(ctx context.Context, rawURL string, handler Handler) (*Conn, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, &TransportError{Op: "dial", URL: redact(rawURL), Err: err}
	}

	wsConn, resp, err := d.dialer.DialContext(ctx, rawURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, &TransportError{Op: "dial", URL: redact(rawURL), Err: err}
	}
	wsConn.SetReadLimit(readLimit)

	c := &Conn{
		sugar:   d.sugar,
		url:     redact(rawURL),
		conn:    wsConn,
		handler: handler,
		closed:  make(chan struct{}),
	}
	go c.read()
	return c, nil
}

func (c *Conn) read() {
	if c.handler.OnOpen != nil {
		c.handler.OnOpen(c)
	}

	var cause error
	for {
		messageType, frame, err := c.conn.ReadMessage()
		if err != nil {
			cause = err
			break
		}
		if messageType != websocket.TextMessage {
			c.sugar.Debugf("Ignoring websocket frame of type [%d]", messageType)
			continue
		}
		if c.handler.OnFrame != nil {
			c.handler.OnFrame(frame)
		}
	}

	c.shutdown()

	if c.requested() {
		cause = nil
	}
	if cause != nil {
		cause = &TransportError{Op: "read", URL: c.url, Err: cause}
	}

	if c.handler.OnClose != nil {
		c.handler.OnClose(cause)
	}
}

// Send writes v as a JSON text frame.
func (c *Conn) Send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return &TransportError{Op: "write", URL: c.url, Err: err}
	}

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	select {
	case <-c.closed:
		return &TransportError{Op: "write", URL: c.url, Err: errClosed}
	default:
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return &TransportError{Op: "write", URL: c.url, Err: err}
	}
	return nil
}

var errClosed = errors.New("connection closed")

// Close is safe to call more than once and from any goroutine.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.writeMutex.Lock()
		c.closeRequested = true
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		close(c.closed)
		c.writeMutex.Unlock()
		_ = c.conn.Close()
	})
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		c.writeMutex.Lock()
		close(c.closed)
		c.writeMutex.Unlock()
		_ = c.conn.Close()
	})
}

func (c *Conn) requested() bool {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	return c.closeRequested
}

// redact drops the query string, which carries the session ticket.
func redact(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "invalid url"
	}
	parsed.RawQuery = ""
	return parsed.String()
}
