package supervisor

import (
	"chatsync/internal/stream"
	"context"
)

type Session interface {
	Send(v any) error
	Close()
}

// Events mirrors stream.Handler with the connection abstracted as a Session.
type Events struct {
	OnOpen  func(session Session)
	OnFrame func(frame []byte)
	OnClose func(err error)
}

type Transport interface {
	Open(ctx context.Context, url string, events Events) (Session, error)
}

type WebsocketTransport struct {
	Dialer *stream.Dialer
}

func (t WebsocketTransport) Open(ctx context.Context, url string, events Events) (Session, error) {
	conn, err := t.Dialer.Open(ctx, url, stream.Handler{
		OnOpen:  func(conn *stream.Conn) { events.OnOpen(conn) },
		OnFrame: events.OnFrame,
		OnClose: events.OnClose,
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}
