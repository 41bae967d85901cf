package supervisor

import (
	"chatsync/internal/hub"
	"chatsync/internal/models"
	"chatsync/internal/wire"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type inline struct{}

func (inline) Post(fn func()) { fn() }

type fakeSession struct {
	mutex  sync.Mutex
	sent   []wire.Outbound
	closed int
}

func (f *fakeSession) Send(v any) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.sent = append(f.sent, v.(wire.Outbound))
	return nil
}

func (f *fakeSession) Close() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.closed++
}

func (f *fakeSession) frames() []wire.Outbound {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]wire.Outbound(nil), f.sent...)
}

type fakeTransport struct {
	mutex   sync.Mutex
	events  []Events
	session []*fakeSession
	err     error
}

func (f *fakeTransport) Open(_ context.Context, _ string, events Events) (Session, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	session := &fakeSession{}
	f.events = append(f.events, events)
	f.session = append(f.session, session)
	return session, nil
}

func (f *fakeTransport) last() (Events, *fakeSession) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.events[len(f.events)-1], f.session[len(f.session)-1]
}

type emitted struct {
	mutex sync.Mutex
	kinds []string
}

func (e *emitted) Emit(kind string, _ any) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.kinds = append(e.kinds, kind)
}

func (e *emitted) count(kind string) int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	n := 0
	for _, k := range e.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

type userList []models.User

func (u userList) ListUsers() []models.User { return u }

type fixture struct {
	supervisor *Supervisor
	transport  *fakeTransport
	hub        *emitted
	reconnects atomic.Int32
	frames     atomic.Int32
	credential atomic.Bool
}

func newFixture(t *testing.T, heartbeat time.Duration) *fixture {
	f := &fixture{transport: &fakeTransport{}, hub: &emitted{}}
	f.credential.Store(true)

	users := userList{
		{ID: "U1", DisplayName: "alice"},
		{ID: "USLACKBOT", DisplayName: "slackbot"},
		{ID: "U2", DisplayName: "bob"},
	}
	f.supervisor = New(zap.NewNop().Sugar(), f.transport, inline{}, f.hub, users, Options{
		Heartbeat:      heartbeat,
		ReconnectDelay: 20 * time.Millisecond,
		HasCredential:  f.credential.Load,
		OnFrame:        func([]byte) { f.frames.Add(1) },
		OnReconnect:    func() { f.reconnects.Add(1) },
	}, nil)
	t.Cleanup(f.supervisor.Stop)
	return f
}

func (f *fixture) connect(t *testing.T) (Events, *fakeSession) {
	require.NoError(t, f.supervisor.Connect(context.Background(), "wss://example.test"))
	events, session := f.transport.last()
	events.OnOpen(session)
	return events, session
}

func TestOpen_SubscribesPresenceWithoutSystemUser(t *testing.T) {
	f := newFixture(t, time.Hour)

	_, session := f.connect(t)

	assert.Equal(t, Connected, f.supervisor.State())
	assert.Equal(t, 1, f.hub.count(hub.Connected))

	frames := session.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, wire.Outbound{ID: 1, Type: "presence_sub", IDs: []string{"U1", "U2"}}, frames[0])
}

func TestHeartbeat_IdsIncrease(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)

	_, session := f.connect(t)

	require.Eventually(t, func() bool { return len(session.frames()) >= 3 }, time.Second, 5*time.Millisecond)

	frames := session.frames()
	for i, frame := range frames {
		assert.Equal(t, int64(i+1), frame.ID)
		if i > 0 {
			assert.Equal(t, "ping", frame.Type)
		}
	}
}

func TestIdsRestartPerConnection(t *testing.T) {
	f := newFixture(t, time.Hour)

	f.connect(t)
	_, second := f.connect(t)

	frames := second.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, int64(1), frames[0].ID)
}

func TestFramesFromCurrentConnectionOnly(t *testing.T) {
	f := newFixture(t, time.Hour)

	stale, _ := f.connect(t)
	current, _ := f.connect(t)

	stale.OnFrame([]byte(`{}`))
	assert.Equal(t, int32(0), f.frames.Load())

	current.OnFrame([]byte(`{}`))
	assert.Equal(t, int32(1), f.frames.Load())
}

func TestClose_SchedulesOneReconnect(t *testing.T) {
	f := newFixture(t, time.Hour)

	events, _ := f.connect(t)
	events.OnClose(errors.New("reset"))
	events.OnClose(errors.New("reset again"))

	assert.Equal(t, Disconnected, f.supervisor.State())
	assert.True(t, f.supervisor.PendingReconnect())
	assert.Equal(t, 1, f.hub.count(hub.Reconnecting))

	require.Eventually(t, func() bool { return f.reconnects.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), f.reconnects.Load())
	assert.False(t, f.supervisor.PendingReconnect())
	assert.Equal(t, 2, f.hub.count(hub.Reconnecting))
}

func TestClose_WithoutCredentialDoesNotReconnect(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.credential.Store(false)

	events, _ := f.connect(t)
	events.OnClose(nil)

	assert.False(t, f.supervisor.PendingReconnect())
	assert.Equal(t, 1, f.hub.count(hub.Reconnecting))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), f.reconnects.Load())
}

func TestStop_CancelsPendingReconnect(t *testing.T) {
	f := newFixture(t, time.Hour)

	events, session := f.connect(t)
	events.OnClose(errors.New("reset"))
	require.True(t, f.supervisor.PendingReconnect())

	f.supervisor.Stop()
	f.supervisor.Stop()

	assert.False(t, f.supervisor.PendingReconnect())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), f.reconnects.Load())
	assert.Equal(t, 0, session.closed)
}

func TestStop_ClosesSessionAndIgnoresLateClose(t *testing.T) {
	f := newFixture(t, time.Hour)

	events, session := f.connect(t)
	f.supervisor.Stop()

	assert.Equal(t, 1, session.closed)
	assert.Equal(t, Disconnected, f.supervisor.State())

	events.OnClose(nil)
	assert.Equal(t, 0, f.hub.count(hub.Reconnecting))
	assert.False(t, f.supervisor.PendingReconnect())
}

func TestConnect_OpenFailureSchedulesReconnect(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.transport.err = errors.New("refused")

	err := f.supervisor.Connect(context.Background(), "wss://example.test")
	require.Error(t, err)

	assert.Equal(t, Disconnected, f.supervisor.State())
	assert.True(t, f.supervisor.PendingReconnect())
}

func TestConnect_CancelledContextOpensNothing(t *testing.T) {
	f := newFixture(t, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.supervisor.Connect(ctx, "wss://example.test")
	assert.ErrorIs(t, err, context.Canceled)

	f.transport.mutex.Lock()
	opened := len(f.transport.events)
	f.transport.mutex.Unlock()
	assert.Zero(t, opened)
	assert.Equal(t, Disconnected, f.supervisor.State())
	assert.False(t, f.supervisor.PendingReconnect())
}
