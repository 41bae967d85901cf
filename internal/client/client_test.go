package client

import (
	"chatsync/internal/api"
	"chatsync/internal/hub"
	"chatsync/internal/models"
	"chatsync/internal/supervisor"
	"chatsync/internal/wire"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAPI struct {
	mutex sync.Mutex

	authErr  error
	users    []wire.User
	page     wire.ConversationPage
	infos    map[string]wire.Conversation
	history  map[string]wire.History
	markErr  error
	calls    []string
	latests  []string
	openedIM []string

	beforeConnect func()
}

func (f *fakeAPI) record(call string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) recorded() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) UsersList(context.Context) ([]wire.User, error) {
	f.record("users.list")
	return f.users, nil
}

func (f *fakeAPI) ConversationsList(context.Context, string) (wire.ConversationPage, error) {
	f.record("conversations.list")
	return f.page, nil
}

func (f *fakeAPI) ConversationInfo(_ context.Context, method string, channelID string) (wire.Conversation, error) {
	f.record(method)
	return f.infos[channelID], nil
}

func (f *fakeAPI) RTMConnect(context.Context) (string, error) {
	f.record("rtm.connect")
	if f.beforeConnect != nil {
		f.beforeConnect()
	}
	return "wss://stream.test", nil
}

func (f *fakeAPI) History(_ context.Context, kind models.Kind, channelID string, latest string) (wire.History, error) {
	f.record(api.HistoryMethod(kind))
	f.mutex.Lock()
	f.latests = append(f.latests, latest)
	f.mutex.Unlock()
	return f.history[channelID+"|"+latest], nil
}

func (f *fakeAPI) Mark(_ context.Context, kind models.Kind, _ string, _ string) error {
	f.record(api.MarkMethod(kind))
	return f.markErr
}

func (f *fakeAPI) JoinChannel(context.Context, string) error {
	f.record("channels.join")
	return nil
}

func (f *fakeAPI) LeaveChannel(context.Context, string) error {
	f.record("channels.leave")
	return nil
}

func (f *fakeAPI) LeaveGroup(context.Context, string) error {
	f.record("groups.leave")
	return nil
}

func (f *fakeAPI) OpenIM(_ context.Context, userID string) error {
	f.record("im.open")
	f.mutex.Lock()
	f.openedIM = append(f.openedIM, userID)
	f.mutex.Unlock()
	return nil
}

func (f *fakeAPI) CloseIM(context.Context, string) error {
	f.record("im.close")
	return nil
}

func (f *fakeAPI) PostMessage(context.Context, string, string) error {
	f.record("chat.postMessage")
	return nil
}

func (f *fakeAPI) AuthTest(context.Context) (wire.AuthTest, error) {
	f.record("auth.test")
	if f.authErr != nil {
		return wire.AuthTest{}, f.authErr
	}
	return wire.AuthTest{UserID: "U0", TeamID: "T1", Team: "Acme"}, nil
}

type credentials struct {
	mutex sync.Mutex
	token string
}

func (c *credentials) Token() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.token
}

func (c *credentials) ClearToken() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.token = ""
	return nil
}

type fakeSession struct{}

func (fakeSession) Send(any) error { return nil }
func (fakeSession) Close()         {}

type fakeTransport struct {
	mutex  sync.Mutex
	events []supervisor.Events
}

func (f *fakeTransport) Open(_ context.Context, _ string, events supervisor.Events) (supervisor.Session, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.events = append(f.events, events)
	return fakeSession{}, nil
}

func (f *fakeTransport) last() supervisor.Events {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.events[len(f.events)-1]
}

type fixture struct {
	ctx         context.Context
	api         *fakeAPI
	credentials *credentials
	transport   *fakeTransport
	client      *Client

	mutex sync.Mutex
	kinds []string
}

func newFixture(t *testing.T) *fixture {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &fixture{
		ctx: ctx,
		api: &fakeAPI{
			users: []wire.User{{ID: "U0", Name: "me"}, {ID: "U1", Name: "Alice"}},
			page: wire.ConversationPage{Channels: []wire.Conversation{
				{ID: "C1", IsChannel: true},
				{ID: "G1", IsGroup: true},
				{ID: "D1", IsIM: true, User: "U1"},
			}},
			infos: map[string]wire.Conversation{
				"C1": {ID: "C1", Name: "general", IsChannel: true, IsMember: true, LastRead: "100.0"},
				"G1": {ID: "G1", Name: "secret", IsGroup: true, IsOpen: true},
				"D1": {ID: "D1", IsIM: true, User: "U1", IsOpen: false},
			},
			history: map[string]wire.History{},
		},
		credentials: &credentials{token: "xoxp-1"},
		transport:   &fakeTransport{},
	}

	f.client = New(zap.NewNop().Sugar(), f.api, f.credentials, f.transport, Options{
		Heartbeat:      time.Hour,
		ReconnectDelay: time.Hour,
	})
	f.client.Hub().SubscribeAll(func(n hub.Notification) {
		f.mutex.Lock()
		f.kinds = append(f.kinds, n.Kind)
		f.mutex.Unlock()
	})
	return f
}

func (f *fixture) start(t *testing.T) {
	require.NoError(t, f.client.Start(f.ctx))
}

func (f *fixture) settle(t *testing.T) {
	require.NoError(t, f.client.loop.Do(f.ctx, func() {}))
}

func (f *fixture) seen(kind string) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for _, k := range f.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func TestStart_SignsInAndSynchronises(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	assert.Equal(t, "U0", f.client.Store().SelfID())
	assert.Len(t, f.client.Users(), 2)
	require.Len(t, f.client.Channels(), 3)

	chat, ok := f.client.Channel("D1")
	require.True(t, ok)
	assert.Equal(t, "Alice", chat.DisplayName)

	assert.True(t, f.seen(hub.LoginSucceeded))
	assert.True(t, f.seen(hub.LoadUsersSucceeded))
	assert.True(t, f.seen(hub.InitSucceeded))
	assert.Equal(t, supervisor.Connecting, f.client.State())

	f.transport.last().OnOpen(fakeSession{})
	f.settle(t)
	assert.Equal(t, supervisor.Connected, f.client.State())
	assert.True(t, f.seen(hub.Connected))
}

func TestStart_WithoutCredential(t *testing.T) {
	f := newFixture(t)
	f.credentials.token = ""

	err := f.client.Start(f.ctx)
	assert.ErrorIs(t, err, api.ErrNoCredential)
	assert.Empty(t, f.api.recorded())
}

func TestVerify_RejectedCredentialIsCleared(t *testing.T) {
	f := newFixture(t)
	f.api.authErr = &api.Error{Method: "auth.test", Status: 200, Code: "invalid_auth"}

	err := f.client.Start(f.ctx)
	require.Error(t, err)
	f.settle(t)

	assert.Empty(t, f.credentials.Token())
	assert.True(t, f.seen(hub.LoginFailed))
	assert.Equal(t, []string{"auth.test"}, f.api.recorded())
}

func TestFramesReachTheModel(t *testing.T) {
	f := newFixture(t)
	f.api.history["C1|"] = wire.History{Messages: []wire.Message{
		{Type: "message", Channel: "C1", User: "U1", Text: "second", Ts: "99.0"},
		{Type: "message", Channel: "C1", User: "U1", Text: "first", Ts: "98.0"},
	}}
	f.start(t)

	messages, err := f.client.LoadMessages(f.ctx, "C1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "98.0", messages[0].Timestamp)

	events := f.transport.last()
	events.OnOpen(fakeSession{})
	events.OnFrame([]byte(`{"type":"message","channel":"C1","user":"U1","text":"third","ts":"101.0"}`))
	f.settle(t)

	stored, ok := f.client.Store().Messages("C1")
	require.True(t, ok)
	require.Len(t, stored, 3)
	assert.Equal(t, "101.0", stored[2].Timestamp)

	channel, _ := f.client.Channel("C1")
	assert.Equal(t, 1, channel.UnreadCount)
	assert.True(t, f.seen(hub.MessageReceived))
}

func TestClosedDirectChatIsReopened(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	events := f.transport.last()
	events.OnFrame([]byte(`{"type":"message","channel":"D1","user":"U1","text":"hey","ts":"5.0"}`))
	f.settle(t)

	assert.Eventually(t, func() bool {
		f.api.mutex.Lock()
		defer f.api.mutex.Unlock()
		return len(f.api.openedIM) == 1 && f.api.openedIM[0] == "U1"
	}, time.Second, 5*time.Millisecond)
}

func TestLoadMessages_ServedFromModelOnceLoaded(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	_, err := f.client.LoadMessages(f.ctx, "G1")
	require.NoError(t, err)
	_, err = f.client.LoadMessages(f.ctx, "G1")
	require.NoError(t, err)

	count := 0
	for _, call := range f.api.recorded() {
		if call == "groups.history" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestLoadMessages_UnknownChannel(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	_, err := f.client.LoadMessages(f.ctx, "C404")
	assert.ErrorIs(t, err, ErrUnknownChannel)
	f.settle(t)
	assert.True(t, f.seen(hub.LoadMessagesFailed))
}

func TestLoadHistory_PrependsOlderPage(t *testing.T) {
	f := newFixture(t)
	f.api.history["C1|"] = wire.History{HasMore: true, Messages: []wire.Message{
		{Type: "message", Channel: "C1", User: "U1", Text: "new", Ts: "50.0"},
	}}
	f.api.history["C1|50.0"] = wire.History{Messages: []wire.Message{
		{Type: "message", Channel: "C1", User: "U1", Text: "older", Ts: "40.0"},
		{Type: "message", Channel: "C1", User: "U1", Text: "oldest", Ts: "30.0"},
	}}
	f.start(t)

	_, err := f.client.LoadMessages(f.ctx, "C1")
	require.NoError(t, err)

	older, hasMore, err := f.client.LoadHistory(f.ctx, "C1", "")
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, older, 2)

	stored, _ := f.client.Store().Messages("C1")
	require.Len(t, stored, 3)
	assert.Equal(t, []string{"30.0", "40.0", "50.0"}, []string{stored[0].Timestamp, stored[1].Timestamp, stored[2].Timestamp})
	assert.Equal(t, []string{"", "50.0"}, f.api.latests)
}

func TestLeaveChannel_RoutesByKind(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	require.NoError(t, f.client.LeaveChannel(f.ctx, "C1"))
	require.NoError(t, f.client.LeaveChannel(f.ctx, "G1"))
	require.NoError(t, f.client.LeaveChannel(f.ctx, "D1"))

	calls := f.api.recorded()
	assert.Equal(t, []string{"channels.leave", "groups.leave", "im.close"}, calls[len(calls)-3:])
}

func TestMarkChannel_FailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.api.markErr = errors.New("boom")
	f.start(t)

	err := f.client.MarkChannel(f.ctx, "C1", "100.1")
	require.Error(t, err)
	f.settle(t)

	assert.True(t, f.seen(hub.OperationFailed))
	assert.Contains(t, f.api.recorded(), "channels.mark")
}

func TestLogout_ForgetsEverything(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	require.NoError(t, f.client.Logout(f.ctx))

	assert.Empty(t, f.credentials.Token())
	assert.Empty(t, f.client.Channels())
	assert.Empty(t, f.client.Users())
	assert.Empty(t, f.client.Store().SelfID())
	assert.Equal(t, supervisor.Disconnected, f.client.State())

	f.transport.last().OnClose(errors.New("late"))
	f.settle(t)
	assert.False(t, f.seen(hub.Reconnecting))
}

func TestLogout_DuringStartDoesNotReopenTheStream(t *testing.T) {
	f := newFixture(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	f.api.beforeConnect = func() {
		close(entered)
		<-release
	}

	result := make(chan error, 1)
	go func() { result <- f.client.Start(f.ctx) }()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("rtm.connect was never called")
	}
	require.NoError(t, f.client.Logout(f.ctx))
	close(release)

	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("start never returned")
	}
	f.settle(t)

	f.transport.mutex.Lock()
	opened := len(f.transport.events)
	f.transport.mutex.Unlock()
	assert.Zero(t, opened)
	assert.Equal(t, supervisor.Disconnected, f.client.State())
	assert.Empty(t, f.client.Channels())
	assert.Empty(t, f.client.Users())
	assert.False(t, f.seen(hub.InitSucceeded))
}

func TestSetNetworkAvailable(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.transport.last().OnOpen(fakeSession{})

	f.client.SetNetworkAvailable(false)
	f.client.SetNetworkAvailable(false)
	f.client.SetNetworkAvailable(true)
	f.settle(t)

	f.mutex.Lock()
	defer f.mutex.Unlock()
	var network []string
	for _, kind := range f.kinds {
		if kind == hub.NetworkOn || kind == hub.NetworkOff {
			network = append(network, kind)
		}
	}
	assert.Equal(t, []string{hub.NetworkOff, hub.NetworkOn}, network)
}
