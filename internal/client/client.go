// Package client ties the sync engine together into one session.
package client

import (
	"chatsync/internal/api"
	"chatsync/internal/events"
	"chatsync/internal/hub"
	"chatsync/internal/loop"
	"chatsync/internal/markup"
	"chatsync/internal/metrics"
	"chatsync/internal/models"
	"chatsync/internal/notify"
	"chatsync/internal/reconciler"
	"chatsync/internal/store"
	"chatsync/internal/supervisor"
	"chatsync/internal/syncer"
	"chatsync/internal/wire"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrUnknownChannel = errors.New("unknown channel")

type API interface {
	syncer.API
	History(ctx context.Context, kind models.Kind, channelID string, latest string) (wire.History, error)
	Mark(ctx context.Context, kind models.Kind, channelID string, ts string) error
	JoinChannel(ctx context.Context, name string) error
	LeaveChannel(ctx context.Context, channelID string) error
	LeaveGroup(ctx context.Context, channelID string) error
	OpenIM(ctx context.Context, userID string) error
	CloseIM(ctx context.Context, channelID string) error
	PostMessage(ctx context.Context, channelID string, text string) error
	AuthTest(ctx context.Context) (wire.AuthTest, error)
}

type Credentials interface {
	Token() string
	ClearToken() error
}

type Options struct {
	Sink           notify.Sink
	Emoji          map[string]string
	Heartbeat      time.Duration
	ReconnectDelay time.Duration
	Metrics        metrics.Recorder
}

type Client struct {
	sugar       *zap.SugaredLogger
	api         API
	credentials Credentials
	metrics     metrics.Recorder

	store      *store.Store
	hub        *hub.Hub
	loop       *loop.Loop
	decoder    *events.Decoder
	reconciler *reconciler.Reconciler
	supervisor *supervisor.Supervisor
	syncer     *syncer.Syncer

	mutex      sync.Mutex
	ctx        context.Context
	started    bool
	syncing    bool
	cancelSync context.CancelFunc
	offline    bool
}

func New(sugar *zap.SugaredLogger, apiClient API, credentials Credentials, transport supervisor.Transport, opts Options) *Client {
	recorder := opts.Metrics
	if recorder == nil {
		recorder = metrics.Noop()
	}
	sink := opts.Sink
	if sink == nil {
		sink = notify.NewLog(sugar)
	}

	c := &Client{
		sugar:       sugar,
		api:         apiClient,
		credentials: credentials,
		metrics:     recorder,
		store:       store.New(),
		hub:         hub.New(sugar),
		loop:        loop.New(),
		decoder:     events.NewDecoder(sugar),
		ctx:         context.Background(),
	}

	formatter := markup.NewFormatter(c.store, opts.Emoji)
	c.reconciler = reconciler.New(sugar, c.store, c.hub, formatter, c, sink, recorder)

	c.supervisor = supervisor.New(sugar, transport, c.loop, c.hub, c.store, supervisor.Options{
		Heartbeat:      opts.Heartbeat,
		ReconnectDelay: opts.ReconnectDelay,
		HasCredential:  c.hasCredential,
		OnFrame:        c.handleFrame,
		OnReconnect:    c.Reconnect,
	}, recorder)

	c.syncer = syncer.New(sugar, apiClient, c.store, c.hub, c.loop, c.supervisor, recorder)
	return c
}

func (c *Client) Hub() *hub.Hub { return c.hub }

func (c *Client) Store() *store.Store { return c.store }

func (c *Client) hasCredential() bool {
	return c.credentials.Token() != ""
}

// handleFrame runs on the loop, one frame at a time in delivery order.
func (c *Client) handleFrame(frame []byte) {
	c.reconciler.Apply(c.decoder.Decode(frame))
}

// emit publishes from outside the loop without waiting.
func (c *Client) emit(kind string, payload any) {
	c.loop.Post(func() { c.hub.Emit(kind, payload) })
}

func (c *Client) runContext() context.Context {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.ctx
}

// RunLoop starts the serial loop for the lifetime of ctx. Later calls do nothing.
func (c *Client) RunLoop(ctx context.Context) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.started {
		return
	}
	c.started = true
	c.ctx = ctx
	go c.loop.Run(ctx)
	go func() {
		<-ctx.Done()
		c.supervisor.Stop()
	}()
}

// Start checks the credential and performs the first cold start.
func (c *Client) Start(ctx context.Context) error {
	c.RunLoop(ctx)

	if !c.hasCredential() {
		return api.ErrNoCredential
	}
	if err := c.Verify(ctx); err != nil {
		return err
	}
	return c.sync(ctx)
}

// sync runs one cold start. Logout cancels it.
func (c *Client) sync(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mutex.Lock()
	if c.syncing {
		c.mutex.Unlock()
		c.sugar.Debug("Synchronisation already running")
		return nil
	}
	if !c.hasCredential() {
		c.mutex.Unlock()
		return api.ErrNoCredential
	}
	c.syncing = true
	c.cancelSync = cancel
	c.mutex.Unlock()

	defer func() {
		c.mutex.Lock()
		c.syncing = false
		c.cancelSync = nil
		c.mutex.Unlock()
	}()

	return c.syncer.Run(ctx)
}

// Reconnect re-runs the full cold start in the background.
func (c *Client) Reconnect() {
	if !c.hasCredential() {
		return
	}
	go func() {
		if err := c.sync(c.runContext()); err != nil {
			c.sugar.Warnf("Reconnect failed: %v", err)
		}
	}()
}

// Verify asks the service who the credential belongs to. A rejected credential is
// cleared. The loop must be running.
func (c *Client) Verify(ctx context.Context) error {
	identity, err := c.api.AuthTest(ctx)
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) || errors.Is(err, api.ErrNoCredential) {
			if clearErr := c.credentials.ClearToken(); clearErr != nil {
				c.sugar.Errorf("Clearing rejected credential failed: %v", clearErr)
			}
		}
		c.sugar.Warnf("Credential check failed: %v", err)
		c.emit(hub.LoginFailed, hub.NewFailure("auth.test", "", err))
		return err
	}

	c.sugar.Infof("Signed in as user ID [%s] on team [%s]", identity.UserID, identity.Team)
	return c.loop.Do(ctx, func() {
		c.store.SetSelfID(identity.UserID)
		c.hub.Emit(hub.LoginSucceeded, hub.Login{UserID: identity.UserID, TeamID: identity.TeamID, Team: identity.Team})
	})
}

// Logout forgets the credential, abandons a running cold start, closes the
// stream and empties the model.
func (c *Client) Logout(ctx context.Context) error {
	err := c.credentials.ClearToken()

	c.mutex.Lock()
	started := c.started
	cancelSync := c.cancelSync
	c.mutex.Unlock()

	if cancelSync != nil {
		cancelSync()
	}
	c.supervisor.Stop()

	if resetter, ok := c.api.(interface{ ResetCache() }); ok {
		resetter.ResetCache()
	}

	if !started {
		c.store.ClearAll()
		return err
	}
	if doErr := c.loop.Do(ctx, c.store.ClearAll); doErr != nil {
		return doErr
	}
	return err
}

func (c *Client) channel(channelID string) (models.Channel, error) {
	channel, ok := c.store.GetChannel(channelID)
	if !ok {
		return models.Channel{}, fmt.Errorf("%w: %s", ErrUnknownChannel, channelID)
	}
	return channel, nil
}

// LoadMessages returns the channel's history, from the model when it is already
// materialised and from the service otherwise.
func (c *Client) LoadMessages(ctx context.Context, channelID string) ([]models.Message, error) {
	channel, err := c.channel(channelID)
	if err != nil {
		c.emit(hub.LoadMessagesFailed, hub.NewFailure("load messages", channelID, err))
		return nil, err
	}

	if messages, ok := c.store.Messages(channelID); ok {
		c.emit(hub.LoadMessagesSucceeded, hub.MessagesLoaded{ChannelID: channelID, Messages: messages})
		return messages, nil
	}

	history, err := c.api.History(ctx, channel.Kind, channelID, "")
	if err != nil {
		c.sugar.Warnf("Loading messages of channel ID [%s] failed: %v", channelID, err)
		c.emit(hub.LoadMessagesFailed, hub.NewFailure("load messages", channelID, err))
		return nil, err
	}

	var messages []models.Message
	err = c.loop.Do(ctx, func() {
		messages = c.reconciler.BuildMessages(history.Messages)
		c.store.SetMessages(channelID, messages)
		c.hub.Emit(hub.LoadMessagesSucceeded, hub.MessagesLoaded{ChannelID: channelID, Messages: messages, HasMore: history.HasMore})
	})
	return messages, err
}

// LoadHistory fetches the page before latest, or before the oldest loaded message
// when latest is empty, and puts it in front of the loaded messages.
func (c *Client) LoadHistory(ctx context.Context, channelID string, latest string) ([]models.Message, bool, error) {
	channel, err := c.channel(channelID)
	if err != nil {
		c.emit(hub.LoadHistoryFailed, hub.NewFailure("load history", channelID, err))
		return nil, false, err
	}

	if latest == "" {
		if loaded, ok := c.store.Messages(channelID); ok && len(loaded) > 0 {
			latest = loaded[0].Timestamp
		}
	}

	history, err := c.api.History(ctx, channel.Kind, channelID, latest)
	if err != nil {
		c.sugar.Warnf("Loading history of channel ID [%s] failed: %v", channelID, err)
		c.emit(hub.LoadHistoryFailed, hub.NewFailure("load history", channelID, err))
		return nil, false, err
	}

	var messages []models.Message
	err = c.loop.Do(ctx, func() {
		messages = c.reconciler.BuildMessages(history.Messages)
		c.store.PrependMessages(channelID, messages)
		c.hub.Emit(hub.LoadHistorySucceeded, hub.MessagesLoaded{ChannelID: channelID, Messages: messages, HasMore: history.HasMore})
	})
	return messages, history.HasMore, err
}

// operationFailed reports a steady-state call that failed. The caller may retry.
func (c *Client) operationFailed(operation string, channelID string, err error) error {
	c.sugar.Warnf("%s failed for [%s]: %v", operation, channelID, err)
	c.emit(hub.OperationFailed, hub.NewFailure(operation, channelID, err))
	return err
}

func (c *Client) MarkChannel(ctx context.Context, channelID string, ts string) error {
	channel, err := c.channel(channelID)
	if err != nil {
		return c.operationFailed("mark", channelID, err)
	}
	if err := c.api.Mark(ctx, channel.Kind, channelID, ts); err != nil {
		return c.operationFailed("mark", channelID, err)
	}
	return nil
}

func (c *Client) JoinChannel(ctx context.Context, name string) error {
	if err := c.api.JoinChannel(ctx, name); err != nil {
		return c.operationFailed("join", name, err)
	}
	return nil
}

func (c *Client) LeaveChannel(ctx context.Context, channelID string) error {
	channel, err := c.channel(channelID)
	if err != nil {
		return c.operationFailed("leave", channelID, err)
	}

	switch channel.Kind {
	case models.KindPrivateGroup, models.KindMultiPerson:
		err = c.api.LeaveGroup(ctx, channelID)
	case models.KindDirect:
		err = c.api.CloseIM(ctx, channelID)
	default:
		err = c.api.LeaveChannel(ctx, channelID)
	}
	if err != nil {
		return c.operationFailed("leave", channelID, err)
	}
	return nil
}

func (c *Client) OpenChat(ctx context.Context, userID string) error {
	if err := c.api.OpenIM(ctx, userID); err != nil {
		return c.operationFailed("open chat", userID, err)
	}
	return nil
}

func (c *Client) CloseChat(ctx context.Context, channelID string) error {
	if err := c.api.CloseIM(ctx, channelID); err != nil {
		return c.operationFailed("close chat", channelID, err)
	}
	return nil
}

// RequestOpenChat reopens a closed direct chat that just received a message.
func (c *Client) RequestOpenChat(channelID string) {
	channel, ok := c.store.GetChannel(channelID)
	if !ok || channel.PeerUserID == "" {
		return
	}
	ctx := c.runContext()
	go func() {
		_ = c.OpenChat(ctx, channel.PeerUserID)
	}()
}

func (c *Client) PostMessage(ctx context.Context, channelID string, text string) error {
	if err := c.api.PostMessage(ctx, channelID, text); err != nil {
		return c.operationFailed("post", channelID, err)
	}
	return nil
}

func (c *Client) SetAppActive(active bool) {
	c.reconciler.SetAppActive(active)
}

func (c *Client) SetActiveWindow(channelID string) {
	c.reconciler.SetActiveWindow(channelID)
}

// SetNetworkAvailable reports connectivity changes. Coming back online while
// disconnected with nothing scheduled starts a cold start.
func (c *Client) SetNetworkAvailable(available bool) {
	c.mutex.Lock()
	changed := c.offline == available
	c.offline = !available
	c.mutex.Unlock()

	if !changed {
		return
	}

	if !available {
		c.emit(hub.NetworkOff, nil)
		return
	}

	c.emit(hub.NetworkOn, nil)
	if c.supervisor.State() == supervisor.Disconnected && !c.supervisor.PendingReconnect() {
		c.Reconnect()
	}
}

func (c *Client) Channels() []models.Channel {
	return c.store.ListChannels()
}

func (c *Client) Channel(channelID string) (models.Channel, bool) {
	return c.store.GetChannel(channelID)
}

// Messages returns the loaded history of a channel, false when none is loaded.
func (c *Client) Messages(channelID string) ([]models.Message, bool) {
	return c.store.Messages(channelID)
}

func (c *Client) Users() []models.User {
	return c.store.ListUsers()
}

func (c *Client) State() supervisor.State {
	return c.supervisor.State()
}
