package reconciler

import (
	"chatsync/internal/events"
	"chatsync/internal/hub"
	"chatsync/internal/markup"
	"chatsync/internal/metrics"
	"chatsync/internal/models"
	"chatsync/internal/notify"
	"chatsync/internal/store"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ChatOpener asks the service to open a direct chat. It must return without waiting
// for the request.
type ChatOpener interface {
	RequestOpenChat(channelID string)
}

// Reconciler applies decoded events to the store. It is meant to run on the
// session's serial context; it never returns errors and never panics on odd input.
type Reconciler struct {
	sugar     *zap.SugaredLogger
	store     *store.Store
	hub       hub.Emitter
	formatter *markup.Formatter
	opener    ChatOpener
	sink      notify.Sink
	metrics   metrics.Recorder

	focusMutex   sync.Mutex
	appActive    bool
	activeWindow string
}

func New(sugar *zap.SugaredLogger, st *store.Store, emitter hub.Emitter, formatter *markup.Formatter, opener ChatOpener, sink notify.Sink, recorder metrics.Recorder) *Reconciler {
	if recorder == nil {
		recorder = metrics.Noop()
	}
	return &Reconciler{
		sugar:     sugar,
		store:     st,
		hub:       emitter,
		formatter: formatter,
		opener:    opener,
		sink:      sink,
		metrics:   recorder,
	}
}

func (r *Reconciler) Apply(event events.Event) {
	r.metrics.IncEvent(event.Kind())
	event.Apply(r)
}

func (r *Reconciler) SetAppActive(active bool) {
	r.focusMutex.Lock()
	defer r.focusMutex.Unlock()
	r.appActive = active
}

func (r *Reconciler) SetActiveWindow(channelID string) {
	r.focusMutex.Lock()
	defer r.focusMutex.Unlock()
	r.activeWindow = channelID
}

func (r *Reconciler) viewing(channelID string) bool {
	r.focusMutex.Lock()
	defer r.focusMutex.Unlock()
	return r.appActive && r.activeWindow == channelID
}

func (r *Reconciler) gap(kind, entity, id, reason string) {
	r.sugar.Debugf("Validation gap: %v", &events.ValidationGap{Kind: kind, Entity: entity, ID: id, Reason: reason})
}

func (r *Reconciler) HandleMessagePosted(e events.MessagePosted) {
	message := r.BuildMessage(e.Message)

	if e.ChannelID == "" {
		r.gap(e.Kind(), "channel", "", "missing")
		r.hub.Emit(hub.MessageReceived, message)
		return
	}

	r.store.AppendMessage(e.ChannelID, message)

	channel, known := r.store.GetChannel(e.ChannelID)
	if !known {
		r.gap(e.Kind(), "channel", e.ChannelID, "unknown")
	}

	if models.CompareTimestamps(message.Timestamp, channel.LastReadTimestamp) > 0 {
		channel, _ = r.store.UpdateChannel(e.ChannelID, func(c *models.Channel) {
			c.UnreadCount++
		})
		r.hub.Emit(hub.ChannelUpdated, channel)
	}

	if !channel.IsOpen && channel.Kind == models.KindDirect && r.opener != nil {
		r.opener.RequestOpenChat(e.ChannelID)
	}

	r.hub.Emit(hub.MessageReceived, message)
}

func (r *Reconciler) HandleChannelMarked(e events.ChannelMarked) {
	if _, known := r.store.GetChannel(e.ChannelID); !known {
		r.gap(e.Kind(), "channel", e.ChannelID, "unknown")
	}

	channel, _ := r.store.UpdateChannel(e.ChannelID, func(c *models.Channel) {
		c.LastReadTimestamp = e.Timestamp
		c.UnreadCount = max(e.UnreadCount, 0)
	})
	if channel.ID == "" {
		return
	}
	r.hub.Emit(hub.ChannelUpdated, channel)
}

func (r *Reconciler) HandleChannelJoined(e events.ChannelJoined) {
	var channel models.Channel
	if e.Group {
		channel = ParseGroup(e.Channel, r.store, r.store.SelfID())
	} else {
		channel = ParseChannel(e.Channel)
	}

	if channel.ID == "" {
		r.gap(e.Kind(), "channel", "", "missing")
		return
	}

	r.store.UpsertChannel(channel)
	channel, _ = r.store.GetChannel(channel.ID)
	r.hub.Emit(hub.ChannelJoined, channel)
}

func (r *Reconciler) HandleChatOpened(e events.ChatOpened) {
	if channel, ok := r.setOpen(e.Kind(), e.ChannelID, true); ok {
		r.hub.Emit(hub.ChannelJoined, channel)
	}
}

func (r *Reconciler) HandleChatClosed(e events.ChatClosed) {
	if channel, ok := r.setOpen(e.Kind(), e.ChannelID, false); ok {
		r.hub.Emit(hub.ChannelLeft, channel)
	}
}

func (r *Reconciler) HandleChannelLeft(e events.ChannelLeft) {
	if channel, ok := r.setOpen(e.Kind(), e.ChannelID, false); ok {
		r.hub.Emit(hub.ChannelLeft, channel)
	}
}

func (r *Reconciler) setOpen(kind string, channelID string, open bool) (models.Channel, bool) {
	if channelID == "" {
		r.gap(kind, "channel", "", "missing")
		return models.Channel{}, false
	}

	channel, known := r.store.UpdateChannel(channelID, func(c *models.Channel) {
		c.IsOpen = open
	})
	if !known {
		r.gap(kind, "channel", channelID, "unknown")
	}
	return channel, true
}

func (r *Reconciler) HandlePresenceChanged(e events.PresenceChanged) {
	for _, userID := range e.UserIDs {
		if user, ok := r.store.GetUser(userID); ok {
			user.Presence = e.Presence
			r.store.UpsertUser(user)
			r.hub.Emit(hub.UserUpdated, user)
		} else {
			r.gap(e.Kind(), "user", userID, "unknown")
		}

		for _, channel := range r.store.ListChannels() {
			if channel.Kind != models.KindDirect || channel.PeerUserID != userID {
				continue
			}
			updated, _ := r.store.UpdateChannel(channel.ID, func(c *models.Channel) {
				c.Presence = e.Presence
			})
			r.hub.Emit(hub.ChannelUpdated, updated)
		}
	}
}

func (r *Reconciler) HandleDesktopNotification(e events.DesktopNotificationRequested) {
	if r.viewing(e.ChannelID) {
		r.sugar.Debugf("Suppressing notification for channel ID [%s], it is on screen", e.ChannelID)
		return
	}
	if r.sink == nil {
		return
	}

	title := r.notificationTitle(e.ChannelID, e.Subtitle)
	if err := r.sink.Notify(e.ChannelID, title, e.Content); err != nil {
		r.sugar.Warnf("Notification for channel ID [%s] failed: %v", e.ChannelID, err)
	}
}

func (r *Reconciler) notificationTitle(channelID string, name string) string {
	kind := models.Kind("")
	if channel, ok := r.store.GetChannel(channelID); ok {
		kind = channel.Kind
	}

	switch kind {
	case models.KindPublicChannel, models.KindPrivateGroup, models.KindMultiPerson:
		return fmt.Sprintf("New message in %s", name)
	case models.KindDirect:
		return fmt.Sprintf("New message from %s", name)
	}

	// channel not loaded yet, fall back to the id prefix
	switch {
	case strings.HasPrefix(channelID, "C"), strings.HasPrefix(channelID, "G"):
		return fmt.Sprintf("New message in %s", name)
	case strings.HasPrefix(channelID, "D"):
		return fmt.Sprintf("New message from %s", name)
	default:
		return "New message"
	}
}

func (r *Reconciler) HandleUnrecognized(e events.Unrecognized) {
	if e.Err != nil {
		r.metrics.IncDecodeFailure()
		r.sugar.Debugf("Dropping frame of type [%s]: %v", e.Type, e.Err)
	}
}
