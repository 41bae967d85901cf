package events

import (
	"chatsync/internal/models"
	"chatsync/internal/wire"
)

const (
	KindMessagePosted       = "MessagePosted"
	KindChannelMarked       = "ChannelMarked"
	KindChannelJoined       = "ChannelJoined"
	KindChatOpened          = "ChatOpened"
	KindChatClosed          = "ChatClosed"
	KindChannelLeft         = "ChannelLeft"
	KindPresenceChanged     = "PresenceChanged"
	KindDesktopNotification = "DesktopNotificationRequested"
	KindUnrecognized        = "Unrecognized"
)

// Handler has one method per event variant. Adding a variant adds a method here,
// which stops every implementation from compiling until it handles the new case.
type Handler interface {
	HandleMessagePosted(MessagePosted)
	HandleChannelMarked(ChannelMarked)
	HandleChannelJoined(ChannelJoined)
	HandleChatOpened(ChatOpened)
	HandleChatClosed(ChatClosed)
	HandleChannelLeft(ChannelLeft)
	HandlePresenceChanged(PresenceChanged)
	HandleDesktopNotification(DesktopNotificationRequested)
	HandleUnrecognized(Unrecognized)
}

type Event interface {
	Kind() string
	Apply(Handler)
}

type MessagePosted struct {
	ChannelID string
	Message   wire.Message
}

func (MessagePosted) Kind() string      { return KindMessagePosted }
func (e MessagePosted) Apply(h Handler) { h.HandleMessagePosted(e) }

// ChannelMarked covers channel_marked, group_marked, im_marked and mpim_marked.
type ChannelMarked struct {
	Subtype     string
	ChannelID   string
	Timestamp   string
	UnreadCount int
}

func (ChannelMarked) Kind() string      { return KindChannelMarked }
func (e ChannelMarked) Apply(h Handler) { h.HandleChannelMarked(e) }

type ChannelJoined struct {
	Group   bool
	Channel wire.Conversation
}

func (ChannelJoined) Kind() string      { return KindChannelJoined }
func (e ChannelJoined) Apply(h Handler) { h.HandleChannelJoined(e) }

type ChatOpened struct {
	ChannelID string
	UserID    string
}

func (ChatOpened) Kind() string      { return KindChatOpened }
func (e ChatOpened) Apply(h Handler) { h.HandleChatOpened(e) }

type ChatClosed struct {
	ChannelID string
	UserID    string
}

func (ChatClosed) Kind() string      { return KindChatClosed }
func (e ChatClosed) Apply(h Handler) { h.HandleChatClosed(e) }

type ChannelLeft struct {
	Group     bool
	ChannelID string
}

func (ChannelLeft) Kind() string      { return KindChannelLeft }
func (e ChannelLeft) Apply(h Handler) { h.HandleChannelLeft(e) }

type PresenceChanged struct {
	UserIDs  []string
	Presence models.Presence
}

func (PresenceChanged) Kind() string      { return KindPresenceChanged }
func (e PresenceChanged) Apply(h Handler) { h.HandlePresenceChanged(e) }

type DesktopNotificationRequested struct {
	ChannelID string
	Subtitle  string
	Content   string
}

func (DesktopNotificationRequested) Kind() string      { return KindDesktopNotification }
func (e DesktopNotificationRequested) Apply(h Handler) { h.HandleDesktopNotification(e) }

// Unrecognized is anything the client does not act on, including frames that did not parse.
type Unrecognized struct {
	Type string
	Err  error
}

func (Unrecognized) Kind() string      { return KindUnrecognized }
func (e Unrecognized) Apply(h Handler) { h.HandleUnrecognized(e) }
