package models

import "time"

type Presence string

const (
	PresenceActive Presence = "active"
	PresenceAway   Presence = "away"
	PresenceNone   Presence = "none"
)

func ParsePresence(s string) Presence {
	switch s {
	case "active":
		return PresenceActive
	case "away":
		return PresenceAway
	default:
		return PresenceNone
	}
}

type Kind string

const (
	KindPublicChannel Kind = "public_channel"
	KindPrivateGroup  Kind = "private_group"
	KindMultiPerson   Kind = "multi_person"
	KindDirect        Kind = "direct"
)

type Category string

const (
	CategoryChannel Category = "channel"
	CategoryChat    Category = "chat"
)

func (k Kind) Category() Category {
	switch k {
	case KindMultiPerson, KindDirect:
		return CategoryChat
	default:
		return CategoryChannel
	}
}

// WireName is the short name the service uses in method names (channels.mark, im.history, ...).
func (k Kind) WireName() string {
	switch k {
	case KindPublicChannel:
		return "channel"
	case KindPrivateGroup:
		return "group"
	case KindMultiPerson:
		return "mpim"
	case KindDirect:
		return "im"
	default:
		return ""
	}
}

func ParseKind(s string) (Kind, bool) {
	switch s {
	case "channel", string(KindPublicChannel):
		return KindPublicChannel, true
	case "group", string(KindPrivateGroup):
		return KindPrivateGroup, true
	case "mpim", string(KindMultiPerson):
		return KindMultiPerson, true
	case "im", string(KindDirect):
		return KindDirect, true
	default:
		return "", false
	}
}

type User struct {
	ID          string   `json:"id" yaml:"id"`
	DisplayName string   `json:"displayName" yaml:"displayName"`
	Presence    Presence `json:"presence" yaml:"presence"`
}

type Channel struct {
	ID                string   `json:"id" yaml:"id"`
	Kind              Kind     `json:"kind" yaml:"kind"`
	Category          Category `json:"category" yaml:"category"`
	DisplayName       string   `json:"displayName" yaml:"displayName"`
	PeerUserID        string   `json:"peerUserID,omitempty" yaml:"peerUserID,omitempty"`
	IsOpen            bool     `json:"isOpen" yaml:"isOpen"`
	LastReadTimestamp string   `json:"lastRead" yaml:"lastRead"`
	UnreadCount       int      `json:"unreadCount" yaml:"unreadCount"`
	Presence          Presence `json:"presence" yaml:"presence"`
}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Image struct {
	Name      string `json:"name,omitempty"`
	URL       string `json:"url"`
	Size      Size   `json:"size"`
	ThumbURL  string `json:"thumbUrl,omitempty"`
	ThumbSize Size   `json:"thumbSize"`
}

type Field struct {
	IsTitle bool   `json:"isTitle"`
	IsShort bool   `json:"isShort"`
	Content string `json:"content"`
}

type Attachment struct {
	Title          string  `json:"title"`
	Pretext        string  `json:"pretext"`
	Content        string  `json:"content"`
	Fallback       string  `json:"fallback"`
	IndicatorColor string  `json:"indicatorColor"`
	Fields         []Field `json:"fields"`
	Images         []Image `json:"images"`
}

type Message struct {
	Type        string       `json:"type"`
	Timestamp   string       `json:"timestamp"`
	Time        time.Time    `json:"time"`
	TimeGroup   string       `json:"timeGroup"`
	ChannelID   string       `json:"channelID"`
	Author      User         `json:"author"`
	BodyHTML    string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
	Images      []Image      `json:"images"`
}

// Clone copies the slices so the caller can hand the message out without sharing backing arrays.
func (m Message) Clone() Message {
	c := m
	if m.Attachments != nil {
		c.Attachments = make([]Attachment, len(m.Attachments))
		for i, a := range m.Attachments {
			a.Fields = append([]Field(nil), a.Fields...)
			a.Images = append([]Image(nil), a.Images...)
			c.Attachments[i] = a
		}
	}
	if m.Images != nil {
		c.Images = append([]Image(nil), m.Images...)
	}
	return c
}

const timeGroupLayout = "January 2, 2006"

func TimeGroup(t time.Time) string {
	return t.Format(timeGroupLayout)
}
