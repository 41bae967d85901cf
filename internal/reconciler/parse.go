package reconciler

import (
	"chatsync/internal/models"
	"chatsync/internal/wire"
	"strings"
)

// Users is the lookup the parsers need to name chats after their members.
type Users interface {
	GetUser(id string) (models.User, bool)
}

func ParseUser(u wire.User) models.User {
	presence := models.PresenceAway
	if u.Profile.AlwaysActive {
		presence = models.PresenceActive
	}

	name := u.Name
	if u.Profile.DisplayName != nil && *u.Profile.DisplayName != "" {
		name = *u.Profile.DisplayName
	}

	return models.User{ID: u.ID, DisplayName: name, Presence: presence}
}

func ParseUsers(list []wire.User) []models.User {
	users := make([]models.User, 0, len(list))
	for _, u := range list {
		if u.ID == "" {
			continue
		}
		users = append(users, ParseUser(u))
	}
	return users
}

// ParseConversation picks the parser from the flags the service sets on the object.
func ParseConversation(c wire.Conversation, users Users, selfID string) models.Channel {
	switch {
	case c.IsIM:
		return ParseChat(c, users, selfID)
	case c.IsChannel:
		return ParseChannel(c)
	default:
		return ParseGroup(c, users, selfID)
	}
}

func ParseChannel(c wire.Conversation) models.Channel {
	return models.Channel{
		ID:                c.ID,
		Kind:              models.KindPublicChannel,
		Category:          models.KindPublicChannel.Category(),
		DisplayName:       c.Name,
		IsOpen:            c.IsMember,
		LastReadTimestamp: c.LastRead,
		UnreadCount:       max(c.UnreadCountDisplay, 0),
		Presence:          models.PresenceNone,
	}
}

func ParseGroup(c wire.Conversation, users Users, selfID string) models.Channel {
	channel := models.Channel{
		ID:                c.ID,
		Kind:              models.KindPrivateGroup,
		DisplayName:       c.Name,
		IsOpen:            c.IsOpen,
		LastReadTimestamp: c.LastRead,
		UnreadCount:       max(c.UnreadCountDisplay, 0),
		Presence:          models.PresenceNone,
	}

	if c.IsMPIM {
		channel.Kind = models.KindMultiPerson

		names := make([]string, 0, len(c.Members))
		for _, member := range c.Members {
			if member == selfID {
				continue
			}
			user, _ := users.GetUser(member)
			names = append(names, user.DisplayName)
		}
		channel.DisplayName = strings.Join(names, ", ")
	}

	channel.Category = channel.Kind.Category()
	return channel
}

func ParseChat(c wire.Conversation, users Users, selfID string) models.Channel {
	user, _ := users.GetUser(c.User)

	name := user.DisplayName
	if selfID != "" && c.User == selfID {
		name += " (you)"
	}

	presence := user.Presence
	if presence == "" {
		presence = models.PresenceNone
	}

	return models.Channel{
		ID:                c.ID,
		Kind:              models.KindDirect,
		Category:          models.KindDirect.Category(),
		DisplayName:       name,
		PeerUserID:        c.User,
		IsOpen:            c.IsOpen,
		LastReadTimestamp: c.LastRead,
		UnreadCount:       max(c.UnreadCountDisplay, 0),
		Presence:          presence,
	}
}
