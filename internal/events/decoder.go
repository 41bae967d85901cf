package events

import (
	"chatsync/internal/models"
	"chatsync/internal/wire"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Decoder classifies raw stream frames. It never touches the model.
type Decoder struct {
	sugar    *zap.SugaredLogger
	validate *validator.Validate
}

func NewDecoder(sugar *zap.SugaredLogger) *Decoder {
	return &Decoder{
		sugar:    sugar,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (d *Decoder) Decode(raw []byte) Event {
	var envelope wire.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Unrecognized{Err: &DecodeError{Size: len(raw), Err: err}}
	}

	switch envelope.Type {
	case "message":
		var msg wire.Message
		if err := d.unmarshal(raw, &msg); err != nil {
			return Unrecognized{Type: envelope.Type, Err: err}
		}
		d.check(KindMessagePosted, &msg)
		return MessagePosted{ChannelID: msg.Channel, Message: msg}

	case "channel_marked", "group_marked", "im_marked", "mpim_marked":
		var marked wire.Marked
		if err := d.unmarshal(raw, &marked); err != nil {
			return Unrecognized{Type: envelope.Type, Err: err}
		}
		d.check(KindChannelMarked, &marked)
		return ChannelMarked{
			Subtype:     envelope.Type,
			ChannelID:   marked.Channel,
			Timestamp:   marked.Ts,
			UnreadCount: marked.UnreadCountDisplay,
		}

	case "channel_joined", "group_joined":
		var joined wire.Joined
		if err := d.unmarshal(raw, &joined); err != nil {
			return Unrecognized{Type: envelope.Type, Err: err}
		}
		d.check(KindChannelJoined, &joined.Channel)
		return ChannelJoined{Group: envelope.Type == "group_joined", Channel: joined.Channel}

	case "im_open", "im_close":
		var ref wire.ChannelRef
		if err := d.unmarshal(raw, &ref); err != nil {
			return Unrecognized{Type: envelope.Type, Err: err}
		}
		if envelope.Type == "im_open" {
			d.check(KindChatOpened, &ref)
			return ChatOpened{ChannelID: ref.Channel, UserID: ref.User}
		}
		d.check(KindChatClosed, &ref)
		return ChatClosed{ChannelID: ref.Channel, UserID: ref.User}

	case "channel_left", "group_left":
		var ref wire.ChannelRef
		if err := d.unmarshal(raw, &ref); err != nil {
			return Unrecognized{Type: envelope.Type, Err: err}
		}
		d.check(KindChannelLeft, &ref)
		return ChannelLeft{Group: envelope.Type == "group_left", ChannelID: ref.Channel}

	case "presence_change":
		var change wire.PresenceChange
		if err := d.unmarshal(raw, &change); err != nil {
			return Unrecognized{Type: envelope.Type, Err: err}
		}
		d.check(KindPresenceChanged, &change)

		userIDs := change.Users
		if change.User != "" {
			userIDs = []string{change.User}
		}
		return PresenceChanged{UserIDs: userIDs, Presence: models.ParsePresence(change.Presence)}

	case "desktop_notification":
		var notification wire.DesktopNotification
		if err := d.unmarshal(raw, &notification); err != nil {
			return Unrecognized{Type: envelope.Type, Err: err}
		}
		return DesktopNotificationRequested{
			ChannelID: notification.Channel,
			Subtitle:  notification.Subtitle,
			Content:   notification.Content,
		}
	}

	return Unrecognized{Type: envelope.Type}
}

func (d *Decoder) unmarshal(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &DecodeError{Size: len(raw), Err: err}
	}
	return nil
}

// check logs missing fields without rejecting the event.
func (d *Decoder) check(kind string, v any) {
	err := d.validate.Struct(v)
	if err == nil {
		return
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		d.sugar.Warnf("Validating %s failed: %v", kind, err)
		return
	}
	for _, fe := range fieldErrors {
		gap := &ValidationGap{Kind: kind, Entity: fe.Field(), Reason: "failed " + fe.Tag()}
		d.sugar.Debugf("Validation gap: %v", gap)
	}
}
