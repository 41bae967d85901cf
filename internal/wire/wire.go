// Package wire holds the JSON shapes exchanged with the chat service.
package wire

type Profile struct {
	DisplayName  *string `json:"display_name"`
	AlwaysActive bool    `json:"always_active"`
}

type User struct {
	ID      string  `json:"id" validate:"required"`
	Name    string  `json:"name"`
	Profile Profile `json:"profile"`
}

type UsersList struct {
	Members          []User           `json:"members"`
	ResponseMetadata ResponseMetadata `json:"response_metadata"`
}

type Conversation struct {
	ID                 string   `json:"id" validate:"required"`
	Name               string   `json:"name"`
	IsChannel          bool     `json:"is_channel"`
	IsGroup            bool     `json:"is_group"`
	IsIM               bool     `json:"is_im"`
	IsMPIM             bool     `json:"is_mpim"`
	IsMember           bool     `json:"is_member"`
	IsOpen             bool     `json:"is_open"`
	LastRead           string   `json:"last_read"`
	UnreadCountDisplay int      `json:"unread_count_display"`
	User               string   `json:"user"`
	Members            []string `json:"members"`
}

type ResponseMetadata struct {
	NextCursor string `json:"next_cursor"`
}

type ConversationPage struct {
	Channels         []Conversation   `json:"channels"`
	ResponseMetadata ResponseMetadata `json:"response_metadata"`
}

type ConversationInfo struct {
	Channel *Conversation `json:"channel"`
	Group   *Conversation `json:"group"`
}

type Comment struct {
	User string `json:"user"`
}

type AttachmentField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type Attachment struct {
	Title       string            `json:"title"`
	TitleLink   string            `json:"title_link"`
	Pretext     string            `json:"pretext"`
	Text        string            `json:"text"`
	Fallback    string            `json:"fallback"`
	Color       string            `json:"color"`
	Fields      []AttachmentField `json:"fields"`
	ImageURL    string            `json:"image_url"`
	ImageWidth  int               `json:"image_width"`
	ImageHeight int               `json:"image_height"`
}

type File struct {
	Name       string `json:"name"`
	FileType   string `json:"filetype"`
	URLPrivate string `json:"url_private"`
	OriginalW  int    `json:"original_w"`
	OriginalH  int    `json:"original_h"`
	Thumb360   string `json:"thumb_360"`
	Thumb360W  int    `json:"thumb_360_w"`
	Thumb360H  int    `json:"thumb_360_h"`
	Thumb480   string `json:"thumb_480"`
	Thumb480W  int    `json:"thumb_480_w"`
	Thumb480H  int    `json:"thumb_480_h"`
}

type Message struct {
	Type        string       `json:"type"`
	Subtype     string       `json:"subtype"`
	Channel     string       `json:"channel" validate:"required"`
	User        string       `json:"user"`
	BotID       string       `json:"bot_id"`
	Username    string       `json:"username"`
	Text        string       `json:"text"`
	Ts          string       `json:"ts" validate:"required"`
	Comment     *Comment     `json:"comment"`
	Attachments []Attachment `json:"attachments"`
	File        *File        `json:"file"`
}

type History struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

type RTMConnect struct {
	URL string `json:"url" validate:"required"`
}

type AuthTest struct {
	UserID string `json:"user_id"`
	TeamID string `json:"team_id"`
	Team   string `json:"team"`
}

// Envelope is the part shared by every stream frame.
type Envelope struct {
	Type    string `json:"type"`
	ReplyTo *int64 `json:"reply_to"`
}

type Marked struct {
	Type               string `json:"type"`
	Channel            string `json:"channel" validate:"required"`
	Ts                 string `json:"ts"`
	UnreadCountDisplay int    `json:"unread_count_display" validate:"gte=0"`
}

type Joined struct {
	Type    string       `json:"type"`
	Channel Conversation `json:"channel"`
}

type ChannelRef struct {
	Type    string `json:"type"`
	Channel string `json:"channel" validate:"required"`
	User    string `json:"user"`
}

type PresenceChange struct {
	Type     string   `json:"type"`
	User     string   `json:"user"`
	Users    []string `json:"users"`
	Presence string   `json:"presence" validate:"required"`
}

type DesktopNotification struct {
	Type     string `json:"type"`
	Channel  string `json:"channel"`
	Subtitle string `json:"subtitle"`
	Content  string `json:"content"`
	Title    string `json:"title"`
}

// Outbound frames carry a per-connection id assigned by the sender.
type Outbound struct {
	ID   int64    `json:"id"`
	Type string   `json:"type"`
	IDs  []string `json:"ids,omitempty"`
}
