package api

import (
	"chatsync/internal/models"
	"chatsync/internal/wire"
	"context"
	"strings"

	"github.com/goccy/go-json"
)

const (
	ConversationTypes = "public_channel,private_channel,mpim,im"
	PageLimit         = "100"
	HistoryCount      = "20"

	historyCacheSeconds = 300
)

var methodPrefixes = map[models.Kind]string{
	models.KindPublicChannel: "channels",
	models.KindPrivateGroup:  "groups",
	models.KindMultiPerson:   "mpim",
	models.KindDirect:        "im",
}

func methodPrefix(kind models.Kind) string {
	if prefix, ok := methodPrefixes[kind]; ok {
		return prefix
	}
	return "conversations"
}

func HistoryMethod(kind models.Kind) string {
	return methodPrefix(kind) + ".history"
}

func MarkMethod(kind models.Kind) string {
	return methodPrefix(kind) + ".mark"
}

// InfoMethod picks the detail lookup for a conversation summary.
func InfoMethod(conversation wire.Conversation) string {
	switch {
	case conversation.IsChannel:
		return "channels.info"
	case conversation.IsGroup:
		return "groups.info"
	default:
		return "conversations.info"
	}
}

// UsersList follows the cursor until the listing is exhausted.
func (c *Client) UsersList(ctx context.Context) ([]wire.User, error) {
	var users []wire.User
	cursor := ""
	for {
		params := map[string]string{}
		if cursor != "" {
			params["cursor"] = cursor
		}

		var page wire.UsersList
		if err := c.Call(ctx, "users.list", params, &page); err != nil {
			return nil, err
		}
		users = append(users, page.Members...)

		cursor = page.ResponseMetadata.NextCursor
		if cursor == "" {
			return users, nil
		}
	}
}

func (c *Client) ConversationsList(ctx context.Context, cursor string) (wire.ConversationPage, error) {
	params := map[string]string{
		"types": ConversationTypes,
		"limit": PageLimit,
	}
	if cursor != "" {
		params["cursor"] = cursor
	}

	var page wire.ConversationPage
	err := c.Call(ctx, "conversations.list", params, &page)
	return page, err
}

func (c *Client) ConversationInfo(ctx context.Context, method string, channelID string) (wire.Conversation, error) {
	var info wire.ConversationInfo
	if err := c.Call(ctx, method, map[string]string{"channel": channelID}, &info); err != nil {
		return wire.Conversation{}, err
	}

	result := info.Channel
	if method == "groups.info" {
		result = info.Group
	}
	if result == nil {
		return wire.Conversation{}, &Error{Method: method, Status: 200, Code: "missing_result"}
	}
	return *result, nil
}

func (c *Client) RTMConnect(ctx context.Context) (string, error) {
	var out wire.RTMConnect
	if err := c.Call(ctx, "rtm.connect", map[string]string{"batch_presence_aware": "1"}, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", &Error{Method: "rtm.connect", Status: 200, Code: "missing_url"}
	}
	return out.URL, nil
}

// History fetches up to HistoryCount messages. A non-empty latest pages backwards
// from that timestamp, exclusive; those pages never change and are cached.
func (c *Client) History(ctx context.Context, kind models.Kind, channelID string, latest string) (wire.History, error) {
	method := HistoryMethod(kind)
	params := map[string]string{
		"channel": channelID,
		"count":   HistoryCount,
	}

	var key []byte
	if latest != "" {
		params["latest"] = latest
		params["inclusive"] = "0"
		key = []byte(method + "|" + channelID + "|" + latest)

		if cached, ok := c.cachedHistory(key); ok {
			return cached, nil
		}
	}

	var history wire.History
	if err := c.Call(ctx, method, params, &history); err != nil {
		return wire.History{}, err
	}

	if key != nil && c.history != nil {
		if raw, err := json.Marshal(history); err == nil {
			_ = c.history.Set(key, raw, historyCacheSeconds)
		}
	}
	return history, nil
}

func (c *Client) cachedHistory(key []byte) (wire.History, bool) {
	if c.history == nil {
		return wire.History{}, false
	}
	raw, err := c.history.Get(key)
	if err != nil {
		return wire.History{}, false
	}

	var history wire.History
	if err := json.Unmarshal(raw, &history); err != nil {
		return wire.History{}, false
	}
	return history, true
}

// ResetCache drops cached history pages, used when the credential changes.
func (c *Client) ResetCache() {
	if c.history != nil {
		c.history.Clear()
	}
}

func (c *Client) Mark(ctx context.Context, kind models.Kind, channelID string, ts string) error {
	return c.Post(ctx, MarkMethod(kind), map[string]string{"channel": channelID, "ts": ts}, nil)
}

func (c *Client) JoinChannel(ctx context.Context, name string) error {
	return c.Post(ctx, "channels.join", map[string]string{"name": name}, nil)
}

func (c *Client) LeaveChannel(ctx context.Context, channelID string) error {
	return c.Post(ctx, "channels.leave", map[string]string{"channel": channelID}, nil)
}

func (c *Client) LeaveGroup(ctx context.Context, channelID string) error {
	return c.Post(ctx, "groups.leave", map[string]string{"channel": channelID}, nil)
}

func (c *Client) OpenIM(ctx context.Context, userID string) error {
	return c.Post(ctx, "im.open", map[string]string{"user": userID}, nil)
}

func (c *Client) CloseIM(ctx context.Context, channelID string) error {
	return c.Post(ctx, "im.close", map[string]string{"channel": channelID}, nil)
}

var outgoingEscaper = strings.NewReplacer("&", "&amp;", ">", "&gt;", "<", "&lt;")

func EscapeText(text string) string {
	return outgoingEscaper.Replace(text)
}

func (c *Client) PostMessage(ctx context.Context, channelID string, text string) error {
	return c.Post(ctx, "chat.postMessage", map[string]string{
		"channel": channelID,
		"text":    EscapeText(text),
		"as_user": "true",
		"parse":   "full",
	}, nil)
}

func (c *Client) AuthTest(ctx context.Context) (wire.AuthTest, error) {
	var out wire.AuthTest
	err := c.Call(ctx, "auth.test", nil, &out)
	return out, err
}
