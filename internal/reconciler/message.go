package reconciler

import (
	"chatsync/internal/markup"
	"chatsync/internal/models"
	"chatsync/internal/wire"
	"fmt"
	"slices"
	"strings"
)

const attachmentTextCut = 250

var imageFileTypes = []string{"jpg", "png", "gif"}

// BuildMessage turns a service message into its display record. Unseen "<@ID|name>"
// mentions are added to the store as a side effect.
func (r *Reconciler) BuildMessage(m wire.Message) models.Message {
	t := models.TimestampTime(m.Ts)

	author := r.author(m)
	r.discoverUsers(m.Text)

	return models.Message{
		Type:        m.Type,
		Timestamp:   m.Ts,
		Time:        t,
		TimeGroup:   models.TimeGroup(t),
		ChannelID:   m.Channel,
		Author:      author,
		BodyHTML:    r.formatter.Body(m.Text),
		Attachments: r.attachments(m.Attachments),
		Images:      sharedImages(m),
	}
}

// BuildMessages returns a history page in ascending time order.
func (r *Reconciler) BuildMessages(list []wire.Message) []models.Message {
	messages := make([]models.Message, 0, len(list))
	for _, m := range list {
		messages = append(messages, r.BuildMessage(m))
	}
	slices.SortStableFunc(messages, func(a, b models.Message) int {
		return a.Time.Compare(b.Time)
	})
	return messages
}

func (r *Reconciler) author(m wire.Message) models.User {
	var id string
	switch m.Subtype {
	case "bot_message":
		id = m.BotID
	case "file_comment":
		if m.Comment != nil {
			id = m.Comment.User
		}
	default:
		id = m.User
	}

	if id == "" {
		r.sugar.Debugf("No author found for message [%s] in channel ID [%s]", m.Ts, m.Channel)
	}

	// a snapshot: later presence changes do not reach messages already built
	author, ok := r.store.GetUser(id)
	if !ok {
		author = models.User{ID: id, DisplayName: "Unknown", Presence: models.PresenceAway}
	}

	if m.Username != "" {
		author.DisplayName = markup.StripMentions(m.Username)
	}

	return author
}

func (r *Reconciler) discoverUsers(text string) {
	for _, mention := range markup.FindMentions(text) {
		if _, known := r.store.GetUser(mention.ID); known {
			continue
		}
		r.sugar.Debugf("Discovered user ID [%s] through a mention", mention.ID)
		r.store.UpsertUser(models.User{ID: mention.ID, DisplayName: mention.Name, Presence: models.PresenceActive})
	}
}

func (r *Reconciler) attachments(list []wire.Attachment) []models.Attachment {
	attachments := make([]models.Attachment, 0, len(list))

	for _, a := range list {
		text := r.formatter.Emoji(r.formatter.Links(a.Text))
		text = cutAtSpace(text, attachmentTextCut)

		title := a.Title
		if title != "" && a.TitleLink != "" {
			title = fmt.Sprintf(`<a href="%s">%s</a>`, a.TitleLink, title)
		}

		attachments = append(attachments, models.Attachment{
			Title:          title,
			Pretext:        r.formatter.Links(a.Pretext),
			Content:        text,
			Fallback:       r.formatter.Links(a.Fallback),
			IndicatorColor: attachmentColor(a.Color),
			Fields:         r.fields(a.Fields),
			Images:         attachmentImages(a),
		})
	}

	return attachments
}

func (r *Reconciler) fields(list []wire.AttachmentField) []models.Field {
	fields := []models.Field{}
	for _, f := range list {
		if f.Title != "" {
			fields = append(fields, models.Field{
				IsTitle: true,
				IsShort: f.Short,
				Content: r.formatter.Markdown(r.formatter.Links(f.Title)),
			})
		}
		if f.Value != "" {
			fields = append(fields, models.Field{
				IsTitle: false,
				IsShort: f.Short,
				Content: r.formatter.Markdown(r.formatter.Links(f.Value)),
			})
		}
	}
	return fields
}

// cutAtSpace ends text at the first space found at or after rune index from.
func cutAtSpace(text string, from int) string {
	runes := []rune(text)
	for i := from; i < len(runes); i++ {
		if runes[i] == ' ' {
			return string(runes[:i]) + "..."
		}
	}
	return text
}

func attachmentColor(color string) string {
	switch {
	case color == "":
		return "theme"
	case color == "good":
		return "#6CC644"
	case color == "warning":
		return "#E67E22"
	case color == "danger":
		return "#D00000"
	case !strings.HasPrefix(color, "#"):
		return "#" + color
	default:
		return color
	}
}

func attachmentImages(a wire.Attachment) []models.Image {
	if a.ImageURL == "" {
		return []models.Image{}
	}
	return []models.Image{{
		URL:  a.ImageURL,
		Size: models.Size{Width: a.ImageWidth, Height: a.ImageHeight},
	}}
}

func sharedImages(m wire.Message) []models.Image {
	if m.Subtype != "file_share" || m.File == nil || !slices.Contains(imageFileTypes, m.File.FileType) {
		return []models.Image{}
	}

	f := m.File
	thumbURL, thumbSize := f.Thumb360, models.Size{Width: f.Thumb360W, Height: f.Thumb360H}
	if f.Thumb480 != "" {
		thumbURL, thumbSize = f.Thumb480, models.Size{Width: f.Thumb480W, Height: f.Thumb480H}
	}

	return []models.Image{{
		Name:      f.Name,
		URL:       f.URLPrivate,
		Size:      models.Size{Width: f.OriginalW, Height: f.OriginalH},
		ThumbURL:  thumbURL,
		ThumbSize: thumbSize,
	}}
}
