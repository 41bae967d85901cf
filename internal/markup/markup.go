package markup

import (
	"chatsync/internal/models"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

const DefaultEmojiBaseURL = "http://emojistatic.github.io/images/32/"

// Directory resolves ids embedded in message text.
type Directory interface {
	GetUser(id string) (models.User, bool)
	GetChannel(id string) (models.Channel, bool)
}

type Mention struct {
	ID   string
	Name string
}

var (
	mentionPattern     = regexp.MustCompile(`<@([A-Z0-9]+)\|([^>]+)>`)
	userPattern        = regexp.MustCompile(`<@([A-Z0-9]+)(\|[^>]+)?>`)
	channelPattern     = regexp.MustCompile(`<#([A-Z0-9]+)(\|[^>]+)?>`)
	targetLabelPattern = regexp.MustCompile(`<!(here|channel|group|everyone)\|([^>]+)>`)
	targetPattern      = regexp.MustCompile(`<!(here|channel|group|everyone)>`)
	labelLinkPattern   = regexp.MustCompile(`<(http[^|>]+)\|([^>]+)>`)
	plainLinkPattern   = regexp.MustCompile(`<(http[^>]+)>`)
	mailtoPattern      = regexp.MustCompile(`<(mailto:[^|>]+)\|([^>]+)>`)
	italicPattern      = regexp.MustCompile(`(^|\s)_([^_]+)_(\s|\.|\?|!|,|$)`)
	boldPattern        = regexp.MustCompile(`(^|\s)\*([^*]+)\*(\s|\.|\?|!|,|$)`)
	strikePattern      = regexp.MustCompile(`(^|\s)~([^~]+)~(\s|\.|\?|!|,|$)`)
	codePattern        = regexp.MustCompile("(^|\\s)`([^`]+)`(\\s|\\.|\\?|!|,|$)")
	codeBlockPattern   = regexp.MustCompile("```([^`]+)```")
	emojiPattern       = regexp.MustCompile(`:([\w+\-]+):`)

	specialCharacters = strings.NewReplacer("&gt;", ">", "&lt;", "<", "&amp;", "&")
)

type Formatter struct {
	dir          Directory
	emoji        map[string]string
	emojiBaseURL string
}

func NewFormatter(dir Directory, emoji map[string]string) *Formatter {
	if emoji == nil {
		emoji = map[string]string{}
	}
	return &Formatter{dir: dir, emoji: emoji, emojiBaseURL: DefaultEmojiBaseURL}
}

// FindMentions returns the "<@ID|name>" references in text, in order of appearance.
func FindMentions(text string) []Mention {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	mentions := make([]Mention, 0, len(matches))
	for _, m := range matches {
		mentions = append(mentions, Mention{ID: m[1], Name: m[2]})
	}
	return mentions
}

// StripMentions replaces "<@ID|name>" with name.
func StripMentions(text string) string {
	return mentionPattern.ReplaceAllString(text, "${2}")
}

// Body rewrites a message text into display html.
func (f *Formatter) Body(text string) string {
	text = f.users(text)
	text = targets(text)
	text = f.channels(text)
	text = f.Links(text)
	text = specialCharacters.Replace(text)
	text = f.Markdown(text)
	text = f.Emoji(text)
	return text
}

func (f *Formatter) users(text string) string {
	return userPattern.ReplaceAllStringFunc(text, func(match string) string {
		id := userPattern.FindStringSubmatch(match)[1]
		user, ok := f.dir.GetUser(id)
		if !ok {
			return match
		}
		return fmt.Sprintf(`<a href="slackfish://user/%s">@%s</a>`, id, user.DisplayName)
	})
}

func (f *Formatter) channels(text string) string {
	return channelPattern.ReplaceAllStringFunc(text, func(match string) string {
		id := channelPattern.FindStringSubmatch(match)[1]
		channel, ok := f.dir.GetChannel(id)
		if !ok {
			return match
		}
		return fmt.Sprintf(`<a href="slackfish://channel/%s">#%s</a>`, id, channel.DisplayName)
	})
}

func targets(text string) string {
	text = targetLabelPattern.ReplaceAllString(text, `<a href="slackfish://target/${1}">${2}</a>`)
	return targetPattern.ReplaceAllString(text, `<a href="slackfish://target/${1}">@${1}</a>`)
}

func (f *Formatter) Links(text string) string {
	text = labelLinkPattern.ReplaceAllString(text, `<a href="${1}">${2}</a>`)
	text = plainLinkPattern.ReplaceAllString(text, `<a href="${1}">${1}</a>`)
	return mailtoPattern.ReplaceAllString(text, `<a href="${1}">${2}</a>`)
}

func (f *Formatter) Markdown(text string) string {
	text = italicPattern.ReplaceAllString(text, "${1}<i>${2}</i>${3}")
	text = boldPattern.ReplaceAllString(text, "${1}<b>${2}</b>${3}")
	text = strikePattern.ReplaceAllString(text, "${1}<s>${2}</s>${3}")
	text = codePattern.ReplaceAllString(text, "${1}<code>${2}</code>${3}")
	text = codeBlockPattern.ReplaceAllString(text, "<br/><code>${1}</code><br/>")
	return strings.ReplaceAll(text, "\n", "<br/>")
}

// Emoji swaps known ":name:" codes for image tags and leaves unknown ones as typed.
func (f *Formatter) Emoji(text string) string {
	return emojiPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[1 : len(match)-1]
		image, ok := f.emoji[name]
		if !ok {
			return match
		}
		return fmt.Sprintf(`<img src="%s%s" alt="%s" align="bottom" width="64" height="64" />`, f.emojiBaseURL, image, name)
	})
}

type emojiEntry struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// LoadEmoji reads a [{"name":..,"image":..}] table. An empty path yields an empty table.
func LoadEmoji(path string) (map[string]string, error) {
	table := map[string]string{}
	if path == "" {
		return table, nil
	}

	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read emoji table: %w", err)
	}

	var entries []emojiEntry
	if err := json.Unmarshal(bytes, &entries); err != nil {
		return nil, fmt.Errorf("parse emoji table: %w", err)
	}
	for _, e := range entries {
		table[e.Name] = e.Image
	}
	return table, nil
}
