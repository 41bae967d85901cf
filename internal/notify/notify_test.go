package notify

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		limit    int
		expected string
	}{
		{name: "short text untouched", text: "hello", limit: 40, expected: "hello"},
		{name: "exact limit untouched", text: strings.Repeat("a", 40), limit: 40, expected: strings.Repeat("a", 40)},
		{name: "preview cut", text: strings.Repeat("a", 41), limit: 40, expected: strings.Repeat("a", 37) + "..."},
		{name: "body cut", text: strings.Repeat("b", 150), limit: 100, expected: strings.Repeat("b", 97) + "..."},
		{name: "runes not bytes", text: strings.Repeat("ä", 41), limit: 40, expected: strings.Repeat("ä", 37) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Truncate(tt.text, tt.limit))
		})
	}
}

func TestDesktop_TruncatesBody(t *testing.T) {
	var gotTitle, gotBody string
	d := &Desktop{
		sugar: zaptest.NewLogger(t).Sugar(),
		send: func(title, message, icon string) error {
			gotTitle, gotBody = title, message
			return nil
		},
	}

	err := d.Notify("C1", "New message in general", strings.Repeat("x", 120))
	assert.NoError(t, err)
	assert.Equal(t, "New message in general", gotTitle)
	assert.Len(t, gotBody, 100)
	assert.True(t, strings.HasSuffix(gotBody, "..."))
}

type failingSink struct{}

func (failingSink) Notify(string, string, string) error { return errors.New("no display") }

func TestMulti(t *testing.T) {
	m := Multi{NewLog(zaptest.NewLogger(t).Sugar()), failingSink{}}
	err := m.Notify("C1", "title", "body")
	assert.EqualError(t, err, "no display")
}
