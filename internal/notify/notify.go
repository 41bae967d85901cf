package notify

import (
	"errors"

	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

const (
	bodyLimit    = 100
	previewLimit = 40
)

type Sink interface {
	Notify(channelID string, title string, body string) error
}

// Truncate shortens text to limit runes, ending in "..." when it had to cut.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-3]) + "..."
}

type Desktop struct {
	sugar    *zap.SugaredLogger
	iconPath string
	send     func(title, message, icon string) error
}

func NewDesktop(sugar *zap.SugaredLogger, iconPath string) *Desktop {
	return &Desktop{
		sugar:    sugar,
		iconPath: iconPath,
		send: func(title, message, icon string) error {
			return beeep.Notify(title, message, icon)
		},
	}
}

func (d *Desktop) Notify(channelID string, title string, body string) error {
	err := d.send(title, Truncate(body, bodyLimit), d.iconPath)
	if err != nil {
		d.sugar.Warnf("Desktop notification for channel ID [%s] failed: %v", channelID, err)
	}
	return err
}

type Log struct {
	sugar *zap.SugaredLogger
}

func NewLog(sugar *zap.SugaredLogger) *Log {
	return &Log{sugar: sugar}
}

func (l *Log) Notify(channelID string, title string, body string) error {
	l.sugar.Infof("Notification for channel ID [%s]: %s: %s", channelID, title, Truncate(body, previewLimit))
	return nil
}

type Multi []Sink

func (m Multi) Notify(channelID string, title string, body string) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Notify(channelID, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
