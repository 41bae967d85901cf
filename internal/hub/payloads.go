package hub

import "chatsync/internal/models"

type MessagesLoaded struct {
	ChannelID string           `json:"channelID"`
	Messages  []models.Message `json:"messages"`
	HasMore   bool             `json:"hasMore"`
}

type Login struct {
	UserID string `json:"userID"`
	TeamID string `json:"teamID"`
	Team   string `json:"team"`
}

// Failure is the payload of OperationFailed and the other *Failed kinds.
type Failure struct {
	Operation string `json:"operation"`
	ChannelID string `json:"channelID,omitempty"`
	Error     string `json:"error"`
}

func NewFailure(operation string, channelID string, err error) Failure {
	f := Failure{Operation: operation, ChannelID: channelID}
	if err != nil {
		f.Error = err.Error()
	}
	return f
}
