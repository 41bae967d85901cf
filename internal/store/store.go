package store

import (
	"chatsync/internal/models"
	"sync"
)

// Store holds users, channels and materialised message lists for one session.
// Readers always get copies, so a value handed out never changes under the caller.
type Store struct {
	mu sync.RWMutex

	selfID string

	users     map[string]models.User
	userOrder []string

	channels     map[string]models.Channel
	channelOrder []string

	messages map[string][]models.Message
}

func New() *Store {
	return &Store{
		users:    make(map[string]models.User),
		channels: make(map[string]models.Channel),
		messages: make(map[string][]models.Message),
	}
}

func (s *Store) SelfID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selfID
}

func (s *Store) SetSelfID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfID = id
}

func (s *Store) GetUser(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	return user, ok
}

func (s *Store) UpsertUser(user models.User) {
	if user.ID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; !exists {
		s.userOrder = append(s.userOrder, user.ID)
	}
	s.users[user.ID] = user
}

// UpsertUsers applies a batch under one lock so readers never see half of it.
func (s *Store) UpsertUsers(users []models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range users {
		if user.ID == "" {
			continue
		}
		if _, exists := s.users[user.ID]; !exists {
			s.userOrder = append(s.userOrder, user.ID)
		}
		s.users[user.ID] = user
	}
}

func (s *Store) ListUsers() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		users = append(users, s.users[id])
	}
	return users
}

func (s *Store) GetChannel(id string) (models.Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channel, ok := s.channels[id]
	return channel, ok
}

func (s *Store) UpsertChannel(channel models.Channel) {
	if channel.ID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.putChannel(channel)
}

func (s *Store) UpsertChannels(channels []models.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, channel := range channels {
		if channel.ID == "" {
			continue
		}
		s.putChannel(channel)
	}
}

// UpdateChannel runs fn on the stored channel, or on a zero channel carrying only id when
// none is stored, and saves the result. The read and the write happen under one lock.
func (s *Store) UpdateChannel(id string, fn func(channel *models.Channel)) (models.Channel, bool) {
	if id == "" {
		return models.Channel{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	channel, existed := s.channels[id]
	if !existed {
		channel = models.Channel{ID: id}
	}
	fn(&channel)
	channel.ID = id
	s.putChannel(channel)

	return s.channels[id], existed
}

func (s *Store) putChannel(channel models.Channel) {
	if channel.UnreadCount < 0 {
		channel.UnreadCount = 0
	}
	if channel.Kind != "" {
		channel.Category = channel.Kind.Category()
	}
	if channel.Presence == "" {
		channel.Presence = models.PresenceNone
	}

	if _, exists := s.channels[channel.ID]; !exists {
		s.channelOrder = append(s.channelOrder, channel.ID)
	}
	s.channels[channel.ID] = channel
}

func (s *Store) ListChannels() []models.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channels := make([]models.Channel, 0, len(s.channelOrder))
	for _, id := range s.channelOrder {
		channels = append(channels, s.channels[id])
	}
	return channels
}

func (s *Store) HasMessages(channelID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.messages[channelID]
	return ok
}

func (s *Store) Messages(channelID string) ([]models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[channelID]
	if !ok {
		return nil, false
	}
	return cloneMessages(messages), true
}

func (s *Store) SetMessages(channelID string, messages []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[channelID] = cloneMessages(messages)
}

// AppendMessage adds to a materialised list and reports whether it did. Channels whose
// history has not been loaded are left alone.
func (s *Store) AppendMessage(channelID string, message models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages, ok := s.messages[channelID]
	if !ok {
		return false
	}
	s.messages[channelID] = append(messages, message.Clone())
	return true
}

// PrependMessages splices an older page, already in ascending order, before the current head.
func (s *Store) PrependMessages(channelID string, messages []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.messages[channelID]
	merged := make([]models.Message, 0, len(messages)+len(existing))
	merged = append(merged, cloneMessages(messages)...)
	merged = append(merged, existing...)
	s.messages[channelID] = merged
}

func (s *Store) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = make(map[string][]models.Message)
}

func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selfID = ""
	s.users = make(map[string]models.User)
	s.userOrder = nil
	s.channels = make(map[string]models.Channel)
	s.channelOrder = nil
	s.messages = make(map[string][]models.Message)
}

func cloneMessages(messages []models.Message) []models.Message {
	out := make([]models.Message, len(messages))
	for i, m := range messages {
		out[i] = m.Clone()
	}
	return out
}
