package hub

import (
	"chatsync/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHub_DeliversByKind(t *testing.T) {
	h := New(zaptest.NewLogger(t).Sugar())

	var channelUpdates, all []string
	h.Subscribe(ChannelUpdated, func(n Notification) {
		channelUpdates = append(channelUpdates, n.Payload.(models.Channel).ID)
	})
	h.SubscribeAll(func(n Notification) {
		all = append(all, n.Kind)
	})

	h.Emit(ChannelUpdated, models.Channel{ID: "C1"})
	h.Emit(Connected, nil)

	assert.Equal(t, []string{"C1"}, channelUpdates)
	assert.Equal(t, []string{ChannelUpdated, Connected}, all)
}

func TestHub_Unsubscribe(t *testing.T) {
	h := New(zaptest.NewLogger(t).Sugar())

	count := 0
	unsubscribe := h.Subscribe(Connected, func(Notification) { count++ })
	h.Emit(Connected, nil)
	unsubscribe()
	h.Emit(Connected, nil)
	unsubscribe()

	assert.Equal(t, 1, count)
}

func TestHub_ListenerMayReenter(t *testing.T) {
	h := New(zaptest.NewLogger(t).Sugar())

	var order []string
	var unsubscribe func()
	unsubscribe = h.Subscribe(Reconnecting, func(Notification) {
		order = append(order, "reconnecting")
		unsubscribe()
		h.Emit(Disconnected, nil)
	})
	h.Subscribe(Disconnected, func(Notification) {
		order = append(order, "disconnected")
	})

	h.Emit(Reconnecting, nil)
	h.Emit(Reconnecting, nil)

	assert.Equal(t, []string{"reconnecting", "disconnected"}, order)
}

func TestFrame(t *testing.T) {
	frame, err := Frame(UserUpdated, models.User{ID: "U1", DisplayName: "alice", Presence: models.PresenceAway})
	require.NoError(t, err)
	assert.Equal(t, "UserUpdated\n{\"id\":\"U1\",\"displayName\":\"alice\",\"presence\":\"away\"}", string(frame))
}
