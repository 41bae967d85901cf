package api

import (
	"chatsync/internal/models"
	"chatsync/internal/wire"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
}

type fakeService struct {
	mutex     sync.Mutex
	requests  []recordedRequest
	responses map[string]string
	status    map[string]int
	failures  map[string]int
}

func newFakeService() *fakeService {
	return &fakeService{responses: map[string]string{}, status: map[string]int{}, failures: map[string]int{}}
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[len("/api/"):]

	recorded := recordedRequest{Method: r.Method, Path: method, Query: r.URL.Query()}
	if r.Method == http.MethodPost {
		body, _ := io.ReadAll(r.Body)
		recorded.Form, _ = url.ParseQuery(string(body))
	}

	f.mutex.Lock()
	f.requests = append(f.requests, recorded)
	body, ok := f.responses[method]
	status := f.status[method]
	if f.failures[method] > 0 {
		f.failures[method]--
		status = http.StatusServiceUnavailable
	}
	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		if paged, found := f.responses[method+"#"+cursor]; found {
			body = paged
		}
	}
	f.mutex.Unlock()

	if !ok {
		body = `{"ok":true}`
	}
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (f *fakeService) recorded() []recordedRequest {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newTestClient(t *testing.T, service *fakeService, token string, cacheBytes int) *Client {
	return newClientWithOptions(t, service, token, Options{HistoryCacheBytes: cacheBytes})
}

func newClientWithOptions(t *testing.T, service *fakeService, token string, opts Options) *Client {
	server := httptest.NewServer(service)
	t.Cleanup(server.Close)

	opts.BaseURL = server.URL + "/api"
	return New(zap.NewNop().Sugar(), StaticToken(token), opts, nil)
}

func TestCall_SendsTokenAndParams(t *testing.T) {
	service := newFakeService()
	service.responses["auth.test"] = `{"ok":true,"user_id":"U1","team_id":"T1","team":"Acme"}`
	client := newTestClient(t, service, "xoxp-1", 0)

	out, err := client.AuthTest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wire.AuthTest{UserID: "U1", TeamID: "T1", Team: "Acme"}, out)

	requests := service.recorded()
	require.Len(t, requests, 1)
	assert.Equal(t, http.MethodGet, requests[0].Method)
	assert.Equal(t, "xoxp-1", requests[0].Query.Get("token"))
}

func TestCall_OkFalseIsError(t *testing.T) {
	service := newFakeService()
	service.responses["auth.test"] = `{"ok":false,"error":"invalid_auth"}`
	client := newTestClient(t, service, "bad", 0)

	_, err := client.AuthTest(context.Background())
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "auth.test", apiErr.Method)
	assert.Equal(t, "invalid_auth", apiErr.Code)
	assert.True(t, IsAuthFailure(err))
}

func TestCall_NonSuccessStatusIsError(t *testing.T) {
	service := newFakeService()
	service.responses["rtm.connect"] = `{"ok":true,"url":"wss://x"}`
	service.status["rtm.connect"] = http.StatusInternalServerError
	client := newTestClient(t, service, "t", 0)

	_, err := client.RTMConnect(context.Background())

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.False(t, IsAuthFailure(err))
}

func TestCall_RetriesTransientReadFailures(t *testing.T) {
	service := newFakeService()
	service.responses["rtm.connect"] = `{"ok":true,"url":"wss://stream.test"}`
	service.failures["rtm.connect"] = 2
	client := newClientWithOptions(t, service, "t", Options{Retries: 3, RetryWait: time.Millisecond})

	streamURL, err := client.RTMConnect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wss://stream.test", streamURL)
	assert.Len(t, service.recorded(), 3)
}

func TestCall_WritesAreNotRetried(t *testing.T) {
	service := newFakeService()
	service.failures["chat.postMessage"] = 1
	client := newClientWithOptions(t, service, "t", Options{Retries: 3, RetryWait: time.Millisecond})

	err := client.PostMessage(context.Background(), "C1", "hello")

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Len(t, service.recorded(), 1)
}

func TestCall_WithoutCredentialFailsFast(t *testing.T) {
	service := newFakeService()
	client := newTestClient(t, service, "", 0)

	_, err := client.AuthTest(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.Empty(t, service.recorded())
}

func TestUsersList_FollowsCursor(t *testing.T) {
	service := newFakeService()
	service.responses["users.list"] = `{"ok":true,"members":[{"id":"U1","name":"alice"}],"response_metadata":{"next_cursor":"c2"}}`
	service.responses["users.list#c2"] = `{"ok":true,"members":[{"id":"U2","name":"bob"}],"response_metadata":{"next_cursor":""}}`
	client := newTestClient(t, service, "t", 0)

	users, err := client.UsersList(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "U1", users[0].ID)
	assert.Equal(t, "U2", users[1].ID)
}

func TestConversationsList_Params(t *testing.T) {
	service := newFakeService()
	service.responses["conversations.list"] = `{"ok":true,"channels":[{"id":"C1","is_channel":true}],"response_metadata":{"next_cursor":"n"}}`
	client := newTestClient(t, service, "t", 0)

	page, err := client.ConversationsList(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "n", page.ResponseMetadata.NextCursor)
	require.Len(t, page.Channels, 1)

	query := service.recorded()[0].Query
	assert.Equal(t, ConversationTypes, query.Get("types"))
	assert.Equal(t, "100", query.Get("limit"))
	assert.Equal(t, "abc", query.Get("cursor"))
}

func TestConversationInfo_GroupResultKey(t *testing.T) {
	service := newFakeService()
	service.responses["groups.info"] = `{"ok":true,"group":{"id":"G1","name":"secret","is_group":true}}`
	service.responses["channels.info"] = `{"ok":true,"channel":{"id":"C1","name":"general"}}`
	client := newTestClient(t, service, "t", 0)

	group, err := client.ConversationInfo(context.Background(), "groups.info", "G1")
	require.NoError(t, err)
	assert.Equal(t, "secret", group.Name)

	channel, err := client.ConversationInfo(context.Background(), "channels.info", "C1")
	require.NoError(t, err)
	assert.Equal(t, "general", channel.Name)

	_, err = client.ConversationInfo(context.Background(), "conversations.info", "X")
	assert.Error(t, err)
}

func TestInfoMethod(t *testing.T) {
	assert.Equal(t, "channels.info", InfoMethod(wire.Conversation{IsChannel: true}))
	assert.Equal(t, "groups.info", InfoMethod(wire.Conversation{IsGroup: true}))
	assert.Equal(t, "conversations.info", InfoMethod(wire.Conversation{IsIM: true}))
}

func TestHistoryAndMarkMethods(t *testing.T) {
	assert.Equal(t, "channels.history", HistoryMethod(models.KindPublicChannel))
	assert.Equal(t, "groups.history", HistoryMethod(models.KindPrivateGroup))
	assert.Equal(t, "mpim.history", HistoryMethod(models.KindMultiPerson))
	assert.Equal(t, "im.history", HistoryMethod(models.KindDirect))
	assert.Equal(t, "im.mark", MarkMethod(models.KindDirect))
	assert.Equal(t, "channels.mark", MarkMethod(models.KindPublicChannel))
}

func TestHistory_PagingParamsAndCache(t *testing.T) {
	service := newFakeService()
	service.responses["channels.history"] = `{"ok":true,"has_more":true,"messages":[{"type":"message","channel":"C1","user":"U1","text":"hi","ts":"1.0"}]}`
	client := newTestClient(t, service, "t", 1024*1024)

	latest, err := client.History(context.Background(), models.KindPublicChannel, "C1", "")
	require.NoError(t, err)
	assert.True(t, latest.HasMore)

	first := service.recorded()[0].Query
	assert.Equal(t, "20", first.Get("count"))
	assert.Empty(t, first.Get("latest"))
	assert.Empty(t, first.Get("inclusive"))

	older, err := client.History(context.Background(), models.KindPublicChannel, "C1", "5.0")
	require.NoError(t, err)
	require.Len(t, older.Messages, 1)

	second := service.recorded()[1].Query
	assert.Equal(t, "5.0", second.Get("latest"))
	assert.Equal(t, "0", second.Get("inclusive"))

	again, err := client.History(context.Background(), models.KindPublicChannel, "C1", "5.0")
	require.NoError(t, err)
	assert.Equal(t, older, again)
	assert.Len(t, service.recorded(), 2)

	client.ResetCache()
	_, err = client.History(context.Background(), models.KindPublicChannel, "C1", "5.0")
	require.NoError(t, err)
	assert.Len(t, service.recorded(), 3)
}

func TestPostMessage_EscapesAndPostsForm(t *testing.T) {
	service := newFakeService()
	client := newTestClient(t, service, "t", 0)

	require.NoError(t, client.PostMessage(context.Background(), "C1", "a < b & c > d"))

	requests := service.recorded()
	require.Len(t, requests, 1)
	assert.Equal(t, http.MethodPost, requests[0].Method)
	assert.Equal(t, "chat.postMessage", requests[0].Path)

	form := requests[0].Form
	assert.Equal(t, "a &lt; b &amp; c &gt; d", form.Get("text"))
	assert.Equal(t, "true", form.Get("as_user"))
	assert.Equal(t, "full", form.Get("parse"))
	assert.Equal(t, "t", form.Get("token"))
}

func TestSimpleWrites(t *testing.T) {
	service := newFakeService()
	client := newTestClient(t, service, "t", 0)
	ctx := context.Background()

	require.NoError(t, client.Mark(ctx, models.KindPrivateGroup, "G1", "9.1"))
	require.NoError(t, client.JoinChannel(ctx, "general"))
	require.NoError(t, client.LeaveChannel(ctx, "C1"))
	require.NoError(t, client.LeaveGroup(ctx, "G1"))
	require.NoError(t, client.OpenIM(ctx, "U2"))
	require.NoError(t, client.CloseIM(ctx, "D1"))

	requests := service.recorded()
	require.Len(t, requests, 6)
	assert.Equal(t, "groups.mark", requests[0].Path)
	assert.Equal(t, "9.1", requests[0].Form.Get("ts"))
	assert.Equal(t, "general", requests[1].Form.Get("name"))
	assert.Equal(t, "channels.leave", requests[2].Path)
	assert.Equal(t, "groups.leave", requests[3].Path)
	assert.Equal(t, "U2", requests[4].Form.Get("user"))
	assert.Equal(t, "im.close", requests[5].Path)
}
